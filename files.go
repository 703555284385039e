// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import "strings"

// readFiles implements spec.md §4.9 (component K): file_bands, the
// trailing file-bytes region, and classfile-stub binding.
func readFiles(buf *limitedBuffer, h *archiveHeader, pkg *Package, opts *Options) error {
	n := h.FileCount
	if n == 0 {
		bindClassfileStubs(pkg, nil)
		return nil
	}

	names := newRefBand("file_name", CodingUnsigned, TagUtf8, pkg.Pool)
	names.expectLength(n)
	if err := names.fill(buf); err != nil {
		return err
	}

	var sizeHi *IntBand
	if h.hasOption(AOHaveFileSizeHi) {
		sizeHi = newIntBand("file_size_hi", CodingUnsigned)
		sizeHi.expectLength(n)
		if err := sizeHi.fill(buf); err != nil {
			return err
		}
	}
	sizeLo := newIntBand("file_size_lo", CodingUnsigned)
	sizeLo.expectLength(n)
	if err := sizeLo.fill(buf); err != nil {
		return err
	}

	var modtimeDelta *IntBand
	if h.hasOption(AOHaveFileModtime) {
		modtimeDelta = newIntBand("file_modtime", Coding{B: 32, H: 1, S: SignZigzag, D: true})
		modtimeDelta.expectLength(n)
		if err := modtimeDelta.fill(buf); err != nil {
			return err
		}
	}

	var options *IntBand
	if h.hasOption(AOHaveFileOptions) {
		options = newIntBand("file_options", CodingUnsigned)
		options.expectLength(n)
		if err := options.fill(buf); err != nil {
			return err
		}
	}

	sizes := make([]int64, n)
	total := int64(0)
	for i := 0; i < n; i++ {
		size := sizeLo.get()
		if sizeHi != nil {
			size |= sizeHi.get() << 32
		}
		sizes[i] = size
		total += size
	}

	files := make([]*ResourceFile, n)
	for i := 0; i < n; i++ {
		nameRef, err := names.getRef()
		if err != nil {
			return err
		}
		f := &ResourceFile{
			Name:    nameRef.erasedUtf8(),
			ModTime: pkg.DefaultModtime,
			Options: 0,
		}
		if modtimeDelta != nil {
			f.ModTime = uint32(int64(pkg.DefaultModtime) + modtimeDelta.get())
		}
		if options != nil {
			f.Options = uint32(options.get())
		} else if h.hasOption(AODeflateHint) {
			f.Options = FODeflateHint
		}
		f.IsClassStub = sizes[i] == 0 && strings.HasSuffix(f.Name, ".class")
		files[i] = f
	}

	// The file-bytes region: every non-empty file's payload, concatenated
	// in declaration order, sized by the running total computed above.
	if !opts.Fast {
		for i, f := range files {
			if sizes[i] == 0 {
				continue
			}
			data := make([]byte, sizes[i])
			if _, err := buf.read(data); err != nil {
				return newReadError(KindTruncatedStream, "file_bytes", buf.served(), buf.limit,
					"file %q: %v", f.Name, err)
			}
			f.Data = data
		}
	} else {
		skip := int64(0)
		for i := range files {
			skip += sizes[i]
		}
		if skip > 0 {
			scratch := make([]byte, skip)
			if _, err := buf.read(scratch); err != nil {
				return newReadError(KindTruncatedStream, "file_bytes", buf.served(), buf.limit, "%v", err)
			}
		}
	}

	pkg.Files = files
	bindClassfileStubs(pkg, files)
	return nil
}

// bindClassfileStubs implements spec.md §4.9's binding rule: classfile
// stubs, in declaration order, bind to the still-unbound classes in
// archive order; any classes left without a stub get a synthesized empty
// file pinned to the default modtime.
func bindClassfileStubs(pkg *Package, files []*ResourceFile) {
	var stubs []*ResourceFile
	for _, f := range files {
		if f.IsClassStub {
			stubs = append(stubs, f)
		}
	}
	for i, c := range pkg.Classes {
		if i < len(stubs) {
			c.File = stubs[i]
			continue
		}
		c.File = &ResourceFile{
			Name:        c.ThisName + ".class",
			ModTime:     pkg.DefaultModtime,
			IsClassStub: true,
		}
	}
}
