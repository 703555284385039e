// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import (
	"bytes"
	"io"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/gopacker/unpack200/internal/rlog"
)

// Open memory-maps the archive at path and decodes it, the same
// construction shape the teacher's pe.New offers for a path-based entry
// point: the mapped bytes back a bounded io.Reader so the rest of the
// pipeline never knows whether its input came from disk or memory.
func Open(path string, opts *Options) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	defer f.Close()
	defer data.Unmap()

	return NewBytes(data, opts)
}

// NewBytes decodes an archive already resident in memory.
func NewBytes(data []byte, opts *Options) (*Package, error) {
	return New(bytes.NewReader(data), opts)
}

// New decodes an archive read from r, per spec.md's component-E
// orchestrator: header, then constant pool, classes, files, and finally
// the component-L post-pass, strictly in that order.
func New(r io.Reader, opts *Options) (*Package, error) {
	if opts == nil {
		opts = &Options{}
	}
	if opts.MaxClassCount == 0 {
		opts.MaxClassCount = defaultMaxClassCount
	}

	logger := rlog.NewHelper(opts.Logger)
	buf := newLimitedBuffer(r)

	h, err := readArchiveHeader(buf)
	if err != nil {
		return nil, err
	}
	if uint32(h.ClassCount) > opts.MaxClassCount {
		return nil, newReadError(KindTruncatedStream, "archive_header_1.class_count", buf.served(), buf.limit,
			"class count %d exceeds configured maximum %d", h.ClassCount, opts.MaxClassCount)
	}

	pkg := &Package{
		Pool:           newConstantPool(),
		DefaultVersion: h.DefaultVersion,
		ArchiveOptions: h.Options,
	}

	registry := newLayoutRegistry()

	// Optional sub-headers gated by HAVE_SPECIAL_FORMATS: band_headers
	// (per-band coding overrides, opaque to this reader beyond their
	// declared byte length) followed by attr_definition_bands (the
	// user-defined attribute layouts), spec.md §4.3/§4.6.
	if h.hasOption(AOHaveSpecialFormats) {
		if h.BandHeadersSize > 0 {
			skipBuf := make([]byte, h.BandHeadersSize)
			if _, err := buf.read(skipBuf); err != nil {
				return nil, newReadError(KindTruncatedStream, "band_headers", buf.served(), buf.limit, "%v", err)
			}
		}
		if err := registry.readUserDefinitions(buf, h.AttrDefCount); err != nil {
			return nil, err
		}
	}

	logger.Debugf("decoding archive version %d.%d, %d classes, %d files",
		h.Version.Major, h.Version.Minor, h.ClassCount, h.FileCount)

	if err := readConstantPool(buf, pkg.Pool, h); err != nil {
		return nil, err
	}

	innerClasses, err := readGlobalInnerClasses(buf, pkg.Pool, h.InnerClassCount)
	if err != nil {
		return nil, err
	}
	pkg.InnerClasses = innerClasses
	registry.setGlobalInnerClasses(innerClasses)

	classes, err := readClasses(buf, pkg.Pool, h, registry, opts)
	if err != nil {
		return nil, err
	}
	pkg.Classes = classes

	if err := readFiles(buf, h, pkg, opts); err != nil {
		return nil, err
	}

	for _, c := range pkg.Classes {
		if err := reconstructClass(c, pkg.Pool); err != nil {
			return nil, err
		}
	}
	if err := pkg.GetAnomalies(); err != nil {
		return nil, err
	}

	if h.ArchiveSize >= 0 {
		want := h.ArchiveSize
		got := buf.served()
		// buf.served() counts bytes served since the buffer was
		// created, which is before archive_header_S; the declared size
		// covers bytes from the end of archive_header_S onward, so we
		// only compare against atLimit() once the limit has been set,
		// which setReadLimit already anchored to "remaining" bytes.
		if !buf.atLimit() {
			return nil, newReadError(KindSizeMismatch, "archive", got, buf.limit,
				"declared archive size %d bytes not fully consumed (limit has %d bytes remaining)", want, buf.limit)
		}
	}

	return pkg, nil
}
