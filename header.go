// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

// readCodedValue decodes a single value directly from the limited buffer
// using coding c; used for header scalars, which are not bands (their
// count is always exactly one and they are never replayed).
func readCodedValue(buf *limitedBuffer, c Coding) (int64, error) {
	return c.decode(buf.readByte)
}

// archiveHeader is the intermediate result of spec.md §4.3's five-step
// header sequence: everything the rest of the orchestrator needs to size
// every later band.
type archiveHeader struct {
	Version classVersion
	Options uint32

	ArchiveSize int64 // -1 if HAVE_FILE_HEADERS was not set

	FileCount         int
	InnerClassCount   int
	DefaultVersion    classVersion
	ClassCount        int
	BandHeadersSize   int
	AttrDefCount      int
	CPCounts          [numTags]int
}

// hasOption reports whether bit is set in the header's options word.
func (h *archiveHeader) hasOption(bit uint32) bool { return h.Options&bit != 0 }

// readArchiveHeader performs spec.md §4.3 steps 1-5 in order: magic,
// archive_header_0 (version + options), the version legality check,
// the optional archive_header_S (file-headers size), and
// archive_header_1 (counts). It installs buf's read limit from
// archive_header_S when present, per spec.md §4.1/§4.3.
func readArchiveHeader(buf *limitedBuffer) (*archiveHeader, error) {
	// Step 1: magic.
	var magic [4]byte
	if _, err := buf.read(magic[:]); err != nil {
		return nil, newReadError(KindTruncatedStream, "archive_magic", buf.served(), buf.limit, "%v", err)
	}
	if magic != ArchiveMagic {
		return nil, newReadError(KindMagicMismatch, "archive_magic", buf.served(), buf.limit,
			"got % x, want % x", magic, ArchiveMagic)
	}

	h := &archiveHeader{}

	// Step 2: archive_header_0 — minor, major, options.
	minor, err := readCodedValue(buf, CodingUnsigned)
	if err != nil {
		return nil, newReadError(KindTruncatedStream, "archive_header_0.minor", buf.served(), buf.limit, "%v", err)
	}
	major, err := readCodedValue(buf, CodingUnsigned)
	if err != nil {
		return nil, newReadError(KindTruncatedStream, "archive_header_0.major", buf.served(), buf.limit, "%v", err)
	}
	opts, err := readCodedValue(buf, CodingUnsigned)
	if err != nil {
		return nil, newReadError(KindTruncatedStream, "archive_header_0.options", buf.served(), buf.limit, "%v", err)
	}
	h.Version = classVersion{Major: uint16(major), Minor: uint16(minor)}
	h.Options = uint32(opts)

	// Step 3: version must be a recognized one.
	if !supportedVersions[h.Version] {
		return nil, newReadError(KindUnsupportedVersion, "archive_header_0", buf.served(), buf.limit,
			"version %d.%d is not supported", h.Version.Major, h.Version.Minor)
	}

	// Step 4: archive_header_S, gated by HAVE_FILE_HEADERS.
	h.ArchiveSize = -1
	if h.hasOption(AOHaveFileHeaders) {
		hi, err := readCodedValue(buf, CodingUnsigned)
		if err != nil {
			return nil, newReadError(KindTruncatedStream, "archive_header_S.hi", buf.served(), buf.limit, "%v", err)
		}
		lo, err := readCodedValue(buf, CodingUnsigned)
		if err != nil {
			return nil, newReadError(KindTruncatedStream, "archive_header_S.lo", buf.served(), buf.limit, "%v", err)
		}
		h.ArchiveSize = hi<<32 | lo
		buf.setReadLimit(h.ArchiveSize)
	}

	// Step 5: archive_header_1.
	if err := readArchiveHeader1(buf, h); err != nil {
		return nil, err
	}

	if err := checkLegacyFeatures(h); err != nil {
		return nil, err
	}

	return h, nil
}

// readArchiveHeader1 reads file count, inner-class count, default class
// version, class count, band-headers size, attribute-def count, and the
// per-tag constant-pool counts (omitting numeric/extra tag groups per
// their gating option bits), spec.md §4.3 step 5.
func readArchiveHeader1(buf *limitedBuffer, h *archiveHeader) error {
	read := func(name string) (int, error) {
		v, err := readCodedValue(buf, CodingUnsigned)
		if err != nil {
			return 0, newReadError(KindTruncatedStream, name, buf.served(), buf.limit, "%v", err)
		}
		return int(v), nil
	}

	var err error
	if h.FileCount, err = read("archive_header_1.file_count"); err != nil {
		return err
	}
	if h.InnerClassCount, err = read("archive_header_1.ic_count"); err != nil {
		return err
	}
	defMajor, err := read("archive_header_1.default_class_major")
	if err != nil {
		return err
	}
	defMinor, err := read("archive_header_1.default_class_minor")
	if err != nil {
		return err
	}
	h.DefaultVersion = classVersion{Major: uint16(defMajor), Minor: uint16(defMinor)}
	if h.ClassCount, err = read("archive_header_1.class_count"); err != nil {
		return err
	}
	if h.hasOption(AOHaveSpecialFormats) {
		if h.BandHeadersSize, err = read("archive_header_1.band_headers_size"); err != nil {
			return err
		}
		if h.AttrDefCount, err = read("archive_header_1.attr_definition_count"); err != nil {
			return err
		}
	}

	// Core tag counts, always present.
	coreTags := []cpTag{
		TagUtf8, TagString, TagClass, TagSignature, TagNameAndType,
		TagFieldref, TagMethodref, TagInterfaceMethodref,
	}
	for _, t := range coreTags {
		if h.CPCounts[t], err = read("archive_header_1.cp_count." + t.String()); err != nil {
			return err
		}
	}

	// Numeric tag group, gated by HAVE_CP_NUMBERS.
	if h.hasOption(AOHaveCPNumbers) {
		for _, t := range []cpTag{TagInteger, TagFloat, TagLong, TagDouble} {
			if h.CPCounts[t], err = read("archive_header_1.cp_count." + t.String()); err != nil {
				return err
			}
		}
	}

	// Extra tag group, gated by HAVE_CP_EXTRAS.
	if h.hasOption(AOHaveCPExtras) {
		for _, t := range []cpTag{TagMethodHandle, TagMethodType, TagInvokeDynamic, TagBootstrapMethod} {
			if h.CPCounts[t], err = read("archive_header_1.cp_count." + t.String()); err != nil {
				return err
			}
		}
	}

	return nil
}

// checkLegacyFeatures enforces spec.md §4.3's legacy guard: any non-zero
// count for a tag family introduced after version 7.0 is illegal when the
// archive declares an older version.
func checkLegacyFeatures(h *archiveHeader) error {
	if h.Version.atLeast(version7) {
		return nil
	}
	for _, t := range []cpTag{TagMethodHandle, TagMethodType, TagInvokeDynamic, TagBootstrapMethod} {
		if h.CPCounts[t] != 0 {
			return newReadError(KindLegacyFeatureInOldVersion, "archive_header_1", 0, -1,
				"%s count %d is non-zero in a pre-7.0 archive", t, h.CPCounts[t])
		}
	}
	return nil
}
