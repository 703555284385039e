// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

// ArchiveMagic is the 4-byte signature every archive must begin with
// (spec.md §4.3 step 1). Archives are compared exactly against this
// value; anything else is KindMagicMismatch.
var ArchiveMagic = [4]byte{0xCA, 0xFE, 0xD0, 0x0D}

// classVersion is a (major, minor) class-file version pair.
type classVersion struct {
	Major, Minor uint16
}

// Supported archive versions, spec.md §4.3 step 3. Any other declared
// version is KindUnsupportedVersion.
var supportedVersions = map[classVersion]bool{
	{Major: 49, Minor: 0}: true, // 5.0
	{Major: 50, Minor: 0}: true, // 6.0
	{Major: 51, Minor: 0}: true, // 7.0
	{Major: 52, Minor: 0}: true, // 8.0
}

// version7 and version8 gate the legacy guard (spec.md §4.3) and the
// InterfaceMethodref exception on invokestatic/invokespecial (spec.md
// §4.8, §7 KindOpcodeReferenceTagMismatch).
var version7 = classVersion{Major: 51, Minor: 0}
var version8 = classVersion{Major: 52, Minor: 0}

func (v classVersion) atLeast(other classVersion) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	return v.Minor >= other.Minor
}

// Archive options bitfield (spec.md §6). Exact bit assignment is this
// reader's own; only the semantics are mandated by spec.md.
const (
	AODeflateHint        uint32 = 1 << 0
	AOHaveFileHeaders     uint32 = 1 << 1
	AOHaveSpecialFormats  uint32 = 1 << 2
	AOHaveCPNumbers       uint32 = 1 << 3
	AOHaveCPExtras        uint32 = 1 << 4
	AOHaveFileSizeHi      uint32 = 1 << 5
	AOHaveFileModtime     uint32 = 1 << 6
	AOHaveFileOptions     uint32 = 1 << 7
	AOHaveAllCodeFlags    uint32 = 1 << 8
)

// FODeflateHint is the per-file options bit set on every file by default
// when AODeflateHint is present in the archive options.
const FODeflateHint uint32 = 1 << 0

// Attribute-engine contexts, spec.md §4.6.
type attrContext int

const (
	ctxClass attrContext = iota
	ctxField
	ctxMethod
	ctxCode
	numContexts
)

func (c attrContext) String() string {
	switch c {
	case ctxClass:
		return "Class"
	case ctxField:
		return "Field"
	case ctxMethod:
		return "Method"
	case ctxCode:
		return "Code"
	default:
		return "Unknown"
	}
}

// attrFlagMask masks off the attribute bits within a holder's flags word,
// per context; the residual bits are the holder's plain access flags
// (spec.md §4.6 "Flag decoding"). Class/Field/Method mask the upper 16
// bits of the low word; Code masks the lower 16 bits.
var attrFlagMask = [numContexts]uint64{
	ctxClass:  0xFFFF0000,
	ctxField:  0xFFFF0000,
	ctxMethod: 0xFFFF0000,
	ctxCode:   0x0000FFFF,
}

// overflowBit is the Class/Field/Method overflow marker: consult
// attr_count/attr_indexes for additional attributes by numeric index
// (spec.md §4.6). Code's own overflow bit sits at a different position
// (attrOverflowBit in attribute.go computes it per context).
const overflowBit uint64 = 1 << 31

// has64BitFlags reports whether ctx carries a flags_hi band in addition
// to flags_lo.
func (c attrContext) has64BitFlags() bool {
	return c == ctxClass || c == ctxMethod
}
