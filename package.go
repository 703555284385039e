// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import "github.com/gopacker/unpack200/internal/rlog"

// Logger is the leveled-logging seam Options.Logger accepts; see
// internal/rlog for the Helper/Logger split this reader talks through.
type Logger = rlog.Logger

// Package is the fully-resolved, in-memory result of decoding one
// archive (spec.md §3 "Package"). It holds the global constant pool, the
// classes and resource files the archive described, the archive-wide
// inner-class table, and the defaults new classes/files fall back to.
type Package struct {
	Pool *constantPool `json:"-"`

	Classes []*Class        `json:"classes,omitempty"`
	Files   []*ResourceFile `json:"files,omitempty"`

	// InnerClasses holds the archive-wide inner-class tuples that
	// zero-flag per-class tuples expand from (spec.md §4.6).
	InnerClasses []InnerClassEntry `json:"inner_classes,omitempty"`

	DefaultVersion classVersion `json:"default_version"`
	DefaultModtime uint32       `json:"default_modtime"`
	ArchiveOptions uint32       `json:"archive_options"`

	// Anomalies records legal-but-suspicious conditions (e.g. a class
	// with no fields and no methods) that do not abort the decode, the
	// way the teacher's PE anomaly slice records non-fatal oddities.
	Anomalies []string `json:"anomalies,omitempty"`
}

// InnerClassEntry is one tuple of the archive-wide or per-class
// InnerClasses table (spec.md §4.6, §4.7).
type InnerClassEntry struct {
	Inner     *cpEntry // Class
	Outer     *cpEntry // Class, nil if absent
	Name      *cpEntry // Utf8, nil if anonymous
	Flags     uint16
}

// Class is one decoded class, owning its members, attributes, and (after
// the post-pass, component L) its local constant pool.
type Class struct {
	This  *cpEntry `json:"-"` // Class entry naming this class
	Super *cpEntry `json:"-"` // Class entry naming the superclass, nil for "null super"

	ThisName  string `json:"this_name"`
	SuperName string `json:"super_name,omitempty"`

	Interfaces []*cpEntry `json:"-"`
	Fields     []*Field   `json:"fields,omitempty"`
	Methods    []*Method  `json:"methods,omitempty"`
	Attributes []*Attribute `json:"attributes,omitempty"`

	Version     classVersion `json:"version"`
	AccessFlags uint32       `json:"access_flags"`

	// LocalPool is populated by the component-L post-pass.
	LocalPool *classConstantPool `json:"-"`

	// File is the classfile stub (possibly synthesized) this class's
	// body binds to, per spec.md §4.9.
	File *ResourceFile `json:"-"`

	// ldcRefs accumulates every entry reached through a narrow ldc
	// instruction in this class's bytecode (spec.md §4.8, §4.7).
	ldcRefs []*cpEntry
}

// Field is one field_info-equivalent member.
type Field struct {
	Name       *cpEntry `json:"-"`
	Descriptor *cpEntry `json:"-"`

	NameStr       string `json:"name"`
	DescriptorStr string `json:"descriptor"`

	AccessFlags uint32       `json:"access_flags"`
	Attributes  []*Attribute `json:"attributes,omitempty"`
}

// Method is one method_info-equivalent member. Methods carrying an empty
// Code attribute are promoted to a full Code holder during class
// assembly (spec.md §4.7).
type Method struct {
	Name       *cpEntry `json:"-"`
	Descriptor *cpEntry `json:"-"`

	NameStr       string `json:"name"`
	DescriptorStr string `json:"descriptor"`

	AccessFlags uint32       `json:"access_flags"`
	Attributes  []*Attribute `json:"attributes,omitempty"`

	Code *Code `json:"code,omitempty"`
}

// Code is the decoded body of a method's Code attribute (component J/L
// output): the expanded bytecode stream, exception handlers, and the
// fixups still pending a local constant-pool index.
type Code struct {
	MaxStack  int `json:"max_stack"`
	MaxLocals int `json:"max_locals"`

	Bytes []byte `json:"-"`

	Handlers []ExceptionHandler `json:"handlers,omitempty"`

	// Fixups record a deferred "write this CP entry's local index into
	// this byte offset" patch, resolved once the local pool (component
	// L) is known.
	Fixups []Fixup `json:"-"`

	Attributes []*Attribute `json:"attributes,omitempty"`
}

// ExceptionHandler is one code_handler_* tuple after decodeCodeBodies
// has converted its delta-cumulative raw fields into absolute PCs
// (spec.md §4.8).
type ExceptionHandler struct {
	CatchType  *cpEntry `json:"-"`
	Start      int      `json:"start_pc"`
	End        int      `json:"end_pc"`
	HandlerPC  int      `json:"handler_pc"`
}

// Fixup is a deferred "write this CP index into this byte offset" patch
// (glossary: Fixup).
type Fixup struct {
	Offset int
	Width  int // 1 or 2 bytes
	Entry  *cpEntry
}

// ResourceFile is a package-level resource, including classfile stubs
// that bind to a Class's bytecode body (spec.md §4.9, glossary "Stub
// file").
type ResourceFile struct {
	Name    string `json:"name"`
	Data    []byte `json:"-"`
	ModTime uint32 `json:"mod_time"`
	Options uint32 `json:"options"`

	// IsClassStub is true for a zero-length ".class"-named file whose
	// body is supplied by bytecode reconstruction rather than carried
	// literally.
	IsClassStub bool `json:"is_class_stub"`
}

// Options controls the depth and limits of a decode, the ambient knob
// every binary-format reader in the retrieved example pack exposes
// alongside its core parse entry point (mirrors the teacher's
// pe.Options).
type Options struct {
	// Fast skips materializing file-bytes payloads beyond their
	// name/size/modtime metadata; classfile stub binding still runs.
	Fast bool

	// MaxClassCount guards against a corrupt or hostile archive
	// declaring an enormous class count; 0 means "use the built-in
	// default".
	MaxClassCount uint32

	// Logger receives parse diagnostics; nil uses a no-op logger.
	Logger Logger
}

// defaultMaxClassCount bounds class_count when Options.MaxClassCount is
// left at zero.
const defaultMaxClassCount = 1 << 20
