// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// cpTag identifies one of the 15 constant-pool entry families spec.md §3
// names, plus the synthetic BootstrapMethod family the archive carries
// alongside them.
type cpTag int

// The full constant-pool tag set. Order matters: later tags may reference
// earlier ones (a Class references a Utf8, a Methodref references a Class
// and a NameAndType), and the archive's band sequence always reads a tag
// family only after every family it can reference.
const (
	TagUtf8 cpTag = iota
	TagInteger
	TagFloat
	TagLong
	TagDouble
	TagString
	TagClass
	TagSignature
	TagNameAndType
	TagFieldref
	TagMethodref
	TagInterfaceMethodref
	TagMethodHandle
	TagMethodType
	TagInvokeDynamic
	TagBootstrapMethod
	numTags
)

func (t cpTag) String() string {
	names := [...]string{
		"Utf8", "Integer", "Float", "Long", "Double", "String", "Class",
		"Signature", "NameAndType", "Fieldref", "Methodref",
		"InterfaceMethodref", "MethodHandle", "MethodType", "InvokeDynamic",
		"BootstrapMethod",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "Unknown"
}

// isDoubleWord reports whether entries of this tag occupy two consecutive
// slots in an output constant pool (spec.md §3).
func (t cpTag) isDoubleWord() bool { return t == TagLong || t == TagDouble }

// cpEntry is one interned constant-pool entry. It is a tagged union
// expressed as one struct with the fields relevant to Tag populated;
// every instance is interned (equality is structural, per spec.md §3),
// so after interning, structural equality of referenced sub-entries
// reduces to pointer equality.
type cpEntry struct {
	Tag cpTag

	// Utf8
	Str string

	// Integer / Float
	I32 int32
	F32 float32

	// Long / Double
	I64 int64
	F64 float64

	// String, Class: payload Utf8
	Ref *cpEntry

	// Signature: form Utf8 plus the Class entries the form's "L;" markers
	// insert, in order.
	Form    *cpEntry
	Classes []*cpEntry

	// NameAndType
	Name       *cpEntry
	Descriptor *cpEntry

	// Fieldref / Methodref / InterfaceMethodref
	ClassRef *cpEntry
	NameType *cpEntry

	// MethodHandle
	RefKind  int
	HandleOf *cpEntry // the Fieldref/Methodref/InterfaceMethodref it wraps

	// MethodType reuses Descriptor (a Utf8).

	// InvokeDynamic
	Bootstrap      *cpEntry // the BootstrapMethod entry
	NameAndTypeRef *cpEntry

	// BootstrapMethod
	Method *cpEntry // a MethodHandle
	Args   []*cpEntry

	// outputIndex is the entry's position in the archive-global pool for
	// this tag, 0-based; populated as entries are appended. Local (per
	// class) CP reconstruction uses a *different* index space, tracked in
	// classConstantPool, and never mutates this field.
	outputIndex int
	hash        uint64
}

// erasedUtf8 returns the Utf8 spelling this entry collapses to in an
// output class file: identity for Utf8, the referenced Utf8's spelling for
// Class, the form string for Signature (spec.md §3: "it erases to a plain
// Utf8 descriptor in output"), and "" for every other tag.
func (e *cpEntry) erasedUtf8() string {
	if e == nil {
		return ""
	}
	switch e.Tag {
	case TagUtf8:
		return e.Str
	case TagClass:
		return e.Ref.erasedUtf8()
	case TagSignature:
		return e.Form.Str
	default:
		return ""
	}
}

// structuralKey renders a byte key capturing every field relevant to
// equality for e's tag, used both for the xxhash-based intern fast path
// and, on a hash collision, for an exact structural comparison.
func (e *cpEntry) structuralKey() []byte {
	buf := make([]byte, 0, 32)
	buf = append(buf, byte(e.Tag))
	switch e.Tag {
	case TagUtf8:
		buf = append(buf, []byte(e.Str)...)
	case TagInteger:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(e.I32))
	case TagFloat:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(e.I32))
	case TagLong, TagDouble:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(e.I64))
	case TagString, TagClass:
		buf = append(buf, refKey(e.Ref)...)
	case TagSignature:
		buf = append(buf, refKey(e.Form)...)
		for _, c := range e.Classes {
			buf = append(buf, refKey(c)...)
		}
	case TagNameAndType:
		buf = append(buf, refKey(e.Name)...)
		buf = append(buf, refKey(e.Descriptor)...)
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		buf = append(buf, refKey(e.ClassRef)...)
		buf = append(buf, refKey(e.NameType)...)
	case TagMethodHandle:
		buf = append(buf, byte(e.RefKind))
		buf = append(buf, refKey(e.HandleOf)...)
	case TagMethodType:
		buf = append(buf, refKey(e.Descriptor)...)
	case TagInvokeDynamic:
		buf = append(buf, refKey(e.Bootstrap)...)
		buf = append(buf, refKey(e.NameAndTypeRef)...)
	case TagBootstrapMethod:
		buf = append(buf, refKey(e.Method)...)
		for _, a := range e.Args {
			buf = append(buf, refKey(a)...)
		}
	}
	return buf
}

// refKey produces a short, stable key for a (possibly already interned)
// sub-entry: its pool address once interned collapses structural equality
// to identity, so the tag+outputIndex pair is a sufficient proxy here.
func refKey(e *cpEntry) []byte {
	if e == nil {
		return []byte{0xff}
	}
	b := make([]byte, 9)
	b[0] = byte(e.Tag)
	binary.LittleEndian.PutUint64(b[1:], uint64(e.outputIndex)+1)
	return b
}

// constantPool is the archive-global constant-pool store (component D):
// typed indices per tag, cross-tag lookup, entry interning, and the
// side map used by the output-order comparator for signatures.
type constantPool struct {
	byTag [numTags][]*cpEntry
	// intern buckets entries by structural hash; collisions are resolved
	// by full structuralKey comparison.
	intern map[uint64][]*cpEntry
	// utf8Signatures maps an erased Utf8 spelling to the Signature entry
	// that produces it, per spec.md §4.5 ("utf8_signatures").
	utf8Signatures map[string]*cpEntry
}

func newConstantPool() *constantPool {
	return &constantPool{
		intern:         make(map[uint64][]*cpEntry),
		utf8Signatures: make(map[string]*cpEntry),
	}
}

// internEntry returns the canonical instance for e: an existing entry
// with the same structural key if one is already stored, or e itself
// (newly appended to its tag's column) otherwise.
func (p *constantPool) internEntry(e *cpEntry) *cpEntry {
	key := e.structuralKey()
	h := xxhash.Sum64(key)
	for _, cand := range p.intern[h] {
		if string(cand.structuralKey()) == string(key) {
			return cand
		}
	}
	e.hash = h
	e.outputIndex = len(p.byTag[e.Tag])
	p.byTag[e.Tag] = append(p.byTag[e.Tag], e)
	p.intern[h] = append(p.intern[h], e)
	if e.Tag == TagSignature {
		p.utf8Signatures[e.erasedUtf8()] = e
	}
	return e
}

// lookup resolves a 0-based index within tag's column.
func (p *constantPool) lookup(tag cpTag, idx int) (*cpEntry, error) {
	col := p.byTag[tag]
	if idx < 0 || idx >= len(col) {
		return nil, fmt.Errorf("constant pool: %s index %d out of range (have %d)", tag, idx, len(col))
	}
	return col[idx], nil
}

// count returns the number of interned entries for tag.
func (p *constantPool) count(tag cpTag) int { return len(p.byTag[tag]) }

// outputOrderLess implements the comparator spec.md §4.7 defines for
// sorting a class's local constant pool: entries with a known output
// index (outputIndex >= 0 once assigned by internEntry; every interned
// entry always has one, so "known" here distinguishes entries belonging
// to this archive's global pool from synthetic ones, tracked via the
// hasIndex flag local CP assembly attaches) compare by (tag, index); otherwise
// by (tag, spelling); an indexed entry always precedes an unindexed one.
func outputOrderLess(a, b *cpEntry, aHasIndex, bHasIndex bool) bool {
	if aHasIndex != bHasIndex {
		return aHasIndex
	}
	if aHasIndex {
		// outputIndex is a per-tag column position, not a cross-tag one;
		// break ties on tag first so two different tags sharing the same
		// column position still compare deterministically.
		if a.Tag != b.Tag {
			return a.Tag < b.Tag
		}
		return a.outputIndex < b.outputIndex
	}
	if a.Tag != b.Tag {
		return a.Tag < b.Tag
	}
	return spellingOf(a) < spellingOf(b)
}

func spellingOf(e *cpEntry) string {
	switch e.Tag {
	case TagUtf8:
		return e.Str
	case TagClass, TagString:
		return spellingOf(e.Ref)
	case TagSignature:
		return e.erasedUtf8()
	default:
		return fmt.Sprintf("%v", e.structuralKey())
	}
}

// sortBootstrapMethods stably sorts methods by outputOrderLess, treating
// every entry as indexed (spec.md §4.7: "sort bootstrap methods by natural
// order").
func sortBootstrapMethods(methods []*cpEntry) {
	sort.SliceStable(methods, func(i, j int) bool {
		return outputOrderLess(methods[i], methods[j], true, true)
	})
}
