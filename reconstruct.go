// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import "sort"

// readGlobalInnerClasses drains the archive-wide inner-class table
// (sized by archive_header_1's ic_count) into Package.InnerClasses: a
// flat (inner, outer, name, flags) tuple band group. Besides surfacing the
// archive-wide view spec.md §3 describes, this table is also the lookup
// source a zero-flag per-class InnerClasses tuple borrows from
// (decodeInnerClassesAttribute, spec.md §4.6).
func readGlobalInnerClasses(buf *limitedBuffer, pool *constantPool, count int) ([]InnerClassEntry, error) {
	if count == 0 {
		return nil, nil
	}

	inner := newRefBand("ic_this", CodingUnsigned, TagClass, pool)
	outer := newRefBand("ic_outer", CodingUnsigned, TagClass, pool)
	name := newRefBand("ic_name", CodingUnsigned, TagUtf8, pool)
	flags := newIntBand("ic_flags", CodingUnsigned)
	inner.expectLength(count)
	outer.expectLength(count)
	name.expectLength(count)
	flags.expectLength(count)
	if err := inner.fill(buf); err != nil {
		return nil, err
	}
	if err := outer.fill(buf); err != nil {
		return nil, err
	}
	if err := name.fill(buf); err != nil {
		return nil, err
	}
	if err := flags.fill(buf); err != nil {
		return nil, err
	}

	out := make([]InnerClassEntry, count)
	for i := 0; i < count; i++ {
		innerRef, err := inner.getRef()
		if err != nil {
			return nil, err
		}
		outerRef, err := outer.getRef()
		if err != nil {
			return nil, err
		}
		nameRef, err := name.getRef()
		if err != nil {
			return nil, err
		}
		out[i] = InnerClassEntry{Inner: innerRef, Outer: outerRef, Name: nameRef, Flags: uint16(flags.get())}
	}
	return out, nil
}

// classConstantPool is the per-class local constant pool assembled by
// reconstructClass (component L, spec.md §4.7/§4.10): an ordered,
// 1-based slot sequence. Double-word entries occupy two consecutive
// slots, the second a null placeholder; slot 0 is always unused.
type classConstantPool struct {
	entries []*cpEntry
	index   map[*cpEntry]int

	// narrowLimit is the slot count after the ldc-reachable region: every
	// entry reached by a narrow ldc has an index strictly below it, and
	// (since the region is appended first) within one byte.
	narrowLimit int
}

func newClassConstantPool() *classConstantPool {
	return &classConstantPool{entries: []*cpEntry{nil}, index: map[*cpEntry]int{}}
}

// IndexOf returns e's 1-based local slot, or 0 for nil / an entry this
// class's local pool never reached.
func (lp *classConstantPool) IndexOf(e *cpEntry) int {
	if e == nil {
		return 0
	}
	return lp.index[e]
}

// append adds e to the end of the pool if not already present, inserting
// the null placeholder slot double-word entries require.
func (lp *classConstantPool) append(e *cpEntry) {
	if _, ok := lp.index[e]; ok {
		return
	}
	lp.index[e] = len(lp.entries)
	lp.entries = append(lp.entries, e)
	if e.Tag.isDoubleWord() {
		lp.entries = append(lp.entries, nil)
	}
}

// gatherCPRefs walks every place a class's decoded structure can hold a
// *cpEntry — its own fields, its members, their attributes, and a
// method's Code body — and returns the transitive-closure set reachable
// from it, per spec.md §4.7's "gather via reflection over the class's
// entries and attributes the set cpRefs". Attributes missing a Name
// entry (decoded only with NameStr so far) get one interned here, since
// a re-emitted class file needs every attribute name in its own local
// pool too.
func gatherCPRefs(c *Class, pool *constantPool) map[*cpEntry]bool {
	seen := map[*cpEntry]bool{}

	var gather func(e *cpEntry)
	gather = func(e *cpEntry) {
		if e == nil || seen[e] {
			return
		}
		seen[e] = true
		switch e.Tag {
		case TagString, TagClass:
			gather(e.Ref)
		case TagSignature:
			gather(e.Form)
			for _, cl := range e.Classes {
				gather(cl)
			}
		case TagNameAndType:
			gather(e.Name)
			gather(e.Descriptor)
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			gather(e.ClassRef)
			gather(e.NameType)
		case TagMethodHandle:
			gather(e.HandleOf)
		case TagMethodType:
			gather(e.Descriptor)
		case TagInvokeDynamic:
			gather(e.Bootstrap)
			gather(e.NameAndTypeRef)
		case TagBootstrapMethod:
			gather(e.Method)
			for _, a := range e.Args {
				gather(a)
			}
		}
	}

	var gatherAttrValue func(v *attrValue)
	gatherAttrValue = func(v *attrValue) {
		if v == nil {
			return
		}
		switch v.kind {
		case ekRef:
			gather(v.ref)
		case ekRepl:
			for _, r := range v.reps {
				gatherAttrValue(r)
			}
		case ekUnion:
			gatherAttrValue(v.sub)
		case ekSeq:
			for _, s := range v.seq {
				gatherAttrValue(s)
			}
		}
	}

	gatherAttrs := func(attrs []*Attribute) {
		for _, a := range attrs {
			if a.Name == nil {
				a.Name = pool.internEntry(&cpEntry{Tag: TagUtf8, Str: a.NameStr})
			}
			gather(a.Name)
			gatherAttrValue(a.Value)
		}
	}

	gather(c.This)
	gather(c.Super)
	for _, i := range c.Interfaces {
		gather(i)
	}
	gatherAttrs(c.Attributes)
	for _, f := range c.Fields {
		gather(f.Name)
		gather(f.Descriptor)
		gatherAttrs(f.Attributes)
	}
	for _, m := range c.Methods {
		gather(m.Name)
		gather(m.Descriptor)
		gatherAttrs(m.Attributes)
		if m.Code != nil {
			gatherAttrs(m.Code.Attributes)
			for _, fx := range m.Code.Fixups {
				gather(fx.Entry)
			}
			for _, h := range m.Code.Handlers {
				gather(h.CatchType)
			}
		}
	}
	for _, e := range c.ldcRefs {
		gather(e)
	}
	return seen
}

// foldBootstrapMethods implements spec.md §4.7's "if bootstrap methods
// present, add the BootstrapMethods attribute and a Utf8 name for it;
// sort bootstrap methods by natural order": any TagBootstrapMethod entry
// reachable from the class gets collected, sorted by archive order, and
// (unless the class already carries one, e.g. from a user-defined
// layout) folded into a synthesized BootstrapMethods attribute so a
// re-emitter has somewhere to write them.
func foldBootstrapMethods(c *Class, seen map[*cpEntry]bool, pool *constantPool) {
	var bsms []*cpEntry
	for e := range seen {
		if e.Tag == TagBootstrapMethod {
			bsms = append(bsms, e)
		}
	}
	if len(bsms) == 0 {
		return
	}
	sort.Slice(bsms, func(i, j int) bool { return bsms[i].outputIndex < bsms[j].outputIndex })

	for _, a := range c.Attributes {
		if a.NameStr == "BootstrapMethods" {
			return
		}
	}

	nameEntry := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "BootstrapMethods"})
	seen[nameEntry] = true
	reps := make([]*attrValue, len(bsms))
	for i, b := range bsms {
		reps[i] = &attrValue{kind: ekRef, ref: b}
	}
	c.Attributes = append(c.Attributes, &Attribute{
		Name:    nameEntry,
		NameStr: "BootstrapMethods",
		Value:   &attrValue{kind: ekRepl, reps: reps},
	})
}

// reconstructClass implements spec.md §4.7/§4.10 (component L): assemble
// this class's local constant pool from every entry its decoded
// structure reaches, fold in a BootstrapMethods attribute where needed,
// and order the result per the output-order comparator with the
// narrow-ldc region first.
//
// A class's InnerClasses attribute, including any zero-flag tuples
// borrowed from the archive-wide table, is already fully expanded by the
// time this runs (decodeInnerClassesAttribute), so gatherCPRefs walking
// c.Attributes picks up its refs like any other attribute.
func reconstructClass(c *Class, pool *constantPool) error {
	seen := gatherCPRefs(c, pool)
	foldBootstrapMethods(c, seen, pool)

	ldcSeen := map[*cpEntry]bool{}
	var narrow []*cpEntry
	for _, e := range c.ldcRefs {
		if e == nil || ldcSeen[e] {
			continue
		}
		ldcSeen[e] = true
		narrow = append(narrow, e)
	}

	var wide []*cpEntry
	for e := range seen {
		if !ldcSeen[e] {
			wide = append(wide, e)
		}
	}

	less := func(entries []*cpEntry) func(i, j int) bool {
		return func(i, j int) bool { return outputOrderLess(entries[i], entries[j], true, true) }
	}
	sort.Slice(narrow, less(narrow))
	sort.Slice(wide, less(wide))

	lp := newClassConstantPool()
	for _, e := range narrow {
		lp.append(e)
	}
	lp.narrowLimit = len(lp.entries)
	for _, e := range wide {
		lp.append(e)
	}

	c.LocalPool = lp
	return nil
}
