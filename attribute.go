// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gopacker/unpack200/internal/layoutdef"
)

// elemKind identifies one node type in a parsed attribute layout grammar
// (spec.md §4.6, component H).
type elemKind int

const (
	ekInt elemKind = iota
	ekRef
	ekRepl
	ekUnion
	ekSeq
	ekCall
)

// layoutElement is one node of a parsed layout grammar tree.
type layoutElement struct {
	kind elemKind

	coding Coding // ekInt
	refTag cpTag  // ekRef

	countCoding Coding         // ekRepl, ekUnion: the count/tag element's coding
	body        *layoutElement // ekRepl

	cases       map[int64]*layoutElement // ekUnion
	defaultCase *layoutElement           // ekUnion, nil if absent

	seq []*layoutElement // ekSeq

	callName string // ekCall: name of another layout in the same context
}

// attrValue is one decoded instance of a layoutElement, produced by
// decodeInstances and walked by gatherCPRefs to collect the constant-pool
// entries it references.
type attrValue struct {
	kind elemKind
	i    int64
	ref  *cpEntry
	reps []*attrValue
	tag  int64
	sub  *attrValue // ekUnion: the selected case's value, nil if the case is empty
	seq  []*attrValue
}

var refTagLetters = map[byte]cpTag{
	'U': TagUtf8,
	'C': TagClass,
	'N': TagNameAndType,
	'f': TagFieldref,
	'm': TagMethodref,
	'i': TagInterfaceMethodref,
	'S': TagString,
	'I': TagInteger,
	'F': TagFloat,
	'L': TagLong,
	'D': TagDouble,
	'h': TagMethodHandle,
	't': TagMethodType,
	'y': TagInvokeDynamic,
	'b': TagBootstrapMethod,
}

// layoutParser is a small recursive-descent parser over the grammar
// internal/layoutdef's table uses (see layouts.toml's header comment for
// the grammar). It resolves @-calls through resolve, a resolver callback
// so a call can reach another layout registered in the same context.
type layoutParser struct {
	s        string
	pos      int
	resolve  func(name string) (*layoutElement, error)
}

func parseLayout(grammar string, resolve func(name string) (*layoutElement, error)) (*layoutElement, error) {
	if strings.TrimSpace(grammar) == "" {
		return &layoutElement{kind: ekSeq}, nil
	}
	p := &layoutParser{s: grammar, resolve: resolve}
	elem, err := p.parseSeq()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("attribute layout: unexpected trailing input at %d in %q", p.pos, grammar)
	}
	return elem, nil
}

func (p *layoutParser) parseSeq() (*layoutElement, error) {
	var seq []*layoutElement
	for {
		elem, err := p.parseElement()
		if err != nil {
			return nil, err
		}
		seq = append(seq, elem)
		if p.pos < len(p.s) && p.s[p.pos] == ',' {
			p.pos++
			continue
		}
		break
	}
	if len(seq) == 1 {
		return seq[0], nil
	}
	return &layoutElement{kind: ekSeq, seq: seq}, nil
}

func (p *layoutParser) parseElement() (*layoutElement, error) {
	if p.pos >= len(p.s) {
		return nil, fmt.Errorf("attribute layout: unexpected end of input in %q", p.s)
	}
	switch c := p.s[p.pos]; c {
	case 'U':
		p.pos++
		return &layoutElement{kind: ekInt, coding: CodingUnsigned}, nil
	case 'S':
		p.pos++
		return &layoutElement{kind: ekInt, coding: CodingSigned}, nil
	case 'D':
		p.pos++
		return &layoutElement{kind: ekInt, coding: CodingDelta5}, nil
	case 'R':
		p.pos++
		if p.pos >= len(p.s) {
			return nil, fmt.Errorf("attribute layout: dangling R in %q", p.s)
		}
		tag, ok := refTagLetters[p.s[p.pos]]
		if !ok {
			return nil, fmt.Errorf("attribute layout: unknown ref tag letter %q in %q", p.s[p.pos], p.s)
		}
		p.pos++
		return &layoutElement{kind: ekRef, refTag: tag}, nil
	case '[':
		p.pos++
		countElem, err := p.parseCountPrefix()
		if err != nil {
			return nil, err
		}
		body, err := p.parseSeq()
		if err != nil {
			return nil, err
		}
		if err := p.expect(']'); err != nil {
			return nil, err
		}
		return &layoutElement{kind: ekRepl, countCoding: countElem, body: body}, nil
	case '{':
		p.pos++
		tagCoding, err := p.parseCountPrefix()
		if err != nil {
			return nil, err
		}
		elem := &layoutElement{kind: ekUnion, countCoding: tagCoding, cases: map[int64]*layoutElement{}}
		for {
			if p.pos < len(p.s) && p.s[p.pos] == '*' {
				p.pos++
				if err := p.expect('='); err != nil {
					return nil, err
				}
				def, err := p.parseSeq()
				if err != nil {
					return nil, err
				}
				elem.defaultCase = def
			} else {
				n, err := p.parseInt()
				if err != nil {
					return nil, err
				}
				if err := p.expect('='); err != nil {
					return nil, err
				}
				body, err := p.parseSeq()
				if err != nil {
					return nil, err
				}
				elem.cases[n] = body
			}
			if p.pos < len(p.s) && p.s[p.pos] == ';' {
				p.pos++
				continue
			}
			break
		}
		if err := p.expect('}'); err != nil {
			return nil, err
		}
		return elem, nil
	case '@':
		p.pos++
		start := p.pos
		for p.pos < len(p.s) && isNameByte(p.s[p.pos]) {
			p.pos++
		}
		name := p.s[start:p.pos]
		if p.resolve == nil {
			return nil, fmt.Errorf("attribute layout: call %q with no resolver", name)
		}
		return p.resolve(name)
	default:
		return nil, fmt.Errorf("attribute layout: unexpected character %q in %q", c, p.s)
	}
}

// parseCountPrefix reads "<intElem>:" and returns the integer element's
// coding (only its coding matters; replication/union both just need a
// count/tag column).
func (p *layoutParser) parseCountPrefix() (Coding, error) {
	elem, err := p.parseElement()
	if err != nil {
		return Coding{}, err
	}
	if elem.kind != ekInt {
		return Coding{}, fmt.Errorf("attribute layout: count/tag prefix must be an integer element in %q", p.s)
	}
	if err := p.expect(':'); err != nil {
		return Coding{}, err
	}
	return elem.coding, nil
}

func (p *layoutParser) parseInt() (int64, error) {
	start := p.pos
	if p.pos < len(p.s) && (p.s[p.pos] == '-' || p.s[p.pos] == '+') {
		p.pos++
	}
	for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("attribute layout: expected integer at %d in %q", p.pos, p.s)
	}
	return strconv.ParseInt(p.s[start:p.pos], 10, 64)
}

func (p *layoutParser) expect(c byte) error {
	if p.pos >= len(p.s) || p.s[p.pos] != c {
		return fmt.Errorf("attribute layout: expected %q at %d in %q", c, p.pos, p.s)
	}
	p.pos++
	return nil
}

func isNameByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// decodeInstances fills the bands layout describes and returns n decoded
// values, one per occurrence. Replications recurse with the flattened
// total repeat count; unions recurse once per case, in ascending tag
// order with the default case last, then scatter results back into
// original occurrence order (component H's two-pass band replay,
// generalized from the Utf8 band reader's prefix/suffix pattern).
func decodeInstances(buf *limitedBuffer, elem *layoutElement, n int, pool *constantPool) ([]*attrValue, error) {
	switch elem.kind {
	case ekInt:
		band := newIntBand("attr_int", elem.coding)
		band.expectLength(n)
		if err := band.fill(buf); err != nil {
			return nil, err
		}
		out := make([]*attrValue, n)
		for i := range out {
			out[i] = &attrValue{kind: ekInt, i: band.get()}
		}
		return out, nil

	case ekRef:
		band := newRefBand("attr_ref", CodingUnsigned, elem.refTag, pool)
		band.expectLength(n)
		if err := band.fill(buf); err != nil {
			return nil, err
		}
		out := make([]*attrValue, n)
		for i := range out {
			ref, err := band.getRef()
			if err != nil {
				return nil, err
			}
			out[i] = &attrValue{kind: ekRef, ref: ref}
		}
		return out, nil

	case ekSeq:
		if len(elem.seq) == 0 {
			out := make([]*attrValue, n)
			for i := range out {
				out[i] = &attrValue{kind: ekSeq}
			}
			return out, nil
		}
		cols := make([][]*attrValue, len(elem.seq))
		for i, child := range elem.seq {
			vals, err := decodeInstances(buf, child, n, pool)
			if err != nil {
				return nil, err
			}
			cols[i] = vals
		}
		out := make([]*attrValue, n)
		for i := 0; i < n; i++ {
			row := make([]*attrValue, len(elem.seq))
			for c := range cols {
				row[c] = cols[c][i]
			}
			out[i] = &attrValue{kind: ekSeq, seq: row}
		}
		return out, nil

	case ekRepl:
		countBand := newIntBand("attr_repl_count", elem.countCoding)
		countBand.expectLength(n)
		if err := countBand.fill(buf); err != nil {
			return nil, err
		}
		counts := make([]int, n)
		total := 0
		for i := 0; i < n; i++ {
			counts[i] = int(countBand.get())
			total += counts[i]
		}
		bodyVals, err := decodeInstances(buf, elem.body, total, pool)
		if err != nil {
			return nil, err
		}
		out := make([]*attrValue, n)
		cursor := 0
		for i := 0; i < n; i++ {
			out[i] = &attrValue{kind: ekRepl, reps: bodyVals[cursor : cursor+counts[i]]}
			cursor += counts[i]
		}
		return out, nil

	case ekUnion:
		tagBand := newIntBand("attr_union_tag", elem.countCoding)
		tagBand.expectLength(n)
		if err := tagBand.fill(buf); err != nil {
			return nil, err
		}
		tags := make([]int64, n)
		for i := range tags {
			tags[i] = tagBand.get()
		}

		keys := make([]int64, 0, len(elem.cases))
		for k := range elem.cases {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		out := make([]*attrValue, n)
		handle := func(key int64, layout *layoutElement, matches func(int64) bool) error {
			var idxs []int
			for i, t := range tags {
				if matches(t) {
					idxs = append(idxs, i)
				}
			}
			if layout == nil {
				for _, i := range idxs {
					out[i] = &attrValue{kind: ekUnion, tag: tags[i]}
				}
				return nil
			}
			vals, err := decodeInstances(buf, layout, len(idxs), pool)
			if err != nil {
				return err
			}
			for k, i := range idxs {
				out[i] = &attrValue{kind: ekUnion, tag: tags[i], sub: vals[k]}
			}
			return nil
		}
		for _, key := range keys {
			k := key
			if err := handle(k, elem.cases[k], func(t int64) bool { return t == k }); err != nil {
				return nil, err
			}
		}
		matched := map[int64]bool{}
		for _, k := range keys {
			matched[k] = true
		}
		if err := handle(0, elem.defaultCase, func(t int64) bool { return !matched[t] }); err != nil {
			return nil, err
		}
		return out, nil

	default:
		return nil, fmt.Errorf("attribute layout: unsupported element kind %d", elem.kind)
	}
}

// decodeInnerClassesAttribute implements spec.md §4.6's zero-flag
// shortcut for the InnerClasses attribute: a tuple whose flags column is 0
// means "borrow the matching entry from the archive-wide inner-class
// table" instead of carrying its own outer/name/flags columns. The
// nonzero-flag columns are only present for the tuples that actually need
// them, which the generic replication grammar can't express, so this
// bypasses decodeInstances and reads the bands directly. n is the number
// of classes carrying this attribute.
func decodeInnerClassesAttribute(buf *limitedBuffer, n int, pool *constantPool, global []InnerClassEntry) ([]*attrValue, error) {
	byInner := make(map[*cpEntry]InnerClassEntry, len(global))
	for _, e := range global {
		byInner[e.Inner] = e
	}

	counts := newIntBand("class_InnerClasses_N", CodingUnsigned)
	counts.expectLength(n)
	if err := counts.fill(buf); err != nil {
		return nil, err
	}
	cs := make([]int, n)
	total := 0
	for i := 0; i < n; i++ {
		cs[i] = int(counts.get())
		total += cs[i]
	}

	inner := newRefBand("class_InnerClasses_RC", CodingUnsigned, TagClass, pool)
	inner.expectLength(total)
	if err := inner.fill(buf); err != nil {
		return nil, err
	}
	flags := newIntBand("class_InnerClasses_F", CodingUnsigned)
	flags.expectLength(total)
	if err := flags.fill(buf); err != nil {
		return nil, err
	}

	innerRefs := make([]*cpEntry, total)
	flagVals := make([]int64, total)
	nNonZero := 0
	for i := 0; i < total; i++ {
		ref, err := inner.getRef()
		if err != nil {
			return nil, err
		}
		innerRefs[i] = ref
		flagVals[i] = flags.get()
		if flagVals[i] != 0 {
			nNonZero++
		}
	}

	outer := newRefBand("class_InnerClasses_outer_RC", CodingUnsigned, TagClass, pool)
	name := newRefBand("class_InnerClasses_name_RU", CodingUnsigned, TagUtf8, pool)
	outer.expectLength(nNonZero)
	name.expectLength(nNonZero)
	if err := outer.fill(buf); err != nil {
		return nil, err
	}
	if err := name.fill(buf); err != nil {
		return nil, err
	}

	tuples := make([]*attrValue, total)
	for i := 0; i < total; i++ {
		innerRef := innerRefs[i]
		if flagVals[i] == 0 {
			g, ok := byInner[innerRef]
			if !ok {
				return nil, newReadError(KindBadAttrIndex, "class_InnerClasses_RC", buf.served(), buf.limit,
					"zero-flag InnerClasses tuple for %s has no matching archive-wide entry", innerRef.erasedUtf8())
			}
			tuples[i] = &attrValue{kind: ekSeq, seq: []*attrValue{
				{kind: ekRef, ref: g.Inner},
				{kind: ekRef, ref: g.Outer},
				{kind: ekRef, ref: g.Name},
				{kind: ekInt, i: int64(g.Flags)},
			}}
			continue
		}
		outerRef, err := outer.getRef()
		if err != nil {
			return nil, err
		}
		nameRef, err := name.getRef()
		if err != nil {
			return nil, err
		}
		tuples[i] = &attrValue{kind: ekSeq, seq: []*attrValue{
			{kind: ekRef, ref: innerRef},
			{kind: ekRef, ref: outerRef},
			{kind: ekRef, ref: nameRef},
			{kind: ekInt, i: flagVals[i]},
		}}
	}

	out := make([]*attrValue, n)
	cursor := 0
	for i := 0; i < n; i++ {
		out[i] = &attrValue{kind: ekRepl, reps: tuples[cursor : cursor+cs[i]]}
		cursor += cs[i]
	}
	return out, nil
}

// layoutRegistry resolves a (context, name) pair to its parsed grammar,
// predefined layouts first and then layouts added by attr_definition_bands
// (spec.md §4.6, component H).
type layoutRegistry struct {
	rawPredefined map[attrContext]map[string]string
	parsed        map[attrContext]map[string]*layoutElement

	userDefs     map[attrContext][]*userAttrDef
	userDefIndex map[attrContext]map[string]int

	// globalInnerClasses is the archive-wide inner-class table a zero-flag
	// per-class InnerClasses tuple borrows from (spec.md §4.6).
	globalInnerClasses []InnerClassEntry
}

// setGlobalInnerClasses records the archive-wide inner-class table so
// decodeAttributesForHolders can resolve zero-flag InnerClasses tuples
// against it. Must be called before any class's attributes are decoded.
func (r *layoutRegistry) setGlobalInnerClasses(entries []InnerClassEntry) {
	r.globalInnerClasses = entries
}

type userAttrDef struct {
	Name   string
	Layout string
	parsed *layoutElement
}

var contextNames = map[string]attrContext{"Class": ctxClass, "Field": ctxField, "Method": ctxMethod, "Code": ctxCode}

// attrBitBase returns the low end of ctx's attribute-flag field within its
// holder's flags word: the upper 16 bits for Class/Field/Method
// (attrFlagMask 0xFFFF0000), the lower 16 for Code (attrFlagMask
// 0x0000FFFF).
func attrBitBase(ctx attrContext) int {
	if ctx == ctxCode {
		return 0
	}
	return 16
}

// attrOverflowBit returns the bit, within the full flags word, that marks
// "consult attr_count/attr_indexes for overflow attributes" for ctx: the
// top bit of whichever 16-bit field attrBitBase selects.
func attrOverflowBit(ctx attrContext) uint64 {
	return uint64(1) << uint(attrBitBase(ctx)+15)
}

func newLayoutRegistry() *layoutRegistry {
	r := &layoutRegistry{
		parsed:       map[attrContext]map[string]*layoutElement{},
		userDefs:     map[attrContext][]*userAttrDef{},
		userDefIndex: map[attrContext]map[string]int{},
	}
	table, err := layoutdef.Load()
	if err != nil {
		// The embedded table is a build-time asset under this reader's own
		// control; a decode failure here means the table itself is
		// malformed, not that the input archive is bad.
		panic("unpack200: embedded attribute layout table is malformed: " + err.Error())
	}
	r.rawPredefined = map[attrContext]map[string]string{}
	for name, ctx := range contextNames {
		r.rawPredefined[ctx] = table[name]
		r.parsed[ctx] = map[string]*layoutElement{}
	}
	return r
}

// resolveFor returns a resolver usable while parsing layouts for ctx: it
// answers @-calls against the same context's predefined and user-defined
// layouts, parsing and caching them on demand.
func (r *layoutRegistry) resolveFor(ctx attrContext) func(name string) (*layoutElement, error) {
	return func(name string) (*layoutElement, error) {
		return r.layoutByName(ctx, name)
	}
}

func (r *layoutRegistry) layoutByName(ctx attrContext, name string) (*layoutElement, error) {
	if e, ok := r.parsed[ctx][name]; ok {
		return e, nil
	}
	grammar, ok := r.rawPredefined[ctx][name]
	if !ok {
		for _, d := range r.userDefs[ctx] {
			if d.Name == name {
				grammar = d.Layout
				ok = true
				break
			}
		}
	}
	if !ok {
		return nil, newReadError(KindBadAttrIndex, "attr_definition", 0, -1,
			"no layout named %q registered for context %s", name, ctx)
	}
	elem, err := parseLayout(grammar, r.resolveFor(ctx))
	if err != nil {
		return nil, newReadError(KindBadLayout, "attr_definition", 0, -1, "%v", err)
	}
	r.parsed[ctx][name] = elem
	return elem, nil
}

// predefinedNames returns this context's predefined attribute names in a
// fixed, deterministic order: the order flags_lo/flags_hi bit positions
// are assigned in, since spec.md leaves the exact bit assignment
// implementation-defined (component H Open Question).
func (r *layoutRegistry) predefinedNames(ctx attrContext) []string {
	names := make([]string, 0, len(r.rawPredefined[ctx]))
	for name := range r.rawPredefined[ctx] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// readUserDefinitions drains attr_definition_bands: count tuples of
// (context byte, name length, layout length), followed by the
// concatenated name bytes and concatenated layout-grammar bytes. Unlike
// predefined-attribute names, these strings are self-contained rather
// than constant-pool references, since attr_definition_bands is read
// before the constant pool is available (spec.md §4.3 step 4 precedes
// §4.4/§4.5).
func (r *layoutRegistry) readUserDefinitions(buf *limitedBuffer, count int) error {
	if count == 0 {
		return nil
	}

	ctxBand := newByteBand("attr_definition_headers")
	ctxBand.expectLength(count)
	if err := ctxBand.fill(buf); err != nil {
		return err
	}

	nameLens := newIntBand("attr_definition_name_len", CodingUnsigned)
	layoutLens := newIntBand("attr_definition_layout_len", CodingUnsigned)
	nameLens.expectLength(count)
	layoutLens.expectLength(count)
	if err := nameLens.fill(buf); err != nil {
		return err
	}
	if err := layoutLens.fill(buf); err != nil {
		return err
	}

	totalNameBytes, totalLayoutBytes := 0, 0
	nlens := make([]int, count)
	llens := make([]int, count)
	for i := 0; i < count; i++ {
		nlens[i] = int(nameLens.get())
		llens[i] = int(layoutLens.get())
		totalNameBytes += nlens[i]
		totalLayoutBytes += llens[i]
	}

	nameChars := newByteBand("attr_definition_name_chars")
	layoutChars := newByteBand("attr_definition_layout_chars")
	nameChars.expectLength(totalNameBytes)
	layoutChars.expectLength(totalLayoutBytes)
	if err := nameChars.fill(buf); err != nil {
		return err
	}
	if err := layoutChars.fill(buf); err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		ctxByte := ctxBand.get()
		if int(ctxByte) >= int(numContexts) {
			return newReadError(KindBadAttrIndex, "attr_definition_headers", buf.served(), buf.limit,
				"context byte %d out of range", ctxByte)
		}
		ctx := attrContext(ctxByte)

		nameBytes := make([]byte, nlens[i])
		for k := range nameBytes {
			nameBytes[k] = nameChars.get()
		}
		layoutBytes := make([]byte, llens[i])
		for k := range layoutBytes {
			layoutBytes[k] = layoutChars.get()
		}

		def := &userAttrDef{Name: string(nameBytes), Layout: string(layoutBytes)}
		if r.userDefIndex[ctx] == nil {
			r.userDefIndex[ctx] = map[string]int{}
		}
		r.userDefIndex[ctx][def.Name] = len(r.userDefs[ctx])
		r.userDefs[ctx] = append(r.userDefs[ctx], def)
	}

	if err := ctxBand.doneDisbursing(); err != nil {
		return err
	}
	if err := nameLens.doneDisbursing(); err != nil {
		return err
	}
	if err := layoutLens.doneDisbursing(); err != nil {
		return err
	}
	if err := nameChars.doneDisbursing(); err != nil {
		return err
	}
	return layoutChars.doneDisbursing()
}

// Attribute is one decoded attribute, holding its structured value tree.
// The decoder does not fill Raw: an attribute whose layout cannot be
// resolved fails the decode with KindBadAttrIndex.
type Attribute struct {
	Name *cpEntry `json:"-"`
	NameStr string `json:"name"`

	Value *attrValue `json:"-"`
	Raw   []byte     `json:"-"`
}

// decodeAttributesForHolders implements spec.md §4.6's flag-driven
// attribute dispatch for one context: flags has already been read per
// holder by the caller (component I/J own the flags_lo/flags_hi bands,
// since those interleave with each holder's own fixed fields). For every
// predefined-attribute bit set on at least one holder, and for every
// overflow attr_index referenced by at least one holder, this decodes
// that attribute's layout across exactly the holders that carry it, and
// appends the result into out[holderIndex].
func (r *layoutRegistry) decodeAttributesForHolders(
	buf *limitedBuffer, ctx attrContext, pool *constantPool,
	flags []uint64, overflowIdxs [][]int, out [][]*Attribute,
) error {
	base := attrBitBase(ctx)
	names := r.predefinedNames(ctx)
	for bit, name := range names {
		if bit >= 15 {
			break // the field's top bit is reserved as its overflow marker
		}
		absBit := base + bit
		var idxs []int
		for i, f := range flags {
			if f&(1<<uint(absBit)) != 0 {
				idxs = append(idxs, i)
			}
		}
		if len(idxs) == 0 {
			continue
		}

		var vals []*attrValue
		var err error
		if ctx == ctxClass && name == "InnerClasses" {
			vals, err = decodeInnerClassesAttribute(buf, len(idxs), pool, r.globalInnerClasses)
		} else {
			var elem *layoutElement
			elem, err = r.layoutByName(ctx, name)
			if err == nil {
				vals, err = decodeInstances(buf, elem, len(idxs), pool)
			}
		}
		if err != nil {
			return err
		}
		for k, i := range idxs {
			out[i] = append(out[i], &Attribute{NameStr: name, Value: vals[k]})
		}
	}

	// Overflow attributes: dispatch by user-defined-attribute index,
	// across whichever holders reference that index in their
	// attr_indexes list.
	byDefIndex := map[int][]int{}
	for i, list := range overflowIdxs {
		for _, defIdx := range list {
			byDefIndex[defIdx] = append(byDefIndex[defIdx], i)
		}
	}
	defs := r.userDefs[ctx]
	for defIdx, idxs := range byDefIndex {
		if defIdx < 0 || defIdx >= len(defs) {
			return newReadError(KindBadAttrIndex, "attr_indexes", buf.served(), buf.limit,
				"attribute definition index %d out of range (have %d)", defIdx, len(defs))
		}
		def := defs[defIdx]
		elem, err := r.layoutByName(ctx, def.Name)
		if err != nil {
			return err
		}
		vals, err := decodeInstances(buf, elem, len(idxs), pool)
		if err != nil {
			return err
		}
		for k, i := range idxs {
			out[i] = append(out[i], &Attribute{NameStr: def.Name, Value: vals[k]})
		}
	}
	return nil
}
