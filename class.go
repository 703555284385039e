// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

// holderFlags decodes one context's flags_lo (and, when hasHi, flags_hi)
// bands across n holders, returning each holder's full mask and its
// overflow bit (spec.md §4.6).
func holderFlags(buf *limitedBuffer, ctx attrContext, n int) (masks []uint64, overflow []bool, err error) {
	lo := newIntBand("flags_lo", CodingUnsigned)
	lo.expectLength(n)
	if err := lo.fill(buf); err != nil {
		return nil, nil, err
	}
	var hi *IntBand
	if ctx.has64BitFlags() {
		hi = newIntBand("flags_hi", CodingUnsigned)
		hi.expectLength(n)
		if err := hi.fill(buf); err != nil {
			return nil, nil, err
		}
	}
	masks = make([]uint64, n)
	overflow = make([]bool, n)
	for i := 0; i < n; i++ {
		v := uint64(lo.get())
		if hi != nil {
			v |= uint64(hi.get()) << 32
		}
		masks[i] = v
		overflow[i] = v&attrOverflowBit(ctx) != 0
	}
	return masks, overflow, nil
}

// holderOverflowIndexes reads the attr_count/attr_indexes bands for the
// holders flagged with the overflow bit, per spec.md §4.6: a count band
// sized by the number of overflowing holders, followed by a flat
// attr_indexes band.
func holderOverflowIndexes(buf *limitedBuffer, overflow []bool) ([][]int, error) {
	out := make([][]int, len(overflow))
	var overflowing []int
	for i, ov := range overflow {
		if ov {
			overflowing = append(overflowing, i)
		}
	}
	if len(overflowing) == 0 {
		return out, nil
	}

	counts := newIntBand("attr_count", CodingUnsigned)
	counts.expectLength(len(overflowing))
	if err := counts.fill(buf); err != nil {
		return nil, err
	}
	cs := make([]int, len(overflowing))
	total := 0
	for i := range cs {
		cs[i] = int(counts.get())
		total += cs[i]
	}

	indexes := newIntBand("attr_indexes", CodingUnsigned)
	indexes.expectLength(total)
	if err := indexes.fill(buf); err != nil {
		return nil, err
	}
	for k, i := range overflowing {
		idxs := make([]int, cs[k])
		for j := range idxs {
			idxs[j] = int(indexes.get())
		}
		out[i] = idxs
	}
	return out, nil
}

// decodeAttributes is the shared glue readClasses/readMembers use: read
// flags, read any overflow indexes, then hand off to the layout engine.
func decodeAttributes(buf *limitedBuffer, registry *layoutRegistry, ctx attrContext, pool *constantPool, n int) (masks []uint64, attrs [][]*Attribute, err error) {
	masks, overflow, err := holderFlags(buf, ctx, n)
	if err != nil {
		return nil, nil, err
	}
	overflowIdxs, err := holderOverflowIndexes(buf, overflow)
	if err != nil {
		return nil, nil, err
	}
	attrs = make([][]*Attribute, n)
	if err := registry.decodeAttributesForHolders(buf, ctx, pool, masks, overflowIdxs, attrs); err != nil {
		return nil, nil, err
	}
	return masks, attrs, nil
}

// readClasses implements spec.md §4.7 (component I): class_this/super,
// interfaces, then every class's fields and methods, in archive order.
func readClasses(buf *limitedBuffer, pool *constantPool, h *archiveHeader, registry *layoutRegistry, opts *Options) ([]*Class, error) {
	n := h.ClassCount

	thisBand := newRefBand("class_this", CodingUnsigned, TagClass, pool)
	thisBand.expectLength(n)
	if err := thisBand.fill(buf); err != nil {
		return nil, err
	}
	thisRefs := make([]*cpEntry, n)
	for i := 0; i < n; i++ {
		ref, err := thisBand.getRef()
		if err != nil {
			return nil, err
		}
		thisRefs[i] = ref
	}

	// super is normally a Class ref; a raw 0 means no superclass, and a
	// raw index that resolves to the same entry as this class's own
	// class_this is the archive's "null super" sentinel as well.
	superBand := newIntBand("class_super", CodingUnsigned)
	superBand.expectLength(n)
	if err := superBand.fill(buf); err != nil {
		return nil, err
	}
	superRefs := make([]*cpEntry, n)
	for i := 0; i < n; i++ {
		raw := superBand.get()
		if raw == 0 {
			continue
		}
		entry, err := pool.lookup(TagClass, int(raw-1))
		if err != nil {
			return nil, newReadError(KindTruncatedStream, "class_super", buf.served(), buf.limit, "%v", err)
		}
		if entry == thisRefs[i] {
			continue
		}
		superRefs[i] = entry
	}

	interfaceCounts := newIntBand("class_interface_count", CodingUnsigned)
	interfaceCounts.expectLength(n)
	if err := interfaceCounts.fill(buf); err != nil {
		return nil, err
	}
	icounts := make([]int, n)
	totalInterfaces := 0
	for i := 0; i < n; i++ {
		icounts[i] = int(interfaceCounts.get())
		totalInterfaces += icounts[i]
	}
	interfaceBand := newRefBand("class_interface", CodingUnsigned, TagClass, pool)
	interfaceBand.expectLength(totalInterfaces)
	if err := interfaceBand.fill(buf); err != nil {
		return nil, err
	}

	classes := make([]*Class, n)
	for i := 0; i < n; i++ {
		ifaces := make([]*cpEntry, icounts[i])
		for k := range ifaces {
			ref, err := interfaceBand.getRef()
			if err != nil {
				return nil, err
			}
			ifaces[k] = ref
		}
		classes[i] = &Class{
			This:       thisRefs[i],
			Super:      superRefs[i],
			ThisName:   thisRefs[i].erasedUtf8(),
			Interfaces: ifaces,
			Version:    h.DefaultVersion,
		}
		if superRefs[i] != nil {
			classes[i].SuperName = superRefs[i].erasedUtf8()
		}
	}

	if err := readMembers(buf, pool, registry, classes, true); err != nil {
		return nil, err
	}
	if err := readMembers(buf, pool, registry, classes, false); err != nil {
		return nil, err
	}

	classMasks, classAttrs, err := decodeAttributes(buf, registry, ctxClass, pool, n)
	if err != nil {
		return nil, err
	}
	for i, c := range classes {
		c.AccessFlags = uint32(classMasks[i] &^ attrFlagMask[ctxClass])
		c.Attributes = classAttrs[i]
	}

	return classes, nil
}

// readMembers reads every class's fields (fields=true) or methods
// (fields=false): a per-class count band, then flat name/descriptor/flags
// bands across the total member count, spec.md §4.7.
func readMembers(buf *limitedBuffer, pool *constantPool, registry *layoutRegistry, classes []*Class, fields bool) error {
	n := len(classes)
	bandPrefix := "method"
	ctx := ctxMethod
	if fields {
		bandPrefix = "field"
		ctx = ctxField
	}

	counts := newIntBand(bandPrefix+"_count", CodingUnsigned)
	counts.expectLength(n)
	if err := counts.fill(buf); err != nil {
		return err
	}
	memberCounts := make([]int, n)
	total := 0
	for i := 0; i < n; i++ {
		memberCounts[i] = int(counts.get())
		total += memberCounts[i]
	}

	names := newRefBand(bandPrefix+"_descr_name", CodingUnsigned, TagUtf8, pool)
	descs := newRefBand(bandPrefix+"_descr_type", CodingUnsigned, TagUtf8, pool)
	names.expectLength(total)
	descs.expectLength(total)
	if err := names.fill(buf); err != nil {
		return err
	}
	if err := descs.fill(buf); err != nil {
		return err
	}

	memberNames := make([]*cpEntry, total)
	memberDescs := make([]*cpEntry, total)
	for i := 0; i < total; i++ {
		name, err := names.getRef()
		if err != nil {
			return err
		}
		desc, err := descs.getRef()
		if err != nil {
			return err
		}
		memberNames[i] = name
		memberDescs[i] = desc
	}

	masks, attrs, err := decodeAttributes(buf, registry, ctx, pool, total)
	if err != nil {
		return err
	}

	// ownerOf maps a flat member index to its owning class, needed below to
	// resolve the self-linker/invokeinit opcode flavors against the right
	// class's This/Super reference.
	ownerOf := make([]*Class, total)
	cursor := 0
	for ci, c := range classes {
		for k := 0; k < memberCounts[ci]; k++ {
			ownerOf[cursor+k] = c
		}
		cursor += memberCounts[ci]
	}

	var codeIdxs []int
	if !fields {
		for i := 0; i < total; i++ {
			if masks[i]&methodCodeBit != 0 {
				codeIdxs = append(codeIdxs, i)
			}
		}
	}
	owners := make([]*Class, len(codeIdxs))
	for k, i := range codeIdxs {
		owners[k] = ownerOf[i]
	}
	codes, err := decodeCodeBodies(buf, pool, registry, owners)
	if err != nil {
		return err
	}
	codeByIndex := make(map[int]*Code, len(codeIdxs))
	for k, i := range codeIdxs {
		codeByIndex[i] = codes[k]
	}

	cursor = 0
	for ci, c := range classes {
		for k := 0; k < memberCounts[ci]; k++ {
			i := cursor + k
			accessFlags := uint32(masks[i] &^ attrFlagMask[ctx])
			if fields {
				c.Fields = append(c.Fields, &Field{
					Name: memberNames[i], Descriptor: memberDescs[i],
					NameStr: memberNames[i].erasedUtf8(), DescriptorStr: memberDescs[i].erasedUtf8(),
					AccessFlags: accessFlags, Attributes: attrs[i],
				})
			} else {
				c.Methods = append(c.Methods, &Method{
					Name: memberNames[i], Descriptor: memberDescs[i],
					NameStr: memberNames[i].erasedUtf8(), DescriptorStr: memberDescs[i].erasedUtf8(),
					AccessFlags: accessFlags, Attributes: attrs[i],
					Code: codeByIndex[i],
				})
			}
		}
		cursor += memberCounts[ci]
	}
	return nil
}

// methodCodeBit is the Method-context flag bit marking "this method
// carries a Code body", per spec.md §4.7's "methods carrying an empty
// Code attribute are promoted to a full Code holder". It sits above every
// predefined Method attribute's bit (spec.md leaves exact bit assignment
// implementation-defined; see DESIGN.md) and below the overflow bit.
const methodCodeBit uint64 = 1 << 30
