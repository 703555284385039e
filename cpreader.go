// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import "math"

// readConstantPool drains every constant-pool tag family's bands, in the
// fixed order the archive lays them out: Utf8 first (everything else can
// reference it), then — when present — the numeric tag group, then the
// remaining core tags, then — when present — the extra tag group
// (spec.md §4.3, §4.5, component G).
//
// Within the extra group, BootstrapMethod is read before InvokeDynamic
// even though InvokeDynamic is numbered first in the tag enumeration:
// an InvokeDynamic entry references a BootstrapMethod entry, and
// spec.md §9 requires every tag to be fully constructed before a tag
// that can reference it is decoded.
func readConstantPool(buf *limitedBuffer, pool *constantPool, h *archiveHeader) error {
	if err := readUtf8Pool(buf, pool, h.CPCounts[TagUtf8]); err != nil {
		return err
	}

	if h.hasOption(AOHaveCPNumbers) {
		if err := readIntegerPool(buf, pool, h.CPCounts[TagInteger]); err != nil {
			return err
		}
		if err := readFloatPool(buf, pool, h.CPCounts[TagFloat]); err != nil {
			return err
		}
		if err := readLongPool(buf, pool, h.CPCounts[TagLong]); err != nil {
			return err
		}
		if err := readDoublePool(buf, pool, h.CPCounts[TagDouble]); err != nil {
			return err
		}
	}

	if err := readRefPool(buf, pool, TagString, h.CPCounts[TagString], TagUtf8); err != nil {
		return err
	}
	if err := readRefPool(buf, pool, TagClass, h.CPCounts[TagClass], TagUtf8); err != nil {
		return err
	}
	if err := readSignaturePool(buf, pool, h.CPCounts[TagSignature]); err != nil {
		return err
	}
	if err := readNameAndTypePool(buf, pool, h.CPCounts[TagNameAndType]); err != nil {
		return err
	}
	if err := readMemberRefPool(buf, pool, TagFieldref, h.CPCounts[TagFieldref]); err != nil {
		return err
	}
	if err := readMemberRefPool(buf, pool, TagMethodref, h.CPCounts[TagMethodref]); err != nil {
		return err
	}
	if err := readMemberRefPool(buf, pool, TagInterfaceMethodref, h.CPCounts[TagInterfaceMethodref]); err != nil {
		return err
	}

	if h.hasOption(AOHaveCPExtras) {
		if err := readMethodHandlePool(buf, pool, h.CPCounts[TagMethodHandle]); err != nil {
			return err
		}
		if err := readRefPool(buf, pool, TagMethodType, h.CPCounts[TagMethodType], TagUtf8); err != nil {
			return err
		}
		if err := readBootstrapMethodPool(buf, pool, h.CPCounts[TagBootstrapMethod]); err != nil {
			return err
		}
		if err := readInvokeDynamicPool(buf, pool, h.CPCounts[TagInvokeDynamic]); err != nil {
			return err
		}
	}

	return nil
}

func readIntegerPool(buf *limitedBuffer, pool *constantPool, count int) error {
	band := newIntBand("cp_Int", CodingSigned)
	band.expectLength(count)
	if err := band.fill(buf); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		pool.internEntry(&cpEntry{Tag: TagInteger, I32: int32(band.get())})
	}
	return nil
}

func readFloatPool(buf *limitedBuffer, pool *constantPool, count int) error {
	band := newIntBand("cp_Float", CodingSigned)
	band.expectLength(count)
	if err := band.fill(buf); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		bits := uint32(band.get())
		pool.internEntry(&cpEntry{Tag: TagFloat, I32: int32(bits), F32: math.Float32frombits(bits)})
	}
	return nil
}

func readLongPool(buf *limitedBuffer, pool *constantPool, count int) error {
	hi := newIntBand("cp_Long_hi", CodingSigned)
	lo := newIntBand("cp_Long_lo", CodingUnsigned)
	hi.expectLength(count)
	lo.expectLength(count)
	if err := hi.fill(buf); err != nil {
		return err
	}
	if err := lo.fill(buf); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		v := hi.get()<<32 | (lo.get() & 0xffffffff)
		pool.internEntry(&cpEntry{Tag: TagLong, I64: v})
	}
	return nil
}

func readDoublePool(buf *limitedBuffer, pool *constantPool, count int) error {
	hi := newIntBand("cp_Double_hi", CodingSigned)
	lo := newIntBand("cp_Double_lo", CodingUnsigned)
	hi.expectLength(count)
	lo.expectLength(count)
	if err := hi.fill(buf); err != nil {
		return err
	}
	if err := lo.fill(buf); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		bits := uint64(hi.get())<<32 | (uint64(lo.get()) & 0xffffffff)
		pool.internEntry(&cpEntry{Tag: TagDouble, I64: int64(bits), F64: math.Float64frombits(bits)})
	}
	return nil
}

// readRefPool reads count entries of tag, each a single reference into
// refTag's column (String->Utf8, Class->Utf8, MethodType->Utf8, ...).
func readRefPool(buf *limitedBuffer, pool *constantPool, tag cpTag, count int, refTag cpTag) error {
	band := newRefBand("cp_"+tag.String(), CodingUnsigned, refTag, pool)
	band.expectLength(count)
	if err := band.fill(buf); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		ref, err := band.getRef()
		if err != nil {
			return err
		}
		pool.internEntry(&cpEntry{Tag: tag, Ref: ref})
	}
	return nil
}

// readSignaturePool implements spec.md §4.5: a form-Utf8 reference per
// signature, followed by a flat band of Class references whose total
// length is the sum, across all signatures, of "L;" slots their form
// contains.
func readSignaturePool(buf *limitedBuffer, pool *constantPool, count int) error {
	forms := newRefBand("Signature_form", CodingUnsigned, TagUtf8, pool)
	forms.expectLength(count)
	if err := forms.fill(buf); err != nil {
		return err
	}

	formRefs := make([]*cpEntry, count)
	slotCounts := make([]int, count)
	totalSlots := 0
	for i := 0; i < count; i++ {
		ref, err := forms.getRef()
		if err != nil {
			return err
		}
		formRefs[i] = ref
		n := countSignatureClassSlots(ref.Str)
		slotCounts[i] = n
		totalSlots += n
	}

	classes := newRefBand("Signature_classes", CodingUnsigned, TagClass, pool)
	classes.expectLength(totalSlots)
	if err := classes.fill(buf); err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		cls := make([]*cpEntry, slotCounts[i])
		for k := range cls {
			ref, err := classes.getRef()
			if err != nil {
				return err
			}
			cls[k] = ref
		}
		pool.internEntry(&cpEntry{Tag: TagSignature, Form: formRefs[i], Classes: cls})
	}
	return nil
}

// countSignatureClassSlots counts the "L...;" reference-type markers in a
// field/method descriptor form, per spec.md §4.5.
func countSignatureClassSlots(form string) int {
	n := 0
	for i := 0; i < len(form); i++ {
		if form[i] == 'L' {
			n++
			for i < len(form) && form[i] != ';' {
				i++
			}
		}
	}
	return n
}

func readNameAndTypePool(buf *limitedBuffer, pool *constantPool, count int) error {
	names := newRefBand("NameAndType_name", CodingUnsigned, TagUtf8, pool)
	descs := newRefBand("NameAndType_descriptor", CodingUnsigned, TagUtf8, pool)
	names.expectLength(count)
	descs.expectLength(count)
	if err := names.fill(buf); err != nil {
		return err
	}
	if err := descs.fill(buf); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		name, err := names.getRef()
		if err != nil {
			return err
		}
		desc, err := descs.getRef()
		if err != nil {
			return err
		}
		pool.internEntry(&cpEntry{Tag: TagNameAndType, Name: name, Descriptor: desc})
	}
	return nil
}

func readMemberRefPool(buf *limitedBuffer, pool *constantPool, tag cpTag, count int) error {
	classes := newRefBand(tag.String()+"_class", CodingUnsigned, TagClass, pool)
	nts := newRefBand(tag.String()+"_nt", CodingUnsigned, TagNameAndType, pool)
	classes.expectLength(count)
	nts.expectLength(count)
	if err := classes.fill(buf); err != nil {
		return err
	}
	if err := nts.fill(buf); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		cls, err := classes.getRef()
		if err != nil {
			return err
		}
		nt, err := nts.getRef()
		if err != nil {
			return err
		}
		pool.internEntry(&cpEntry{Tag: tag, ClassRef: cls, NameType: nt})
	}
	return nil
}

// Reference-kind values a MethodHandle can carry (JVM spec table 5.4.3.5,
// reused verbatim since the archive's encoding mirrors the class-file
// constant exactly).
const (
	refGetField = iota + 1
	refGetStatic
	refPutField
	refPutStatic
	refInvokeVirtual
	refInvokeStatic
	refInvokeSpecial
	refNewInvokeSpecial
	refInvokeInterface
)

func readMethodHandlePool(buf *limitedBuffer, pool *constantPool, count int) error {
	kinds := newIntBand("MethodHandle_refkind", CodingByte1)
	refs := newIntBand("MethodHandle_ref", CodingUnsigned)
	kinds.expectLength(count)
	refs.expectLength(count)
	if err := kinds.fill(buf); err != nil {
		return err
	}
	if err := refs.fill(buf); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		kind := int(kinds.get())
		idx := int(refs.get())
		var refTag cpTag
		switch kind {
		case refGetField, refGetStatic, refPutField, refPutStatic:
			refTag = TagFieldref
		case refInvokeInterface:
			refTag = TagInterfaceMethodref
		default:
			refTag = TagMethodref
		}
		entry, err := pool.lookup(refTag, idx)
		if err != nil {
			return newReadError(KindTruncatedStream, "MethodHandle_ref", buf.served(), buf.limit, "%v", err)
		}
		pool.internEntry(&cpEntry{Tag: TagMethodHandle, RefKind: kind, HandleOf: entry})
	}
	return nil
}

func readBootstrapMethodPool(buf *limitedBuffer, pool *constantPool, count int) error {
	methods := newRefBand("BootstrapMethod_ref", CodingUnsigned, TagMethodHandle, pool)
	argCounts := newIntBand("BootstrapMethod_arg_count", CodingUnsigned)
	methods.expectLength(count)
	argCounts.expectLength(count)
	if err := methods.fill(buf); err != nil {
		return err
	}
	if err := argCounts.fill(buf); err != nil {
		return err
	}

	counts := make([]int, count)
	totalArgs := 0
	for i := 0; i < count; i++ {
		counts[i] = int(argCounts.get())
		totalArgs += counts[i]
	}

	argTags := newByteBand("BootstrapMethod_arg_tag")
	argIdx := newIntBand("BootstrapMethod_arg", CodingUnsigned)
	argTags.expectLength(totalArgs)
	argIdx.expectLength(totalArgs)
	if err := argTags.fill(buf); err != nil {
		return err
	}
	if err := argIdx.fill(buf); err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		method, err := methods.getRef()
		if err != nil {
			return err
		}
		args := make([]*cpEntry, counts[i])
		for k := 0; k < counts[i]; k++ {
			entry, err := resolveLoadable(pool, argTags.get(), int(argIdx.get()))
			if err != nil {
				return err
			}
			args[k] = entry
		}
		pool.internEntry(&cpEntry{Tag: TagBootstrapMethod, Method: method, Args: args})
	}
	return nil
}

func readInvokeDynamicPool(buf *limitedBuffer, pool *constantPool, count int) error {
	bootstraps := newRefBand("InvokeDynamic_bootstrap", CodingUnsigned, TagBootstrapMethod, pool)
	nts := newRefBand("InvokeDynamic_nt", CodingUnsigned, TagNameAndType, pool)
	bootstraps.expectLength(count)
	nts.expectLength(count)
	if err := bootstraps.fill(buf); err != nil {
		return err
	}
	if err := nts.fill(buf); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		bsm, err := bootstraps.getRef()
		if err != nil {
			return err
		}
		nt, err := nts.getRef()
		if err != nil {
			return err
		}
		pool.internEntry(&cpEntry{Tag: TagInvokeDynamic, Bootstrap: bsm, NameAndTypeRef: nt})
	}
	return nil
}

// loadableTag bytes select which column resolveLoadable consults; used
// for BootstrapMethod arguments and for the ldc/ldc_w/ldc2_w bytecode
// operands (bc_ldc_tag/bc_ldcw_tag),
// spec.md §4.6/§4.8, both of which carry an untagged reference whose
// family must be read alongside it.
const (
	loadableInteger byte = iota
	loadableFloat
	loadableLong
	loadableDouble
	loadableString
	loadableClass
	loadableMethodHandle
	loadableMethodType
)

func resolveLoadable(pool *constantPool, tagByte byte, idx int) (*cpEntry, error) {
	var tag cpTag
	switch tagByte {
	case loadableInteger:
		tag = TagInteger
	case loadableFloat:
		tag = TagFloat
	case loadableLong:
		tag = TagLong
	case loadableDouble:
		tag = TagDouble
	case loadableString:
		tag = TagString
	case loadableClass:
		tag = TagClass
	case loadableMethodHandle:
		tag = TagMethodHandle
	case loadableMethodType:
		tag = TagMethodType
	default:
		tag = TagInteger
	}
	return pool.lookup(tag, idx)
}
