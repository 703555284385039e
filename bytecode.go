// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

// countDescriptorArgWords sums the local-variable-slot width of a method
// descriptor's parameter list ("(...)..."): 2 for long/double, 1 for
// everything else, per the JVM's own slot-width rule. Used to synthesize
// invokeinterface's count operand, which the archive itself does not
// carry.
func countDescriptorArgWords(descriptor string) int {
	words := 0
	i := 0
	if i >= len(descriptor) || descriptor[i] != '(' {
		return 0
	}
	i++
	for i < len(descriptor) && descriptor[i] != ')' {
		for i < len(descriptor) && descriptor[i] == '[' {
			i++
		}
		switch descriptor[i] {
		case 'J', 'D':
			words += 2
			i++
		case 'L':
			for i < len(descriptor) && descriptor[i] != ';' {
				i++
			}
			i++
			words++
		default:
			i++
			words++
		}
	}
	return words
}

// handlerDeltaCoding encodes an exception handler tuple's three BCI
// fields cumulatively within the tuple itself (start absolute, end =
// start+length, handler PC = end+delta), rather than across the whole
// handler table: handler ranges are always method-local, so carrying a
// running sum across method boundaries would leak one method's PCs into
// the next (component J/L, see DESIGN.md).
var handlerDeltaCoding = Coding{B: 32, H: 1, S: SignZigzag, D: false}

func writeBigEndian16(dst []byte, v int64) []byte {
	return append(dst, byte(v>>8), byte(v))
}

func writeBigEndian32(dst []byte, v int64) []byte {
	return append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// decodeCodeBodies implements spec.md §4.8 (component J): the two-pass
// bytecode decoder. owners[k] is the class that owns the k-th
// code-bearing method, needed both to resolve the self-linker/invokeinit
// opcode flavors against the owning class's This/Super reference, and to
// record narrow-ldc referents into that class's ldcRefs (spec.md §4.7,
// §4.10's local-CP narrow-ldc region).
func decodeCodeBodies(buf *limitedBuffer, pool *constantPool, registry *layoutRegistry, owners []*Class) ([]*Code, error) {
	n := len(owners)
	if n == 0 {
		return nil, nil
	}

	maxStack := newIntBand("code_max_stack", CodingUnsigned)
	maxLocals := newIntBand("code_max_locals", CodingUnsigned)
	instrCounts := newIntBand("code_instr_count", CodingUnsigned)
	maxStack.expectLength(n)
	maxLocals.expectLength(n)
	instrCounts.expectLength(n)
	if err := maxStack.fill(buf); err != nil {
		return nil, err
	}
	if err := maxLocals.fill(buf); err != nil {
		return nil, err
	}
	if err := instrCounts.fill(buf); err != nil {
		return nil, err
	}

	counts := make([]int, n)
	total := 0
	for i := 0; i < n; i++ {
		counts[i] = int(instrCounts.get())
		total += counts[i]
	}

	codes := newByteBand("bc_codes")
	codes.expectLength(total)
	if err := codes.fill(buf); err != nil {
		return nil, err
	}

	kinds := make([]opcodeKind, total)
	wideFlags := make([]bool, total)
	var nByte, nShort, nLocal, nIincVar, nIincConst, nBranch, nBranchWide int
	var nClassRef, nFieldRef, nMethodRef, nMethodRefInt, nIfaceRef, nInvokeDyn int
	var nLdc, nLdcWide, nMulti, nTableSwitch, nLookupSwitch int
	pendingWide := false
	for i := 0; i < total; i++ {
		opcode := codes.values[i]
		info := opcodeTable[opcode]
		if info.mnemonic == "" && opcode != 0 {
			return nil, newReadError(KindIllegalOpcode, "bc_codes", buf.served(), buf.limit,
				"unrecognized opcode 0x%02x", opcode)
		}
		if pendingWide && !info.kind.wideable() {
			return nil, newReadError(KindIllegalOpcode, "bc_codes", buf.served(), buf.limit,
				"wide prefix applied to non-widenable opcode %q", info.mnemonic)
		}
		kinds[i] = info.kind
		wideFlags[i] = pendingWide
		wasWide := pendingWide
		pendingWide = false
		switch info.kind {
		case opWide:
			pendingWide = true
		case opByte:
			nByte++
		case opShort:
			nShort++
		case opLocal:
			nLocal++
		case opLocalIncr:
			nIincVar++
			if wasWide {
				// _wide re-routes iinc's constant to bc_short rather
				// than the narrow bc_iinc_const band (spec.md §4.8).
				nShort++
			} else {
				nIincConst++
			}
		case opBranch:
			nBranch++
		case opBranchWide:
			nBranchWide++
		case opClassRef:
			nClassRef++
		case opFieldRef:
			nFieldRef++
		case opMethodRef:
			nMethodRef++
		case opMethodRefInt:
			nMethodRefInt++
		case opInterfaceMethodRef:
			nIfaceRef++
		case opInvokeDynamicRef:
			nInvokeDyn++
		case opLdc:
			nLdc++
		case opLdcWide:
			nLdcWide++
		case opMultiANewArray:
			nMulti++
		case opTableSwitch:
			nTableSwitch++
		case opLookupSwitch:
			nLookupSwitch++
		}
	}

	byteOperand := newIntBand("bc_byte", CodingSigned)
	shortOperand := newIntBand("bc_short", CodingSigned)
	localOperand := newIntBand("bc_local", CodingUnsigned)
	localIncrVar := newIntBand("bc_iinc_local", CodingUnsigned)
	localIncrConst := newIntBand("bc_iinc_const", CodingSigned)
	branchOperand := newIntBand("bc_branch", CodingSigned)
	branchWideOperand := newIntBand("bc_branch_w", CodingSigned)
	classRefOperand := newRefBand("bc_classref", CodingUnsigned, TagClass, pool)
	ifaceRefOperand := newRefBand("bc_imethodref", CodingUnsigned, TagInterfaceMethodref, pool)
	invokeDynOperand := newRefBand("bc_invokedynamicref", CodingUnsigned, TagInvokeDynamic, pool)
	ldcTag := newByteBand("bc_ldc_tag")
	ldcIdx := newIntBand("bc_ldc_idx", CodingUnsigned)
	ldcWideTag := newByteBand("bc_ldcw_tag")
	ldcWideIdx := newIntBand("bc_ldcw_idx", CodingUnsigned)
	multiClassRef := newRefBand("bc_multianewarray_class", CodingUnsigned, TagClass, pool)
	multiDims := newByteBand("bc_multianewarray_dims")
	methodSelfFlag := newByteBand("bc_method_selflinker")
	fieldSelfFlag := newByteBand("bc_field_selflinker")
	methodIntTag := newByteBand("bc_methodref_int_tag")
	methodIntIdx := newIntBand("bc_methodref_int_idx", CodingUnsigned)

	for _, step := range []struct {
		b interface{ expectLength(int) }
		n int
	}{
		{byteOperand, nByte}, {shortOperand, nShort}, {localOperand, nLocal},
		{localIncrVar, nIincVar}, {localIncrConst, nIincConst}, {branchOperand, nBranch},
		{branchWideOperand, nBranchWide},
		{classRefOperand, nClassRef},
		{ifaceRefOperand, nIfaceRef}, {invokeDynOperand, nInvokeDyn},
		{ldcTag, nLdc}, {ldcIdx, nLdc}, {ldcWideTag, nLdcWide}, {ldcWideIdx, nLdcWide},
		{multiClassRef, nMulti}, {multiDims, nMulti},
		{methodSelfFlag, nMethodRef}, {fieldSelfFlag, nFieldRef},
		{methodIntTag, nMethodRefInt}, {methodIntIdx, nMethodRefInt},
	} {
		step.b.expectLength(step.n)
	}
	for _, b := range []interface{ fill(byteSource) error }{
		byteOperand, shortOperand, localOperand, localIncrVar, localIncrConst, branchOperand,
		branchWideOperand, classRefOperand, ifaceRefOperand, invokeDynOperand,
		ldcTag, ldcIdx, ldcWideTag, ldcWideIdx, multiClassRef, multiDims,
		methodSelfFlag, fieldSelfFlag, methodIntTag, methodIntIdx,
	} {
		if err := b.fill(buf); err != nil {
			return nil, err
		}
	}

	countSet := func(b *ByteBand) int {
		n := 0
		for _, f := range b.values {
			if f != 0 {
				n++
			}
		}
		return n
	}
	nSelf := countSet(methodSelfFlag)
	nFieldSelf := countSet(fieldSelfFlag)
	nExplicit := nMethodRef - nSelf
	nFieldExplicit := nFieldRef - nFieldSelf

	methodRefExplicit := newRefBand("bc_methodref", CodingUnsigned, TagMethodref, pool)
	methodSelfNT := newRefBand("bc_method_self_nt", CodingUnsigned, TagNameAndType, pool)
	methodSelfSuper := newByteBand("bc_method_self_super")
	methodSelfAload := newByteBand("bc_method_self_aload")
	fieldRefExplicit := newRefBand("bc_fieldref", CodingUnsigned, TagFieldref, pool)
	fieldSelfNT := newRefBand("bc_field_self_nt", CodingUnsigned, TagNameAndType, pool)
	fieldSelfSuper := newByteBand("bc_field_self_super")
	fieldSelfAload := newByteBand("bc_field_self_aload")

	for _, step := range []struct {
		b interface{ expectLength(int) }
		n int
	}{
		{methodRefExplicit, nExplicit}, {methodSelfNT, nSelf}, {methodSelfSuper, nSelf}, {methodSelfAload, nSelf},
		{fieldRefExplicit, nFieldExplicit}, {fieldSelfNT, nFieldSelf}, {fieldSelfSuper, nFieldSelf}, {fieldSelfAload, nFieldSelf},
	} {
		step.b.expectLength(step.n)
	}
	for _, b := range []interface{ fill(byteSource) error }{
		methodRefExplicit, methodSelfNT, methodSelfSuper, methodSelfAload,
		fieldRefExplicit, fieldSelfNT, fieldSelfSuper, fieldSelfAload,
	} {
		if err := b.fill(buf); err != nil {
			return nil, err
		}
	}

	tsLow := newIntBand("bc_tableswitch_low", CodingSigned)
	tsHigh := newIntBand("bc_tableswitch_high", CodingSigned)
	tsDefault := newIntBand("bc_tableswitch_default", CodingSigned)
	tsLow.expectLength(nTableSwitch)
	tsHigh.expectLength(nTableSwitch)
	tsDefault.expectLength(nTableSwitch)
	if err := tsLow.fill(buf); err != nil {
		return nil, err
	}
	if err := tsHigh.fill(buf); err != nil {
		return nil, err
	}
	if err := tsDefault.fill(buf); err != nil {
		return nil, err
	}
	tsCounts := make([]int, nTableSwitch)
	tsTotal := 0
	for i := 0; i < nTableSwitch; i++ {
		c := int(tsHigh.values[i]-tsLow.values[i]) + 1
		if c < 0 {
			return nil, newReadError(KindSizeMismatch, "bc_tableswitch_high", buf.served(), buf.limit,
				"tableswitch high %d below low %d", tsHigh.values[i], tsLow.values[i])
		}
		tsCounts[i] = c
		tsTotal += c
	}
	tsTargets := newIntBand("bc_tableswitch_targets", CodingSigned)
	tsTargets.expectLength(tsTotal)
	if err := tsTargets.fill(buf); err != nil {
		return nil, err
	}

	lsNPairs := newIntBand("bc_lookupswitch_npairs", CodingUnsigned)
	lsDefault := newIntBand("bc_lookupswitch_default", CodingSigned)
	lsNPairs.expectLength(nLookupSwitch)
	lsDefault.expectLength(nLookupSwitch)
	if err := lsNPairs.fill(buf); err != nil {
		return nil, err
	}
	if err := lsDefault.fill(buf); err != nil {
		return nil, err
	}
	lsTotal := 0
	for i := 0; i < nLookupSwitch; i++ {
		lsTotal += int(lsNPairs.values[i])
	}
	lsKeys := newIntBand("bc_lookupswitch_keys", CodingSigned)
	lsTargets := newIntBand("bc_lookupswitch_targets", CodingSigned)
	lsKeys.expectLength(lsTotal)
	lsTargets.expectLength(lsTotal)
	if err := lsKeys.fill(buf); err != nil {
		return nil, err
	}
	if err := lsTargets.fill(buf); err != nil {
		return nil, err
	}

	codeBytes := make([][]byte, n)
	codeFixups := make([][]Fixup, n)
	bidx := 0
	for b := 0; b < n; b++ {
		var out []byte
		var fixups []Fixup
		pc := int64(0)

		for k := 0; k < counts[b]; k++ {
			opcode := codes.values[bidx]
			kind := kinds[bidx]
			wide := wideFlags[bidx]
			bidx++

			switch kind {
			case opFieldRef:
				flag := fieldSelfFlag.get()
				var entry *cpEntry
				aload := false
				if flag != 0 {
					nt, err := fieldSelfNT.getRef()
					if err != nil {
						return nil, err
					}
					owner := owners[b].This
					if fieldSelfSuper.get() != 0 && owners[b].Super != nil {
						owner = owners[b].Super
					}
					entry = pool.internEntry(&cpEntry{Tag: TagFieldref, ClassRef: owner, NameType: nt})
					aload = fieldSelfAload.get() != 0
				} else {
					ref, err := fieldRefExplicit.getRef()
					if err != nil {
						return nil, err
					}
					entry = ref
				}
				if aload {
					out = append(out, aload0Opcode)
					pc++
				}
				instrStart := pc
				out = append(out, opcode)
				pc++
				fixups = append(fixups, Fixup{Offset: int(instrStart + 1), Width: 2, Entry: entry})
				out = writeBigEndian16(out, 0)
				pc += 2

			case opMethodRef:
				flag := methodSelfFlag.get()
				var entry *cpEntry
				aload := false
				if flag != 0 {
					nt, err := methodSelfNT.getRef()
					if err != nil {
						return nil, err
					}
					owner := owners[b].This
					if methodSelfSuper.get() != 0 && owners[b].Super != nil {
						owner = owners[b].Super
					}
					entry = pool.internEntry(&cpEntry{Tag: TagMethodref, ClassRef: owner, NameType: nt})
					aload = methodSelfAload.get() != 0
				} else {
					ref, err := methodRefExplicit.getRef()
					if err != nil {
						return nil, err
					}
					entry = ref
				}
				if aload {
					out = append(out, aload0Opcode)
					pc++
				}
				instrStart := pc
				out = append(out, opcode)
				pc++
				fixups = append(fixups, Fixup{Offset: int(instrStart + 1), Width: 2, Entry: entry})
				out = writeBigEndian16(out, 0)
				pc += 2

			case opMethodRefInt:
				tagByte := methodIntTag.get()
				idx := int(methodIntIdx.get())
				tag := TagMethodref
				if tagByte != 0 {
					tag = TagInterfaceMethodref
				}
				entry, err := pool.lookup(tag, idx)
				if err != nil {
					return nil, newReadError(KindTruncatedStream, "bc_methodref_int", buf.served(), buf.limit, "%v", err)
				}
				if tag == TagInterfaceMethodref && !owners[b].Version.atLeast(version8) {
					return nil, newReadError(KindOpcodeReferenceTagMismatch, "bc_methodref_int", buf.served(), buf.limit,
						"%s references an InterfaceMethodref in a pre-8.0 class (version %d.%d)",
						opcodeTable[opcode].mnemonic, owners[b].Version.Major, owners[b].Version.Minor)
				}
				instrStart := pc
				out = append(out, realOpcodeFor(opcode))
				pc++
				fixups = append(fixups, Fixup{Offset: int(instrStart + 1), Width: 2, Entry: entry})
				out = writeBigEndian16(out, 0)
				pc += 2

			default:
				instrStart := pc
				out = append(out, opcode)
				pc++

				switch kind {
				case opNone, opWide:
				case opByte:
					out = append(out, byte(byteOperand.get()))
					pc++
				case opShort:
					out = writeBigEndian16(out, shortOperand.get())
					pc += 2
				case opLocal:
					if wide {
						out = writeBigEndian16(out, localOperand.get())
						pc += 2
					} else {
						out = append(out, byte(localOperand.get()))
						pc++
					}
				case opLocalIncr:
					v := localIncrVar.get()
					if wide {
						out = writeBigEndian16(out, v)
						out = writeBigEndian16(out, shortOperand.get())
						pc += 4
					} else {
						out = append(out, byte(v), byte(localIncrConst.get()))
						pc += 2
					}
				case opBranch:
					out = writeBigEndian16(out, branchOperand.get())
					pc += 2
				case opBranchWide:
					out = writeBigEndian32(out, branchWideOperand.get())
					pc += 4
				case opClassRef:
					ref, err := classRefOperand.getRef()
					if err != nil {
						return nil, err
					}
					fixups = append(fixups, Fixup{Offset: int(instrStart + 1), Width: 2, Entry: ref})
					out = writeBigEndian16(out, 0)
					pc += 2
				case opInterfaceMethodRef:
					ref, err := ifaceRefOperand.getRef()
					if err != nil {
						return nil, err
					}
					fixups = append(fixups, Fixup{Offset: int(instrStart + 1), Width: 2, Entry: ref})
					argWords := 1
					if ref != nil && ref.NameType != nil {
						argWords += countDescriptorArgWords(ref.NameType.Descriptor.erasedUtf8())
					}
					out = writeBigEndian16(out, 0)
					out = append(out, byte(argWords), 0)
					pc += 4
				case opInvokeDynamicRef:
					ref, err := invokeDynOperand.getRef()
					if err != nil {
						return nil, err
					}
					fixups = append(fixups, Fixup{Offset: int(instrStart + 1), Width: 2, Entry: ref})
					out = writeBigEndian16(out, 0)
					out = append(out, 0, 0)
					pc += 4
				case opLdc:
					tag := ldcTag.get()
					idx := int(ldcIdx.get())
					entry, err := resolveLoadable(pool, tag, idx)
					if err != nil {
						return nil, err
					}
					// Narrow ldc's referent must land in the class's local
					// CP narrow-ldc region (spec.md §4.7, §4.10), so it is
					// tracked separately from the ordinary cpRefs walk.
					owners[b].ldcRefs = append(owners[b].ldcRefs, entry)
					fixups = append(fixups, Fixup{Offset: int(instrStart + 1), Width: 1, Entry: entry})
					out = append(out, 0)
					pc++
				case opLdcWide:
					tag := ldcWideTag.get()
					idx := int(ldcWideIdx.get())
					entry, err := resolveLoadable(pool, tag, idx)
					if err != nil {
						return nil, err
					}
					fixups = append(fixups, Fixup{Offset: int(instrStart + 1), Width: 2, Entry: entry})
					out = writeBigEndian16(out, 0)
					pc += 2
				case opMultiANewArray:
					ref, err := multiClassRef.getRef()
					if err != nil {
						return nil, err
					}
					dims := multiDims.get()
					fixups = append(fixups, Fixup{Offset: int(instrStart + 1), Width: 2, Entry: ref})
					out = writeBigEndian16(out, 0)
					out = append(out, dims)
					pc += 3
				case opTableSwitch:
					idx := countTableSwitchSeen(kinds, bidx-1, opTableSwitch)
					lo := tsLow.get()
					hi := tsHigh.get()
					def := tsDefault.get()
					pad := (4 - pc%4) % 4
					for p := int64(0); p < pad; p++ {
						out = append(out, 0)
					}
					pc += pad
					out = writeBigEndian32(out, def)
					pc += 4
					out = writeBigEndian32(out, lo)
					pc += 4
					out = writeBigEndian32(out, hi)
					pc += 4
					for t := 0; t < tsCounts[idx]; t++ {
						out = writeBigEndian32(out, tsTargets.get())
						pc += 4
					}
				case opLookupSwitch:
					npairs := int(lsNPairs.get())
					def := lsDefault.get()
					pad := (4 - pc%4) % 4
					for p := int64(0); p < pad; p++ {
						out = append(out, 0)
					}
					pc += pad
					out = writeBigEndian32(out, def)
					pc += 4
					out = writeBigEndian32(out, int64(npairs))
					pc += 4
					for t := 0; t < npairs; t++ {
						out = writeBigEndian32(out, lsKeys.get())
						pc += 4
						out = writeBigEndian32(out, lsTargets.get())
						pc += 4
					}
				}
			}
		}
		codeBytes[b] = out
		codeFixups[b] = fixups
	}

	handlerCounts := newIntBand("code_handler_count", CodingUnsigned)
	handlerCounts.expectLength(n)
	if err := handlerCounts.fill(buf); err != nil {
		return nil, err
	}
	hCounts := make([]int, n)
	totalHandlers := 0
	for i := 0; i < n; i++ {
		hCounts[i] = int(handlerCounts.get())
		totalHandlers += hCounts[i]
	}

	handlerStart := newIntBand("code_handler_start", handlerDeltaCoding)
	handlerLen := newIntBand("code_handler_len", CodingUnsigned)
	handlerTargetDelta := newIntBand("code_handler_target_delta", handlerDeltaCoding)
	handlerCatch := newRefBand("code_handler_catch", CodingUnsigned, TagClass, pool)
	handlerStart.expectLength(totalHandlers)
	handlerLen.expectLength(totalHandlers)
	handlerTargetDelta.expectLength(totalHandlers)
	handlerCatch.expectLength(totalHandlers)
	if err := handlerStart.fill(buf); err != nil {
		return nil, err
	}
	if err := handlerLen.fill(buf); err != nil {
		return nil, err
	}
	if err := handlerTargetDelta.fill(buf); err != nil {
		return nil, err
	}
	if err := handlerCatch.fill(buf); err != nil {
		return nil, err
	}

	codeHandlers := make([][]ExceptionHandler, n)
	for b := 0; b < n; b++ {
		handlers := make([]ExceptionHandler, hCounts[b])
		for k := 0; k < hCounts[b]; k++ {
			start := int(handlerStart.get())
			end := start + int(handlerLen.get())
			handlerPC := end + int(handlerTargetDelta.get())
			catchType, err := handlerCatch.getRef()
			if err != nil {
				return nil, err
			}
			handlers[k] = ExceptionHandler{CatchType: catchType, Start: start, End: end, HandlerPC: handlerPC}
		}
		codeHandlers[b] = handlers
	}

	_, codeAttrs, err := decodeAttributes(buf, registry, ctxCode, pool, n)
	if err != nil {
		return nil, err
	}

	out := make([]*Code, n)
	for b := 0; b < n; b++ {
		out[b] = &Code{
			MaxStack:   int(maxStack.get()),
			MaxLocals:  int(maxLocals.get()),
			Bytes:      codeBytes[b],
			Handlers:   codeHandlers[b],
			Fixups:     codeFixups[b],
			Attributes: codeAttrs[b],
		}
	}
	return out, nil
}

// countTableSwitchSeen counts how many opTableSwitch instructions occur
// in kinds[:upTo], used to index into the flat per-switch band slices
// during expansion.
func countTableSwitchSeen(kinds []opcodeKind, upTo int, want opcodeKind) int {
	n := 0
	for i := 0; i < upTo; i++ {
		if kinds[i] == want {
			n++
		}
	}
	return n
}
