// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

// opcodeKind classifies how an instruction's operand bytes are sized and
// where its value comes from, driving both the sizing and expansion
// passes of the bytecode decoder (component J).
type opcodeKind int

const (
	opNone             opcodeKind = iota // no operand
	opByte                               // one raw byte (bipush, newarray's atype)
	opShort                              // one raw big-endian short (sipush)
	opLocal                              // one local-variable-slot byte (two under a wide prefix)
	opLocalIncr                          // iinc: local-variable byte + signed byte constant
	opBranch                             // signed 2-byte branch offset
	opBranchWide                         // signed 4-byte branch offset (goto_w, jsr_w)
	opClassRef                           // 2-byte ref, resolves against TagClass
	opFieldRef                           // 2-byte ref, resolves against TagFieldref (or self-linked)
	opMethodRef                          // 2-byte ref, resolves against TagMethodref (or self-linked)
	opInterfaceMethodRef                 // 2-byte ref + 2 trailing bytes (count, 0)
	opInvokeDynamicRef                   // 2-byte ref + 2 trailing zero bytes
	opLdc                                // narrow (1-byte index) loadable constant
	opLdcWide                            // wide (2-byte index) loadable constant
	opMultiANewArray                     // 2-byte class ref + 1-byte dimension count
	opTableSwitch
	opLookupSwitch
	opWide          // prefixes the next local-slot/iinc instruction, widening its operand
	opMethodRefInt  // invokestatic_int/invokespecial_int: a method ref that may carry an InterfaceMethodref when the owning archive is version >= 8.0
)

type opcodeInfo struct {
	mnemonic string
	kind     opcodeKind
}

var opcodeTable [256]opcodeInfo

func op(code byte, mnemonic string, kind opcodeKind) {
	opcodeTable[code] = opcodeInfo{mnemonic: mnemonic, kind: kind}
}

func init() {
	op(0, "nop", opNone)
	op(1, "aconst_null", opNone)
	op(2, "iconst_m1", opNone)
	op(3, "iconst_0", opNone)
	op(4, "iconst_1", opNone)
	op(5, "iconst_2", opNone)
	op(6, "iconst_3", opNone)
	op(7, "iconst_4", opNone)
	op(8, "iconst_5", opNone)
	op(9, "lconst_0", opNone)
	op(10, "lconst_1", opNone)
	op(11, "fconst_0", opNone)
	op(12, "fconst_1", opNone)
	op(13, "fconst_2", opNone)
	op(14, "dconst_0", opNone)
	op(15, "dconst_1", opNone)
	op(16, "bipush", opByte)
	op(17, "sipush", opShort)
	op(18, "ldc", opLdc)
	op(19, "ldc_w", opLdcWide)
	op(20, "ldc2_w", opLdcWide)
	op(21, "iload", opLocal)
	op(22, "lload", opLocal)
	op(23, "fload", opLocal)
	op(24, "dload", opLocal)
	op(25, "aload", opLocal)
	for i, name := range []string{"iload_0", "iload_1", "iload_2", "iload_3"} {
		op(byte(26+i), name, opNone)
	}
	for i, name := range []string{"lload_0", "lload_1", "lload_2", "lload_3"} {
		op(byte(30+i), name, opNone)
	}
	for i, name := range []string{"fload_0", "fload_1", "fload_2", "fload_3"} {
		op(byte(34+i), name, opNone)
	}
	for i, name := range []string{"dload_0", "dload_1", "dload_2", "dload_3"} {
		op(byte(38+i), name, opNone)
	}
	for i, name := range []string{"aload_0", "aload_1", "aload_2", "aload_3"} {
		op(byte(42+i), name, opNone)
	}
	op(46, "iaload", opNone)
	op(47, "laload", opNone)
	op(48, "faload", opNone)
	op(49, "daload", opNone)
	op(50, "aaload", opNone)
	op(51, "baload", opNone)
	op(52, "caload", opNone)
	op(53, "saload", opNone)
	op(54, "istore", opLocal)
	op(55, "lstore", opLocal)
	op(56, "fstore", opLocal)
	op(57, "dstore", opLocal)
	op(58, "astore", opLocal)
	for i, name := range []string{"istore_0", "istore_1", "istore_2", "istore_3"} {
		op(byte(59+i), name, opNone)
	}
	for i, name := range []string{"lstore_0", "lstore_1", "lstore_2", "lstore_3"} {
		op(byte(63+i), name, opNone)
	}
	for i, name := range []string{"fstore_0", "fstore_1", "fstore_2", "fstore_3"} {
		op(byte(67+i), name, opNone)
	}
	for i, name := range []string{"dstore_0", "dstore_1", "dstore_2", "dstore_3"} {
		op(byte(71+i), name, opNone)
	}
	for i, name := range []string{"astore_0", "astore_1", "astore_2", "astore_3"} {
		op(byte(75+i), name, opNone)
	}
	op(79, "iastore", opNone)
	op(80, "lastore", opNone)
	op(81, "fastore", opNone)
	op(82, "dastore", opNone)
	op(83, "aastore", opNone)
	op(84, "bastore", opNone)
	op(85, "castore", opNone)
	op(86, "sastore", opNone)
	op(87, "pop", opNone)
	op(88, "pop2", opNone)
	op(89, "dup", opNone)
	op(90, "dup_x1", opNone)
	op(91, "dup_x2", opNone)
	op(92, "dup2", opNone)
	op(93, "dup2_x1", opNone)
	op(94, "dup2_x2", opNone)
	op(95, "swap", opNone)
	names3 := []string{"iadd", "ladd", "fadd", "dadd", "isub", "lsub", "fsub", "dsub",
		"imul", "lmul", "fmul", "dmul", "idiv", "ldiv", "fdiv", "ddiv",
		"irem", "lrem", "frem", "drem", "ineg", "lneg", "fneg", "dneg",
		"ishl", "lshl", "ishr", "lshr", "iushr", "lushr", "iand", "land",
		"ior", "lor", "ixor", "lxor"}
	for i, name := range names3 {
		op(byte(96+i), name, opNone)
	}
	op(132, "iinc", opLocalIncr)
	convNames := []string{"i2l", "i2f", "i2d", "l2i", "l2f", "l2d", "f2i", "f2l",
		"f2d", "d2i", "d2l", "d2f", "i2b", "i2c", "i2s"}
	for i, name := range convNames {
		op(byte(133+i), name, opNone)
	}
	cmpNames := []string{"lcmp", "fcmpl", "fcmpg", "dcmpl", "dcmpg"}
	for i, name := range cmpNames {
		op(byte(148+i), name, opNone)
	}
	ifNames := []string{"ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle",
		"if_icmpeq", "if_icmpne", "if_icmplt", "if_icmpge", "if_icmpgt", "if_icmple",
		"if_acmpeq", "if_acmpne", "goto", "jsr"}
	for i, name := range ifNames {
		op(byte(153+i), name, opBranch)
	}
	op(169, "ret", opLocal)
	op(170, "tableswitch", opTableSwitch)
	op(171, "lookupswitch", opLookupSwitch)
	op(172, "ireturn", opNone)
	op(173, "lreturn", opNone)
	op(174, "freturn", opNone)
	op(175, "dreturn", opNone)
	op(176, "areturn", opNone)
	op(177, "return", opNone)
	op(178, "getstatic", opFieldRef)
	op(179, "putstatic", opFieldRef)
	op(180, "getfield", opFieldRef)
	op(181, "putfield", opFieldRef)
	op(182, "invokevirtual", opMethodRef)
	op(183, "invokespecial", opMethodRef)
	op(184, "invokestatic", opMethodRef)
	op(185, "invokeinterface", opInterfaceMethodRef)
	op(186, "invokedynamic", opInvokeDynamicRef)
	op(187, "new", opClassRef)
	op(188, "newarray", opByte)
	op(189, "anewarray", opClassRef)
	op(190, "arraylength", opNone)
	op(191, "athrow", opNone)
	op(192, "checkcast", opClassRef)
	op(193, "instanceof", opClassRef)
	op(194, "monitorenter", opNone)
	op(195, "monitorexit", opNone)
	op(196, "wide", opWide)
	op(197, "multianewarray", opMultiANewArray)
	op(198, "ifnull", opBranch)
	op(199, "ifnonnull", opBranch)
	op(200, "goto_w", opBranchWide)
	op(201, "jsr_w", opBranchWide)

	// invokespecial_int/invokestatic_int: symbolic superinstruction flavors
	// occupying the byte range the standard JVM opcode set leaves unused
	// above jsr_w, matching how this archive format's bc_codes stream
	// distinguishes "this invokestatic/invokespecial may reference an
	// InterfaceMethodref" from the plain invokestatic/invokespecial
	// opcodes at 183/184 (spec.md §4.8). Both emit the standard opcode
	// byte (183/184) into the output class file; only the archive-side
	// encoding differs.
	op(202, "invokespecial_int", opMethodRefInt)
	op(203, "invokestatic_int", opMethodRefInt)
}

// wideable reports whether kind can legally follow a wide prefix.
func (k opcodeKind) wideable() bool {
	return k == opLocal || k == opLocalIncr
}

// realOpcodeFor maps a symbolic archive-side opcode byte to the standard
// JVM opcode byte the expanded class file actually carries. Only the
// invokestatic_int/invokespecial_int superinstructions differ from their
// archive-side encoding (spec.md §4.8); everything else is its own
// output byte.
func realOpcodeFor(opcode byte) byte {
	switch opcode {
	case 202:
		return 183 // invokespecial_int -> invokespecial
	case 203:
		return 184 // invokestatic_int -> invokestatic
	default:
		return opcode
	}
}

// aload0Opcode is the standard JVM "aload_0" opcode byte, emitted ahead
// of a self-linked field/method reference whose aload flag is set
// (spec.md §4.8).
const aload0Opcode = 42

// invokeFamily reports whether kind is a non-interface method invocation:
// invokevirtual/invokespecial/invokestatic (opMethodRef) or their _int
// siblings (opMethodRefInt), but not invokeinterface. Of these, only
// opMethodRef reads the method self-linker bands; opMethodRefInt reads an
// explicit tag and index.
func (k opcodeKind) invokeFamily() bool {
	return k == opMethodRef || k == opMethodRefInt
}
