// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// s encodes v as a CodingSigned (zigzag) band value; every fixture below
// keeps |v| well under the threshold that would require a second byte.
func s(v int64) byte { return CodingSigned.encodeSigned(v)[0] }

// TestDecodeCodeBodiesSelfLinkersWideAndLdc builds one method's Code body
// that exercises, in a single pass: a wide-prefixed iinc (local index
// written as 2 bytes, constant re-routed through the bc_short band), a goto_w 4-byte
// branch, a self-linked field reference against this class with a leading
// aload_0, a self-linked method reference against the superclass without
// an aload_0, an invokestatic_int resolving an InterfaceMethodref on a
// version-8.0 owner, a narrow ldc (String), and a wide ldc_w (Class).
func TestDecodeCodeBodiesSelfLinkersWideAndLdc(t *testing.T) {
	pool := newConstantPool()

	utf8Foo := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "Foo"})
	utf8Bar := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "Bar"})
	utf8Runnable := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "Runnable"})
	utf8Hello := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "hello"})
	utf8Run := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "run"})
	utf8RunDesc := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "()V"})
	utf8Counter := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "counter"})
	utf8CounterDesc := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "I"})

	classFoo := pool.internEntry(&cpEntry{Tag: TagClass, Ref: utf8Foo})      // Class idx0
	classBar := pool.internEntry(&cpEntry{Tag: TagClass, Ref: utf8Bar})      // Class idx1
	_ = pool.internEntry(&cpEntry{Tag: TagClass, Ref: utf8Runnable})         // Class idx2

	stringHello := pool.internEntry(&cpEntry{Tag: TagString, Ref: utf8Hello}) // String idx0

	ntRun := pool.internEntry(&cpEntry{Tag: TagNameAndType, Name: utf8Run, Descriptor: utf8RunDesc})         // NT idx0
	ntCounter := pool.internEntry(&cpEntry{Tag: TagNameAndType, Name: utf8Counter, Descriptor: utf8CounterDesc}) // NT idx1

	classRunnable, err := pool.lookup(TagClass, 2)
	require.NoError(t, err)
	ifaceMethodRef := pool.internEntry(&cpEntry{Tag: TagInterfaceMethodref, ClassRef: classRunnable, NameType: ntRun}) // IMR idx0

	owners := []*Class{{This: classFoo, Super: classBar, Version: version8}}

	var raw []byte
	raw = append(raw, u(2), u(6), u(8)) // maxStack, maxLocals, instrCount
	raw = append(raw, 196, 132, 200, 180, 183, 203, 18, 19) // bc_codes

	// First wave: byteOperand, shortOperand, localOperand, localIncrVar,
	// localIncrConst, branchOperand, branchWideOperand, classRefOperand,
	// ifaceRefOperand, invokeDynOperand, ldcTag, ldcIdx, ldcWideTag,
	// ldcWideIdx, multiClassRef, multiDims, methodSelfFlag, fieldSelfFlag,
	// methodIntTag, methodIntIdx.
	raw = append(raw, s(100))    // bc_short: wide-iinc's constant
	raw = append(raw, u(5))      // bc_iinc_local: iinc's local var index
	raw = append(raw, s(16))     // bc_branch_w: goto_w offset
	raw = append(raw, 4)         // bc_ldc_tag: loadableString
	raw = append(raw, u(0))      // bc_ldc_idx: String idx0
	raw = append(raw, 5)         // bc_ldcw_tag: loadableClass
	raw = append(raw, u(1))      // bc_ldcw_idx: Class idx1 (Bar)
	raw = append(raw, 1)         // bc_method_selflinker: self-linked
	raw = append(raw, 1)         // bc_field_selflinker: self-linked
	raw = append(raw, 1)         // bc_methodref_int_tag: InterfaceMethodref
	raw = append(raw, u(0))      // bc_methodref_int_idx

	// Second wave: methodRefExplicit, methodSelfNT, methodSelfSuper,
	// methodSelfAload, fieldRefExplicit, fieldSelfNT, fieldSelfSuper,
	// fieldSelfAload.
	raw = append(raw, u(1)) // bc_method_self_nt: NT idx0 ("run:()V"), biased
	raw = append(raw, 1)    // bc_method_self_super: use the superclass
	raw = append(raw, 0)    // bc_method_self_aload: no leading aload_0
	raw = append(raw, u(2)) // bc_field_self_nt: NT idx1 ("counter:I"), biased
	raw = append(raw, 0)    // bc_field_self_super: use this class
	raw = append(raw, 1)    // bc_field_self_aload: prepend aload_0

	raw = append(raw, u(0)) // code_handler_count: no handlers
	raw = append(raw, u(0)) // Code flags_lo: no Code attributes

	buf := newLimitedBuffer(bytes.NewReader(raw))
	registry := newLayoutRegistry()

	codes, err := decodeCodeBodies(buf, pool, registry, owners)
	require.NoError(t, err)
	require.Len(t, codes, 1)

	code := codes[0]
	require.Equal(t, 2, code.MaxStack)
	require.Equal(t, 6, code.MaxLocals)
	require.Empty(t, code.Handlers)

	want := []byte{
		196, 132, 0, 5, 0, 100, // wide; iinc local=5 const=100 (2-byte each)
		200, 0, 0, 0, 16, // goto_w +16
		42, 180, 0, 0, // aload_0; getfield <fixup>
		183, 0, 0, // invokespecial <fixup>
		184, 0, 0, // invokestatic (from invokestatic_int) <fixup>
		18, 0, // ldc <fixup>
		19, 0, 0, // ldc_w <fixup>
	}
	require.Equal(t, want, code.Bytes)

	require.Len(t, code.Fixups, 5)
	require.Equal(t, Fixup{Offset: 13, Width: 2, Entry: code.Fixups[0].Entry}, code.Fixups[0])
	require.Equal(t, Fixup{Offset: 16, Width: 2, Entry: code.Fixups[1].Entry}, code.Fixups[1])
	require.Equal(t, Fixup{Offset: 19, Width: 2, Entry: code.Fixups[2].Entry}, code.Fixups[2])
	require.Equal(t, Fixup{Offset: 22, Width: 1, Entry: code.Fixups[3].Entry}, code.Fixups[3])
	require.Equal(t, Fixup{Offset: 24, Width: 2, Entry: code.Fixups[4].Entry}, code.Fixups[4])

	// getfield's fixup: self-linked against this class (Foo), field NT.
	fieldEntry := code.Fixups[0].Entry
	require.Equal(t, TagFieldref, fieldEntry.Tag)
	require.Same(t, classFoo, fieldEntry.ClassRef)
	require.Same(t, ntCounter, fieldEntry.NameType)

	// invokespecial's fixup: self-linked against the superclass (Bar).
	methodEntry := code.Fixups[1].Entry
	require.Equal(t, TagMethodref, methodEntry.Tag)
	require.Same(t, classBar, methodEntry.ClassRef)
	require.Same(t, ntRun, methodEntry.NameType)

	// invokestatic_int's fixup: the pre-populated InterfaceMethodref.
	require.Same(t, ifaceMethodRef, code.Fixups[2].Entry)

	// ldc's fixup: the String entry, also recorded in the owner's
	// narrow-ldc region.
	require.Same(t, stringHello, code.Fixups[3].Entry)
	require.Equal(t, []*cpEntry{stringHello}, owners[0].ldcRefs)

	// ldc_w's fixup: the Class entry (Bar).
	require.Same(t, classBar, code.Fixups[4].Entry)
}

// TestDecodeCodeBodiesInvokeStaticIntRejectsPreVersion8 exercises
// KindOpcodeReferenceTagMismatch: an invokestatic_int referencing an
// InterfaceMethodref is only legal when the owning class is version 8.0
// or later.
func TestDecodeCodeBodiesInvokeStaticIntRejectsPreVersion8(t *testing.T) {
	pool := newConstantPool()
	utf8Owner := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "Owner"})
	utf8Iface := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "Iface"})
	utf8Run := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "run"})
	utf8RunDesc := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "()V"})
	classOwner := pool.internEntry(&cpEntry{Tag: TagClass, Ref: utf8Owner})
	classIface := pool.internEntry(&cpEntry{Tag: TagClass, Ref: utf8Iface})
	nt := pool.internEntry(&cpEntry{Tag: TagNameAndType, Name: utf8Run, Descriptor: utf8RunDesc})
	pool.internEntry(&cpEntry{Tag: TagInterfaceMethodref, ClassRef: classIface, NameType: nt})

	owners := []*Class{{This: classOwner, Version: classVersion{Major: 51, Minor: 0}}}

	var raw []byte
	raw = append(raw, u(1), u(1), u(1)) // maxStack, maxLocals, instrCount
	raw = append(raw, 203)              // bc_codes: invokestatic_int
	raw = append(raw, 1)                // bc_methodref_int_tag: InterfaceMethodref
	raw = append(raw, u(0))             // bc_methodref_int_idx

	buf := newLimitedBuffer(bytes.NewReader(raw))
	registry := newLayoutRegistry()

	_, err := decodeCodeBodies(buf, pool, registry, owners)
	require.Error(t, err)
	require.True(t, errors.Is(err, &ReadError{Kind: KindOpcodeReferenceTagMismatch}))
}
