// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// u encodes v as an unsigned band value; every fixture below keeps values
// well under CodingUnsigned's 255 continuation threshold, so each call
// always yields exactly one byte.
func u(v int64) byte { return CodingUnsigned.encodeRaw(v)[0] }

// header builds the fixed archive_header_0/archive_header_1 prefix common
// to every fixture in this file: version 52.0 (8.0), no option bits set, no
// files, no inner classes, default version 52.0, classCount classes, and
// the 8 core constant-pool counts (Utf8, String, Class, Signature,
// NameAndType, Fieldref, Methodref, InterfaceMethodref) taken from counts.
func header(classCount int, counts [8]int) []byte {
	var b []byte
	b = append(b, ArchiveMagic[:]...)
	b = append(b, u(0), u(52), u(0)) // minor, major, options
	b = append(b, u(0))              // file_count
	b = append(b, u(0))              // ic_count
	b = append(b, u(52), u(0))       // default_class_major, default_class_minor
	b = append(b, u(int64(classCount)))
	for _, c := range counts {
		b = append(b, u(int64(c)))
	}
	return b
}

func TestNewDecodesMinimalEmptyArchive(t *testing.T) {
	raw := header(0, [8]int{0, 0, 0, 0, 0, 0, 0, 0})

	pkg, err := New(bytes.NewReader(raw), nil)
	require.NoError(t, err)
	require.Empty(t, pkg.Classes)
	require.Empty(t, pkg.Files)
	require.Empty(t, pkg.InnerClasses)
	require.Empty(t, pkg.Anomalies)
	require.Equal(t, classVersion{Major: 52, Minor: 0}, pkg.DefaultVersion)
}

// TestNewDecodesSingleUtf8BackedClass builds a 2-entry Utf8 pool
// (the conventional empty string plus "Foo"), a 1-entry Class pool naming
// it, and one class with no super, no interfaces, no members, and no
// attributes, end to end through New.
func TestNewDecodesSingleUtf8BackedClass(t *testing.T) {
	var raw []byte
	raw = append(raw, header(1, [8]int{2, 0, 1, 0, 0, 0, 0, 0})...)

	// Utf8 pool: suffix=[3] (len("Foo")), no big-suffix escape,
	// chars=['F','o','o'], no prefix band (count-2 == 0).
	raw = append(raw, u(3))
	raw = append(raw, u('F'), u('o'), u('o'))

	// Class pool: one entry referencing Utf8 index 1 ("Foo"), biased by
	// one (RefBand.getRef's null/bias convention).
	raw = append(raw, u(2))

	// readClasses: class_this -> Class index 0 (raw 1, biased), null
	// super, zero interfaces.
	raw = append(raw, u(1)) // class_this
	raw = append(raw, u(0)) // class_super (null)
	raw = append(raw, u(0)) // class_interface_count

	// readMembers(fields): zero fields.
	raw = append(raw, u(0))
	// readMembers(methods): zero methods.
	raw = append(raw, u(0))

	// Class-context flags: flags_lo, flags_hi, both zero (no attributes,
	// no overflow).
	raw = append(raw, u(0), u(0))

	pkg, err := New(bytes.NewReader(raw), nil)
	require.NoError(t, err)
	require.Len(t, pkg.Classes, 1)

	c := pkg.Classes[0]
	require.Equal(t, "Foo", c.ThisName)
	require.Nil(t, c.Super)
	require.Empty(t, c.SuperName)
	require.Empty(t, c.Interfaces)
	require.Empty(t, c.Fields)
	require.Empty(t, c.Methods)
	require.Empty(t, c.Attributes)
	require.Equal(t, uint32(0), c.AccessFlags)

	// A classfile stub is synthesized even with FileCount == 0.
	require.NotNil(t, c.File)
	require.True(t, c.File.IsClassStub)

	// Component L's local pool reaches This's Class entry and its
	// backing Utf8 "Foo".
	require.NotNil(t, c.LocalPool)
	require.Greater(t, c.LocalPool.IndexOf(c.This), 0)

	// A class with no fields and no methods is a recorded anomaly, not a
	// decode failure.
	require.Len(t, pkg.Anomalies, 1)
}
