// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternEntryDeduplicatesByStructuralKey(t *testing.T) {
	pool := newConstantPool()
	a := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "foo"})
	b := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "foo"})
	c := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "bar"})

	require.Same(t, a, b)
	require.NotSame(t, a, c)
	require.Equal(t, 2, pool.count(TagUtf8))
}

func TestInternEntryAssignsSequentialOutputIndex(t *testing.T) {
	pool := newConstantPool()
	a := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "a"})
	b := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "b"})

	require.Equal(t, 0, a.outputIndex)
	require.Equal(t, 1, b.outputIndex)
}

func TestLookupOutOfRange(t *testing.T) {
	pool := newConstantPool()
	pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "only"})

	_, err := pool.lookup(TagUtf8, 5)
	require.Error(t, err)
}

func TestOutputOrderLessBreaksTiesOnTagBeforeIndex(t *testing.T) {
	utf8 := &cpEntry{Tag: TagUtf8, outputIndex: 3}
	cls := &cpEntry{Tag: TagClass, outputIndex: 3}

	require.True(t, outputOrderLess(utf8, cls, true, true))
	require.False(t, outputOrderLess(cls, utf8, true, true))
}

func TestOutputOrderLessIndexedBeforeUnindexed(t *testing.T) {
	indexed := &cpEntry{Tag: TagUtf8, outputIndex: 100}
	synthetic := &cpEntry{Tag: TagUtf8, Str: "z"}

	require.True(t, outputOrderLess(indexed, synthetic, true, false))
	require.False(t, outputOrderLess(synthetic, indexed, false, true))
}

func TestIsDoubleWord(t *testing.T) {
	require.True(t, TagLong.isDoubleWord())
	require.True(t, TagDouble.isDoubleWord())
	require.False(t, TagInteger.isDoubleWord())
}

func TestErasedUtf8ForSignatureUsesForm(t *testing.T) {
	form := &cpEntry{Tag: TagUtf8, Str: "Ljava/lang/Object;"}
	sig := &cpEntry{Tag: TagSignature, Form: form}
	require.Equal(t, "Ljava/lang/Object;", sig.erasedUtf8())
}
