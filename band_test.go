// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteBandFillAndGet(t *testing.T) {
	src := newLimitedBuffer(bytes.NewReader([]byte{10, 20, 30}))
	b := newByteBand("test_band")
	b.expectLength(3)
	require.NoError(t, b.fill(src))

	require.Equal(t, byte(10), b.get())
	require.Equal(t, byte(20), b.get())
	require.Equal(t, byte(30), b.get())
	require.NoError(t, b.doneDisbursing())
}

func TestByteBandResetForSecondPass(t *testing.T) {
	src := newLimitedBuffer(bytes.NewReader([]byte{1, 2}))
	b := newByteBand("test_band")
	b.expectLength(2)
	require.NoError(t, b.fill(src))

	require.Equal(t, byte(1), b.get())
	b.resetForSecondPass()
	require.Equal(t, byte(1), b.get())
	require.Equal(t, byte(2), b.get())
}

func TestByteBandDoneDisbursingFailsOnPartialDrain(t *testing.T) {
	src := newLimitedBuffer(bytes.NewReader([]byte{1, 2}))
	b := newByteBand("test_band")
	b.expectLength(2)
	require.NoError(t, b.fill(src))
	b.get()
	require.Error(t, b.doneDisbursing())
}

func TestIntBandDeltaAccumulates(t *testing.T) {
	coding := Coding{B: 256, H: 1, S: SignNone, D: true}
	src := newLimitedBuffer(bytes.NewReader([]byte{5, 3, 10}))
	b := newIntBand("test_delta", coding)
	b.expectLength(3)
	require.NoError(t, b.fill(src))

	require.Equal(t, int64(5), b.get())
	require.Equal(t, int64(8), b.get())
	require.Equal(t, int64(18), b.get())
}

func TestRefBandNullIsZero(t *testing.T) {
	pool := newConstantPool()
	entry := pool.internEntry(&cpEntry{Tag: TagUtf8, Str: "hello"})

	src := newLimitedBuffer(bytes.NewReader([]byte{0, 1}))
	rb := newRefBand("test_ref", CodingUnsigned, TagUtf8, pool)
	rb.expectLength(2)
	require.NoError(t, rb.fill(src))

	nilRef, err := rb.getRef()
	require.NoError(t, err)
	require.Nil(t, nilRef)

	ref, err := rb.getRef()
	require.NoError(t, err)
	require.Same(t, entry, ref)
}

func TestMultiBandResetsAllChildren(t *testing.T) {
	src := newLimitedBuffer(bytes.NewReader([]byte{1, 2}))
	a := newByteBand("a")
	a.expectLength(1)
	b := newByteBand("b")
	b.expectLength(1)
	require.NoError(t, a.fill(src))
	require.NoError(t, b.fill(src))

	a.get()
	b.get()

	mb := newMultiBand("group")
	mb.add(a)
	mb.add(b)
	mb.resetForSecondPass()

	require.Equal(t, byte(1), a.get())
	require.Equal(t, byte(2), b.get())
}
