// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLimitedBufferReadByteTracksServed(t *testing.T) {
	buf := newLimitedBuffer(bytes.NewReader([]byte{1, 2, 3}))
	for i, want := range []byte{1, 2, 3} {
		v, err := buf.readByte()
		require.NoError(t, err)
		require.Equal(t, want, v)
		require.Equal(t, int64(i+1), buf.served())
	}
	_, err := buf.readByte()
	require.ErrorIs(t, err, io.EOF)
}

func TestLimitedBufferHonorsReadLimit(t *testing.T) {
	buf := newLimitedBuffer(bytes.NewReader([]byte{1, 2, 3, 4}))
	buf.setReadLimit(2)
	require.False(t, buf.atLimit())

	_, err := buf.readByte()
	require.NoError(t, err)
	_, err = buf.readByte()
	require.NoError(t, err)

	require.True(t, buf.atLimit())
	_, err = buf.readByte()
	require.ErrorIs(t, err, io.EOF)
}

func TestLimitedBufferReadRejectsOversizedRequest(t *testing.T) {
	buf := newLimitedBuffer(bytes.NewReader([]byte{1, 2, 3}))
	buf.setReadLimit(1)
	_, err := buf.read(make([]byte, 2))
	require.ErrorIs(t, err, ErrOutsideBoundary)
}

func TestLimitedBufferSkipUnsupported(t *testing.T) {
	buf := newLimitedBuffer(bytes.NewReader([]byte{1, 2, 3}))
	err := buf.skip(1)
	require.Error(t, err)
	var rerr *ReadError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, KindIllegalSkip, rerr.Kind)
}
