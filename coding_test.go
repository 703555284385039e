// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func readerOf(b []byte) func() (byte, error) {
	i := 0
	return func() (byte, error) {
		if i >= len(b) {
			return 0, ErrOutsideBoundary
		}
		v := b[i]
		i++
		return v, nil
	}
}

func TestCodingRoundTripUnsigned(t *testing.T) {
	for _, v := range []int64{0, 1, 255, 256, 65535, 1 << 20} {
		enc := CodingUnsigned.encodeRaw(v)
		got, err := CodingUnsigned.decode(readerOf(enc))
		require.NoError(t, err)
		require.Equal(t, v, got, "value %d", v)
	}
}

func TestCodingRoundTripSignedZigzag(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 42, -42, 1000, -1000} {
		enc := CodingSigned.encodeSigned(v)
		got, err := CodingSigned.decode(readerOf(enc))
		require.NoError(t, err)
		require.Equal(t, v, got, "value %d", v)
	}
}

func TestCodingByte1IsOneByteNoEscape(t *testing.T) {
	enc := CodingByte1.encodeRaw(0)
	require.Len(t, enc, 1)
}

func TestCodingApplySignExcess(t *testing.T) {
	c := Coding{B: 32, H: 1, S: SignExcess, D: false}
	require.Equal(t, int64(0), c.applySign(excessBias))
	require.Equal(t, int64(-1), c.applySign(excessBias-1))
}

func TestCodingStringIncludesDeltaFlag(t *testing.T) {
	require.Contains(t, CodingDelta5.String(), "D")
	require.NotContains(t, CodingUnsigned.String(), "D")
}
