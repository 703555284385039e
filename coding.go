// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import "fmt"

// Sign mode of a Coding, selecting how a decoded raw digit sequence maps to
// a signed value.
type Sign int

// Recognized sign modes. S=0 never needs a transform; S=1 and S=2 recover
// negative values from a coding whose raw digits are always non-negative.
const (
	// SignNone: the value is unsigned; the raw digit sum is the result.
	SignNone Sign = 0

	// SignZigzag: even raw values are non-negative (n = raw/2); odd raw
	// values are negative (n = -(raw+1)/2). Used for bands whose values
	// are small and roughly symmetric around zero (e.g. bytecode operand
	// deltas).
	SignZigzag Sign = 1

	// SignExcess: the raw value is biased by 1<<31; subtracting the bias
	// recovers the signed value. Used for bands whose values are mostly
	// non-negative but occasionally carry a small negative escape
	// (modeled after pack200's "excess" coding flavor).
	SignExcess Sign = 2
)

// excessBias is the bias subtracted to undo SignExcess encoding.
const excessBias = int64(1) << 31

// Coding is the (B, H, S, D) variable-byte integer representation
// described by spec.md §3: radix B, high-value cutoff H, sign mode S, and
// delta flag D. A Coding decodes one value from a sequence of raw bytes;
// the delta running-sum (D) is applied by IntBand across a whole column,
// not by Coding itself, since it is stateful across values rather than
// within one.
type Coding struct {
	B int  // radix: weight multiplier between successive continuation digits
	H int  // count of high byte values (out of 256) that signal continuation
	S Sign // sign mode
	D bool // delta-coded: band-level running sum, not applied here
}

// Canonical codings named the way pack200-derived tools commonly refer to
// them; any (B,H,S,D) tuple is legal, these are just the frequently-used
// ones the decoder assigns to its bands. band_headers overrides are read
// past and not applied.
var (
	CodingByte1    = Coding{B: 1, H: 1, S: SignNone, D: false}
	CodingUnsigned = Coding{B: 256, H: 1, S: SignNone, D: false}
	CodingSigned   = Coding{B: 256, H: 1, S: SignZigzag, D: false}
	CodingDelta5   = Coding{B: 32, H: 1, S: SignExcess, D: true}
)

func (c Coding) String() string {
	d := ""
	if c.D {
		d = "D"
	}
	return fmt.Sprintf("(B=%d,H=%d,S=%d%s)", c.B, c.H, c.S, d)
}

// continuationThreshold returns L, the byte value at and above which a
// coded byte signals "more digits follow". Bytes below L terminate the
// sequence.
func (c Coding) continuationThreshold() int64 {
	l := int64(256 - c.H)
	if l < 1 {
		l = 1
	}
	if l > 256 {
		l = 256
	}
	return l
}

// decodeRaw reads one coded integer from read, applying B/H but not the
// sign transform or delta accumulation.
func (c Coding) decodeRaw(read func() (byte, error)) (int64, error) {
	l := c.continuationThreshold()
	var value int64
	weight := int64(1)
	radix := int64(c.B)
	if radix <= 0 {
		radix = 1
	}
	for {
		b, err := read()
		if err != nil {
			return 0, err
		}
		v := int64(b)
		if v < l {
			value += v * weight
			return value, nil
		}
		value += (v - l) * weight
		weight *= radix
	}
}

// applySign converts a raw non-negative digit sum into the value the band
// actually carries, per c.S.
func (c Coding) applySign(raw int64) int64 {
	switch c.S {
	case SignZigzag:
		if raw%2 == 0 {
			return raw / 2
		}
		return -(raw + 1) / 2
	case SignExcess:
		return raw - excessBias
	default:
		return raw
	}
}

// decode reads and fully decodes one value (B/H digits plus sign), but
// does not apply delta accumulation.
func (c Coding) decode(read func() (byte, error)) (int64, error) {
	raw, err := c.decodeRaw(read)
	if err != nil {
		return 0, err
	}
	return c.applySign(raw), nil
}

// encodeRaw is the inverse of decodeRaw; it exists to build literal test
// fixtures and is not used by the decoder itself.
func (c Coding) encodeRaw(value int64) []byte {
	l := c.continuationThreshold()
	radix := int64(c.B)
	if radix <= 0 {
		radix = 1
	}
	var digits []int64
	remaining := value
	for {
		if remaining < l {
			digits = append(digits, remaining)
			break
		}
		digits = append(digits, remaining%radix+l)
		remaining /= radix
	}
	out := make([]byte, len(digits))
	for i, d := range digits {
		out[i] = byte(d)
	}
	return out
}

// encodeSigned applies the inverse sign transform then encodes.
func (c Coding) encodeSigned(value int64) []byte {
	var raw int64
	switch c.S {
	case SignZigzag:
		if value >= 0 {
			raw = value * 2
		} else {
			raw = -value*2 - 1
		}
	case SignExcess:
		raw = value + excessBias
	default:
		raw = value
	}
	return c.encodeRaw(raw)
}
