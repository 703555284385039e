// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import (
	"strconv"

	"golang.org/x/text/encoding/unicode"
)

// readUtf8Pool decodes count Utf8 constant-pool entries from the five
// bands spec.md §4.4 describes, interning each into pool. count includes
// the conventional empty string at index 0.
func readUtf8Pool(buf *limitedBuffer, pool *constantPool, count int) error {
	if count <= 0 {
		return nil
	}

	prefix := newIntBand("Utf8_prefix", CodingUnsigned)
	suffix := newIntBand("Utf8_suffix", CodingUnsigned)
	bigSuffix := newIntBand("Utf8_big_suffix", CodingUnsigned)

	if count > 2 {
		prefix.expectLength(count - 2)
	}
	if count > 1 {
		suffix.expectLength(count - 1)
	}

	if err := suffix.fill(buf); err != nil {
		return err
	}

	// Sizing pass: count how many strings take the big-suffix escape,
	// and how many UTF-16 code units the plain "chars" band must carry.
	bigCount := 0
	totalChars := 0
	for _, s := range suffix.allValues() {
		if s == 0 {
			bigCount++
		} else {
			totalChars += int(s)
		}
	}

	bigSuffix.expectLength(bigCount)
	if err := bigSuffix.fill(buf); err != nil {
		return err
	}

	chars := newIntBand("Utf8_chars", CodingUnsigned)
	chars.expectLength(totalChars)
	if err := chars.fill(buf); err != nil {
		return err
	}

	// The prefix band follows the shared chars band. One Utf8_big_<i> band
	// per big-suffix string is then read, in declaration order, during the
	// assembly loop below (spec.md §4.4).
	bigIdx := 0
	if err := prefix.fill(buf); err != nil {
		return err
	}

	// Second pass over suffix (rewind cursor only, no re-read) drives
	// assembly; prefix/suffix/bigSuffix are all already fully
	// materialized, matching spec.md §4.4's "two passes ... required".
	suffix.resetForSecondPass()

	strs := make([]string, count)
	strs[0] = ""

	decoder := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	decodeUnits := func(units []uint16) (string, error) {
		raw := make([]byte, len(units)*2)
		for i, u := range units {
			raw[i*2] = byte(u >> 8)
			raw[i*2+1] = byte(u)
		}
		out, err := decoder.Bytes(raw)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}

	charsCursor := 0
	for i := 1; i < count; i++ {
		var pfx int64
		if i >= 2 {
			pfx = prefix.get()
		}
		sfx := suffix.get()

		scratch := make([]uint16, 0, int(pfx)+int(sfx))
		prevUnits := utf16Units(strs[i-1])
		if int(pfx) > len(prevUnits) {
			return newReadError(KindTruncatedStream, "Utf8_prefix", buf.served(), buf.limit,
				"prefix %d exceeds previous string length %d", pfx, len(prevUnits))
		}
		scratch = append(scratch, prevUnits[:pfx]...)

		if sfx == 0 {
			// Big-suffix escape: read a dedicated band of true length
			// bigSuffix[bigIdx].
			n := int(bigSuffix.get())
			band := newIntBand("Utf8_big_"+strconv.Itoa(bigIdx), CodingUnsigned)
			band.expectLength(n)
			if err := band.fill(buf); err != nil {
				return err
			}
			for _, v := range band.allValues() {
				scratch = append(scratch, uint16(v))
			}
			bigIdx++
		} else {
			for k := 0; k < int(sfx); k++ {
				scratch = append(scratch, uint16(chars.values[charsCursor]))
				charsCursor++
			}
		}

		s, err := decodeUnits(scratch)
		if err != nil {
			return newReadError(KindTruncatedStream, "Utf8_chars", buf.served(), buf.limit,
				"decoding code units for string %d: %v", i, err)
		}
		strs[i] = s
	}

	if err := suffix.doneDisbursing(); err != nil {
		return err
	}
	if err := bigSuffix.doneDisbursing(); err != nil {
		return err
	}
	if err := chars.doneDisbursing(); err != nil {
		return err
	}
	if err := prefix.doneDisbursing(); err != nil {
		return err
	}

	for _, s := range strs {
		pool.internEntry(&cpEntry{Tag: TagUtf8, Str: s})
	}
	return nil
}

// utf16Units re-encodes a decoded Go string back into UTF-16 code units,
// needed to take a prefix of it when assembling the next string; this
// mirrors the scratch-buffer reuse spec.md §4.4 describes, without
// depending on a fixed-capacity buffer the way the original does.
func utf16Units(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for _, r := range s {
		if r1, r2 := utf16Encode(r); r2 == 0 {
			units = append(units, r1)
		} else {
			units = append(units, r1, r2)
		}
	}
	return units
}

// utf16Encode returns the UTF-16 code unit(s) for r; r2 is 0 when r fits
// in a single BMP unit.
func utf16Encode(r rune) (uint16, uint16) {
	const (
		surr1 = 0xd800
		surr2 = 0xdc00
		surr3 = 0xe000
	)
	if r < surr1 || (r >= surr3 && r < 0x10000) {
		return uint16(r), 0
	}
	if r >= 0x10000 && r <= 0x10FFFF {
		r -= 0x10000
		return uint16(surr1 + (r >> 10)), uint16(surr2 + (r & 0x3ff))
	}
	return uint16(0xFFFD), 0
}
