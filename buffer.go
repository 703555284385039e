// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import (
	"errors"
	"io"
)

// ErrOutsideBoundary is returned when a read would cross the limited
// buffer's declared read limit or the end of the underlying stream.
var ErrOutsideBoundary = errors.New("unpack200: read outside declared boundary")

// limitedBuffer is a buffered byte source layered on an io.Reader with a
// declared read limit, per spec.md §4.1 (component B). It back-pressures
// the underlying stream: a caller can shrink the limit at any time, and no
// read is ever allowed to consume a byte past it, even if the caller never
// asks for that byte directly. Skipping is unsupported; every byte that
// passes through the buffer is accounted for in served().
type limitedBuffer struct {
	r         io.Reader
	served_   int64
	limit     int64 // bytes still allowed past served_; -1 means unlimited
	pushback  []byte
	pushbackN int
}

// newLimitedBuffer wraps r with no limit set.
func newLimitedBuffer(r io.Reader) *limitedBuffer {
	return &limitedBuffer{r: r, limit: -1}
}

// served returns the total number of bytes returned to callers so far.
func (b *limitedBuffer) served() int64 { return b.served_ }

// atLimit reports whether the buffer has exhausted its current read
// limit (false when unlimited).
func (b *limitedBuffer) atLimit() bool {
	return b.limit == 0
}

// setReadLimit declares that at most n further bytes (from this point) may
// be served. Pass -1 to clear the limit.
func (b *limitedBuffer) setReadLimit(n int64) {
	b.limit = n
}

// readByte returns the next byte, honoring the read limit.
func (b *limitedBuffer) readByte() (byte, error) {
	if b.limit == 0 {
		return 0, io.EOF
	}
	var buf [1]byte
	if b.pushbackN > 0 {
		buf[0] = b.pushback[0]
		b.pushback = b.pushback[1:]
		b.pushbackN--
	} else {
		n, err := io.ReadFull(b.r, buf[:])
		if n == 0 {
			if err == nil {
				err = io.EOF
			}
			return 0, err
		}
	}
	b.served_++
	if b.limit > 0 {
		b.limit--
	}
	return buf[0], nil
}

// read fills buf entirely or returns an error; it never serves bytes past
// the declared read limit, returning io.EOF/ErrOutsideBoundary instead of
// silently truncating.
func (b *limitedBuffer) read(buf []byte) (int, error) {
	if b.limit >= 0 && int64(len(buf)) > b.limit {
		return 0, ErrOutsideBoundary
	}
	for i := range buf {
		v, err := b.readByte()
		if err != nil {
			return i, err
		}
		buf[i] = v
	}
	return len(buf), nil
}

// skip is unsupported on the limited buffer; callers must read and
// discard, matching spec.md §4.1 ("Skipping is unsupported; fails
// loudly").
func (b *limitedBuffer) skip(int64) error {
	return &ReadError{Kind: KindIllegalSkip, Served: b.served_, Limit: b.limit}
}
