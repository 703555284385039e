// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

// bandState is the lifecycle stage of a Band, per spec.md §3.
type bandState int

const (
	bandSized bandState = iota
	bandFilled
	bandConsumed
)

// byteSource is anything a band can pull raw coded bytes from: normally
// the archive's limitedBuffer.
type byteSource interface {
	readByte() (byte, error)
}

// ByteBand is a column of raw octets (no coding applied beyond the
// identity), used for the small number of bands spec.md describes as
// plain byte streams (e.g. bc_codes).
type ByteBand struct {
	name     string
	expected int
	values   []byte
	cursor   int
	state    bandState
}

func newByteBand(name string) *ByteBand {
	return &ByteBand{name: name}
}

// expectLength announces how many values this band must serve before
// doneDisbursing will pass.
func (b *ByteBand) expectLength(n int) { b.expected += n }

// fill drains exactly b.expected bytes from src.
func (b *ByteBand) fill(src byteSource) error {
	for len(b.values) < b.expected {
		v, err := src.readByte()
		if err != nil {
			return newReadError(KindTruncatedStream, b.name, 0, -1,
				"expected %d bytes, got %d: %v", b.expected, len(b.values), err)
		}
		b.values = append(b.values, v)
	}
	b.state = bandFilled
	return nil
}

// get returns the next byte and advances the cursor.
func (b *ByteBand) get() byte {
	v := b.values[b.cursor]
	b.cursor++
	return v
}

// resetForSecondPass rewinds the cursor without touching the underlying
// stream or the materialized values.
func (b *ByteBand) resetForSecondPass() { b.cursor = 0 }

// doneDisbursing asserts that every value has been claimed by a caller.
func (b *ByteBand) doneDisbursing() error {
	if b.cursor != len(b.values) {
		return newReadError(KindTruncatedStream, b.name, 0, -1,
			"band not fully disbursed: cursor=%d len=%d", b.cursor, len(b.values))
	}
	b.state = bandConsumed
	return nil
}

// remaining reports how many values are still unclaimed.
func (b *ByteBand) remaining() int { return len(b.values) - b.cursor }

// IntBand is a column of integers decoded through a Coding. Values are
// materialized on first fill; resetForSecondPass only rewinds the cursor,
// per spec.md §4.2/§9 ("two-pass band replay").
type IntBand struct {
	name     string
	coding   Coding
	expected int
	values   []int64
	cursor   int
	state    bandState
}

func newIntBand(name string, coding Coding) *IntBand {
	return &IntBand{name: name, coding: coding}
}

func (b *IntBand) expectLength(n int) { b.expected += n }

// fill decodes exactly b.expected values from src, applying the running
// sum for delta-coded bands.
func (b *IntBand) fill(src byteSource) error {
	read := func() (byte, error) { return src.readByte() }
	running := int64(0)
	for len(b.values) < b.expected {
		v, err := b.coding.decode(read)
		if err != nil {
			return newReadError(KindTruncatedStream, b.name, 0, -1,
				"expected %d ints, got %d: %v", b.expected, len(b.values), err)
		}
		if b.coding.D {
			running += v
			v = running
		}
		b.values = append(b.values, v)
	}
	b.state = bandFilled
	return nil
}

func (b *IntBand) get() int64 {
	v := b.values[b.cursor]
	b.cursor++
	return v
}

func (b *IntBand) resetForSecondPass() { b.cursor = 0 }

func (b *IntBand) doneDisbursing() error {
	if b.cursor != len(b.values) {
		return newReadError(KindTruncatedStream, b.name, 0, -1,
			"band not fully disbursed: cursor=%d len=%d", b.cursor, len(b.values))
	}
	b.state = bandConsumed
	return nil
}

func (b *IntBand) remaining() int { return len(b.values) - b.cursor }

// allValues exposes the fully materialized column, used by callers (e.g.
// the Utf8 decoder's sizing pass) that need to scan ahead without
// disbursing.
func (b *IntBand) allValues() []int64 { return b.values }

// RefBand is an IntBand whose decoded integers index into a constant-pool
// tag family. Index 0 conventionally encodes "null"; positive indices are
// biased by one against the pool's zero-based storage, per spec.md §4.2.
type RefBand struct {
	IntBand
	tag  cpTag
	pool *constantPool
}

func newRefBand(name string, coding Coding, tag cpTag, pool *constantPool) *RefBand {
	return &RefBand{IntBand: *newIntBand(name, coding), tag: tag, pool: pool}
}

// getRef reads the next integer and resolves it against the pool, honoring
// the null/bias convention. A raw value of 0 returns (nil, nil).
func (b *RefBand) getRef() (*cpEntry, error) {
	raw := b.IntBand.get()
	if raw == 0 {
		return nil, nil
	}
	idx := int(raw - 1)
	e, err := b.pool.lookup(b.tag, idx)
	if err != nil {
		return nil, newReadError(KindTruncatedStream, b.name, 0, -1,
			"ref band %s: %v", b.name, err)
	}
	return e, nil
}

// MultiBand is an ordered container of child bands, grouping the columns
// that make up one conceptual unit (an attrBands group, a Utf8 band set,
// ...). It exists purely for orchestration convenience: sizing and
// draining still happen per-child, in declared order.
type MultiBand struct {
	name     string
	children []namedBand
}

type namedBand interface {
	resetForSecondPass()
}

func newMultiBand(name string) *MultiBand {
	return &MultiBand{name: name}
}

func (m *MultiBand) add(b namedBand) { m.children = append(m.children, b) }

func (m *MultiBand) resetForSecondPass() {
	for _, c := range m.children {
		c.resetForSecondPass()
	}
}
