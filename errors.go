// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import "fmt"

// Kind classifies a ReadError. Every fatal condition the reader can raise
// maps to exactly one Kind.
type Kind int

// The error taxonomy of the archive reader. All of these are fatal: the
// reader never attempts partial recovery, and the caller must discard the
// half-built Package.
const (
	// KindMagicMismatch: the first four bytes do not match the expected
	// archive magic.
	KindMagicMismatch Kind = iota

	// KindUnsupportedVersion: the declared (major, minor) pair is not one
	// of the versions this reader recognizes.
	KindUnsupportedVersion

	// KindLegacyFeatureInOldVersion: a construct introduced after version
	// 7.0 (e.g. a MethodHandle/InvokeDynamic constant-pool count) is
	// non-zero in an archive declaring an older version.
	KindLegacyFeatureInOldVersion

	// KindBadLayout: an attribute layout references a construct
	// unavailable at the declared class version.
	KindBadLayout

	// KindBadAttrIndex: a holder claims an attribute index for which no
	// layout was ever defined.
	KindBadAttrIndex

	// KindOpcodeReferenceTagMismatch: a constant-pool reference carried
	// by an opcode does not match the opcode's expected tag family.
	KindOpcodeReferenceTagMismatch

	// KindIllegalOpcode: an out-of-range or undefined opcode byte.
	KindIllegalOpcode

	// KindTruncatedStream: end of stream reached before a band's
	// declared length was satisfied.
	KindTruncatedStream

	// KindSizeMismatch: the declared archive size does not match the
	// number of bytes actually served.
	KindSizeMismatch

	// KindIllegalSkip: the caller attempted to skip bytes on the limited
	// buffer, which does not support skipping.
	KindIllegalSkip
)

func (k Kind) String() string {
	switch k {
	case KindMagicMismatch:
		return "magic mismatch"
	case KindUnsupportedVersion:
		return "unsupported version"
	case KindLegacyFeatureInOldVersion:
		return "legacy feature in old version archive"
	case KindBadLayout:
		return "bad attribute layout"
	case KindBadAttrIndex:
		return "bad attribute index"
	case KindOpcodeReferenceTagMismatch:
		return "opcode reference tag mismatch"
	case KindIllegalOpcode:
		return "illegal opcode"
	case KindTruncatedStream:
		return "truncated stream"
	case KindSizeMismatch:
		return "archive size mismatch"
	case KindIllegalSkip:
		return "illegal skip on limited buffer"
	default:
		return "unknown error"
	}
}

// ReadError is returned for every fatal condition raised while decoding an
// archive. It carries the diagnostic offsets spec.md §7 requires: how many
// bytes the limited buffer had served, how many it was allowed to serve,
// and an optional band/component name for context.
type ReadError struct {
	Kind    Kind
	Band    string // band or component name, when known
	Served  int64  // bytes served by the limited buffer at the point of failure
	Limit   int64  // the buffer's read limit at the point of failure, -1 if unlimited
	Message string // extra human-readable detail
	Cause   error
}

func (e *ReadError) Error() string {
	loc := e.Band
	if loc == "" {
		loc = "archive"
	}
	msg := e.Kind.String()
	if e.Message != "" {
		msg = msg + ": " + e.Message
	}
	limit := "unlimited"
	if e.Limit >= 0 {
		limit = fmt.Sprintf("%d", e.Limit)
	}
	return fmt.Sprintf("%s (at %s, served=%d, limit=%s)", msg, loc, e.Served, limit)
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/errors.As.
func (e *ReadError) Unwrap() error { return e.Cause }

// Is reports whether target is a *ReadError with the same Kind, so callers
// can write errors.Is(err, &ReadError{Kind: KindTruncatedStream}).
func (e *ReadError) Is(target error) bool {
	t, ok := target.(*ReadError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newReadError(kind Kind, band string, served, limit int64, format string, args ...interface{}) *ReadError {
	return &ReadError{
		Kind:    kind,
		Band:    band,
		Served:  served,
		Limit:   limit,
		Message: fmt.Sprintf(format, args...),
	}
}
