// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package rlog is the small leveled-logging seam the archive reader talks
// to. It mirrors the Logger/Helper split the reader's host project wires
// through its own options struct, so the reader never imports a concrete
// logging backend directly.
package rlog

import (
	"fmt"
	"io"
)

// Level is a logging severity.
type Level int

// Severities recognized by Helper.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is the minimal sink the reader requires. Any structured logger
// can implement it with a one-line adapter.
type Logger interface {
	Log(level Level, keyvals ...interface{}) error
}

// Helper wraps a Logger with leveled convenience methods.
type Helper struct {
	logger Logger
}

// NewHelper returns a Helper backed by logger. A nil logger yields a
// Helper whose methods are no-ops.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

func (h *Helper) log(level Level, msg string, keyvals ...interface{}) {
	if h == nil || h.logger == nil {
		return
	}
	kv := append([]interface{}{"msg", msg}, keyvals...)
	h.logger.Log(level, kv...)
}

// Debugf logs at debug level.
func (h *Helper) Debugf(format string, args ...interface{}) { h.log(LevelDebug, fmt.Sprintf(format, args...)) }

// Infof logs at info level.
func (h *Helper) Infof(format string, args ...interface{}) { h.log(LevelInfo, fmt.Sprintf(format, args...)) }

// Warnf logs at warn level.
func (h *Helper) Warnf(format string, args ...interface{}) { h.log(LevelWarn, fmt.Sprintf(format, args...)) }

// Errorf logs at error level.
func (h *Helper) Errorf(format string, args ...interface{}) { h.log(LevelError, fmt.Sprintf(format, args...)) }

type stdLogger struct {
	w io.Writer
}

// NewStdLogger returns a Logger that writes one line per record to w.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{w: w}
}

func (s *stdLogger) Log(level Level, keyvals ...interface{}) error {
	_, err := fmt.Fprintln(s.w, append([]interface{}{"level", level.String()}, keyvals...)...)
	return err
}

// String renders the level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}
