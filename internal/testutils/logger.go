// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package testutils

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

// Logger is a logger that writes to a testing.TB.
type Logger struct {
	T testing.TB
}

func (l Logger) Infof(format string, args ...interface{}) {
	l.T.Logf(format, args...)
}

func (l Logger) Errorf(format string, args ...interface{}) {
	l.T.Logf(format, args...)
}

func (l Logger) Fatalf(format string, args ...interface{}) {
	l.T.Helper()
	l.T.Fatalf(format, args...)
}

// CaptureLogger records log lines so that datadriven tests can print them.
// Info lines are prefixed with "info: " and error lines with "error: ".
type CaptureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *CaptureLogger) Infof(format string, args ...interface{}) {
	l.add("info: " + fmt.Sprintf(format, args...))
}

func (l *CaptureLogger) Errorf(format string, args ...interface{}) {
	l.add("error: " + fmt.Sprintf(format, args...))
}

func (l *CaptureLogger) Fatalf(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}

func (l *CaptureLogger) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

// Drain returns the captured lines, one per line, and resets the logger.
func (l *CaptureLogger) Drain() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.lines) == 0 {
		return ""
	}
	s := strings.Join(l.lines, "\n") + "\n"
	l.lines = l.lines[:0]
	return s
}
