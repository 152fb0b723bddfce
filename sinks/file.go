// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/toole-brendan/btcwatch/events"
)

// FileSink appends newline-delimited JSON to a file.
type FileSink struct {
	path string

	mtx  sync.Mutex
	file *os.File
}

// NewFileSink creates a file sink. The file is opened lazily on first send.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Kind implements Sink.
func (s *FileSink) Kind() string { return "file" }

// Send implements Sink.
func (s *FileSink) Send(_ context.Context, ev *events.AddressActivityFound) error {
	line, err := json.Marshal(newPayload(ev))
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.file == nil {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("create sink dir: %w", err)
		}
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open sink file: %w", err)
		}
		s.file = f
	}

	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// Close releases the file handle.
func (s *FileSink) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
