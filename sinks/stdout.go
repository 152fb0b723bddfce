// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/toole-brendan/btcwatch/events"
)

// StdoutSink writes one structured JSON line per activity.
type StdoutSink struct {
	mtx sync.Mutex
	w   io.Writer
}

// NewStdoutSink creates a stdout sink. A nil writer selects os.Stdout.
func NewStdoutSink(w io.Writer) *StdoutSink {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutSink{w: w}
}

// Kind implements Sink.
func (s *StdoutSink) Kind() string { return "stdout" }

// Send implements Sink.
func (s *StdoutSink) Send(_ context.Context, ev *events.AddressActivityFound) error {
	line, err := json.Marshal(newPayload(ev))
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write activity: %w", err)
	}
	return nil
}
