// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sinks

import (
	"context"
	"sync"

	"github.com/toole-brendan/btcwatch/events"
)

// stubSink accepts every activity without delivering anywhere. It stands in
// for broker sinks until a real client is plugged; the first send logs a
// sink.unavailable warning.
type stubSink struct {
	kind   string
	target string
	once   sync.Once
}

// Kind implements Sink.
func (s *stubSink) Kind() string { return s.kind }

// Send implements Sink.
func (s *stubSink) Send(context.Context, *events.AddressActivityFound) error {
	s.once.Do(func() {
		log.Warnf("sink.unavailable kind=%s target=%s: no client wired, "+
			"accepting notifications without delivery", s.kind, s.target)
	})
	return nil
}

// NewKafkaSink returns the stubbed kafka sink.
func NewKafkaSink(brokers, topic string) Sink {
	return &stubSink{kind: "kafka", target: brokers + "/" + topic}
}

// NewNATSSink returns the stubbed nats sink.
func NewNATSSink(url, subject string) Sink {
	return &stubSink{kind: "nats", target: url + "/" + subject}
}
