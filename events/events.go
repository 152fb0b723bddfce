// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package events defines the domain events that flow through the pipeline
// and the deterministic dedupe keys downstream consumers use to deduplicate
// at-least-once delivery.
package events

import (
	"fmt"
	"time"

	"github.com/toole-brendan/btcwatch/watch"
	"github.com/toole-brendan/btcwatch/wire"
)

// Kind is the tag of the event union.
type Kind string

// Event kinds.
const (
	KindBlockDetected        Kind = "BlockDetected"
	KindBlockParsed          Kind = "BlockParsed"
	KindAddressActivityFound Kind = "AddressActivityFound"
	KindNotificationEmitted  Kind = "NotificationEmitted"
	KindBlockReorg           Kind = "BlockReorg"
)

// Event is the interface every domain event implements.
type Event interface {
	// Kind returns the union tag.
	Kind() Kind

	// DedupeKey returns the deterministic key derived from the event's
	// coordinates.
	DedupeKey() string

	// Timestamp returns the event creation time.
	Timestamp() time.Time
}

// Meta carries the fields common to all events.
type Meta struct {
	Time    time.Time `json:"timestamp"`
	Key     string    `json:"dedupeKey"`
	EventID string    `json:"eventId,omitempty"`
}

// NewMeta stamps an event with the current time and the given dedupe key.
func NewMeta(key string) Meta {
	return Meta{Time: time.Now().UTC(), Key: key}
}

// DedupeKey returns the deterministic event key.
func (m Meta) DedupeKey() string { return m.Key }

// Timestamp returns the event creation time.
func (m Meta) Timestamp() time.Time { return m.Time }

// BlockDetected signals a new chain tip.
type BlockDetected struct {
	Meta
	Height uint32
	Hash   string
}

// Kind returns the union tag.
func (*BlockDetected) Kind() Kind { return KindBlockDetected }

// NewBlockDetected creates a BlockDetected event with its dedupe key.
func NewBlockDetected(height uint32, hash string) *BlockDetected {
	return &BlockDetected{
		Meta:   NewMeta(fmt.Sprintf("BlockDetected:%d:%s", height, hash)),
		Height: height,
		Hash:   hash,
	}
}

// BlockParsed carries a fully decoded block.
type BlockParsed struct {
	Meta
	Block *wire.ParsedBlock
}

// Kind returns the union tag.
func (*BlockParsed) Kind() Kind { return KindBlockParsed }

// NewBlockParsed creates a BlockParsed event with its dedupe key.
func NewBlockParsed(block *wire.ParsedBlock) *BlockParsed {
	return &BlockParsed{
		Meta:  NewMeta(fmt.Sprintf("BlockParsed:%d:%s", block.Height, block.Hash)),
		Block: block,
	}
}

// AddressActivityFound carries one watched-address activity.
type AddressActivityFound struct {
	Meta
	Height    uint32
	BlockHash string
	Activity  watch.Activity
}

// Kind returns the union tag.
func (*AddressActivityFound) Kind() Kind { return KindAddressActivityFound }

// ActivityDedupeKey builds the deterministic key of an activity event.
func ActivityDedupeKey(height uint32, hash string, act *watch.Activity) string {
	return fmt.Sprintf("AddressActivity:%d:%s:%s:%s:%s",
		height, hash, act.Address, act.Txid, act.Direction)
}

// NewAddressActivityFound creates an activity event with its dedupe key.
func NewAddressActivityFound(height uint32, hash string, act watch.Activity) *AddressActivityFound {
	return &AddressActivityFound{
		Meta:      NewMeta(ActivityDedupeKey(height, hash, &act)),
		Height:    height,
		BlockHash: hash,
		Activity:  act,
	}
}

// NotificationEmitted records that an activity was handed to the sinks.
type NotificationEmitted struct {
	Meta
	Channel string
	OK      bool
}

// Kind returns the union tag.
func (*NotificationEmitted) Kind() Kind { return KindNotificationEmitted }

// NewNotificationEmitted creates a notification event keyed by the same
// coordinates as the activity it reports.
func NewNotificationEmitted(channel string, ok bool, activity *AddressActivityFound) *NotificationEmitted {
	key := fmt.Sprintf("Notification:%d:%s:%s:%s:%s",
		activity.Height, activity.BlockHash,
		activity.Activity.Address, activity.Activity.Txid,
		activity.Activity.Direction)
	return &NotificationEmitted{
		Meta:    NewMeta(key),
		Channel: channel,
		OK:      ok,
	}
}

// BlockReorg signals that the chain replaced a previously observed block.
// No compensation is attached; downstream consumers decide what to do.
type BlockReorg struct {
	Meta
	Height  uint32
	OldHash string
	NewHash string
}

// Kind returns the union tag.
func (*BlockReorg) Kind() Kind { return KindBlockReorg }

// NewBlockReorg creates a reorg event with its dedupe key.
func NewBlockReorg(height uint32, oldHash, newHash string) *BlockReorg {
	return &BlockReorg{
		Meta:    NewMeta(fmt.Sprintf("BlockReorg:%d:%s:%s", height, oldHash, newHash)),
		Height:  height,
		OldHash: oldHash,
		NewHash: newHash,
	}
}
