// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"time"

	"github.com/toole-brendan/btcwatch/eventbus"
	"github.com/toole-brendan/btcwatch/events"
)

// DefaultPollInterval is the tip poll period when none is configured.
const DefaultPollInterval = time.Second

// Producer tails the chain tip and publishes BlockDetected events, yielding
// to backpressure before each poll cycle.
type Producer struct {
	bus          *eventbus.Bus
	rpc          ChainRPC
	pollInterval time.Duration

	haveLast   bool
	lastHeight uint32
	lastHash   string
}

// NewProducer creates a producer.
func NewProducer(bus *eventbus.Bus, rpc ChainRPC, pollInterval time.Duration) *Producer {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Producer{bus: bus, rpc: rpc, pollInterval: pollInterval}
}

// Run polls until the context is canceled. Each new tip is published once;
// the producer suspends while the detector queue is saturated.
func (p *Producer) Run(ctx context.Context) error {
	log.Infof("block producer started, polling every %s", p.pollInterval)

	for {
		if err := p.bus.WaitForCapacity(ctx, events.KindBlockDetected, 0); err != nil {
			return err
		}

		height, hash, err := p.awaitNewBlock(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warnf("tip poll failed, retrying: %v", err)
			if !sleepCtx(ctx, p.pollInterval) {
				return ctx.Err()
			}
			continue
		}

		p.checkReorg(ctx, height, hash)
		p.haveLast = true
		p.lastHeight = height
		p.lastHash = hash

		log.Infof("new block detected at height %d: %s", height, hash)
		if err := p.bus.Publish(ctx, events.NewBlockDetected(height, hash)); err != nil {
			return err
		}
	}
}

// awaitNewBlock polls the tip height until it passes the last seen height
// and returns the new tip.
func (p *Producer) awaitNewBlock(ctx context.Context) (uint32, string, error) {
	var current int64
	if p.haveLast {
		current = int64(p.lastHeight)
	} else {
		tip, err := p.rpc.GetBlockCount(ctx)
		if err != nil {
			return 0, "", err
		}
		current = tip
	}

	for {
		tip, err := p.rpc.GetBlockCount(ctx)
		if err != nil {
			return 0, "", err
		}
		if tip > current {
			hash, err := p.rpc.GetBlockHash(ctx, tip)
			if err != nil {
				return 0, "", err
			}
			return uint32(tip), hash, nil
		}
		if !sleepCtx(ctx, p.pollInterval) {
			return 0, "", ctx.Err()
		}
	}
}

// checkReorg compares the new block's parent against the previously seen
// hash and publishes a BlockReorg signal on mismatch. No compensation is
// attempted.
func (p *Producer) checkReorg(ctx context.Context, height uint32, hash string) {
	if !p.haveLast || height != p.lastHeight+1 {
		return
	}
	header, err := p.rpc.GetBlockHeaderVerbose(ctx, hash)
	if err != nil {
		log.Debugf("header lookup for reorg check failed: %v", err)
		return
	}
	if header.PreviousBlockHash == p.lastHash {
		return
	}

	log.Warnf("reorg at height %d: had %s, chain reports %s",
		p.lastHeight, p.lastHash, header.PreviousBlockHash)
	if err := p.bus.Publish(ctx, events.NewBlockReorg(
		p.lastHeight, p.lastHash, header.PreviousBlockHash)); err != nil {
		log.Warnf("publish reorg signal: %v", err)
	}
}

// sleepCtx sleeps for d, returning false when the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
