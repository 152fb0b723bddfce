// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pipeline wires the four processing stages onto the event bus:
// block detection, block parsing, activity computation and notification
// delivery.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/toole-brendan/btcwatch/btcjson"
	"github.com/toole-brendan/btcwatch/chaincfg"
	"github.com/toole-brendan/btcwatch/eventbus"
	"github.com/toole-brendan/btcwatch/events"
	"github.com/toole-brendan/btcwatch/features"
	"github.com/toole-brendan/btcwatch/hrw"
	"github.com/toole-brendan/btcwatch/sinks"
	"github.com/toole-brendan/btcwatch/watch"
	"github.com/toole-brendan/btcwatch/wire"
)

// opReturnLogCap bounds how much of an OP_RETURN payload is logged.
const opReturnLogCap = 80

// ChainRPC is the node surface the pipeline depends on. *rpcclient.Client
// satisfies it; tests plug doubles.
type ChainRPC interface {
	GetBlockCount(ctx context.Context) (int64, error)
	GetBlockHash(ctx context.Context, height int64) (string, error)
	GetBlockVerbose(ctx context.Context, hash string, verbosity int) (*btcjson.GetBlockVerboseResult, error)
	GetBlockRaw(ctx context.Context, hash string) (string, error)
	GetBlockHeaderVerbose(ctx context.Context, hash string) (*btcjson.GetBlockHeaderVerboseResult, error)
	GetRawTransactionVerbose(ctx context.Context, txid string) (*btcjson.TxRawResult, error)
}

// RateSource supplies the USD enrichment rate. A zero return skips
// enrichment.
type RateSource interface {
	GetUSDRate(ctx context.Context) float64
}

// Config assembles a pipeline.
type Config struct {
	Bus     *eventbus.Bus
	RPC     ChainRPC
	Rates   RateSource
	Sinks   []sinks.Sink
	Flags   *features.Manager
	Matcher *watch.Matcher
	Sharder *hrw.Sharder
	Params  *chaincfg.Params
}

// Pipeline subscribes the processing stages and owns the filtered watch
// list.
type Pipeline struct {
	bus     *eventbus.Bus
	rpc     ChainRPC
	rates   RateSource
	sinks   []sinks.Sink
	flags   *features.Manager
	matcher *watch.Matcher
	sharder *hrw.Sharder
	params  *chaincfg.Params
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		bus:     cfg.Bus,
		rpc:     cfg.RPC,
		rates:   cfg.Rates,
		sinks:   cfg.Sinks,
		flags:   cfg.Flags,
		matcher: cfg.Matcher,
		sharder: cfg.Sharder,
		params:  cfg.Params,
	}
}

// Register subscribes the stages on the bus.
func (p *Pipeline) Register() {
	p.bus.Subscribe(eventbus.Subscription{
		Kind:        events.KindBlockDetected,
		Name:        "parse-block",
		Concurrency: 1,
		Retry: eventbus.RetryPolicy{
			MaxRetries: 3,
			Backoff: func(n int) time.Duration {
				ms := 100 * n * n
				if ms > 2000 {
					ms = 2000
				}
				return time.Duration(ms) * time.Millisecond
			},
		},
		Handler: p.handleBlockDetected,
	})

	p.bus.Subscribe(eventbus.Subscription{
		Kind:        events.KindBlockParsed,
		Name:        "compute-activities",
		Concurrency: 1,
		Retry: eventbus.RetryPolicy{
			MaxRetries: 2,
			Backoff: func(n int) time.Duration {
				return time.Duration(100*n) * time.Millisecond
			},
		},
		Handler: p.handleBlockParsed,
	})

	p.bus.Subscribe(eventbus.Subscription{
		Kind:        events.KindAddressActivityFound,
		Name:        "log-activity",
		Concurrency: 4,
		Retry:       eventbus.RetryPolicy{MaxRetries: 1},
		Handler:     p.handleActivity,
	})
}

// ReloadWatchList filters the full watch list through the sharder and swaps
// the matcher's index. The previous snapshot keeps serving blocks already in
// flight.
func (p *Pipeline) ReloadWatchList(full []watch.WatchedAddress) {
	filtered := full
	if p.sharder != nil {
		filtered = p.sharder.FilterWatched(full)
	}
	p.matcher.SetWatchedAddresses(filtered)
	log.Infof("watch list reloaded: %d watched, %d assigned to this worker",
		len(full), len(filtered))
}

// handleBlockDetected is stage one: fetch and decode the detected block.
func (p *Pipeline) handleBlockDetected(ctx context.Context, ev events.Event) error {
	bd, ok := ev.(*events.BlockDetected)
	if !ok {
		return fmt.Errorf("parse-block received %T", ev)
	}

	flags := p.flags.Current()
	var block *wire.ParsedBlock

	if flags.ParseRawBlocks {
		blockHex, err := p.rpc.GetBlockRaw(ctx, bd.Hash)
		if err != nil {
			return fmt.Errorf("getblock raw %s: %w", bd.Hash, err)
		}
		block, err = wire.ParseRawBlock(blockHex, bd.Height, p.params)
		if err != nil {
			return fmt.Errorf("decode block %s: %w", bd.Hash, err)
		}
		if flags.ResolveInputAddresses {
			p.resolveInputs(ctx, block)
		}
	} else {
		verbosity := 2
		if flags.ResolveInputAddresses {
			verbosity = 3
		}
		vb, err := p.rpc.GetBlockVerbose(ctx, bd.Hash, verbosity)
		if err != nil {
			return fmt.Errorf("getblock %s: %w", bd.Hash, err)
		}
		block = wire.BlockFromVerbose(vb, flags.ResolveInputAddresses)
		if block.Height == 0 {
			block.Height = bd.Height
		}
	}

	log.Debugf("parsed block %d %s: %d transactions",
		block.Height, block.Hash, len(block.Transactions))
	return p.bus.Publish(ctx, events.NewBlockParsed(block))
}

// resolveInputs fills input addresses and values by fetching previous
// transactions. Lookups ride the client's bounded cache; individual
// failures leave the input unresolved.
func (p *Pipeline) resolveInputs(ctx context.Context, block *wire.ParsedBlock) {
	const coinbasePrevVout = 0xffffffff

	for _, tx := range block.Transactions {
		for i := range tx.Inputs {
			in := &tx.Inputs[i]
			if in.PrevTxid == "" || in.PrevVout == coinbasePrevVout || in.Address != "" {
				continue
			}
			prev, err := p.rpc.GetRawTransactionVerbose(ctx, in.PrevTxid)
			if err != nil {
				log.Debugf("prev tx %s unavailable, input stays unresolved: %v",
					in.PrevTxid, err)
				continue
			}
			if int(in.PrevVout) >= len(prev.Vout) {
				continue
			}
			vout := &prev.Vout[in.PrevVout]
			in.Address = vout.ScriptPubKey.FirstAddress()
			in.ValueBTC = vout.Value
		}
	}
}

// handleBlockParsed is stage two: delay under upstream backlog, enrich with
// the USD rate and publish one event per matched activity.
func (p *Pipeline) handleBlockParsed(ctx context.Context, ev events.Event) error {
	bp, ok := ev.(*events.BlockParsed)
	if !ok {
		return fmt.Errorf("compute-activities received %T", ev)
	}
	block := bp.Block

	// Delay, never skip: let the detector queue drain before doing more
	// downstream work.
	if p.bus.BacklogDepth(events.KindBlockDetected) > p.bus.MaxQueueSize()/2 {
		if err := p.bus.WaitForCapacity(ctx, events.KindBlockDetected, 0); err != nil {
			return err
		}
	}

	rate := p.rates.GetUSDRate(ctx)
	activities := p.matcher.CheckBlock(block)

	if rate > 0 {
		usd := decimal.NewFromFloat(rate)
		for i := range activities {
			activities[i].ValueUSD = activities[i].ValueBTC.Mul(usd).Truncate(2)
			activities[i].HasUSD = true
		}
	}

	log.Infof("block %d %s: %d transactions, %d watched activities, usdRate=%.2f",
		block.Height, block.Hash, len(block.Transactions), len(activities), rate)
	p.logOpReturns(block)

	for i := range activities {
		aa := events.NewAddressActivityFound(block.Height, block.Hash, activities[i])
		if err := p.bus.Publish(ctx, aa); err != nil {
			return err
		}
	}
	return nil
}

// logOpReturns records the block's OP_RETURN payloads, capping each at
// opReturnLogCap bytes of payload.
func (p *Pipeline) logOpReturns(block *wire.ParsedBlock) {
	for _, tx := range block.Transactions {
		for i := range tx.Outputs {
			out := &tx.Outputs[i]
			if out.OpReturnHex == "" {
				continue
			}
			payloadHex, redacted := redactHex(out.OpReturnHex, opReturnLogCap)
			log.Debugf("op_return txid=%s vout=%d payloadHex=%s opReturnRedacted=%v",
				tx.Txid, i, payloadHex, redacted)
		}
	}
}

// redactHex truncates a hex payload to capBytes bytes.
func redactHex(payloadHex string, capBytes int) (string, bool) {
	if len(payloadHex) <= 2*capBytes {
		return payloadHex, false
	}
	return payloadHex[:2*capBytes], true
}

// handleActivity is stage three: fan the activity out to every sink, then
// record the notification. Partial sink failure is tolerated; total failure
// is retried by the bus.
func (p *Pipeline) handleActivity(ctx context.Context, ev events.Event) error {
	aa, ok := ev.(*events.AddressActivityFound)
	if !ok {
		return fmt.Errorf("log-activity received %T", ev)
	}

	channel := "stdout"
	anyOK := len(p.sinks) == 0
	if len(p.sinks) > 0 {
		channel = p.sinks[0].Kind()

		errs := make([]error, len(p.sinks))
		var wg sync.WaitGroup
		for i, sink := range p.sinks {
			i, sink := i, sink
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = sink.Send(ctx, aa)
			}()
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				log.Warnf("sink %s failed for %s: %v",
					p.sinks[i].Kind(), aa.DedupeKey(), err)
				continue
			}
			anyOK = true
		}
		if !anyOK {
			return fmt.Errorf("all sinks failed for %s", aa.DedupeKey())
		}
	}

	return p.bus.Publish(ctx, events.NewNotificationEmitted(channel, true, aa))
}
