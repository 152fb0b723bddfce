// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// btcwatchd tails the Bitcoin chain tip, matches new blocks against a
// watched address set and emits enriched notifications to the configured
// sinks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/toole-brendan/btcwatch/chaincfg"
	"github.com/toole-brendan/btcwatch/config"
	"github.com/toole-brendan/btcwatch/currency"
	"github.com/toole-brendan/btcwatch/eventbus"
	"github.com/toole-brendan/btcwatch/features"
	"github.com/toole-brendan/btcwatch/hrw"
	"github.com/toole-brendan/btcwatch/pipeline"
	"github.com/toole-brendan/btcwatch/rpcclient"
	"github.com/toole-brendan/btcwatch/sinks"
	"github.com/toole-brendan/btcwatch/watch"
)

// Process exit codes.
const (
	exitOK          = 0
	exitStartup     = 1
	exitHealthcheck = 2
)

const (
	// watchReloadInterval is how often the watch-list file is polled for
	// changes.
	watchReloadInterval = 5 * time.Second

	// shutdownTimeout bounds the graceful drain on exit.
	shutdownTimeout = 30 * time.Second
)

// options is the command line surface; everything else is environment
// driven.
type options struct {
	LogFile     string `long:"logfile" description:"Write logs to this file, rotated in place"`
	DebugLevel  string `long:"debuglevel" description:"Logging level: trace, debug, info, warn, error, critical"`
	HealthCheck bool   `long:"healthcheck" description:"Probe the RPC node and rate provider, then exit"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return exitOK
		}
		return exitStartup
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitStartup
	}

	if opts.LogFile != "" {
		if err := initLogRotator(opts.LogFile); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return exitStartup
		}
		defer logRotator.Close()
	}
	level := opts.DebugLevel
	if level == "" {
		level = "info"
		if cfg.IsDevelopment() {
			level = "debug"
		}
	}
	if err := setLogLevels(level); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitStartup
	}

	rpc, err := rpcclient.New(rpcclient.Config{
		URL:   cfg.RPCURL,
		Proxy: cfg.RPCProxy,
	})
	if err != nil {
		mainLog.Errorf("rpc client: %v", err)
		return exitStartup
	}
	defer rpc.Shutdown()

	provider := currency.NewCoinMarketCap(cfg.CMCAPIKey, "", nil)
	rates := currency.NewCache(provider, currency.Config{
		BaseTTL:            time.Duration(cfg.CacheValiditySeconds) * time.Second,
		TTLJitter:          cfg.CacheTTLJitter,
		NegativeTTL:        time.Duration(cfg.NegativeTTLSeconds) * time.Second,
		CBFailureThreshold: cfg.CBFailureThreshold,
		CBOpenWindow:       time.Duration(cfg.CBOpenMS) * time.Millisecond,
		FilePath:           cfg.RateCachePath(),
	})

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.HealthCheck {
		return healthCheck(ctx, rpc, rates)
	}

	info, err := rpc.GetBlockChainInfo(ctx)
	if err != nil {
		mainLog.Errorf("cannot reach bitcoin rpc at %s: %v", cfg.RPCURL, err)
		return exitStartup
	}
	params, err := chaincfg.ParamsForName(info.Chain)
	if err != nil {
		mainLog.Errorf("node reports unsupported chain %q", info.Chain)
		return exitStartup
	}
	mainLog.Infof("connected to %s chain at height %d", info.Chain, info.Blocks)

	flagsMgr := features.NewManager(features.Flags{
		ParseRawBlocks:        cfg.ParseRawBlocks,
		ResolveInputAddresses: cfg.ResolveInputAddresses,
	})
	if cfg.FeatureFlagsFile != "" {
		go flagsMgr.WatchFile(ctx, cfg.FeatureFlagsFile,
			time.Duration(cfg.FeatureFlagsReloadMS)*time.Millisecond)
	}

	sharder := hrw.New(cfg.WorkerID, cfg.WorkerMembers)
	watched, err := cfg.LoadWatchedAddresses()
	if err != nil {
		mainLog.Errorf("load watch list: %v", err)
		return exitStartup
	}
	filtered := sharder.FilterWatched(watched)
	mainLog.Infof("watching %d of %d addresses as %s (fleet: %s)",
		len(filtered), len(watched), cfg.WorkerID,
		strings.Join(sharder.Members(), ","))
	matcher := watch.NewMatcher(filtered)

	sinkList, err := buildSinks(cfg)
	if err != nil {
		mainLog.Errorf("sinks: %v", err)
		return exitStartup
	}

	bus := eventbus.New(ctx, cfg.MaxEventQueueSize)
	pipe := pipeline.New(pipeline.Config{
		Bus:     bus,
		RPC:     rpc,
		Rates:   rates,
		Sinks:   sinkList,
		Flags:   flagsMgr,
		Matcher: matcher,
		Sharder: sharder,
		Params:  params,
	})
	pipe.Register()

	go watchListReloader(ctx, cfg, pipe)

	producer := pipeline.NewProducer(bus, rpc,
		time.Duration(cfg.PollIntervalMS)*time.Millisecond)
	producerDone := make(chan error, 1)
	go func() { producerDone <- producer.Run(ctx) }()

	select {
	case <-ctx.Done():
		mainLog.Infof("shutdown requested, draining event queues")
	case err := <-producerDone:
		if err != nil && ctx.Err() == nil {
			mainLog.Errorf("producer stopped: %v", err)
		}
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer drainCancel()
	if err := bus.WaitUntilIdle(drainCtx); err != nil {
		mainLog.Warnf("drain incomplete: %v", err)
	}
	closeSinks(sinkList)
	mainLog.Infof("shutdown complete")
	return exitOK
}

// healthCheck probes the node and the rate provider.
func healthCheck(ctx context.Context, rpc *rpcclient.Client, rates *currency.Cache) int {
	hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := rpc.GetBlockChainInfo(hctx); err != nil {
		mainLog.Errorf("healthcheck: rpc: %v", err)
		return exitHealthcheck
	}
	if err := rates.Ping(hctx); err != nil {
		mainLog.Errorf("healthcheck: rate provider: %v", err)
		return exitHealthcheck
	}
	mainLog.Infof("healthcheck ok")
	return exitOK
}

// watchListReloader polls the watch-list file and swaps the matcher index on
// change. Failures keep the previous snapshot serving.
func watchListReloader(ctx context.Context, cfg *config.Config, pipe *pipeline.Pipeline) {
	var lastMod time.Time
	if info, err := os.Stat(cfg.WatchAddressesFile); err == nil {
		lastMod = info.ModTime()
	}

	ticker := time.NewTicker(watchReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		info, err := os.Stat(cfg.WatchAddressesFile)
		if err != nil || !info.ModTime().After(lastMod) {
			continue
		}
		lastMod = info.ModTime()

		watched, err := cfg.LoadWatchedAddresses()
		if err != nil {
			mainLog.Errorf("watch.reload_failed file=%s: %v",
				cfg.WatchAddressesFile, err)
			continue
		}
		pipe.ReloadWatchList(watched)
	}
}

// buildSinks instantiates the enabled sinks in configuration order.
func buildSinks(cfg *config.Config) ([]sinks.Sink, error) {
	var out []sinks.Sink
	for _, kind := range cfg.SinksEnabled {
		switch strings.TrimSpace(kind) {
		case "stdout":
			out = append(out, sinks.NewStdoutSink(nil))
		case "file":
			out = append(out, sinks.NewFileSink(cfg.SinkFilePath))
		case "webhook":
			headers, err := parseWebhookHeaders(cfg.SinkWebhookHeaders)
			if err != nil {
				return nil, err
			}
			out = append(out, sinks.NewWebhookSink(cfg.SinkWebhookURL,
				headers, cfg.SinkWebhookMaxRetries, nil))
		case "kafka":
			out = append(out, sinks.NewKafkaSink(cfg.SinkKafkaBrokers, cfg.SinkKafkaTopic))
		case "nats":
			out = append(out, sinks.NewNATSSink(cfg.SinkNATSURL, cfg.SinkNATSSubject))
		case "":
		}
	}
	return out, nil
}

// parseWebhookHeaders decodes the SINK_WEBHOOK_HEADERS JSON object.
func parseWebhookHeaders(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	headers := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		return nil, fmt.Errorf("SINK_WEBHOOK_HEADERS must be a JSON object: %w", err)
	}
	return headers, nil
}

// closeSinks releases sinks that hold resources.
func closeSinks(list []sinks.Sink) {
	for _, s := range list {
		if closer, ok := s.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				mainLog.Warnf("close %s sink: %v", s.Kind(), err)
			}
		}
	}
}
