package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"marketpulse/internal/cli"
	"marketpulse/internal/config"
	"marketpulse/internal/svc"
	"marketpulse/pkg/market"
	"marketpulse/pkg/market/report"
)

const (
	intradayInterval   = "3m"
	longerTermInterval = "4h"

	snapshotInterval   = 2 * time.Minute  // report assembly cadence
	symbolSyncInterval = 30 * time.Minute // instrument directory refresh
	checkpointInterval = 5 * time.Minute
	checkpointMaxAge   = 15 * time.Minute
	apiTimeout         = 15 * time.Second
	shutdownTimeout    = 10 * time.Second
)

var configFile = flag.String("f", "etc/marketpulse.yaml", "the config file")

func main() {
	flag.Parse()

	c := config.MustLoad(*configFile)
	if err := c.SetUp(); err != nil {
		logx.Must(err)
	}
	cli.LogConfigSummary(c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcCtx := svc.NewServiceContext(*c)

	if err := svcCtx.Stream.Connect(ctx); err != nil {
		logx.Must(err)
	}
	defer svcCtx.Stream.Close()
	defer svcCtx.Monitor.Close()

	if c.CheckpointPath != "" {
		if err := svcCtx.Monitor.LoadCheckpoint(c.CheckpointPath, checkpointMaxAge); err != nil {
			logx.Infof("feed: no usable checkpoint at %s: %v", c.CheckpointPath, err)
		}
	}

	symbols := svcCtx.MarketConfig.Symbols
	for _, symbol := range symbols {
		for _, interval := range []string{intradayInterval, longerTermInterval} {
			watchCtx, cancel := context.WithTimeout(ctx, apiTimeout)
			err := svcCtx.Monitor.Watch(watchCtx, symbol, interval)
			cancel()
			if err != nil {
				logx.Must(err)
			}
		}
	}
	logx.Infof("feed: watching %d symbols on %s and %s", len(symbols), intradayInterval, longerTermInterval)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runSnapshotLoop(ctx, svcCtx, symbols)
	}()

	if svcCtx.Persistence != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSymbolSync(ctx, svcCtx)
		}()
	}

	if c.CheckpointPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runCheckpointLoop(ctx, svcCtx, c.CheckpointPath)
		}()
	}

	<-ctx.Done()
	logx.Info("feed: shutdown signal received, stopping tasks")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logx.Info("feed: all tasks stopped cleanly")
	case <-shutdownCtx.Done():
		logx.Info("feed: shutdown timeout exceeded, forcing exit")
	}

	if c.CheckpointPath != "" {
		if err := svcCtx.Monitor.SaveCheckpoint(c.CheckpointPath); err != nil {
			logx.Errorf("feed: final checkpoint: %v", err)
		}
	}
}

// runSnapshotLoop assembles a full report per symbol on a fixed cadence.
// Persistence happens inside the builder when configured.
func runSnapshotLoop(ctx context.Context, svcCtx *svc.ServiceContext, symbols []string) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	snapshotAll(ctx, svcCtx.Report, symbols)

	for {
		select {
		case <-ctx.Done():
			logx.Info("feed: stopping snapshot loop")
			return
		case <-ticker.C:
			snapshotAll(ctx, svcCtx.Report, symbols)
		}
	}
}

func snapshotAll(parentCtx context.Context, builder *report.Builder, symbols []string) {
	if parentCtx.Err() != nil {
		return
	}
	for _, symbol := range symbols {
		func(sym string) {
			ctx, cancel := context.WithTimeout(parentCtx, apiTimeout)
			defer cancel()

			start := time.Now()
			data, err := builder.Get(ctx, sym)
			elapsed := time.Since(start)
			if err != nil {
				logx.WithContext(ctx).Errorf("feed: snapshot %s: %v (took %dms)", sym, err, elapsed.Milliseconds())
				return
			}
			logx.Infof("feed: snapshot %s price=%.6g funding=%.2e took %dms",
				data.Symbol, data.CurrentPrice, data.FundingRate, elapsed.Milliseconds())
		}(symbol)
	}
}

// runSymbolSync refreshes the instrument directory into storage.
func runSymbolSync(ctx context.Context, svcCtx *svc.ServiceContext) {
	ticker := time.NewTicker(symbolSyncInterval)
	defer ticker.Stop()

	syncSymbols(ctx, svcCtx)

	for {
		select {
		case <-ctx.Done():
			logx.Info("feed: stopping symbol sync")
			return
		case <-ticker.C:
			syncSymbols(ctx, svcCtx)
		}
	}
}

func syncSymbols(parentCtx context.Context, svcCtx *svc.ServiceContext) {
	if parentCtx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parentCtx, apiTimeout)
	defer cancel()

	info, err := svcCtx.Rest.GetExchangeInfo(ctx)
	if err != nil {
		if errors.Is(err, market.ErrUnsupportedFeature) {
			logx.Infof("feed: %s has no exchange info endpoint, skipping symbol sync", svcCtx.Profile.ID)
			return
		}
		logx.WithContext(ctx).Errorf("feed: fetch exchange info: %v", err)
		return
	}
	if err := svcCtx.Persistence.UpsertSymbols(ctx, string(svcCtx.Profile.ID), info.Symbols); err != nil {
		logx.WithContext(ctx).Errorf("feed: upsert symbols: %v", err)
		return
	}
	logx.Infof("feed: synced %d instruments for %s", len(info.Symbols), svcCtx.Profile.ID)
}

// runCheckpointLoop persists the kline buffers periodically so a restart
// can resume without a cold backfill.
func runCheckpointLoop(ctx context.Context, svcCtx *svc.ServiceContext, path string) {
	ticker := time.NewTicker(checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logx.Info("feed: stopping checkpoint loop")
			return
		case <-ticker.C:
			if err := svcCtx.Monitor.SaveCheckpoint(path); err != nil {
				logx.Errorf("feed: save checkpoint: %v", err)
			}
		}
	}
}
