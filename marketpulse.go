package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"marketpulse/internal/cli"
	"marketpulse/internal/config"
	"marketpulse/internal/svc"
	"marketpulse/pkg/market/report"
)

var (
	configFile = flag.String("f", "etc/marketpulse.yaml", "the config file")
	symbolFlag = flag.String("symbol", "", "symbol to report on (defaults to the first configured symbol)")
)

// One-shot report: connect, backfill the intraday and 4h windows over
// REST, assemble the snapshot and print it.
func main() {
	flag.Parse()

	cfg := config.MustLoad(*configFile)
	if err := cfg.SetUp(); err != nil {
		logx.Must(err)
	}
	cli.LogConfigSummary(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcCtx := svc.NewServiceContext(*cfg)
	defer svcCtx.Monitor.Close()
	defer svcCtx.Stream.Close()

	symbol := *symbolFlag
	if symbol == "" {
		if len(svcCtx.MarketConfig.Symbols) == 0 {
			logx.Must(fmt.Errorf("no symbol given and none configured"))
		}
		symbol = svcCtx.MarketConfig.Symbols[0]
	}

	if err := svcCtx.Stream.Connect(ctx); err != nil {
		logx.Must(err)
	}

	watchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for _, interval := range []string{"3m", "4h"} {
		if err := svcCtx.Monitor.Watch(watchCtx, symbol, interval); err != nil {
			logx.Must(err)
		}
	}

	data, err := svcCtx.Report.Get(watchCtx, symbol)
	if err != nil {
		logx.Must(err)
	}

	fmt.Print(report.Format(data))
}
