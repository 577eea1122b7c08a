package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tmaillard/dtc-feed/internal/config"
	"github.com/tmaillard/dtc-feed/internal/dtc"
	"github.com/tmaillard/dtc-feed/internal/logging"
)

// dtc-tail connects to a DTC server, subscribes the symbols given as
// arguments (falling back to DTC_SYMBOLS), and logs every feed event.
// Useful for eyeballing a feed before pointing the daemon at it.
func main() {
	cfg := config.LoadConfig("dtc-tail")

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	symbols := os.Args[1:]
	if len(symbols) == 0 {
		symbols = cfg.Symbols
	}
	if len(symbols) == 0 {
		fmt.Fprintln(os.Stderr, "usage: dtc-tail SYMBOL[@EXCHANGE] ...")
		os.Exit(2)
	}

	conn, err := dtc.Dial(context.Background(), dtc.Config{
		Addr:              cfg.DTCAddr(),
		Username:          cfg.DTCUsername,
		Password:          cfg.DTCPassword,
		ClientName:        cfg.DTCClientName,
		HeartbeatInterval: time.Duration(cfg.DTCHeartbeatSecs) * time.Second,
		StrictLogonResult: cfg.DTCStrictLogonResult,
	}, logger)
	if err != nil {
		logger.Fatal("failed to establish DTC session", zap.Error(err))
	}

	for _, entry := range symbols {
		symbol, exchange := entry, ""
		if i := strings.IndexByte(entry, '@'); i >= 0 {
			symbol, exchange = entry[:i], entry[i+1:]
		}
		if _, err := conn.Subscribe(symbol, exchange); err != nil {
			logger.Error("failed to subscribe", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		conn.Close()
	}()

	for ev := range conn.Events() {
		switch e := ev.(type) {
		case dtc.ReadyEvent:
			logger.Info("ready",
				zap.String("server", e.ServerName),
				zap.String("accept_reason", e.Reason.String()),
			)
		case dtc.SnapshotEvent:
			logger.Info("snapshot",
				zap.String("symbol", e.Symbol),
				zap.Float64("last", e.Quote.LastPrice.Float64),
				zap.Float64("bid", e.Quote.BidPrice.Float64),
				zap.Float64("ask", e.Quote.AskPrice.Float64),
			)
		case dtc.TradeEvent:
			logger.Info("trade",
				zap.String("symbol", e.Symbol),
				zap.Float64("price", e.Price),
				zap.Float64("volume", e.Volume),
			)
		case dtc.BidAskEvent:
			logger.Info("bidask",
				zap.String("symbol", e.Symbol),
				zap.Float64("bid", e.Bid),
				zap.Float64("ask", e.Ask),
			)
		case dtc.RejectEvent:
			logger.Warn("reject",
				zap.String("symbol", e.Symbol),
				zap.String("reason", e.Reason),
			)
		case dtc.DisconnectedEvent:
			if e.Err != nil {
				logger.Error("disconnected", zap.Error(e.Err))
			} else {
				logger.Info("disconnected")
			}
		}
	}
}
