package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/tmaillard/dtc-feed/internal/config"
	"github.com/tmaillard/dtc-feed/internal/dtc"
	"github.com/tmaillard/dtc-feed/internal/feed"
	"github.com/tmaillard/dtc-feed/internal/logging"
	"github.com/tmaillard/dtc-feed/internal/observability"
	"github.com/tmaillard/dtc-feed/internal/quotestore"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig("dtc-feed")

	// Initialize logger
	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting dtc-feed service",
		zap.String("dtc_addr", cfg.DTCAddr()),
		zap.Strings("symbols", cfg.Symbols),
		zap.Bool("kafka_enabled", cfg.KafkaEnabled),
		zap.String("db_path", cfg.DBPath),
	)

	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker(logger)

	// Create gRPC server with the health service
	grpcServer := grpc.NewServer()
	healthChecker.RegisterGRPC(grpcServer)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		logger.Fatal("failed to listen on gRPC port", zap.Error(err))
	}

	grpcErrCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			grpcErrCh <- err
		}
	}()

	// Start HTTP server (healthz + metrics)
	httpErrCh := make(chan error, 1)
	go func() {
		if err := healthChecker.StartHTTPServer(cfg.HTTPAddr()); err != nil && err != http.ErrServerClosed {
			httpErrCh <- err
		}
	}()

	// Optional Kafka sink
	var publisher *feed.Publisher
	if cfg.KafkaEnabled {
		publisher, err = feed.NewPublisher(cfg.KafkaBrokers, logger)
		if err != nil {
			logger.Fatal("failed to create kafka publisher", zap.Error(err))
		}
		defer publisher.Close()
	}

	// Optional sqlite sink
	var store *quotestore.Store
	if cfg.DBPath != "" {
		store, err = quotestore.Open(cfg.DBPath)
		if err != nil {
			logger.Fatal("failed to open quote store", zap.Error(err))
		}
		defer store.Close()
	}

	// Dial the DTC server; blocks until the session is ready or failed
	conn, err := dtc.Dial(context.Background(), dtc.Config{
		Addr:              cfg.DTCAddr(),
		Username:          cfg.DTCUsername,
		Password:          cfg.DTCPassword,
		ClientName:        cfg.DTCClientName,
		PreferBinary:      strings.EqualFold(cfg.DTCEncoding, "binary"),
		HeartbeatInterval: time.Duration(cfg.DTCHeartbeatSecs) * time.Second,
		StrictLogonResult: cfg.DTCStrictLogonResult,
	}, logger)
	if err != nil {
		logger.Fatal("failed to establish DTC session", zap.Error(err))
	}

	healthChecker.SetFeedReady(true)
	metrics.SessionReady.Set(1)

	// Subscribe configured symbols; SYMBOL or SYMBOL@EXCHANGE
	subs := make(map[string]*dtc.Subscription, len(cfg.Symbols))
	for _, entry := range cfg.Symbols {
		symbol, exchange := splitSymbol(entry)
		sub, err := conn.Subscribe(symbol, exchange)
		if err != nil {
			logger.Error("failed to subscribe", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		subs[symbol] = sub
		metrics.ActiveSymbols.Inc()
	}

	// Bridge feed events to the sinks
	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		ctx := context.Background()
		for ev := range conn.Events() {
			switch e := ev.(type) {
			case dtc.SnapshotEvent:
				metrics.EventsTotal.WithLabelValues("snapshot").Inc()
				sinkQuote(ctx, logger, metrics, publisher, store, e.Symbol, e.Quote)
			case dtc.TradeEvent:
				metrics.EventsTotal.WithLabelValues("trade").Inc()
				metrics.LastTradePrice.WithLabelValues(e.Symbol).Set(e.Price)
				if publisher != nil {
					if err := publisher.PublishTrade(ctx, feed.NewTradeMsg(e.Symbol, e.Price, e.Volume)); err != nil {
						metrics.PublishErrors.Inc()
						logger.Error("failed to publish trade", zap.Error(err))
					}
				}
				if store != nil {
					if err := store.AppendTrade(ctx, e.Symbol, e.Price, e.Volume, time.Now()); err != nil {
						metrics.StoreErrors.Inc()
						logger.Error("failed to store trade", zap.Error(err))
					}
				}
				if sub, ok := subs[e.Symbol]; ok {
					sinkQuote(ctx, logger, metrics, publisher, store, e.Symbol, sub.Quote())
				}
			case dtc.BidAskEvent:
				metrics.EventsTotal.WithLabelValues("bidask").Inc()
				if sub, ok := subs[e.Symbol]; ok {
					sinkQuote(ctx, logger, metrics, publisher, store, e.Symbol, sub.Quote())
				}
			case dtc.RejectEvent:
				metrics.EventsTotal.WithLabelValues("reject").Inc()
				metrics.ActiveSymbols.Dec()
				logger.Warn("subscription rejected",
					zap.String("symbol", e.Symbol),
					zap.String("reason", e.Reason),
				)
				if publisher != nil {
					if err := publisher.PublishStatus(ctx, feed.NewStatusMsg("reject", e.Symbol, e.Reason)); err != nil {
						metrics.PublishErrors.Inc()
					}
				}
			case dtc.DisconnectedEvent:
				metrics.EventsTotal.WithLabelValues("disconnected").Inc()
				metrics.SessionReady.Set(0)
				healthChecker.SetFeedReady(false)
				if e.Err != nil {
					logger.Error("DTC session lost", zap.Error(e.Err))
				}
				if publisher != nil {
					detail := ""
					if e.Err != nil {
						detail = e.Err.Error()
					}
					if err := publisher.PublishStatus(ctx, feed.NewStatusMsg("disconnected", "", detail)); err != nil {
						metrics.PublishErrors.Inc()
					}
				}
			}
		}
	}()

	// Wait for interrupt signal or component failure. The session does not
	// reconnect itself; the orchestrator restarts the process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-feedDone:
		logger.Error("DTC session ended")
	case err := <-grpcErrCh:
		logger.Error("gRPC server error", zap.Error(err))
	case err := <-httpErrCh:
		logger.Error("HTTP server error", zap.Error(err))
	}

	// Graceful shutdown
	logger.Info("shutting down gracefully...")

	if err := conn.Close(); err != nil {
		logger.Error("error closing DTC session", zap.Error(err))
	}
	<-feedDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := healthChecker.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down health checker", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("dtc-feed service stopped")
}

func sinkQuote(ctx context.Context, logger *zap.Logger, metrics *observability.Metrics, publisher *feed.Publisher, store *quotestore.Store, symbol string, q dtc.Quote) {
	if publisher != nil {
		if err := publisher.PublishQuote(ctx, feed.NewQuoteMsg(symbol, q)); err != nil {
			metrics.PublishErrors.Inc()
			logger.Error("failed to publish quote", zap.Error(err))
		}
	}
	if store != nil {
		if err := store.UpsertQuote(ctx, symbol, q); err != nil {
			metrics.StoreErrors.Inc()
			logger.Error("failed to store quote", zap.Error(err))
		}
	}
}

// splitSymbol parses SYMBOL or SYMBOL@EXCHANGE.
func splitSymbol(entry string) (string, string) {
	if i := strings.IndexByte(entry, '@'); i >= 0 {
		return entry[:i], entry[i+1:]
	}
	return entry, ""
}
