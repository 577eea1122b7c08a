package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Publisher bridges DTC feed events onto Kafka topics.
type Publisher struct {
	client       *kgo.Client
	logger       *zap.Logger
	produceCount int64
	errorCount   int64
	stopStats    chan struct{}
}

// NewPublisher creates a Kafka publisher for feed events.
func NewPublisher(brokers []string, logger *zap.Logger) (*Publisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.DisableIdempotentWrite(),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	p := &Publisher{
		client:    client,
		logger:    logger,
		stopStats: make(chan struct{}),
	}

	logger.Info("publisher initialized", zap.Strings("brokers", brokers))
	go p.logStats()

	return p, nil
}

// PublishQuote publishes the latest quote for a symbol, keyed by symbol so
// consumers can compact to latest-per-symbol.
func (p *Publisher) PublishQuote(ctx context.Context, msg QuoteMsg) error {
	return p.produceJSON(ctx, TopicQuotes, msg.Symbol, msg)
}

// PublishTrade publishes one trade print.
func (p *Publisher) PublishTrade(ctx context.Context, msg TradeMsg) error {
	return p.produceJSON(ctx, TopicTrades, msg.Symbol, msg)
}

// PublishStatus publishes a feed lifecycle status change.
func (p *Publisher) PublishStatus(ctx context.Context, msg StatusMsg) error {
	key := msg.Symbol
	if key == "" {
		key = msg.Status
	}
	return p.produceJSON(ctx, TopicStatus, key, msg)
}

func (p *Publisher) produceJSON(ctx context.Context, topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}

	produceCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result := p.client.ProduceSync(produceCtx, record)
	if result.FirstErr() != nil {
		atomic.AddInt64(&p.errorCount, 1)
		return fmt.Errorf("failed to produce message: %w", result.FirstErr())
	}

	atomic.AddInt64(&p.produceCount, 1)
	return nil
}

// Close closes the publisher.
func (p *Publisher) Close() {
	close(p.stopStats)
	if p.client != nil {
		p.client.Close()
	}
}

// logStats logs publisher statistics periodically
func (p *Publisher) logStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			produced := atomic.LoadInt64(&p.produceCount)
			errors := atomic.LoadInt64(&p.errorCount)
			p.logger.Info("publisher stats",
				zap.Int64("produced", produced),
				zap.Int64("errors", errors),
			)
		case <-p.stopStats:
			return
		}
	}
}
