// Worker relays front-desk telemetry events (device requests, forced sign-outs, shift conflicts,
// blocked logouts) from Kafka to Loki.
// Set KAFKA_BROKERS, LOKI_URL and optionally TELEMETRY_KAFKA_TOPIC and KAFKA_GROUP_ID.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"gym-frontdesk/backend/internal/config"
	"gym-frontdesk/backend/internal/telemetry/loki"
)

const (
	batchSize   = 100
	batchWait   = time.Second
	pushTimeout = 10 * time.Second
	retryDelay  = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	brokers := cfg.TelemetryKafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	client, err := loki.NewClient(cfg.LokiURL)
	if err != nil {
		log.Fatalf("worker: LOKI_URL: %v", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.TelemetryKafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  batchWait,
	})
	defer reader.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("worker: consuming %s (group %s), pushing to %s", cfg.TelemetryKafkaTopic, cfg.KafkaGroupID, cfg.LokiURL)
	for ctx.Err() == nil {
		batch, err := fetchBatch(ctx, reader)
		if len(batch) == 0 {
			if err != nil && ctx.Err() == nil {
				log.Printf("worker: kafka fetch: %v", err)
				sleep(ctx, retryDelay)
			}
			continue
		}
		// The reader does not refetch uncommitted offsets, so a failed batch is retried in place.
		for {
			err := push(ctx, client, batch)
			if err == nil || ctx.Err() != nil {
				break
			}
			log.Printf("worker: loki push of %d events failed: %v", len(batch), err)
			sleep(ctx, retryDelay)
		}
		if ctx.Err() != nil {
			break
		}
		if err := reader.CommitMessages(ctx, batch...); err != nil && ctx.Err() == nil {
			log.Printf("worker: commit: %v", err)
		}
	}
	log.Println("worker: stopped")
}

// fetchBatch returns up to batchSize messages, stopping early once batchWait passes after the first.
func fetchBatch(ctx context.Context, reader *kafka.Reader) ([]kafka.Message, error) {
	msg, err := reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := []kafka.Message{msg}
	waitCtx, cancel := context.WithTimeout(ctx, batchWait)
	defer cancel()
	for len(batch) < batchSize {
		msg, err := reader.FetchMessage(waitCtx)
		if err != nil {
			break
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

func push(ctx context.Context, client *loki.Client, batch []kafka.Message) error {
	now := time.Now().UTC()
	entries := make([]loki.Entry, 0, len(batch))
	for _, m := range batch {
		entries = append(entries, loki.EntryFromEvent(m.Value, now))
	}
	pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()
	return client.Push(pushCtx, entries...)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
