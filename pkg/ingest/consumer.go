package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/rs/zerolog/log"
	"github.com/transitrack/transitrack/pkg/fleet"
	"github.com/transitrack/transitrack/pkg/redis_client"
)

const numConsumers = 5
const batchSize = 200

const telemetryQueueName = "telemetry-queue"

// CreateStopCache builds the redis-backed nearest-stop memoisation used by
// the pipeline. Requires redis_client.Connect to have run.
func CreateStopCache() *cache.Cache[string] {
	redisStore := redisstore.NewRedis(redis_client.Client, store.WithExpiration(90*time.Minute))

	return cache.New[string](redisStore)
}

// StartConsumers runs the background telemetry queue consumers against the
// shared pipeline.
func StartConsumers(pipeline *Pipeline) error {
	log.Info().Msg("Starting telemetry consumers")

	queue, err := redis_client.QueueConnection.OpenQueue(telemetryQueueName)
	if err != nil {
		return err
	}
	if err := queue.StartConsuming(numConsumers*batchSize, 1*time.Second); err != nil {
		return err
	}

	for i := 0; i < numConsumers; i++ {
		if _, err := queue.AddBatchConsumer(fmt.Sprintf("%s-%d", telemetryQueueName, i), batchSize, 2*time.Second, NewBatchConsumer(pipeline, i)); err != nil {
			return err
		}
	}

	return nil
}

type BatchConsumer struct {
	id       int
	pipeline *Pipeline
}

func NewBatchConsumer(pipeline *Pipeline, id int) *BatchConsumer {
	return &BatchConsumer{id: id, pipeline: pipeline}
}

func (consumer *BatchConsumer) Consume(batch rmq.Deliveries) {
	startTime := time.Now()

	applied := 0
	stale := 0
	rejected := 0

	for _, payload := range batch.Payloads() {
		var event *fleet.TelemetryEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Error().Err(err).Int("consumer", consumer.id).Msg("Failed to decode telemetry event")
			rejected += 1
			continue
		}

		result, err := consumer.pipeline.Ingest(context.Background(), event)
		if err != nil {
			log.Error().Err(err).Str("vehicle", event.VehicleID).Msg("Failed to ingest telemetry event")
			rejected += 1
			continue
		}

		if result.Applied {
			applied += 1
		} else {
			stale += 1
		}
	}

	log.Info().
		Int("consumer", consumer.id).
		Int("applied", applied).
		Int("stale", stale).
		Int("rejected", rejected).
		Str("time", time.Since(startTime).String()).
		Msg("Processed telemetry batch")

	if ackErrors := batch.Ack(); len(ackErrors) > 0 {
		for _, err := range ackErrors {
			log.Error().Err(err).Msg("Failed to ack telemetry batch")
		}
	}
}
