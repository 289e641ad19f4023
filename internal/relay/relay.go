// Package relay publishes committed audit events to downstream consumers.
// Events are written in the same transaction as the change they describe and
// are relayed afterwards, so a consumer sees every committed change at least
// once and never one that rolled back.
package relay

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"estate/amenity-service/internal/clock"
	"estate/amenity-service/internal/store"

	"github.com/redis/go-redis/v9"
)

type EventSource interface {
	ListUnpublishedEvents(ctx context.Context, limit int) ([]store.AuditEvent, error)
	MarkEventsPublished(ctx context.Context, eventIDs []string, publishedAt time.Time) error
}

type Publisher interface {
	Publish(ctx context.Context, event store.AuditEvent) error
}

// RedisPublisher appends events to a Redis stream.
type RedisPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

const defaultStreamMaxLen = 100000

func NewRedisPublisher(client redis.Cmdable, stream string, maxLen int64) *RedisPublisher {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisPublisher) Publish(ctx context.Context, event store.AuditEvent) error {
	return p.client.XAdd(ctx, streamArgs(p.stream, p.maxLen, event)).Err()
}

func streamArgs(stream string, maxLen int64, event store.AuditEvent) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: []interface{}{
			"event_id", event.EventID,
			"type", event.Type,
			"building_id", event.BuildingID,
			"entity_type", event.EntityType,
			"entity_id", event.EntityID,
			"entity_seq", strconv.Itoa(event.EntitySeq),
			"actor_id", event.ActorID,
			"created_at", event.CreatedAt.UTC().Format(time.RFC3339Nano),
			"hash", event.Hash,
			"payload", string(event.Payload),
		},
	}
}

type Config struct {
	BatchSize int
	Clock     clock.Clock
	Logger    *slog.Logger
}

type Relay struct {
	source    EventSource
	publisher Publisher
	batchSize int
	clock     clock.Clock
	logger    *slog.Logger
}

func New(source EventSource, publisher Publisher, cfg Config) *Relay {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	r := &Relay{
		source:    source,
		publisher: publisher,
		batchSize: batch,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	if r.clock == nil {
		r.clock = clock.Real()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Run publishes one batch in order. On a publish failure the events already
// sent are marked and the rest are left for the next run.
func (r *Relay) Run(ctx context.Context) (int, error) {
	events, err := r.source.ListUnpublishedEvents(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	published := make([]string, 0, len(events))
	var publishErr error
	for _, event := range events {
		if err := r.publisher.Publish(ctx, event); err != nil {
			publishErr = err
			break
		}
		published = append(published, event.EventID)
	}

	if len(published) > 0 {
		if err := r.source.MarkEventsPublished(ctx, published, r.clock.Now()); err != nil {
			return 0, err
		}
	}
	return len(published), publishErr
}

func Start(ctx context.Context, interval time.Duration, r *Relay) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Run(ctx)
			if err != nil {
				r.logger.Error("relay run failed", "published", n, "error", err)
				continue
			}
			if n > 0 {
				r.logger.Debug("relay published events", "count", n)
			}
		}
	}
}
