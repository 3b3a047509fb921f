package viewgen

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurora-erp/aurora-erp/internal/meta"
)

// TaskGenerationLog is the asynq task type carrying one generation log entry.
const TaskGenerationLog = "viewgen:generation_log"

// GenerationLog records one view generation attempt: who asked for what,
// whether it worked, and how long it took.
type GenerationLog struct {
	ID               uuid.UUID     `json:"id"`
	Entity           string        `json:"entity"`
	View             meta.ViewKind `json:"view"`
	ActorID          uuid.UUID     `json:"actor_id"`
	Success          bool          `json:"success"`
	ErrorClass       string        `json:"error_class,omitempty"`
	RowCount         int           `json:"row_count"`
	TemplateCacheHit bool          `json:"template_cache_hit"`
	DurationMS       int64         `json:"duration_ms"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Sink persists generation log entries.
type Sink interface {
	Record(ctx context.Context, entry GenerationLog) error
}

// AsynqSink hands entries to the background worker.
type AsynqSink struct {
	client *asynq.Client
}

// NewAsynqSink constructs an AsynqSink.
func NewAsynqSink(client *asynq.Client) *AsynqSink {
	return &AsynqSink{client: client}
}

func (s *AsynqSink) Record(ctx context.Context, entry GenerationLog) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, asynq.NewTask(TaskGenerationLog, payload), asynq.MaxRetry(3))
	return err
}

// PgSink writes entries straight to the generation_logs table. The worker
// uses it; the generator falls back to it when the queue is unavailable.
type PgSink struct {
	pool *pgxpool.Pool
}

// NewPgSink constructs a PgSink.
func NewPgSink(pool *pgxpool.Pool) *PgSink {
	return &PgSink{pool: pool}
}

func (s *PgSink) Record(ctx context.Context, entry GenerationLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO generation_logs (id, entity, view_kind, actor_id, success, error_class,
		                             row_count, template_cache_hit, duration_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		entry.ID, entry.Entity, entry.View, entry.ActorID, entry.Success, entry.ErrorClass,
		entry.RowCount, entry.TemplateCacheHit, entry.DurationMS, entry.CreatedAt)
	return err
}

// BestEffortSink tries each sink in order until one accepts the entry.
// Logging must never fail a render, so exhausting every sink only warns.
type BestEffortSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewBestEffortSink composes sinks in preference order.
func NewBestEffortSink(logger *slog.Logger, sinks ...Sink) *BestEffortSink {
	return &BestEffortSink{sinks: sinks, logger: logger}
}

func (s *BestEffortSink) Record(ctx context.Context, entry GenerationLog) error {
	var last error
	for _, sink := range s.sinks {
		if err := sink.Record(ctx, entry); err != nil {
			last = err
			continue
		}
		return nil
	}
	if last != nil && s.logger != nil {
		s.logger.Warn("generation log dropped",
			slog.String("entity", entry.Entity),
			slog.Any("error", last),
		)
	}
	return nil
}
