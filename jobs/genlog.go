package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/aurora-erp/aurora-erp/internal/viewgen"
)

// GenerationLogJob drains queued generation log entries into PostgreSQL.
type GenerationLogJob struct {
	sink   viewgen.Sink
	logger *slog.Logger
}

// NewGenerationLogJob constructs the job.
func NewGenerationLogJob(sink viewgen.Sink, logger *slog.Logger) *GenerationLogJob {
	return &GenerationLogJob{sink: sink, logger: logger}
}

// Handle processes one queued entry. A payload that does not decode will
// never decode, so it is dropped instead of retried.
func (j *GenerationLogJob) Handle(ctx context.Context, task *asynq.Task) error {
	var entry viewgen.GenerationLog
	if err := json.Unmarshal(task.Payload(), &entry); err != nil {
		j.logger.Warn("generation log payload discarded", slog.Any("error", err))
		return asynq.SkipRetry
	}
	if err := j.sink.Record(ctx, entry); err != nil {
		return err
	}
	return nil
}
