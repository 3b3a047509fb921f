package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/render"
	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// TaskCacheWarmup pre-populates the metadata and template caches so the
// first render after a deploy or cache flush does not pay the cold path.
const TaskCacheWarmup = "cache:warmup"

// CacheWarmupPayload names the entities to warm.
type CacheWarmupPayload struct {
	Entities []string `json:"entities"`
}

// NewCacheWarmupTask constructs the warmup task.
func NewCacheWarmupTask(entities []string) (*asynq.Task, error) {
	data, err := json.Marshal(CacheWarmupPayload{Entities: entities})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheWarmup, data), nil
}

// SchemaWarmer is the metadata registry slice the warmup consumes.
type SchemaWarmer interface {
	Entity(ctx context.Context, name string) (meta.EntitySchema, error)
}

// TemplateWarmer is the template store slice the warmup consumes.
type TemplateWarmer interface {
	Active(ctx context.Context, entityID uuid.UUID, view meta.ViewKind) (*render.Program, render.Template, render.CacheOutcome, error)
}

// CacheWarmupJob loads each entity's schema and every active template
// through the caching layers.
type CacheWarmupJob struct {
	schemas   SchemaWarmer
	templates TemplateWarmer
	logger    *slog.Logger
}

// NewCacheWarmupJob constructs the job.
func NewCacheWarmupJob(schemas SchemaWarmer, templates TemplateWarmer, logger *slog.Logger) *CacheWarmupJob {
	return &CacheWarmupJob{schemas: schemas, templates: templates, logger: logger}
}

// Handle warms one batch of entities. Entities without a template for some
// view kind are normal; only unexpected failures are reported.
func (j *CacheWarmupJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload CacheWarmupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	for _, name := range payload.Entities {
		schema, err := j.schemas.Entity(ctx, name)
		if err != nil {
			j.logger.Warn("warmup schema", slog.String("entity", name), slog.Any("error", err))
			continue
		}
		for _, view := range meta.ViewKinds() {
			_, _, _, err := j.templates.Active(ctx, schema.Entity.ID, view)
			if err == nil {
				continue
			}
			var cfgErr *shared.ConfigurationError
			if errors.As(err, &cfgErr) {
				continue
			}
			j.logger.Warn("warmup template",
				slog.String("entity", name),
				slog.String("view", string(view)),
				slog.Any("error", err),
			)
		}
	}
	return nil
}
