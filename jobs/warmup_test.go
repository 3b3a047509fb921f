package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/render"
	"github.com/aurora-erp/aurora-erp/internal/shared"
	"github.com/aurora-erp/aurora-erp/internal/viewgen"
)

type stubSchemas struct {
	known map[string]meta.EntitySchema
	calls []string
}

func (s *stubSchemas) Entity(_ context.Context, name string) (meta.EntitySchema, error) {
	s.calls = append(s.calls, name)
	schema, ok := s.known[name]
	if !ok {
		return meta.EntitySchema{}, &shared.ConfigurationError{Kind: "entity", Name: name}
	}
	return schema, nil
}

type stubTemplates struct {
	calls int
}

func (s *stubTemplates) Active(context.Context, uuid.UUID, meta.ViewKind) (*render.Program, render.Template, render.CacheOutcome, error) {
	s.calls++
	// Only half the views are configured; that must not fail the job.
	if s.calls%2 == 0 {
		return nil, render.Template{}, render.CacheOutcome{}, &shared.ConfigurationError{Kind: "template", Name: "missing"}
	}
	program, _ := render.Parse("<p>ok</p>")
	return program, render.Template{}, render.CacheOutcome{}, nil
}

func TestCacheWarmupTouchesEveryEntityAndView(t *testing.T) {
	schemas := &stubSchemas{known: map[string]meta.EntitySchema{
		"supplier": meta.NewEntitySchema(meta.EntityType{ID: uuid.New(), Name: "supplier"}, nil),
		"payment":  meta.NewEntitySchema(meta.EntityType{ID: uuid.New(), Name: "payment"}, nil),
	}}
	templates := &stubTemplates{}
	job := NewCacheWarmupJob(schemas, templates, slog.New(slog.DiscardHandler))

	task, err := NewCacheWarmupTask([]string{"supplier", "unknown", "payment"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, []string{"supplier", "unknown", "payment"}, schemas.calls)
	// The unknown entity is skipped before any template load.
	require.Equal(t, 2*len(meta.ViewKinds()), templates.calls)
}

func TestCacheWarmupDropsMalformedPayload(t *testing.T) {
	job := NewCacheWarmupJob(&stubSchemas{}, &stubTemplates{}, slog.New(slog.DiscardHandler))
	err := job.Handle(context.Background(), asynq.NewTask(TaskCacheWarmup, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type recordingSink struct {
	entries []viewgen.GenerationLog
	err     error
}

func (s *recordingSink) Record(_ context.Context, entry viewgen.GenerationLog) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func TestGenerationLogJobPersistsEntry(t *testing.T) {
	sink := &recordingSink{}
	job := NewGenerationLogJob(sink, slog.New(slog.DiscardHandler))

	entry := viewgen.GenerationLog{ID: uuid.New(), Entity: "supplier", Success: true}
	payload, err := json.Marshal(entry)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(viewgen.TaskGenerationLog, payload)))
	require.Len(t, sink.entries, 1)
	require.Equal(t, entry.ID, sink.entries[0].ID)
}

func TestGenerationLogJobRetriesOnSinkFailure(t *testing.T) {
	sink := &recordingSink{err: errors.New("pg down")}
	job := NewGenerationLogJob(sink, slog.New(slog.DiscardHandler))

	payload, _ := json.Marshal(viewgen.GenerationLog{ID: uuid.New()})
	err := job.Handle(context.Background(), asynq.NewTask(viewgen.TaskGenerationLog, payload))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestGenerationLogJobDropsMalformedPayload(t *testing.T) {
	job := NewGenerationLogJob(&recordingSink{}, slog.New(slog.DiscardHandler))
	err := job.Handle(context.Background(), asynq.NewTask(viewgen.TaskGenerationLog, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
