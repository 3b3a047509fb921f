package viewgen

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-erp/aurora-erp/internal/listing"
	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/observability"
	"github.com/aurora-erp/aurora-erp/internal/render"
	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// SchemaSource resolves entity schemas by name.
type SchemaSource interface {
	Entity(ctx context.Context, name string) (meta.EntitySchema, error)
}

// DataService is the slice of the listing service the generator consumes.
type DataService interface {
	FetchList(ctx context.Context, actor shared.Actor, entityName string, filters map[string]any, sort listing.Sort, page, pageSize int) (listing.ListResult, error)
	FetchRecord(ctx context.Context, actor shared.Actor, entityName, id string, view meta.ViewKind) (map[string]any, error)
}

// TemplateStore serves parsed active templates.
type TemplateStore interface {
	Active(ctx context.Context, entityID uuid.UUID, view meta.ViewKind) (*render.Program, render.Template, render.CacheOutcome, error)
}

// Output is one generated view.
type Output struct {
	HTML             string
	Entity           string
	View             meta.ViewKind
	TemplateCacheHit bool
	Elapsed          time.Duration
}

// ListRequest carries the list view parameters after transport decoding.
type ListRequest struct {
	Entity   string
	Filters  map[string]any
	Sort     listing.Sort
	Page     int
	PageSize int
}

// Generator composes schema, permissions, data and templates into HTML. The
// generation log is best effort; metrics and logging never fail a render.
type Generator struct {
	schemas   SchemaSource
	data      DataService
	templates TemplateStore
	sink      Sink
	metrics   *observability.Metrics
}

// NewGenerator constructs a Generator. sink and metrics may be nil.
func NewGenerator(schemas SchemaSource, data DataService, templates TemplateStore, sink Sink, metrics *observability.Metrics) *Generator {
	return &Generator{schemas: schemas, data: data, templates: templates, sink: sink, metrics: metrics}
}

// RenderList produces the list view for an entity.
func (g *Generator) RenderList(ctx context.Context, actor shared.Actor, req ListRequest) (Output, error) {
	start := time.Now()
	out, hit, rows, err := g.renderList(ctx, actor, req)
	return g.finish(ctx, actor, req.Entity, meta.ViewList, out, hit, rows, start, err)
}

func (g *Generator) renderList(ctx context.Context, actor shared.Actor, req ListRequest) (string, bool, int, error) {
	schema, err := g.schemas.Entity(ctx, req.Entity)
	if err != nil {
		return "", false, 0, err
	}
	result, err := g.data.FetchList(ctx, actor, req.Entity, req.Filters, req.Sort, req.Page, req.PageSize)
	if err != nil {
		return "", false, 0, err
	}
	program, _, outcome, err := g.templates.Active(ctx, schema.Entity.ID, meta.ViewList)
	if err != nil {
		return "", false, 0, err
	}

	data := map[string]any{
		"entity":      schema.Entity.DisplayName,
		"records":     result.Records,
		"page":        result.Pagination.Page,
		"per_page":    result.Pagination.PerPage,
		"total":       result.Pagination.Total,
		"total_pages": result.Pagination.TotalPages,
	}
	return program.Render(data), outcome.TemplateCacheHit, len(result.Records), nil
}

// RenderForm produces a create, edit or detail view. Create views render
// against an empty record; edit and detail views load the row first, so a
// missing record fails before any markup is produced.
func (g *Generator) RenderForm(ctx context.Context, actor shared.Actor, entityName, id string, view meta.ViewKind) (Output, error) {
	start := time.Now()
	out, hit, rows, err := g.renderForm(ctx, actor, entityName, id, view)
	return g.finish(ctx, actor, entityName, view, out, hit, rows, start, err)
}

func (g *Generator) renderForm(ctx context.Context, actor shared.Actor, entityName, id string, view meta.ViewKind) (string, bool, int, error) {
	switch view {
	case meta.ViewCreate, meta.ViewEdit, meta.ViewView:
	default:
		return "", false, 0, shared.NewValidationError("view", "unknown view kind")
	}

	schema, err := g.schemas.Entity(ctx, entityName)
	if err != nil {
		return "", false, 0, err
	}

	rows := 0
	record := map[string]any{}
	if view != meta.ViewCreate {
		record, err = g.data.FetchRecord(ctx, actor, entityName, id, view)
		if err != nil {
			return "", false, 0, err
		}
		rows = 1
	}

	program, _, outcome, err := g.templates.Active(ctx, schema.Entity.ID, view)
	if err != nil {
		return "", false, 0, err
	}

	// Record fields are addressable both bare ({{name}}) and through the
	// record prefix ({{record.name}}).
	data := make(map[string]any, len(record)+2)
	for key, value := range record {
		data[key] = value
	}
	data["entity"] = schema.Entity.DisplayName
	data["record"] = record
	return program.Render(data), outcome.TemplateCacheHit, rows, nil
}

func (g *Generator) finish(ctx context.Context, actor shared.Actor, entity string, view meta.ViewKind, html string, hit bool, rows int, start time.Time, err error) (Output, error) {
	elapsed := time.Since(start)
	outcome := "success"
	if err != nil {
		outcome = ErrorClass(err)
	}
	g.metrics.ObserveRender(entity, string(view), outcome, elapsed)
	if g.sink != nil {
		_ = g.sink.Record(ctx, GenerationLog{
			ID:               uuid.New(),
			Entity:           entity,
			View:             view,
			ActorID:          actor.UserID,
			Success:          err == nil,
			ErrorClass:       errorClassOrEmpty(err),
			RowCount:         rows,
			TemplateCacheHit: hit,
			DurationMS:       elapsed.Milliseconds(),
			CreatedAt:        time.Now(),
		})
	}
	if err != nil {
		return Output{}, err
	}
	return Output{HTML: html, Entity: entity, View: view, TemplateCacheHit: hit, Elapsed: elapsed}, nil
}

// ErrorClass buckets an error for metrics and logging.
func ErrorClass(err error) string {
	var (
		ve *shared.ValidationError
		ae *shared.AuthorizationError
		nf *shared.NotFoundError
		ce *shared.ConfigurationError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &ae):
		return "authorization"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &ce):
		return "configuration"
	default:
		return "backend"
	}
}

func errorClassOrEmpty(err error) string {
	if err == nil {
		return ""
	}
	return ErrorClass(err)
}

// ErrorFragment renders a user-safe HTML fragment for a failed generation.
// Validation messages are client-fixable and pass through escaped; backend
// detail never reaches the page.
func ErrorFragment(err error) string {
	switch ErrorClass(err) {
	case "validation":
		return fmt.Sprintf(`<div class="view-error">Invalid request: %s</div>`, html.EscapeString(err.Error()))
	case "authorization":
		return `<div class="view-error">You do not have permission to view this.</div>`
	case "not_found":
		return `<div class="view-error">The requested record was not found.</div>`
	case "configuration":
		return `<div class="view-error">This view is not configured. Contact an administrator.</div>`
	default:
		return `<div class="view-error">Something went wrong. Please try again.</div>`
	}
}
