package viewgen

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aurora-erp/aurora-erp/internal/listing"
	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/render"
	"github.com/aurora-erp/aurora-erp/internal/shared"
)

type fakeSchemas struct {
	schema meta.EntitySchema
}

func (f fakeSchemas) Entity(_ context.Context, name string) (meta.EntitySchema, error) {
	if name != f.schema.Entity.Name {
		return meta.EntitySchema{}, &shared.ConfigurationError{Kind: "entity", Name: name}
	}
	return f.schema, nil
}

type fakeData struct {
	list    listing.ListResult
	record  map[string]any
	listErr error
	recErr  error
}

func (f fakeData) FetchList(context.Context, shared.Actor, string, map[string]any, listing.Sort, int, int) (listing.ListResult, error) {
	return f.list, f.listErr
}

func (f fakeData) FetchRecord(context.Context, shared.Actor, string, string, meta.ViewKind) (map[string]any, error) {
	return f.record, f.recErr
}

type fakeTemplates struct {
	bodies map[meta.ViewKind]string
	hit    bool
}

func (f fakeTemplates) Active(_ context.Context, entityID uuid.UUID, view meta.ViewKind) (*render.Program, render.Template, render.CacheOutcome, error) {
	body, ok := f.bodies[view]
	if !ok {
		return nil, render.Template{}, render.CacheOutcome{}, &shared.ConfigurationError{Kind: "template", Name: string(view)}
	}
	program, err := render.Parse(body)
	if err != nil {
		return nil, render.Template{}, render.CacheOutcome{}, err
	}
	return program, render.Template{EntityID: entityID, View: view, Version: 1, Body: body},
		render.CacheOutcome{TemplateCacheHit: f.hit}, nil
}

type captureSink struct {
	entries []GenerationLog
}

func (s *captureSink) Record(_ context.Context, entry GenerationLog) error {
	s.entries = append(s.entries, entry)
	return nil
}

type failingSink struct{ calls int }

func (s *failingSink) Record(context.Context, GenerationLog) error {
	s.calls++
	return errors.New("queue down")
}

func supplierSchema() meta.EntitySchema {
	return meta.NewEntitySchema(
		meta.EntityType{ID: uuid.New(), Name: "supplier", Table: "suppliers", PrimaryKey: "id", DisplayName: "Suppliers"},
		[]meta.FieldDefinition{
			{Name: "id", Column: "id", Type: meta.FieldText},
			{Name: "name", Column: "name", Type: meta.FieldText},
		},
	)
}

func TestRenderListComposesTemplateAndData(t *testing.T) {
	sink := &captureSink{}
	gen := NewGenerator(
		fakeSchemas{schema: supplierSchema()},
		fakeData{list: listing.ListResult{
			Records: []map[string]any{
				{"name": "Initech"},
				{"name": "Globex & Co"},
			},
			Pagination: shared.NewPagination(1, 20, 100, 2),
		}},
		fakeTemplates{bodies: map[meta.ViewKind]string{
			meta.ViewList: `<h1>{{entity}}</h1><ul>{{#records}}<li>{{name}}</li>{{/records}}</ul><p>{{total}} total</p>`,
		}, hit: true},
		sink, nil,
	)

	out, err := gen.RenderList(context.Background(), shared.Actor{UserID: uuid.New()}, ListRequest{Entity: "supplier"})
	require.NoError(t, err)
	require.Equal(t,
		`<h1>Suppliers</h1><ul><li>Initech</li><li>Globex &amp; Co</li></ul><p>2 total</p>`,
		out.HTML)
	require.True(t, out.TemplateCacheHit)

	require.Len(t, sink.entries, 1)
	require.True(t, sink.entries[0].Success)
	require.Equal(t, meta.ViewList, sink.entries[0].View)
	require.Equal(t, 2, sink.entries[0].RowCount)
	require.True(t, sink.entries[0].TemplateCacheHit)
}

func TestRenderFormDetailView(t *testing.T) {
	gen := NewGenerator(
		fakeSchemas{schema: supplierSchema()},
		fakeData{record: map[string]any{"id": "abc", "name": "Initech"}},
		fakeTemplates{bodies: map[meta.ViewKind]string{
			meta.ViewView: `<dl><dt>Name</dt><dd>{{name}}</dd><dd>{{record.name}}</dd></dl>`,
		}},
		nil, nil,
	)

	out, err := gen.RenderForm(context.Background(), shared.Actor{}, "supplier", "abc", meta.ViewView)
	require.NoError(t, err)
	require.Equal(t, `<dl><dt>Name</dt><dd>Initech</dd><dd>Initech</dd></dl>`, out.HTML)
}

func TestRenderFormCreateUsesEmptyRecord(t *testing.T) {
	gen := NewGenerator(
		fakeSchemas{schema: supplierSchema()},
		fakeData{recErr: errors.New("must not be called")},
		fakeTemplates{bodies: map[meta.ViewKind]string{
			meta.ViewCreate: `<input value="{{name}}">`,
		}},
		nil, nil,
	)

	out, err := gen.RenderForm(context.Background(), shared.Actor{}, "supplier", "", meta.ViewCreate)
	require.NoError(t, err)
	require.Equal(t, `<input value="">`, out.HTML)
}

func TestRenderFormRejectsListViewKind(t *testing.T) {
	gen := NewGenerator(fakeSchemas{schema: supplierSchema()}, fakeData{}, fakeTemplates{}, nil, nil)
	_, err := gen.RenderForm(context.Background(), shared.Actor{}, "supplier", "abc", meta.ViewList)
	require.True(t, shared.IsValidation(err))
}

func TestFailedRenderIsLoggedWithErrorClass(t *testing.T) {
	sink := &captureSink{}
	gen := NewGenerator(
		fakeSchemas{schema: supplierSchema()},
		fakeData{listErr: &shared.AuthorizationError{Entity: "supplier", Action: shared.ActionRead}},
		fakeTemplates{},
		sink, nil,
	)

	_, err := gen.RenderList(context.Background(), shared.Actor{}, ListRequest{Entity: "supplier"})
	require.Error(t, err)

	require.Len(t, sink.entries, 1)
	require.False(t, sink.entries[0].Success)
	require.Equal(t, "authorization", sink.entries[0].ErrorClass)
}

func TestErrorFragmentNeverLeaksBackendDetail(t *testing.T) {
	backend := &shared.BackendError{Op: "select", Err: errors.New("pq: relation suppliers_v2 does not exist")}
	fragment := ErrorFragment(backend)
	require.NotContains(t, fragment, "suppliers_v2")
	require.Contains(t, fragment, "Something went wrong")

	auth := ErrorFragment(&shared.AuthorizationError{Entity: "supplier", Action: "read"})
	require.Contains(t, auth, "permission")

	validation := ErrorFragment(shared.NewValidationError("status_gte", "value does not match field type"))
	require.Contains(t, validation, "status_gte")
}

func TestBestEffortSinkFallsThrough(t *testing.T) {
	primary := &failingSink{}
	secondary := &captureSink{}
	sink := NewBestEffortSink(slog.New(slog.DiscardHandler), primary, secondary)

	require.NoError(t, sink.Record(context.Background(), GenerationLog{Entity: "supplier"}))
	require.Equal(t, 1, primary.calls)
	require.Len(t, secondary.entries, 1)

	// Even with every sink down, recording does not fail the caller.
	exhausted := NewBestEffortSink(slog.New(slog.DiscardHandler), &failingSink{}, &failingSink{})
	require.NoError(t, exhausted.Record(context.Background(), GenerationLog{Entity: "supplier"}))
}
