package listing

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aurora-erp/aurora-erp/internal/filter"
	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/permission"
	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// SchemaSource resolves entity schemas by name.
type SchemaSource interface {
	Entity(ctx context.Context, name string) (meta.EntitySchema, error)
}

// CapabilityResolver is the slice of the permission resolver this service
// consumes.
type CapabilityResolver interface {
	FieldCapabilities(ctx context.Context, actor shared.Actor, schema meta.EntitySchema, view meta.ViewKind) ([]permission.FieldCapability, error)
	CanPerformAction(ctx context.Context, actor shared.Actor, schema meta.EntitySchema, action string, record map[string]any) (bool, error)
}

// DataSource executes projected, predicated queries against storage.
type DataSource interface {
	Select(ctx context.Context, q Query) ([]map[string]any, error)
	Count(ctx context.Context, q Query) (int, error)
}

// Sort carries the requested ordering before validation.
type Sort struct {
	Field     string
	Direction string
}

// Query is the fully validated request handed to the data source. Columns
// and sort are resolved from configuration, never from raw user strings.
type Query struct {
	Schema         meta.EntitySchema
	Fields         []meta.FieldDefinition
	Lookups        []LookupJoin
	Predicates     []filter.Predicate
	SortColumn     string
	SortDesc       bool
	Limit          int
	Offset         int
	IncludeDeleted bool
}

// LookupJoin projects the display column of a referenced entity.
type LookupJoin struct {
	Field         meta.FieldDefinition
	Table         string
	KeyColumn     string
	DisplayColumn string
}

// ListResult is a permission-filtered page of records.
type ListResult struct {
	Records    []map[string]any
	Pagination shared.Pagination
}

// Service returns paginated, permission-filtered records. Denied fields are
// stripped before serialization, not merely hidden by the template.
type Service struct {
	schemas     SchemaSource
	resolver    CapabilityResolver
	source      DataSource
	maxPageSize int
}

// NewService constructs the data service.
func NewService(schemas SchemaSource, resolver CapabilityResolver, source DataSource, maxPageSize int) *Service {
	if maxPageSize < 1 {
		maxPageSize = 100
	}
	return &Service{schemas: schemas, resolver: resolver, source: source, maxPageSize: maxPageSize}
}

// FetchList returns one page of records plus a total count computed against
// the identical predicate set.
func (s *Service) FetchList(ctx context.Context, actor shared.Actor, entityName string, filters map[string]any, sort Sort, page, pageSize int) (ListResult, error) {
	schema, visible, err := s.prepare(ctx, actor, entityName, meta.ViewList)
	if err != nil {
		return ListResult{}, err
	}

	if err := rejectHiddenFilters(schema, visible, filters); err != nil {
		return ListResult{}, err
	}

	preds, err := filter.Compile(schema, filters)
	if err != nil {
		return ListResult{}, err
	}

	sortColumn, sortDesc, err := resolveSort(schema, visible, sort)
	if err != nil {
		return ListResult{}, err
	}

	pagination := shared.NewPagination(page, pageSize, s.maxPageSize, 0)
	query := Query{
		Schema:     schema,
		Fields:     visibleFields(visible),
		Lookups:    s.lookupJoins(ctx, schema, visible),
		Predicates: preds,
		SortColumn: sortColumn,
		SortDesc:   sortDesc,
		Limit:      pagination.PerPage,
		Offset:     pagination.Offset(),
	}

	var (
		records []map[string]any
		total   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.source.Select(gctx, query)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.source.Count(gctx, query)
		return err
	})
	if err := g.Wait(); err != nil {
		return ListResult{}, err
	}

	return ListResult{
		Records:    records,
		Pagination: shared.NewPagination(pagination.Page, pagination.PerPage, s.maxPageSize, total),
	}, nil
}

// FetchRecord returns a single row under the same permission and projection
// discipline as FetchList. Soft-deleted rows are not found.
func (s *Service) FetchRecord(ctx context.Context, actor shared.Actor, entityName, id string, view meta.ViewKind) (map[string]any, error) {
	return s.fetchOne(ctx, actor, entityName, id, view, false)
}

// FetchRecordAnyState bypasses the soft-delete clause. It exists solely for
// the restore path and direct administrative access.
func (s *Service) FetchRecordAnyState(ctx context.Context, actor shared.Actor, entityName, id string, view meta.ViewKind) (map[string]any, error) {
	return s.fetchOne(ctx, actor, entityName, id, view, true)
}

func (s *Service) fetchOne(ctx context.Context, actor shared.Actor, entityName, id string, view meta.ViewKind, includeDeleted bool) (map[string]any, error) {
	schema, visible, err := s.prepare(ctx, actor, entityName, view)
	if err != nil {
		return nil, err
	}

	preds, err := filter.Compile(schema, map[string]any{schema.Entity.PrimaryKey: id})
	if err != nil {
		return nil, err
	}

	query := Query{
		Schema:         schema,
		Fields:         visibleFields(visible),
		Lookups:        s.lookupJoins(ctx, schema, visible),
		Predicates:     preds,
		SortColumn:     schema.Entity.PrimaryKey,
		Limit:          1,
		IncludeDeleted: includeDeleted,
	}
	records, err := s.source.Select(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &shared.NotFoundError{Entity: entityName, ID: id}
	}
	return records[0], nil
}

func (s *Service) prepare(ctx context.Context, actor shared.Actor, entityName string, view meta.ViewKind) (meta.EntitySchema, []permission.FieldCapability, error) {
	schema, err := s.schemas.Entity(ctx, entityName)
	if err != nil {
		return meta.EntitySchema{}, nil, err
	}

	allowed, err := s.resolver.CanPerformAction(ctx, actor, schema, shared.ActionRead, nil)
	if err != nil {
		return meta.EntitySchema{}, nil, err
	}
	if !allowed {
		return meta.EntitySchema{}, nil, &shared.AuthorizationError{Entity: entityName, Action: shared.ActionRead}
	}

	caps, err := s.resolver.FieldCapabilities(ctx, actor, schema, view)
	if err != nil {
		return meta.EntitySchema{}, nil, err
	}
	visible := caps[:0:0]
	for _, c := range caps {
		if c.Visible {
			visible = append(visible, c)
		}
	}
	if len(visible) == 0 {
		return meta.EntitySchema{}, nil, &shared.AuthorizationError{Entity: entityName, Action: shared.ActionRead}
	}
	return schema, visible, nil
}

func (s *Service) lookupJoins(ctx context.Context, schema meta.EntitySchema, visible []permission.FieldCapability) []LookupJoin {
	var joins []LookupJoin
	for _, c := range visible {
		f := c.Field
		if f.Type != meta.FieldLookup || f.LookupEntity == "" || f.Name == schema.Entity.PrimaryKey {
			continue
		}
		target, err := s.schemas.Entity(ctx, f.LookupEntity)
		if err != nil {
			// A dangling lookup reference degrades to the raw ID column.
			continue
		}
		display, ok := target.Field(f.LookupDisplayField)
		if !ok {
			continue
		}
		joins = append(joins, LookupJoin{
			Field:         f,
			Table:         target.Entity.Table,
			KeyColumn:     target.Entity.PrimaryKey,
			DisplayColumn: display.Column,
		})
	}
	return joins
}

func visibleFields(visible []permission.FieldCapability) []meta.FieldDefinition {
	fields := make([]meta.FieldDefinition, 0, len(visible))
	for _, c := range visible {
		fields = append(fields, c.Field)
	}
	return fields
}

// rejectHiddenFilters refuses filters against fields the actor cannot see.
// Letting them run would leak data through result-set shape.
func rejectHiddenFilters(schema meta.EntitySchema, visible []permission.FieldCapability, filters map[string]any) error {
	if len(filters) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(visible))
	for _, c := range visible {
		allowed[c.Field.Name] = struct{}{}
	}
	for key := range filters {
		name := filter.BaseField(key)
		if _, ok := schema.Field(name); !ok {
			return shared.NewValidationError(key, "unknown filter field")
		}
		if _, ok := allowed[name]; !ok {
			return shared.NewValidationError(key, "field not available")
		}
	}
	return nil
}

func resolveSort(schema meta.EntitySchema, visible []permission.FieldCapability, sort Sort) (string, bool, error) {
	desc := false
	switch strings.ToUpper(strings.TrimSpace(sort.Direction)) {
	case "", "ASC":
	case "DESC":
		desc = true
	default:
		return "", false, shared.NewValidationError("sort", "direction must be ASC or DESC")
	}

	if sort.Field == "" {
		return schema.Entity.PrimaryKey, desc, nil
	}
	field, ok := schema.Field(sort.Field)
	if !ok {
		return "", false, shared.NewValidationError("sort", "unknown sort field")
	}
	for _, c := range visible {
		if c.Field.Name == sort.Field {
			return field.Column, desc, nil
		}
	}
	return "", false, shared.NewValidationError("sort", "field not available")
}
