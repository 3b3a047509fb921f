package permission

import (
	"context"

	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// SchemaSource resolves entity names for the gate.
type SchemaSource interface {
	Entity(ctx context.Context, name string) (meta.EntitySchema, error)
}

// Gate adapts the resolver to callers that know entities by name only.
type Gate struct {
	schemas  SchemaSource
	resolver *Resolver
}

// NewGate constructs a Gate.
func NewGate(schemas SchemaSource, resolver *Resolver) *Gate {
	return &Gate{schemas: schemas, resolver: resolver}
}

// Allow reports whether the actor may perform action on the named entity.
func (g *Gate) Allow(ctx context.Context, actor shared.Actor, entityName, action string, record map[string]any) (bool, error) {
	schema, err := g.schemas.Entity(ctx, entityName)
	if err != nil {
		return false, err
	}
	return g.resolver.CanPerformAction(ctx, actor, schema, action, record)
}
