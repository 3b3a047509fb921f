package meta

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aurora-erp/aurora-erp/internal/shared"
)

type stubLoader struct {
	schemas map[string]EntitySchema
	calls   int
}

func (s *stubLoader) LoadSchema(ctx context.Context, name string) (EntitySchema, error) {
	s.calls++
	schema, ok := s.schemas[name]
	if !ok {
		return EntitySchema{}, &shared.ConfigurationError{Kind: "entity type", Name: name}
	}
	return schema, nil
}

func testSchema(name string) EntitySchema {
	entityID := uuid.New()
	return NewEntitySchema(
		EntityType{ID: entityID, Name: name, Table: name + "s", PrimaryKey: "id", DisplayName: name},
		[]FieldDefinition{
			{ID: uuid.New(), EntityID: entityID, Name: "id", Column: "id", Type: FieldLookup, Ordinal: 0},
			{ID: uuid.New(), EntityID: entityID, Name: "order_number", Column: "order_number", Type: FieldText, Ordinal: 1},
		},
	)
}

func TestRegistryReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	loader := &stubLoader{schemas: map[string]EntitySchema{"purchase_order": testSchema("purchase_order")}}
	registry := NewRegistry(loader, client, time.Minute, nil)
	ctx := context.Background()

	first, err := registry.Entity(ctx, "purchase_order")
	require.NoError(t, err)
	require.Equal(t, "purchase_orders", first.Entity.Table)
	require.Equal(t, 1, loader.calls)

	second, err := registry.Entity(ctx, "purchase_order")
	require.NoError(t, err)
	require.Equal(t, first.Entity.ID, second.Entity.ID)
	require.Equal(t, 1, loader.calls, "second read must hit the cache")

	field, ok := second.Field("order_number")
	require.True(t, ok, "field index must survive the cache round trip")
	require.Equal(t, FieldText, field.Type)
}

func TestRegistryInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	loader := &stubLoader{schemas: map[string]EntitySchema{"supplier": testSchema("supplier")}}
	registry := NewRegistry(loader, client, time.Minute, nil)
	ctx := context.Background()

	_, err := registry.Entity(ctx, "supplier")
	require.NoError(t, err)
	require.NoError(t, registry.Invalidate(ctx, "supplier"))

	_, err = registry.Entity(ctx, "supplier")
	require.NoError(t, err)
	require.Equal(t, 2, loader.calls, "invalidation must force a reload")
}

func TestRegistryUnknownEntity(t *testing.T) {
	loader := &stubLoader{schemas: map[string]EntitySchema{}}
	registry := NewRegistry(loader, nil, time.Minute, nil)

	_, err := registry.Entity(context.Background(), "ghost")
	var cfgErr *shared.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestDisplayLabelFallback(t *testing.T) {
	f := FieldDefinition{Name: "total_amount"}
	require.Equal(t, "Total Amount", f.DisplayLabel())

	f.Label = "Grand Total"
	require.Equal(t, "Grand Total", f.DisplayLabel())
}
