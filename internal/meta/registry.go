package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// SchemaLoader abstracts the metadata store for the registry.
type SchemaLoader interface {
	LoadSchema(ctx context.Context, name string) (EntitySchema, error)
}

// Registry is a TTL-bounded read-through cache over entity metadata. Entries
// are invalidated when provisioning writes a configuration change; a stale
// entry is served for at most one TTL window.
type Registry struct {
	loader SchemaLoader
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRegistry constructs a Registry. A nil redis client disables caching.
func NewRegistry(loader SchemaLoader, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Registry {
	return &Registry{loader: loader, client: client, ttl: ttl, logger: logger}
}

type schemaEnvelope struct {
	Entity EntityType        `json:"entity"`
	Fields []FieldDefinition `json:"fields"`
}

func schemaKey(name string) string {
	return fmt.Sprintf("meta:schema:%s", name)
}

// Entity resolves the schema for a named entity type.
func (r *Registry) Entity(ctx context.Context, name string) (EntitySchema, error) {
	if r.client != nil {
		raw, err := r.client.Get(ctx, schemaKey(name)).Bytes()
		if err == nil {
			var env schemaEnvelope
			if err := json.Unmarshal(raw, &env); err == nil {
				return NewEntitySchema(env.Entity, env.Fields), nil
			}
		} else if err != redis.Nil && r.logger != nil {
			r.logger.Warn("meta cache read", slog.Any("error", err))
		}
	}

	schema, err := r.loader.LoadSchema(ctx, name)
	if err != nil {
		return EntitySchema{}, err
	}

	if r.client != nil {
		raw, err := json.Marshal(schemaEnvelope{Entity: schema.Entity, Fields: schema.Fields})
		if err == nil {
			if err := r.client.Set(ctx, schemaKey(name), raw, r.ttl).Err(); err != nil && r.logger != nil {
				r.logger.Warn("meta cache write", slog.Any("error", err))
			}
		}
	}
	return schema, nil
}

// Invalidate removes a cached schema after a configuration write.
func (r *Registry) Invalidate(ctx context.Context, name string) error {
	if r.client == nil {
		return nil
	}
	return r.client.Del(ctx, schemaKey(name)).Err()
}
