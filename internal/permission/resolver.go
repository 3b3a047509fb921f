package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// Store abstracts the permission configuration tables.
type Store interface {
	RoleExists(ctx context.Context, roleID uuid.UUID) (bool, error)
	FieldPermissions(ctx context.Context, roleID, entityID uuid.UUID, view meta.ViewKind) ([]FieldPermission, error)
	ActionPermissions(ctx context.Context, roleID, entityID uuid.UUID) ([]ActionPermission, error)
}

// Resolver computes field and action capability sets per user, role, entity
// and view kind, with a TTL-bounded redis read-through cache in front of the
// permission tables.
type Resolver struct {
	store  Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewResolver constructs a Resolver. A nil redis client disables caching.
func NewResolver(store Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, client: client, ttl: ttl, logger: logger}
}

func fieldKey(roleID, entityID uuid.UUID, view meta.ViewKind) string {
	return fmt.Sprintf("perm:field:%s:%s:%s", roleID, entityID, view)
}

func actionKey(roleID, entityID uuid.UUID) string {
	return fmt.Sprintf("perm:action:%s:%s", roleID, entityID)
}

// FieldCapabilities resolves, in field ordinal order, which fields the actor
// may see and edit for the given view kind. Fields without a permission row
// default to visible; editability defaults to true everywhere except the
// read-only view kind, and is always capped by visibility.
func (r *Resolver) FieldCapabilities(ctx context.Context, actor shared.Actor, schema meta.EntitySchema, view meta.ViewKind) ([]FieldCapability, error) {
	if !view.Valid() {
		return nil, shared.NewValidationError("view", "unknown view kind")
	}
	if err := r.checkRole(ctx, actor.RoleID); err != nil {
		return nil, err
	}

	var rows []FieldPermission
	err := r.cached(ctx, fieldKey(actor.RoleID, schema.Entity.ID, view), &rows, func(ctx context.Context) (any, error) {
		return r.store.FieldPermissions(ctx, actor.RoleID, schema.Entity.ID, view)
	})
	if err != nil {
		return nil, err
	}

	byField := make(map[uuid.UUID]FieldPermission, len(rows))
	for _, row := range rows {
		byField[row.FieldID] = row
	}

	caps := make([]FieldCapability, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		visible := true
		editable := view != meta.ViewView
		if row, ok := byField[field.ID]; ok {
			visible = row.Visible
			editable = row.Editable
		}
		if !visible {
			// Editability is capped by visibility even when the row says
			// otherwise.
			editable = false
		}
		caps = append(caps, FieldCapability{Field: field, Visible: visible, Editable: editable})
	}
	return caps, nil
}

// CanPerformAction checks the (role, entity, action) rule, applying any
// row-level condition against the supplied record. A missing rule is a deny.
func (r *Resolver) CanPerformAction(ctx context.Context, actor shared.Actor, schema meta.EntitySchema, action string, record map[string]any) (bool, error) {
	if err := r.checkRole(ctx, actor.RoleID); err != nil {
		return false, err
	}

	var rules []ActionPermission
	err := r.cached(ctx, actionKey(actor.RoleID, schema.Entity.ID), &rules, func(ctx context.Context) (any, error) {
		return r.store.ActionPermissions(ctx, actor.RoleID, schema.Entity.ID)
	})
	if err != nil {
		return false, err
	}

	for _, rule := range rules {
		if rule.Action != action {
			continue
		}
		if !rule.Allowed {
			return false, nil
		}
		return rule.Condition.evaluate(record, actor.UserID), nil
	}
	return false, nil
}

// Invalidate drops cached permission sets for a role/entity pair after a
// configuration write.
func (r *Resolver) Invalidate(ctx context.Context, roleID, entityID uuid.UUID) error {
	if r.client == nil {
		return nil
	}
	keys := []string{actionKey(roleID, entityID)}
	for _, view := range meta.ViewKinds() {
		keys = append(keys, fieldKey(roleID, entityID, view))
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Resolver) checkRole(ctx context.Context, roleID uuid.UUID) error {
	if roleID == uuid.Nil {
		return &shared.ConfigurationError{Kind: "role", Name: "(none)"}
	}
	ok, err := r.store.RoleExists(ctx, roleID)
	if err != nil {
		return err
	}
	if !ok {
		return &shared.ConfigurationError{Kind: "role", Name: roleID.String()}
	}
	return nil
}

func (r *Resolver) cached(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if r.client != nil {
		raw, err := r.client.Get(ctx, key).Bytes()
		if err == nil {
			if err := json.Unmarshal(raw, dest); err == nil {
				return nil
			}
		} else if err != redis.Nil && r.logger != nil {
			r.logger.Warn("permission cache read", slog.Any("error", err))
		}
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return err
	}
	if r.client != nil {
		if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil && r.logger != nil {
			r.logger.Warn("permission cache write", slog.Any("error", err))
		}
	}
	return nil
}
