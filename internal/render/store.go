package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/platform/db"
	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// Template is one stored markup version for an (entity, view kind) pair.
// Exactly one version is active at a time.
type Template struct {
	ID       uuid.UUID     `json:"id"`
	EntityID uuid.UUID     `json:"entity_id"`
	View     meta.ViewKind `json:"view"`
	Version  int           `json:"version"`
	Body     string        `json:"body"`
}

// TemplateSource loads active templates from storage.
type TemplateSource interface {
	ActiveTemplate(ctx context.Context, entityID uuid.UUID, view meta.ViewKind) (Template, error)
}

// Repository reads templates from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activeTemplateQuery = `
SELECT id, entity_id, view_kind, version, body
FROM templates
WHERE entity_id = $1 AND view_kind = $2 AND active
ORDER BY version DESC
LIMIT 1`

// ActiveTemplate fetches the single active template version.
func (r *Repository) ActiveTemplate(ctx context.Context, entityID uuid.UUID, view meta.ViewKind) (Template, error) {
	var tpl Template
	err := r.pool.QueryRow(ctx, activeTemplateQuery, entityID, view).Scan(
		&tpl.ID, &tpl.EntityID, &tpl.View, &tpl.Version, &tpl.Body,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, &shared.ConfigurationError{
				Kind: "template",
				Name: fmt.Sprintf("%s/%s", entityID, view),
			}
		}
		return Template{}, db.WrapError("render: active template", err)
	}
	return tpl, nil
}

// Store serves parsed templates. Raw bodies go through a TTL-bounded redis
// cache; parsed programs are kept per (template, version) in-process, so a
// new active version naturally takes a fresh slot. Concurrent parses of the
// same version are deduplicated.
type Store struct {
	source   TemplateSource
	client   *redis.Client
	ttl      time.Duration
	logger   *slog.Logger
	programs sync.Map
	group    singleflight.Group
}

// NewStore constructs a Store. A nil redis client disables the raw cache.
func NewStore(source TemplateSource, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{source: source, client: client, ttl: ttl, logger: logger}
}

func templateKey(entityID uuid.UUID, view meta.ViewKind) string {
	return fmt.Sprintf("tpl:%s:%s", entityID, view)
}

// CacheOutcome reports where the template came from, for generation logging.
type CacheOutcome struct {
	TemplateCacheHit bool
}

// Active returns the parsed program for the active template version.
func (s *Store) Active(ctx context.Context, entityID uuid.UUID, view meta.ViewKind) (*Program, Template, CacheOutcome, error) {
	tpl, hit, err := s.rawActive(ctx, entityID, view)
	if err != nil {
		return nil, Template{}, CacheOutcome{}, err
	}

	programKey := fmt.Sprintf("%s:%d", tpl.ID, tpl.Version)
	if cached, ok := s.programs.Load(programKey); ok {
		return cached.(*Program), tpl, CacheOutcome{TemplateCacheHit: hit}, nil
	}

	value, err, _ := s.group.Do(programKey, func() (any, error) {
		program, err := Parse(tpl.Body)
		if err != nil {
			return nil, err
		}
		s.programs.Store(programKey, program)
		return program, nil
	})
	if err != nil {
		return nil, Template{}, CacheOutcome{}, err
	}
	return value.(*Program), tpl, CacheOutcome{TemplateCacheHit: hit}, nil
}

// Invalidate drops the cached body for an (entity, view) pair after a
// template write or activation change.
func (s *Store) Invalidate(ctx context.Context, entityID uuid.UUID, view meta.ViewKind) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, templateKey(entityID, view)).Err()
}

func (s *Store) rawActive(ctx context.Context, entityID uuid.UUID, view meta.ViewKind) (Template, bool, error) {
	if s.client != nil {
		raw, err := s.client.Get(ctx, templateKey(entityID, view)).Bytes()
		if err == nil {
			var tpl Template
			if err := json.Unmarshal(raw, &tpl); err == nil {
				return tpl, true, nil
			}
		} else if err != redis.Nil && s.logger != nil {
			s.logger.Warn("template cache read", slog.Any("error", err))
		}
	}

	tpl, err := s.source.ActiveTemplate(ctx, entityID, view)
	if err != nil {
		return Template{}, false, err
	}
	if s.client != nil {
		if raw, err := json.Marshal(tpl); err == nil {
			if err := s.client.Set(ctx, templateKey(entityID, view), raw, s.ttl).Err(); err != nil && s.logger != nil {
				s.logger.Warn("template cache write", slog.Any("error", err))
			}
		}
	}
	return tpl, false, nil
}
