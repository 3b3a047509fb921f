package meta

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurora-erp/aurora-erp/internal/platform/db"
	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// Repository loads entity metadata from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entityQuery = `
SELECT id, name, storage_table, primary_key, display_name
FROM entity_types
WHERE name = $1`

const fieldsQuery = `
SELECT id, entity_id, name, storage_column, label, data_type, ordinal,
       COALESCE(lookup_entity, ''), COALESCE(lookup_display_field, '')
FROM field_definitions
WHERE entity_id = $1
ORDER BY ordinal, name`

// LoadSchema fetches an entity type and its field definitions by name.
func (r *Repository) LoadSchema(ctx context.Context, name string) (EntitySchema, error) {
	var entity EntityType
	err := r.pool.QueryRow(ctx, entityQuery, name).Scan(
		&entity.ID, &entity.Name, &entity.Table, &entity.PrimaryKey, &entity.DisplayName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EntitySchema{}, &shared.ConfigurationError{Kind: "entity type", Name: name}
		}
		return EntitySchema{}, db.WrapError("meta: load entity", err)
	}

	rows, err := r.pool.Query(ctx, fieldsQuery, entity.ID)
	if err != nil {
		return EntitySchema{}, db.WrapError("meta: load fields", err)
	}
	defer rows.Close()

	var fields []FieldDefinition
	for rows.Next() {
		var f FieldDefinition
		if err := rows.Scan(
			&f.ID, &f.EntityID, &f.Name, &f.Column, &f.Label, &f.Type, &f.Ordinal,
			&f.LookupEntity, &f.LookupDisplayField,
		); err != nil {
			return EntitySchema{}, db.WrapError("meta: scan field", err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return EntitySchema{}, db.WrapError("meta: iterate fields", err)
	}
	if len(fields) == 0 {
		return EntitySchema{}, &shared.ConfigurationError{Kind: "field definitions", Name: name}
	}
	return NewEntitySchema(entity, fields), nil
}
