package permission

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/platform/db"
)

// Repository reads permission configuration from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RoleExists reports whether the role is provisioned.
func (r *Repository) RoleExists(ctx context.Context, roleID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists)
	if err != nil {
		return false, db.WrapError("permission: role exists", err)
	}
	return exists, nil
}

const fieldPermissionsQuery = `
SELECT fp.role_id, fp.field_id, fp.view_kind, fp.visible, fp.editable
FROM field_permissions fp
JOIN field_definitions fd ON fd.id = fp.field_id
WHERE fp.role_id = $1 AND fd.entity_id = $2 AND fp.view_kind = $3`

// FieldPermissions returns the configured rows for a role/entity/view.
func (r *Repository) FieldPermissions(ctx context.Context, roleID, entityID uuid.UUID, view meta.ViewKind) ([]FieldPermission, error) {
	rows, err := r.pool.Query(ctx, fieldPermissionsQuery, roleID, entityID, view)
	if err != nil {
		return nil, db.WrapError("permission: field permissions", err)
	}
	defer rows.Close()

	var perms []FieldPermission
	for rows.Next() {
		var p FieldPermission
		if err := rows.Scan(&p.RoleID, &p.FieldID, &p.View, &p.Visible, &p.Editable); err != nil {
			return nil, db.WrapError("permission: scan field permission", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.WrapError("permission: iterate field permissions", err)
	}
	return perms, nil
}

const actionPermissionsQuery = `
SELECT role_id, entity_id, action, allowed, row_condition
FROM action_permissions
WHERE role_id = $1 AND entity_id = $2`

// ActionPermissions returns every action rule for a role/entity pair.
func (r *Repository) ActionPermissions(ctx context.Context, roleID, entityID uuid.UUID) ([]ActionPermission, error) {
	rows, err := r.pool.Query(ctx, actionPermissionsQuery, roleID, entityID)
	if err != nil {
		return nil, db.WrapError("permission: action permissions", err)
	}
	defer rows.Close()

	var perms []ActionPermission
	for rows.Next() {
		var p ActionPermission
		var condition []byte
		if err := rows.Scan(&p.RoleID, &p.EntityID, &p.Action, &p.Allowed, &condition); err != nil {
			return nil, db.WrapError("permission: scan action permission", err)
		}
		p.Condition = decodeRowCondition(condition)
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.WrapError("permission: iterate action permissions", err)
	}
	return perms, nil
}

// decodeRowCondition parses a stored row condition. An absent or JSON-null
// payload means unconditional; anything that does not decode to the known
// shape becomes a condition that never matches, so a misconfigured grant
// denies instead of widening.
func decodeRowCondition(raw []byte) *RowCondition {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var c RowCondition
	if err := json.Unmarshal(raw, &c); err != nil || c.Field == "" {
		return &RowCondition{}
	}
	return &c
}
