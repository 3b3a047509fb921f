package permission

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/aurora-erp/aurora-erp/internal/meta"
)

// Role is a named permission bundle. Every user belongs to exactly one role.
type Role struct {
	ID          uuid.UUID
	Name        string
	Description string
}

// FieldPermission holds the visible/editable flags for one (role, field,
// view kind) combination. Fields with no row fall back to the defaults
// computed by the resolver.
type FieldPermission struct {
	RoleID   uuid.UUID     `json:"role_id"`
	FieldID  uuid.UUID     `json:"field_id"`
	View     meta.ViewKind `json:"view"`
	Visible  bool          `json:"visible"`
	Editable bool          `json:"editable"`
}

// RowCondition narrows an action grant to records where the named field
// matches the acting user's ID ("own records only"). This is the full
// condition grammar; see DESIGN.md for the decision record.
type RowCondition struct {
	Field string `json:"field"`
}

// ActionPermission is the allow rule for one (role, entity, action).
type ActionPermission struct {
	RoleID    uuid.UUID     `json:"role_id"`
	EntityID  uuid.UUID     `json:"entity_id"`
	Action    string        `json:"action"`
	Allowed   bool          `json:"allowed"`
	Condition *RowCondition `json:"condition,omitempty"`
}

// FieldCapability is the resolved outcome for one field: what the caller may
// show and what it may let the user change.
type FieldCapability struct {
	Field    meta.FieldDefinition
	Visible  bool
	Editable bool
}

// evaluate applies the row condition against a record. A required condition
// with no record to check is a deny, not an error, and a condition without a
// field never matches.
func (c *RowCondition) evaluate(record map[string]any, userID uuid.UUID) bool {
	if c == nil {
		return true
	}
	if c.Field == "" || record == nil {
		return false
	}
	value, ok := record[c.Field]
	if !ok {
		return false
	}
	switch v := value.(type) {
	case uuid.UUID:
		return v == userID
	case string:
		return v == userID.String()
	default:
		return fmt.Sprintf("%v", v) == userID.String()
	}
}
