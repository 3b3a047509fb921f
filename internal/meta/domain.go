package meta

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ViewKind selects which template and permission variant applies.
type ViewKind string

const (
	ViewList   ViewKind = "list"
	ViewCreate ViewKind = "create"
	ViewEdit   ViewKind = "edit"
	ViewView   ViewKind = "view"
)

// ViewKinds lists every supported view kind.
func ViewKinds() []ViewKind {
	return []ViewKind{ViewList, ViewCreate, ViewEdit, ViewView}
}

// Valid reports whether the view kind is one of the known values.
func (v ViewKind) Valid() bool {
	switch v {
	case ViewList, ViewCreate, ViewEdit, ViewView:
		return true
	}
	return false
}

// FieldType is the semantic data type of a field. It drives both rendering
// and filter value validation.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldNumber  FieldType = "number"
	FieldDate    FieldType = "date"
	FieldBoolean FieldType = "boolean"
	FieldLookup  FieldType = "lookup"
)

// EntityType names a domain object and its storage location. Immutable after
// seeding.
type EntityType struct {
	ID          uuid.UUID
	Name        string
	Table       string
	PrimaryKey  string
	DisplayName string
}

// FieldDefinition declares one field of an entity type.
type FieldDefinition struct {
	ID       uuid.UUID
	EntityID uuid.UUID
	Name     string
	Column   string
	Label    string
	Type     FieldType
	Ordinal  int

	// Lookup fields reference another entity and the column shown for it.
	LookupEntity       string
	LookupDisplayField string
}

var titleCaser = cases.Title(language.English)

// DisplayLabel returns the configured label, falling back to a title-cased
// rendering of the field name.
func (f FieldDefinition) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return titleCaser.String(strings.ReplaceAll(f.Name, "_", " "))
}

// EntitySchema bundles an entity type with its ordered field definitions.
type EntitySchema struct {
	Entity EntityType
	Fields []FieldDefinition

	byName map[string]FieldDefinition
}

// NewEntitySchema builds a schema with the field index populated.
func NewEntitySchema(entity EntityType, fields []FieldDefinition) EntitySchema {
	byName := make(map[string]FieldDefinition, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	return EntitySchema{Entity: entity, Fields: fields, byName: byName}
}

// Field looks up a field definition by name.
func (s EntitySchema) Field(name string) (FieldDefinition, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// FieldMap returns the name → definition index.
func (s EntitySchema) FieldMap() map[string]FieldDefinition {
	return s.byName
}
