package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// Filter key suffixes, checked longest-first so _notnull wins over _not.
var suffixOps = []struct {
	suffix string
	op     Operator
}{
	{"_notnull", OpNotNull},
	{"_null", OpNull},
	{"_gte", OpGte},
	{"_lte", OpLte},
	{"_gt", OpGt},
	{"_lt", OpLt},
	{"_like", OpLike},
	{"_not", OpNot},
}

var (
	numberPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	datePattern   = "2006-01-02"
)

// Compile validates a filter map against the entity schema and lowers it into
// parameterized predicates. Keys are processed in sorted order so identical
// inputs always produce identical output.
func Compile(schema meta.EntitySchema, filters map[string]any) ([]Predicate, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	preds := make([]Predicate, 0, len(keys))
	for _, key := range keys {
		pred, err := compileOne(schema, key, filters[key])
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

func compileOne(schema meta.EntitySchema, key string, value any) (Predicate, error) {
	name, op := splitKey(key)
	field, ok := schema.Field(name)
	if !ok {
		return Predicate{}, shared.NewValidationError(key, "unknown filter field")
	}

	switch op {
	case OpNull, OpNotNull:
		// Value is ignored entirely for null checks.
		return Predicate{Column: field.Column, Op: op}, nil
	}

	if seq, ok := asSlice(value); ok {
		values := make([]any, 0, len(seq))
		for _, item := range seq {
			v, err := coerce(field, item)
			if err != nil {
				return Predicate{}, shared.NewValidationError(key, err.Error())
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			return Predicate{}, shared.NewValidationError(key, "empty value list")
		}
		membership := OpIn
		if op == OpNot {
			membership = OpNotIn
		}
		return Predicate{Column: field.Column, Op: membership, Values: values}, nil
	}

	if op == OpLike && field.Type != meta.FieldText {
		return Predicate{}, shared.NewValidationError(key, "pattern match requires a text field")
	}

	v, err := coerce(field, value)
	if err != nil {
		return Predicate{}, shared.NewValidationError(key, err.Error())
	}
	return Predicate{Column: field.Column, Op: op, Values: []any{v}}, nil
}

// BaseField strips any operator suffix from a filter key, returning the
// underlying field name.
func BaseField(key string) string {
	name, _ := splitKey(key)
	return name
}

func splitKey(key string) (string, Operator) {
	for _, s := range suffixOps {
		if strings.HasSuffix(key, s.suffix) && len(key) > len(s.suffix) {
			return strings.TrimSuffix(key, s.suffix), s.op
		}
	}
	return key, OpEq
}

func asSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// coerce checks the value against the field's declared semantic type and
// returns the canonical bound representation. A mismatch is a validation
// failure, never a raw backend error.
func coerce(field meta.FieldDefinition, value any) (any, error) {
	switch field.Type {
	case meta.FieldNumber:
		switch v := value.(type) {
		case int, int32, int64, float32, float64:
			return v, nil
		case string:
			if numberPattern.MatchString(v) {
				return v, nil
			}
		}
		return nil, fmt.Errorf("expected a number, got %v", typeName(value))
	case meta.FieldDate:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected an ISO date, got %v", typeName(value))
		}
		if _, err := time.Parse(datePattern, s); err == nil {
			return s, nil
		}
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			return s, nil
		}
		return nil, fmt.Errorf("expected an ISO date")
	case meta.FieldBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch v {
			case "true", "1":
				return true, nil
			case "false", "0":
				return false, nil
			}
		}
		return nil, fmt.Errorf("expected true or false")
	case meta.FieldLookup:
		switch v := value.(type) {
		case uuid.UUID:
			return v, nil
		case string:
			id, err := uuid.Parse(v)
			if err != nil {
				return nil, fmt.Errorf("expected an identifier")
			}
			return id, nil
		}
		return nil, fmt.Errorf("expected an identifier, got %v", typeName(value))
	default:
		switch v := value.(type) {
		case string:
			return v, nil
		case bool, int, int32, int64, float32, float64:
			return fmt.Sprintf("%v", v), nil
		}
		return nil, fmt.Errorf("expected a scalar value")
	}
}

func typeName(value any) string {
	if value == nil {
		return "null"
	}
	return fmt.Sprintf("%T", value)
}
