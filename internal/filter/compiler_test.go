package filter

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/shared"
)

func orderSchema() meta.EntitySchema {
	entityID := uuid.New()
	return meta.NewEntitySchema(
		meta.EntityType{ID: entityID, Name: "purchase_order", Table: "purchase_orders", PrimaryKey: "id"},
		[]meta.FieldDefinition{
			{Name: "id", Column: "id", Type: meta.FieldLookup, Ordinal: 0},
			{Name: "order_number", Column: "order_number", Type: meta.FieldText, Ordinal: 1},
			{Name: "total_amount", Column: "total_amount", Type: meta.FieldNumber, Ordinal: 2},
			{Name: "order_date", Column: "order_date", Type: meta.FieldDate, Ordinal: 3},
			{Name: "is_urgent", Column: "is_urgent", Type: meta.FieldBoolean, Ordinal: 4},
			{Name: "supplier", Column: "supplier_id", Type: meta.FieldLookup, Ordinal: 5,
				LookupEntity: "supplier", LookupDisplayField: "name"},
			{Name: "approved_at", Column: "approved_at", Type: meta.FieldDate, Ordinal: 6},
		},
	)
}

func TestCompileEquality(t *testing.T) {
	preds, err := Compile(orderSchema(), map[string]any{"order_number": "PO-1001"})
	require.NoError(t, err)
	require.Len(t, preds, 1)
	require.Equal(t, OpEq, preds[0].Op)

	clause, args := preds[0].SQL(1)
	require.Equal(t, "order_number = $1", clause)
	require.Equal(t, []any{"PO-1001"}, args)
}

func TestCompileSuffixOperators(t *testing.T) {
	preds, err := Compile(orderSchema(), map[string]any{
		"total_amount_gte": 100,
		"total_amount_lt":  "2500.50",
		"order_date_gt":    "2026-01-01",
		"order_number_not": "PO-0",
	})
	require.NoError(t, err)
	require.Len(t, preds, 4)

	clause, args := Join(preds, 1)
	require.Equal(t, "order_date > $1 AND order_number <> $2 AND total_amount >= $3 AND total_amount < $4", clause)
	require.Len(t, args, 4)
}

func TestCompileUnknownKeyRejected(t *testing.T) {
	_, err := Compile(orderSchema(), map[string]any{"secret_margin": 1})
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "secret_margin", ve.Field)
}

func TestCompileTypeMismatches(t *testing.T) {
	cases := map[string]map[string]any{
		"number":  {"total_amount": "a lot"},
		"date":    {"order_date": "yesterday"},
		"boolean": {"is_urgent": "maybe"},
		"lookup":  {"supplier": "not-a-uuid"},
	}
	for name, filters := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Compile(orderSchema(), filters)
			require.True(t, shared.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestCompileSequenceBecomesMembership(t *testing.T) {
	// The _gte suffix is overridden by the sequence value.
	preds, err := Compile(orderSchema(), map[string]any{
		"total_amount_gte": []any{10, 20},
	})
	require.NoError(t, err)
	require.Equal(t, OpIn, preds[0].Op)

	clause, args := preds[0].SQL(3)
	require.Equal(t, "total_amount IN ($3, $4)", clause)
	require.Len(t, args, 2)
}

func TestCompileNotSequenceBecomesNotIn(t *testing.T) {
	preds, err := Compile(orderSchema(), map[string]any{
		"order_number_not": []any{"PO-1", "PO-2"},
	})
	require.NoError(t, err)
	require.Equal(t, OpNotIn, preds[0].Op)

	clause, _ := preds[0].SQL(1)
	require.Equal(t, "order_number NOT IN ($1, $2)", clause)
}

func TestCompileNullChecksIgnoreValue(t *testing.T) {
	preds, err := Compile(orderSchema(), map[string]any{
		"approved_at_null":     "whatever",
		"order_number_notnull": []any{"ignored"},
	})
	require.NoError(t, err)
	require.Len(t, preds, 2)

	clause, args := Join(preds, 1)
	require.Equal(t, "approved_at IS NULL AND order_number IS NOT NULL", clause)
	require.Empty(t, args)
}

func TestCompileLikeBindsRawValue(t *testing.T) {
	preds, err := Compile(orderSchema(), map[string]any{"order_number_like": "PO-%'; DROP TABLE--"})
	require.NoError(t, err)

	clause, args := preds[0].SQL(1)
	require.Equal(t, "order_number ILIKE '%' || $1 || '%'", clause)
	// Wildcards and quotes stay in the bound value, never in the clause text.
	require.Equal(t, []any{"PO-%'; DROP TABLE--"}, args)
}

func TestCompileLikeRequiresTextField(t *testing.T) {
	_, err := Compile(orderSchema(), map[string]any{"total_amount_like": "5"})
	require.True(t, shared.IsValidation(err))
}

func TestClauseNeverContainsRawValues(t *testing.T) {
	hostile := []string{
		"'; DROP TABLE purchase_orders; --",
		"1 OR 1=1",
		"%malicious%",
		"\";--",
	}
	for _, raw := range hostile {
		preds, err := Compile(orderSchema(), map[string]any{
			"order_number":      raw,
			"order_number_like": raw,
			"order_number_not":  []any{raw, raw + "x"},
		})
		require.NoError(t, err)
		clause, args := Join(preds, 1)
		require.NotContains(t, clause, "DROP")
		require.NotContains(t, clause, "1=1")
		require.NotContains(t, clause, "malicious")
		require.NotEmpty(t, args)
	}
}

func TestCompileDeterministicOrder(t *testing.T) {
	filters := map[string]any{
		"order_number":     "PO-1",
		"total_amount_gte": 5,
		"is_urgent":        true,
	}
	first, err := Compile(orderSchema(), filters)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Compile(orderSchema(), filters)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestCoerceBooleanTokens(t *testing.T) {
	schema := orderSchema()
	for raw, want := range map[string]bool{"true": true, "1": true, "false": false, "0": false} {
		preds, err := Compile(schema, map[string]any{"is_urgent": raw})
		require.NoError(t, err)
		require.Equal(t, []any{want}, preds[0].Values)
	}
}
