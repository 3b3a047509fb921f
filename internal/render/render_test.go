package render

import (
	"context"
	"html"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/shared"
)

func mustParse(t *testing.T, src string) *Program {
	t.Helper()
	program, err := Parse(src)
	require.NoError(t, err)
	return program
}

func TestRenderScalar(t *testing.T) {
	program := mustParse(t, "{{x}}")
	out := program.Render(map[string]any{"x": `<b>"1 & 2"</b>`})
	require.Equal(t, html.EscapeString(`<b>"1 & 2"</b>`), out)
}

func TestRenderIdempotent(t *testing.T) {
	program := mustParse(t, "<p>{{name}} owes {{total}}</p>")
	data := map[string]any{"name": "ACME", "total": 42.5}
	first := program.Render(data)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, program.Render(data))
	}
}

func TestRenderMissingAndNull(t *testing.T) {
	program := mustParse(t, "[{{missing}}][{{present}}]")
	out := program.Render(map[string]any{"present": nil})
	require.Equal(t, "[][]", out)
	require.NotContains(t, out, "null")
}

func TestRenderDottedPath(t *testing.T) {
	program := mustParse(t, "{{supplier.address.city}}")
	data := map[string]any{
		"supplier": map[string]any{
			"address": map[string]any{"city": "Jakarta"},
		},
	}
	require.Equal(t, "Jakarta", program.Render(data))

	// Missing intermediate segments render empty instead of erroring.
	require.Equal(t, "", program.Render(map[string]any{"supplier": map[string]any{}}))
	require.Equal(t, "", program.Render(map[string]any{"supplier": "flat"}))
}

func TestRenderSectionIteration(t *testing.T) {
	program := mustParse(t, "<ul>{{#lines}}<li>{{product}} x{{qty}}</li>{{/lines}}</ul>")
	data := map[string]any{
		"lines": []map[string]any{
			{"product": "Bolt", "qty": 10},
			{"product": "Nut", "qty": 20},
		},
	}
	require.Equal(t, "<ul><li>Bolt x10</li><li>Nut x20</li></ul>", program.Render(data))
}

func TestRenderEmptySection(t *testing.T) {
	program := mustParse(t, "a{{#rows}}X{{/rows}}b")
	require.Equal(t, "ab", program.Render(map[string]any{"rows": []map[string]any{}}))
	require.Equal(t, "ab", program.Render(map[string]any{}))
}

func TestRenderNestedSections(t *testing.T) {
	program := mustParse(t, "{{#orders}}{{number}}:{{#lines}}({{qty}}){{/lines}};{{/orders}}")
	data := map[string]any{
		"orders": []map[string]any{
			{
				"number": "PO-1",
				"lines":  []map[string]any{{"qty": 1}, {"qty": 2}},
			},
			{"number": "PO-2"},
		},
	}
	require.Equal(t, "PO-1:(1)(2);PO-2:;", program.Render(data))
}

func TestSectionScopeReplacesParent(t *testing.T) {
	program := mustParse(t, "{{#lines}}{{outer}}{{/lines}}")
	data := map[string]any{
		"outer": "visible-outside",
		"lines": []map[string]any{{"inner": "x"}},
	}
	require.Equal(t, "", program.Render(data), "section elements become the whole scope")
}

func TestParseRejectsUnbalancedSections(t *testing.T) {
	for name, src := range map[string]string{
		"unclosed":   "{{#rows}}x",
		"unopened":   "x{{/rows}}",
		"mismatched": "{{#a}}{{/b}}",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(src)
			require.True(t, shared.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestRenderTemplateBodyIsNeverEvaluated(t *testing.T) {
	program := mustParse(t, "{{x}}<script>{{y}}</script>")
	out := program.Render(map[string]any{"x": "{{z}}", "y": "alert(1)", "z": "boom"})
	// Placeholder-looking data is substituted literally, not re-expanded.
	require.Equal(t, html.EscapeString("{{z}}")+"<script>alert(1)</script>", out)
}

type memorySource struct {
	templates map[string]Template
	calls     int
}

func sourceKey(entityID uuid.UUID, view meta.ViewKind) string {
	return entityID.String() + ":" + string(view)
}

func (m *memorySource) ActiveTemplate(ctx context.Context, entityID uuid.UUID, view meta.ViewKind) (Template, error) {
	m.calls++
	tpl, ok := m.templates[sourceKey(entityID, view)]
	if !ok {
		return Template{}, &shared.ConfigurationError{Kind: "template", Name: string(view)}
	}
	return tpl, nil
}

func TestStoreCachesRawAndParsed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	entityID := uuid.New()
	source := &memorySource{templates: map[string]Template{
		sourceKey(entityID, meta.ViewList): {
			ID: uuid.New(), EntityID: entityID, View: meta.ViewList, Version: 3,
			Body: "<tr><td>{{order_number}}</td></tr>",
		},
	}}
	store := NewStore(source, client, time.Minute, nil)
	ctx := context.Background()

	program, tpl, outcome, err := store.Active(ctx, entityID, meta.ViewList)
	require.NoError(t, err)
	require.False(t, outcome.TemplateCacheHit)
	require.Equal(t, 3, tpl.Version)
	require.Equal(t, "<tr><td>PO-9</td></tr>", program.Render(map[string]any{"order_number": "PO-9"}))

	_, _, outcome, err = store.Active(ctx, entityID, meta.ViewList)
	require.NoError(t, err)
	require.True(t, outcome.TemplateCacheHit)
	require.Equal(t, 1, source.calls)

	require.NoError(t, store.Invalidate(ctx, entityID, meta.ViewList))
	_, _, outcome, err = store.Active(ctx, entityID, meta.ViewList)
	require.NoError(t, err)
	require.False(t, outcome.TemplateCacheHit)
	require.Equal(t, 2, source.calls)
}

func TestStoreMissingTemplateIsConfigurationError(t *testing.T) {
	store := NewStore(&memorySource{templates: map[string]Template{}}, nil, time.Minute, nil)
	_, _, _, err := store.Active(context.Background(), uuid.New(), meta.ViewEdit)
	var cfgErr *shared.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
