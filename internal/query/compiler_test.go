package query

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-legal-matters/internal/common/logger"
	"github.com/pesio-ai/be-legal-matters/internal/model"
)

type fakeResolver struct {
	fields map[string]model.FieldHandle
	err    error
	calls  int
}

func (f *fakeResolver) Resolve(ctx context.Context, name string) (model.FieldHandle, bool, error) {
	f.calls++
	if f.err != nil {
		return model.FieldHandle{}, false, f.err
	}
	h, ok := f.fields[name]
	return h, ok, nil
}

func newResolver() *fakeResolver {
	return &fakeResolver{fields: map[string]model.FieldHandle{
		"Matter Name":   {ID: "f-text", Name: "Matter Name", Type: model.FieldTypeText},
		"Claim Value":   {ID: "f-number", Name: "Claim Value", Type: model.FieldTypeNumber},
		"Practice Area": {ID: "f-select", Name: "Practice Area", Type: model.FieldTypeSelect},
		"Due Date":      {ID: "f-date", Name: "Due Date", Type: model.FieldTypeDate},
		"Fee Estimate":  {ID: "f-currency", Name: "Fee Estimate", Type: model.FieldTypeCurrency},
		"Urgent":        {ID: "f-boolean", Name: "Urgent", Type: model.FieldTypeBoolean},
		"Status":        {ID: "f-status", Name: "Status", Type: model.FieldTypeStatus},
		"Assignee":      {ID: "f-user", Name: "Assignee", Type: model.FieldTypeUser},
	}}
}

var testOpts = Options{DoneGroup: "Done", SLAThreshold: 8 * time.Hour}

func newCompiler(r Resolver, buf *bytes.Buffer) *Compiler {
	log := logger.Nop()
	if buf != nil {
		log = logger.New(logger.Config{Level: "debug", Environment: "test", Output: buf})
	}
	return NewCompiler(r, testOpts, log)
}

func TestCompile_DefaultOrdering(t *testing.T) {
	plan, err := newCompiler(newResolver(), nil).Compile(context.Background(), Criteria{})
	require.NoError(t, err)

	sql, params := plan.PageSQL(20, 40)
	assert.Equal(t,
		"SELECT m.id, m.board_id, m.created_at, m.updated_at FROM matters m ORDER BY m.created_at ASC, m.id ASC LIMIT $1 OFFSET $2",
		sql)
	assert.Equal(t, []any{20, 40}, params)
	assert.True(t, plan.MatchesAll())
	assert.Equal(t, SortCreated, plan.SortKey())
}

func TestCompile_NumberFieldDescending(t *testing.T) {
	resolver := newResolver()
	plan, err := newCompiler(resolver, nil).Compile(context.Background(), Criteria{SortBy: "Claim Value", Direction: Desc})
	require.NoError(t, err)

	sql, params := plan.PageSQL(10, 0)
	assert.Equal(t,
		"SELECT m.id, m.board_id, m.created_at, m.updated_at FROM matters m"+
			" LEFT JOIN matter_field_values sv ON sv.matter_id = m.id AND sv.field_id = $1"+
			" ORDER BY sv.number_value DESC NULLS LAST, m.created_at DESC, m.id DESC LIMIT $2 OFFSET $3",
		sql)
	assert.Equal(t, []any{"f-number", 10, 0}, params)
	assert.Equal(t, 1, resolver.calls)
	require.NotNil(t, plan.Field())
	assert.Equal(t, model.FieldTypeNumber, plan.Field().Type)
}

func TestCompile_EveryFieldTypeKeepsNullsLastAndTieBreak(t *testing.T) {
	compiler := newCompiler(newResolver(), nil)

	for name := range newResolver().fields {
		for _, dir := range []Direction{Asc, Desc} {
			t.Run(fmt.Sprintf("%s_%s", name, dir), func(t *testing.T) {
				plan, err := compiler.Compile(context.Background(), Criteria{SortBy: name, Direction: dir})
				require.NoError(t, err)
				require.False(t, plan.Fallback)

				sql, _ := plan.PageSQL(25, 0)
				orderBy := sql[strings.Index(sql, " ORDER BY ")+len(" ORDER BY ") : strings.Index(sql, " LIMIT ")]

				want := strings.ToUpper(string(dir))
				rule := sortRules[plan.Field().Type]
				assert.Equal(t, len(rule.keys), strings.Count(orderBy, " "+want+" NULLS LAST"), orderBy)
				for _, k := range rule.keys {
					assert.Contains(t, orderBy, k+" "+want+" NULLS LAST")
				}
				assert.True(t, strings.HasSuffix(orderBy, " NULLS LAST, m.created_at "+want+", m.id "+want), orderBy)
			})
		}
	}
}

func TestCompile_TypeSpecificKeys(t *testing.T) {
	tests := []struct {
		field string
		joins []string
		keys  string
	}{
		{"Assignee", []string{"LEFT JOIN users su ON su.id = sv.user_value"}, "su.last_name ASC NULLS LAST, su.first_name ASC NULLS LAST"},
		{"Practice Area", []string{"LEFT JOIN select_options so ON so.id = sv.select_reference_value"}, "so.sequence ASC NULLS LAST, so.label ASC NULLS LAST"},
		{"Status", []string{
			"LEFT JOIN status_options st ON st.id = sv.status_reference_value",
			"LEFT JOIN status_groups sg ON sg.id = st.group_id",
		}, "sg.sequence ASC NULLS LAST, st.sequence ASC NULLS LAST, st.label ASC NULLS LAST"},
		{"Fee Estimate", nil, "(sv.currency_value->>'amount')::numeric ASC NULLS LAST"},
		{"Urgent", nil, "sv.boolean_value ASC NULLS LAST"},
		{"Due Date", nil, "sv.date_value ASC NULLS LAST"},
		{"Matter Name", nil, "COALESCE(sv.text_value, sv.string_value) ASC NULLS LAST"},
	}

	compiler := newCompiler(newResolver(), nil)
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			plan, err := compiler.Compile(context.Background(), Criteria{SortBy: tt.field, Direction: Asc})
			require.NoError(t, err)

			sql, _ := plan.PageSQL(10, 0)
			for _, j := range tt.joins {
				assert.Contains(t, sql, j)
			}
			assert.Contains(t, sql, " ORDER BY "+tt.keys+", m.created_at ASC, m.id ASC ")
		})
	}
}

func TestCompile_ReservedKeysSkipValueStoreJoin(t *testing.T) {
	resolver := newResolver()
	compiler := newCompiler(resolver, nil)

	for _, key := range []string{SortCreated, SortUpdated, SortResolutionTime, SortSLAStatus} {
		plan, err := compiler.Compile(context.Background(), Criteria{SortBy: key, Direction: Desc})
		require.NoError(t, err)
		assert.Equal(t, key, plan.SortKey())
		assert.Nil(t, plan.Field())

		sql, params := plan.PageSQL(10, 0)
		assert.NotContains(t, sql, "LEFT JOIN matter_field_values", key)
		suffix := fmt.Sprintf("m.created_at DESC, m.id DESC LIMIT $%d OFFSET $%d", len(params)-1, len(params))
		assert.True(t, strings.HasSuffix(sql, suffix), sql)
	}
	assert.Zero(t, resolver.calls)
}

func TestCompile_SLAStatusBindsThresholdAndGroup(t *testing.T) {
	plan, err := newCompiler(newResolver(), nil).Compile(context.Background(), Criteria{SortBy: SortSLAStatus})
	require.NoError(t, err)

	sql, params := plan.PageSQL(10, 0)
	assert.NotContains(t, sql, "'Done'")
	assert.NotContains(t, sql, "28800000")
	assert.Equal(t, []any{"Done", "Done", int64(28_800_000), 10, 0}, params)
	assert.Contains(t, sql, "THEN 'Met'")
}

func TestCompile_UnknownFieldFallsBackWithWarning(t *testing.T) {
	var buf bytes.Buffer
	plan, err := newCompiler(newResolver(), &buf).Compile(context.Background(), Criteria{SortBy: "Nonexistent", Direction: Desc})
	require.NoError(t, err)

	assert.True(t, plan.Fallback)
	assert.Equal(t, SortCreated, plan.SortKey())
	assert.Equal(t, Desc, plan.Direction())

	sql, params := plan.PageSQL(5, 0)
	assert.Contains(t, sql, "ORDER BY m.created_at DESC, m.id DESC")
	assert.NotContains(t, sql, "Nonexistent")
	assert.Equal(t, []any{5, 0}, params)

	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "Nonexistent")
}

func TestCompile_UnsupportedResolvedTypeFallsBack(t *testing.T) {
	resolver := &fakeResolver{fields: map[string]model.FieldHandle{
		"Formula": {ID: "f-x", Name: "Formula", Type: model.FieldType("formula")},
	}}
	plan, err := newCompiler(resolver, nil).Compile(context.Background(), Criteria{SortBy: "Formula"})
	require.NoError(t, err)
	assert.True(t, plan.Fallback)
	assert.Nil(t, plan.Field())
}

func TestCompile_ResolverErrorPropagates(t *testing.T) {
	resolver := &fakeResolver{err: fmt.Errorf("connection reset")}
	_, err := newCompiler(resolver, nil).Compile(context.Background(), Criteria{SortBy: "Claim Value"})
	require.Error(t, err)
}

func TestCompile_BlankSearchMatchesAll(t *testing.T) {
	compiler := newCompiler(newResolver(), nil)

	for _, term := range []string{"", "   ", "\t\n"} {
		plan, err := compiler.Compile(context.Background(), Criteria{Search: term})
		require.NoError(t, err)
		assert.True(t, plan.MatchesAll())

		sql, params := plan.CountSQL()
		assert.Equal(t, "SELECT COUNT(*) FROM matters m", sql)
		assert.Empty(t, params)
	}
}

func TestCompile_SearchIsBoundAndEscaped(t *testing.T) {
	plan, err := newCompiler(newResolver(), nil).Compile(context.Background(), Criteria{Search: "  50%_off'; DROP TABLE matters; -- "})
	require.NoError(t, err)

	sql, params := plan.CountSQL()
	assert.NotContains(t, sql, "DROP TABLE")
	require.Len(t, params, 4)
	assert.Equal(t, `%50\%\_off'; DROP TABLE matters; --%`, params[0])
	assert.Equal(t, []any{"Done", "Done", int64(28_800_000)}, params[1:])

	assert.Contains(t, sql, "WHERE (EXISTS (SELECT 1 FROM matter_field_values qv")
	assert.Contains(t, sql, "qv.matter_id = m.id")
	assert.Contains(t, sql, ") ILIKE $1)")
}

func TestCompile_SearchCoversEveryKind(t *testing.T) {
	plan, err := newCompiler(newResolver(), nil).Compile(context.Background(), Criteria{Search: "merger"})
	require.NoError(t, err)

	sql, _ := plan.CountSQL()
	for _, fragment := range []string{
		"(qf.field_type = 'text' AND (qv.text_value ILIKE $1 OR qv.string_value ILIKE $1))",
		"(qf.field_type = 'number' AND (qv.number_value::text ILIKE $1))",
		"(qf.field_type = 'select' AND (qs.label ILIKE $1))",
		"(qf.field_type = 'status' AND (qt.label ILIKE $1))",
		"(qf.field_type = 'user' AND (qu.first_name ILIKE $1 OR qu.last_name ILIKE $1 OR (qu.first_name || ' ' || qu.last_name) ILIKE $1))",
		"(qf.field_type = 'currency' AND ((qv.currency_value->>'amount') ILIKE $1))",
	} {
		assert.Contains(t, sql, fragment)
	}
	assert.NotContains(t, sql, "qf.field_type = 'date'")
	assert.NotContains(t, sql, "qf.field_type = 'boolean'")
	assert.Equal(t, 1, strings.Count(sql, " OR (CASE"))
}

func TestCompile_PageWithSortAndSearchNumbersParamsInOrder(t *testing.T) {
	plan, err := newCompiler(newResolver(), nil).Compile(context.Background(), Criteria{SortBy: "Assignee", Direction: Asc, Search: "smith"})
	require.NoError(t, err)

	sql, params := plan.PageSQL(50, 100)
	assert.Equal(t, []any{"f-user", "%smith%", "Done", "Done", int64(28_800_000), 50, 100}, params)
	assert.Contains(t, sql, "sv.field_id = $1")
	assert.Contains(t, sql, "ILIKE $2")
	assert.True(t, strings.HasSuffix(sql, "LIMIT $6 OFFSET $7"))
}
