package query

import "github.com/pesio-ai/be-legal-matters/internal/model"

// sortRule describes how one field type orders. The value row for the
// sort field is always joined as "sv"; joins add the catalog tables the
// keys read from.
type sortRule struct {
	joins []string
	keys  []string
}

var sortRules = map[model.FieldType]sortRule{
	model.FieldTypeNumber: {
		keys: []string{"sv.number_value"},
	},
	model.FieldTypeText: {
		keys: []string{"COALESCE(sv.text_value, sv.string_value)"},
	},
	model.FieldTypeDate: {
		keys: []string{"sv.date_value"},
	},
	model.FieldTypeBoolean: {
		keys: []string{"sv.boolean_value"},
	},
	model.FieldTypeCurrency: {
		keys: []string{"(sv.currency_value->>'amount')::numeric"},
	},
	model.FieldTypeUser: {
		joins: []string{"LEFT JOIN users su ON su.id = sv.user_value"},
		keys:  []string{"su.last_name", "su.first_name"},
	},
	model.FieldTypeSelect: {
		joins: []string{"LEFT JOIN select_options so ON so.id = sv.select_reference_value"},
		keys:  []string{"so.sequence", "so.label"},
	},
	model.FieldTypeStatus: {
		joins: []string{
			"LEFT JOIN status_options st ON st.id = sv.status_reference_value",
			"LEFT JOIN status_groups sg ON sg.id = st.group_id",
		},
		keys: []string{"sg.sequence", "st.sequence", "st.label"},
	},
}

// ordering returns the joins and ORDER BY terms for the plan.
func (p *Plan) ordering(a *args) ([]string, []string) {
	dir := p.direction.sql()
	nullsLast := func(expr string) string {
		return expr + " " + dir + " NULLS LAST"
	}

	var joins, order []string

	switch {
	case p.field != nil:
		rule := sortRules[p.field.Type]
		joins = append(joins, "LEFT JOIN matter_field_values sv ON sv.matter_id = m.id AND sv.field_id = "+a.add(p.field.ID))
		joins = append(joins, rule.joins...)
		for _, k := range rule.keys {
			order = append(order, nullsLast(k))
		}
	case p.sortKey == SortUpdated:
		order = append(order, nullsLast("m.updated_at"))
	case p.sortKey == SortResolutionTime:
		order = append(order, nullsLast(resolutionMsExpr(a, p.opts)))
	case p.sortKey == SortSLAStatus:
		order = append(order, nullsLast(slaStatusExpr(a, p.opts)))
	}

	order = append(order, "m.created_at "+dir, "m.id "+dir)
	return joins, order
}
