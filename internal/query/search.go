package query

import (
	"strings"

	"github.com/pesio-ai/be-legal-matters/internal/model"
)

// searchRules lists, per field type, the columns a search term is
// matched against. Aliases: qv value row, qs select option, qt status
// option, qu user. Types without an entry are not searchable.
var searchRules = map[model.FieldType][]string{
	model.FieldTypeText:     {"qv.text_value", "qv.string_value"},
	model.FieldTypeNumber:   {"qv.number_value::text"},
	model.FieldTypeSelect:   {"qs.label"},
	model.FieldTypeStatus:   {"qt.label"},
	model.FieldTypeUser:     {"qu.first_name", "qu.last_name", "(qu.first_name || ' ' || qu.last_name)"},
	model.FieldTypeCurrency: {"(qv.currency_value->>'amount')"},
}

// searchPredicate matches a matter when any of its value rows matches the
// pattern under its type's rule, or when its SLA label matches.
func searchPredicate(a *args, pattern string, opts Options) string {
	param := a.add(pattern)

	var perType []string
	for _, ft := range model.FieldTypes {
		cols, ok := searchRules[ft]
		if !ok {
			continue
		}
		matches := make([]string, len(cols))
		for i, col := range cols {
			matches[i] = col + " ILIKE " + param
		}
		perType = append(perType, "(qf.field_type = '"+string(ft)+"' AND ("+strings.Join(matches, " OR ")+"))")
	}

	var b strings.Builder
	b.WriteString("(EXISTS (SELECT 1 FROM matter_field_values qv")
	b.WriteString(" JOIN field_definitions qf ON qf.id = qv.field_id AND qf.deleted_at IS NULL")
	b.WriteString(" LEFT JOIN users qu ON qu.id = qv.user_value")
	b.WriteString(" LEFT JOIN select_options qs ON qs.id = qv.select_reference_value")
	b.WriteString(" LEFT JOIN status_options qt ON qt.id = qv.status_reference_value")
	b.WriteString(" WHERE qv.matter_id = m.id AND (")
	b.WriteString(strings.Join(perType, " OR "))
	b.WriteString("))")
	b.WriteString(" OR ")
	b.WriteString(slaStatusExpr(a, opts))
	b.WriteString(" ILIKE ")
	b.WriteString(param)
	b.WriteString(")")
	return b.String()
}
