package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-legal-matters/internal/common/database"
	"github.com/pesio-ai/be-legal-matters/internal/common/errors"
	"github.com/pesio-ai/be-legal-matters/internal/model"
)

// FieldValueRepository reads the EAV value store.
type FieldValueRepository struct {
	db database.Querier
}

// NewFieldValueRepository creates a new FieldValueRepository.
func NewFieldValueRepository(db database.Querier) *FieldValueRepository {
	return &FieldValueRepository{db: db}
}

// Materialize loads the typed field maps for a set of matters in one
// round trip. Every requested id is present in the result; fields without
// a value row are absent from the matter's map.
func (r *FieldValueRepository) Materialize(ctx context.Context, matterIDs []string) (model.FieldMaps, error) {
	maps := make(model.FieldMaps, len(matterIDs))
	for _, id := range matterIDs {
		maps[id] = model.FieldMap{}
	}
	if len(matterIDs) == 0 {
		return maps, nil
	}

	query := `
		SELECT fv.matter_id, fd.id, fd.name, fd.field_type, fd.sequence,
		       fv.text_value, fv.string_value, fv.number_value::float8,
		       fv.date_value, fv.boolean_value, fv.currency_value,
		       fv.user_value, u.email, u.first_name, u.last_name,
		       fv.select_reference_value, so.label,
		       fv.status_reference_value, st.label, sg.name
		FROM matter_field_values fv
		JOIN field_definitions fd ON fd.id = fv.field_id AND fd.deleted_at IS NULL
		LEFT JOIN users u ON u.id = fv.user_value
		LEFT JOIN select_options so ON so.id = fv.select_reference_value
		LEFT JOIN status_options st ON st.id = fv.status_reference_value
		LEFT JOIN status_groups sg ON sg.id = st.group_id
		WHERE fv.matter_id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, matterIDs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to load field values")
	}
	defer rows.Close()

	for rows.Next() {
		row, err := scanValueRow(rows)
		if err != nil {
			return nil, err
		}
		entry, ok := decodeRow(row)
		if !ok {
			continue
		}
		fields, exists := maps[row.MatterID]
		if !exists {
			fields = model.FieldMap{}
			maps[row.MatterID] = fields
		}
		fields[row.FieldName] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to load field values")
	}

	return maps, nil
}

func scanValueRow(rows pgx.Rows) (*valueRow, error) {
	row := &valueRow{}
	err := rows.Scan(
		&row.MatterID,
		&row.FieldID,
		&row.FieldName,
		&row.FieldType,
		&row.Sequence,
		&row.Text,
		&row.String,
		&row.Number,
		&row.Date,
		&row.Boolean,
		&row.Currency,
		&row.UserID,
		&row.UserEmail,
		&row.UserFirstName,
		&row.UserLastName,
		&row.SelectID,
		&row.SelectLabel,
		&row.StatusID,
		&row.StatusLabel,
		&row.StatusGroup,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan field value")
	}
	return row, nil
}
