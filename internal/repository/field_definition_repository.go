package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-legal-matters/internal/common/database"
	"github.com/pesio-ai/be-legal-matters/internal/common/errors"
	"github.com/pesio-ai/be-legal-matters/internal/model"
)

// FieldDefinitionRepository reads the field catalog.
type FieldDefinitionRepository struct {
	db database.Querier
}

// NewFieldDefinitionRepository creates a new FieldDefinitionRepository.
func NewFieldDefinitionRepository(db database.Querier) *FieldDefinitionRepository {
	return &FieldDefinitionRepository{db: db}
}

// GetByName returns the live definition with the given name.
func (r *FieldDefinitionRepository) GetByName(ctx context.Context, name string) (*model.FieldDefinition, error) {
	query := `
		SELECT id, name, field_type, sequence, deleted_at
		FROM field_definitions
		WHERE name = $1 AND deleted_at IS NULL
	`

	def := &model.FieldDefinition{}
	err := r.db.QueryRow(ctx, query, name).Scan(
		&def.ID,
		&def.Name,
		&def.Type,
		&def.Sequence,
		&def.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("field", name)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get field definition")
	}

	return def, nil
}

// List returns every live definition ordered by display sequence.
func (r *FieldDefinitionRepository) List(ctx context.Context) ([]*model.FieldDefinition, error) {
	query := `
		SELECT id, name, field_type, sequence, deleted_at
		FROM field_definitions
		WHERE deleted_at IS NULL
		ORDER BY sequence, name
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list field definitions")
	}
	defer rows.Close()

	defs := make([]*model.FieldDefinition, 0)
	for rows.Next() {
		def := &model.FieldDefinition{}
		if err := rows.Scan(&def.ID, &def.Name, &def.Type, &def.Sequence, &def.DeletedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan field definition")
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list field definitions")
	}

	return defs, nil
}
