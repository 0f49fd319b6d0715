package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-legal-matters/internal/common/database"
	"github.com/pesio-ai/be-legal-matters/internal/common/errors"
	"github.com/pesio-ai/be-legal-matters/internal/model"
)

// Plan renders the count and page statements of a compiled list query.
type Plan interface {
	CountSQL() (string, []any)
	PageSQL(limit, offset int) (string, []any)
}

// MatterRepository handles matter rows and the field write path.
type MatterRepository struct {
	db *database.DB
}

// NewMatterRepository creates a new MatterRepository.
func NewMatterRepository(db *database.DB) *MatterRepository {
	return &MatterRepository{db: db}
}

// Count returns the number of matters the plan matches.
func (r *MatterRepository) Count(ctx context.Context, plan Plan) (int64, error) {
	query, args := plan.CountSQL()

	var total int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count matters")
	}
	return total, nil
}

// ListPage returns one page of matters in plan order.
func (r *MatterRepository) ListPage(ctx context.Context, plan Plan, limit, offset int) ([]*model.Matter, error) {
	query, args := plan.PageSQL(limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list matters")
	}
	defer rows.Close()

	matters := make([]*model.Matter, 0, limit)
	for rows.Next() {
		m := &model.Matter{}
		if err := rows.Scan(&m.ID, &m.BoardID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan matter")
		}
		matters = append(matters, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list matters")
	}

	return matters, nil
}

// GetByID retrieves a matter by id.
func (r *MatterRepository) GetByID(ctx context.Context, id string) (*model.Matter, error) {
	query := `
		SELECT id, board_id, created_at, updated_at
		FROM matters
		WHERE id = $1
	`

	m := &model.Matter{}
	err := r.db.QueryRow(ctx, query, id).Scan(&m.ID, &m.BoardID, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("matter", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get matter")
	}

	return m, nil
}

// UpdateField writes one field value atomically. For status fields the
// previous status, when there is one, is appended to the transition log
// first. The matter's updated_at is bumped in the same transaction.
func (r *MatterRepository) UpdateField(ctx context.Context, upd model.FieldUpdate) error {
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SET LOCAL lock_timeout = '"+lockTimeout+"'"); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to set lock timeout")
		}
		if err := lockMatter(ctx, tx, upd.MatterID); err != nil {
			return err
		}
		if err := checkFieldType(ctx, tx, upd); err != nil {
			return err
		}
		if err := checkOption(ctx, tx, upd); err != nil {
			return err
		}

		if upd.FieldType == model.FieldTypeStatus {
			if err := recordTransition(ctx, tx, upd); err != nil {
				return err
			}
		}

		if err := upsertValue(ctx, tx, upd); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `UPDATE matters SET updated_at = $2 WHERE id = $1`, upd.MatterID, upd.At)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to touch matter")
		}
		return nil
	})
	return classifyWriteError(err)
}

// lockTimeout bounds how long a write waits for another writer's row lock.
const lockTimeout = "5s"

// PostgreSQL error codes the write path distinguishes.
const (
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// classifyWriteError turns storage failures a caller can act on into
// conflict or validation errors. Everything else stays internal.
func classifyWriteError(err error) error {
	if err == nil || errors.CodeOf(err) != errors.ErrCodeInternal {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return errors.Wrap(err, errors.ErrCodeConflict, "matter is being updated concurrently, retry the update")
	case pgForeignKeyViolation:
		return &errors.AppError{
			Code:    errors.ErrCodeInvalidInput,
			Field:   "value",
			Message: "referenced record does not exist",
			Err:     err,
		}
	}
	return err
}

func lockMatter(ctx context.Context, tx pgx.Tx, matterID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM matters WHERE id = $1 FOR UPDATE`, matterID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("matter", matterID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock matter")
	}
	return nil
}

func checkFieldType(ctx context.Context, tx pgx.Tx, upd model.FieldUpdate) error {
	var declared model.FieldType
	err := tx.QueryRow(ctx,
		`SELECT field_type FROM field_definitions WHERE id = $1 AND deleted_at IS NULL`,
		upd.FieldID,
	).Scan(&declared)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("field", upd.FieldID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to get field definition")
	}
	if declared != upd.FieldType {
		return errors.InvalidInput("fieldType", fmt.Sprintf("field %s is declared as %s, not %s", upd.FieldID, declared, upd.FieldType))
	}
	return nil
}

// checkOption verifies a select or status option belongs to the field.
func checkOption(ctx context.Context, tx pgx.Tx, upd model.FieldUpdate) error {
	var query string
	var optionID *string
	switch {
	case upd.FieldType == model.FieldTypeSelect && upd.Slots.Select != nil:
		query, optionID = `SELECT EXISTS (SELECT 1 FROM select_options WHERE id = $1 AND field_id = $2)`, upd.Slots.Select
	case upd.FieldType == model.FieldTypeStatus && upd.Slots.Status != nil:
		query, optionID = `SELECT EXISTS (SELECT 1 FROM status_options WHERE id = $1 AND field_id = $2)`, upd.Slots.Status
	default:
		return nil
	}

	var exists bool
	if err := tx.QueryRow(ctx, query, *optionID, upd.FieldID).Scan(&exists); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to check field option")
	}
	if !exists {
		return errors.InvalidInput("value", fmt.Sprintf("option %s does not belong to field %s", *optionID, upd.FieldID))
	}
	return nil
}

func recordTransition(ctx context.Context, tx pgx.Tx, upd model.FieldUpdate) error {
	var current *string
	err := tx.QueryRow(ctx,
		`SELECT status_reference_value FROM matter_field_values WHERE matter_id = $1 AND field_id = $2`,
		upd.MatterID, upd.FieldID,
	).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to read current status")
	}
	if current == nil || upd.Slots.Status == nil {
		return nil
	}

	query := `
		INSERT INTO matter_cycle_time_history
		    (matter_id, status_field_id, from_status_id, to_status_id,
		     transitioned_by, transitioned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.Exec(ctx, query,
		upd.MatterID,
		upd.FieldID,
		*current,
		*upd.Slots.Status,
		upd.Actor,
		upd.At,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to record status transition")
	}
	return nil
}

// upsertValue writes every slot so a retyped write never leaves a stale
// value behind.
func upsertValue(ctx context.Context, tx pgx.Tx, upd model.FieldUpdate) error {
	query := `
		INSERT INTO matter_field_values
		    (matter_id, field_id, text_value, string_value, number_value,
		     date_value, boolean_value, currency_value, user_value,
		     select_reference_value, status_reference_value,
		     created_at, updated_at)
		VALUES ($1, $2, $3, NULL, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (matter_id, field_id) DO UPDATE SET
		    text_value             = EXCLUDED.text_value,
		    string_value           = NULL,
		    number_value           = EXCLUDED.number_value,
		    date_value             = EXCLUDED.date_value,
		    boolean_value          = EXCLUDED.boolean_value,
		    currency_value         = EXCLUDED.currency_value,
		    user_value             = EXCLUDED.user_value,
		    select_reference_value = EXCLUDED.select_reference_value,
		    status_reference_value = EXCLUDED.status_reference_value,
		    updated_at             = EXCLUDED.updated_at
	`

	s := upd.Slots
	var currency any
	if s.Currency != nil {
		currency = string(s.Currency)
	}

	_, err := tx.Exec(ctx, query,
		upd.MatterID,
		upd.FieldID,
		s.Text,
		s.Number,
		s.Date,
		s.Boolean,
		currency,
		s.User,
		s.Select,
		s.Status,
		upd.At,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write field value")
	}
	return nil
}
