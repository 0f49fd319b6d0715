package repository

import (
	"context"
	"time"

	"github.com/pesio-ai/be-legal-matters/internal/common/database"
	"github.com/pesio-ai/be-legal-matters/internal/common/errors"
	"github.com/pesio-ai/be-legal-matters/internal/model"
)

// CycleTimeRepository reads the append-only status transition log.
// Writes happen only inside MatterRepository.UpdateField.
type CycleTimeRepository struct {
	db        database.Querier
	doneGroup string
}

// NewCycleTimeRepository creates a new CycleTimeRepository. doneGroup
// names the status group that marks completion.
func NewCycleTimeRepository(db database.Querier, doneGroup string) *CycleTimeRepository {
	return &CycleTimeRepository{db: db, doneGroup: doneGroup}
}

// LoadStamps returns the first-transition and first-completion times for
// each matter in one aggregate query. Matters without transitions are
// absent from the result.
func (r *CycleTimeRepository) LoadStamps(ctx context.Context, matterIDs []string) (map[string]model.CycleStamps, error) {
	stamps := make(map[string]model.CycleStamps, len(matterIDs))
	if len(matterIDs) == 0 {
		return stamps, nil
	}

	query := `
		SELECT h.matter_id,
		       MIN(h.transitioned_at),
		       MIN(h.transitioned_at) FILTER (WHERE g.name = $2)
		FROM matter_cycle_time_history h
		JOIN status_options so ON so.id = h.to_status_id
		JOIN status_groups g ON g.id = so.group_id
		WHERE h.matter_id = ANY($1)
		GROUP BY h.matter_id
	`

	rows, err := r.db.Query(ctx, query, matterIDs, r.doneGroup)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to load cycle time history")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			matterID  string
			started   *time.Time
			completed *time.Time
		)
		if err := rows.Scan(&matterID, &started, &completed); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan cycle time stamps")
		}
		stamps[matterID] = model.CycleStamps{StartedAt: started, CompletedAt: completed}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to load cycle time history")
	}

	return stamps, nil
}

// ListTransitions returns a matter's transition log, oldest first.
func (r *CycleTimeRepository) ListTransitions(ctx context.Context, matterID string) ([]*model.Transition, error) {
	query := `
		SELECT id, matter_id, status_field_id, from_status_id, to_status_id,
		       transitioned_by, transitioned_at
		FROM matter_cycle_time_history
		WHERE matter_id = $1
		ORDER BY transitioned_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, matterID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list transitions")
	}
	defer rows.Close()

	transitions := make([]*model.Transition, 0)
	for rows.Next() {
		t := &model.Transition{}
		err := rows.Scan(
			&t.ID,
			&t.MatterID,
			&t.StatusFieldID,
			&t.FromStatusID,
			&t.ToStatusID,
			&t.TransitionedBy,
			&t.TransitionedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan transition")
		}
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list transitions")
	}

	return transitions, nil
}
