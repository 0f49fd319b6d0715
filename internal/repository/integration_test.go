package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-legal-matters/internal/common/clock"
	"github.com/pesio-ai/be-legal-matters/internal/common/database"
	"github.com/pesio-ai/be-legal-matters/internal/common/errors"
	"github.com/pesio-ai/be-legal-matters/internal/common/logger"
	"github.com/pesio-ai/be-legal-matters/internal/model"
	"github.com/pesio-ai/be-legal-matters/internal/query"
	"github.com/pesio-ai/be-legal-matters/internal/repository"
	"github.com/pesio-ai/be-legal-matters/internal/service"
)

// testDatabaseEnv points the integration tests at a scratch database.
// Each run works in its own schema and drops it afterwards.
const testDatabaseEnv = "MATTERS_TEST_DATABASE_URL"

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type seed struct {
	db *database.DB

	claimValue string
	client     string
	status     string
	assignee   string
	practice   string
	fee        string

	todo       string
	inProgress string
	done       string

	litigation string
	corporate  string

	userID  int64
	bakerID int64
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	dsn := os.Getenv(testDatabaseEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}

	ctx := context.Background()
	schema := "matters_test_" + uuid.NewString()[:8]

	admin, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	poolCfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	poolCfg.ConnConfig.RuntimeParams["search_path"] = schema + ",public"

	db, err := database.Open(ctx, poolCfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	migration, err := os.ReadFile("../../migrations/0001_create_matters.sql")
	require.NoError(t, err)
	_, err = db.Exec(ctx, string(migration))
	require.NoError(t, err)

	return db
}

func newSeed(t *testing.T) *seed {
	t.Helper()
	ctx := context.Background()
	s := &seed{db: openTestDB(t)}

	insert := func(query string, args ...any) string {
		t.Helper()
		var id string
		require.NoError(t, s.db.QueryRow(ctx, query, args...).Scan(&id))
		return id
	}

	s.claimValue = insert(`INSERT INTO field_definitions (name, field_type, sequence) VALUES ('Claim Value', 'number', 2) RETURNING id`)
	s.client = insert(`INSERT INTO field_definitions (name, field_type, sequence) VALUES ('Client', 'text', 1) RETURNING id`)
	s.status = insert(`INSERT INTO field_definitions (name, field_type, sequence) VALUES ('Status', 'status', 0) RETURNING id`)

	todoGroup := insert(`INSERT INTO status_groups (name, sequence) VALUES ('To Do', 0) RETURNING id`)
	progressGroup := insert(`INSERT INTO status_groups (name, sequence) VALUES ('In Progress', 1) RETURNING id`)
	doneGroup := insert(`INSERT INTO status_groups (name, sequence) VALUES ('Done', 2) RETURNING id`)

	option := `INSERT INTO status_options (field_id, group_id, label, sequence) VALUES ($1, $2, $3, $4) RETURNING id`
	s.todo = insert(option, s.status, todoGroup, "Intake", 0)
	s.inProgress = insert(option, s.status, progressGroup, "Discovery", 1)
	s.done = insert(option, s.status, doneGroup, "Closed", 2)

	s.assignee = insert(`INSERT INTO field_definitions (name, field_type, sequence) VALUES ('Assignee', 'user', 3) RETURNING id`)
	s.practice = insert(`INSERT INTO field_definitions (name, field_type, sequence) VALUES ('Practice Area', 'select', 4) RETURNING id`)
	s.fee = insert(`INSERT INTO field_definitions (name, field_type, sequence) VALUES ('Fee', 'currency', 5) RETURNING id`)

	selectOption := `INSERT INTO select_options (field_id, label, sequence) VALUES ($1, $2, $3) RETURNING id`
	s.litigation = insert(selectOption, s.practice, "Litigation", 0)
	s.corporate = insert(selectOption, s.practice, "Corporate", 1)

	require.NoError(t, s.db.QueryRow(ctx,
		`INSERT INTO users (email, first_name, last_name) VALUES ('jane@firm.test', 'Jane', 'Smith') RETURNING id`,
	).Scan(&s.userID))
	require.NoError(t, s.db.QueryRow(ctx,
		`INSERT INTO users (email, first_name, last_name) VALUES ('alan@firm.test', 'Alan', 'Baker') RETURNING id`,
	).Scan(&s.bakerID))

	return s
}

// board holds four matters in creation order:
//   - a: completed in 2h, assigned to Smith, Corporate, fee 1200.5 GBP
//   - b: completed in 10h, assigned to Baker, Litigation
//   - c: started, still in Discovery
//   - d: no values at all
type board struct {
	a, b, c, d string
}

func (s *seed) board(t *testing.T) board {
	t.Helper()

	bd := board{
		a: s.matter(t, t0),
		b: s.matter(t, t0.Add(time.Minute)),
		c: s.matter(t, t0.Add(2*time.Minute)),
		d: s.matter(t, t0.Add(3*time.Minute)),
	}

	for _, id := range []string{bd.a, bd.b, bd.c} {
		s.write(t, id, s.status, model.FieldTypeStatus, s.todo, t0)
		s.write(t, id, s.status, model.FieldTypeStatus, s.inProgress, t0.Add(time.Hour))
	}
	s.write(t, bd.a, s.status, model.FieldTypeStatus, s.done, t0.Add(3*time.Hour))
	s.write(t, bd.b, s.status, model.FieldTypeStatus, s.done, t0.Add(11*time.Hour))

	s.write(t, bd.a, s.assignee, model.FieldTypeUser, s.userID, t0)
	s.write(t, bd.b, s.assignee, model.FieldTypeUser, s.bakerID, t0)

	s.write(t, bd.a, s.practice, model.FieldTypeSelect, s.corporate, t0)
	s.write(t, bd.b, s.practice, model.FieldTypeSelect, s.litigation, t0)

	s.write(t, bd.a, s.fee, model.FieldTypeCurrency, map[string]any{"amount": 1200.5, "currency": "GBP"}, t0)

	return bd
}

func (s *seed) matter(t *testing.T, created time.Time) string {
	t.Helper()
	ctx := context.Background()

	var board string
	require.NoError(t, s.db.QueryRow(ctx, `INSERT INTO boards (name) VALUES ('Litigation') RETURNING id`).Scan(&board))

	var id string
	require.NoError(t, s.db.QueryRow(ctx,
		`INSERT INTO matters (board_id, created_at, updated_at) VALUES ($1, $2, $2) RETURNING id`,
		board, created,
	).Scan(&id))
	return id
}

func (s *seed) write(t *testing.T, matterID, fieldID string, ft model.FieldType, value any, at time.Time) {
	t.Helper()

	slots, err := repository.EncodeValue(ft, value)
	require.NoError(t, err)
	err = repository.NewMatterRepository(s.db).UpdateField(context.Background(), model.FieldUpdate{
		MatterID:  matterID,
		FieldID:   fieldID,
		FieldType: ft,
		Slots:     slots,
		Actor:     &s.userID,
		At:        at,
	})
	require.NoError(t, err)
}

func (s *seed) list(t *testing.T, crit query.Criteria) ([]string, int64) {
	t.Helper()
	ctx := context.Background()

	catalog := service.NewFieldCatalog(repository.NewFieldDefinitionRepository(s.db), clock.Real(), 0, logger.Nop())
	compiler := query.NewCompiler(catalog, query.Options{DoneGroup: "Done", SLAThreshold: 8 * time.Hour}, logger.Nop())
	plan, err := compiler.Compile(ctx, crit)
	require.NoError(t, err)

	repo := repository.NewMatterRepository(s.db)
	total, err := repo.Count(ctx, plan)
	require.NoError(t, err)
	matters, err := repo.ListPage(ctx, plan, 100, 0)
	require.NoError(t, err)

	ids := make([]string, len(matters))
	for i, m := range matters {
		ids[i] = m.ID
	}
	return ids, total
}

func TestIntegration_SortKeepsNullsLast(t *testing.T) {
	s := newSeed(t)

	a := s.matter(t, t0)
	b := s.matter(t, t0.Add(time.Minute))
	c := s.matter(t, t0.Add(2*time.Minute))
	s.write(t, a, s.claimValue, model.FieldTypeNumber, 100.0, t0)
	s.write(t, c, s.claimValue, model.FieldTypeNumber, 50.0, t0)

	asc, total := s.list(t, query.Criteria{SortBy: "Claim Value", Direction: query.Asc})
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []string{c, a, b}, asc)

	desc, _ := s.list(t, query.Criteria{SortBy: "Claim Value", Direction: query.Desc})
	assert.Equal(t, []string{a, c, b}, desc)
}

func TestIntegration_TieBreakFollowsCreationOrder(t *testing.T) {
	s := newSeed(t)

	first := s.matter(t, t0)
	second := s.matter(t, t0.Add(time.Minute))
	s.write(t, first, s.claimValue, model.FieldTypeNumber, 10.0, t0)
	s.write(t, second, s.claimValue, model.FieldTypeNumber, 10.0, t0)

	asc, _ := s.list(t, query.Criteria{SortBy: "Claim Value", Direction: query.Asc})
	assert.Equal(t, []string{first, second}, asc)

	desc, _ := s.list(t, query.Criteria{SortBy: "Claim Value", Direction: query.Desc})
	assert.Equal(t, []string{second, first}, desc)
}

func TestIntegration_SearchIsCaseInsensitive(t *testing.T) {
	s := newSeed(t)

	acme := s.matter(t, t0)
	other := s.matter(t, t0.Add(time.Minute))
	s.write(t, acme, s.client, model.FieldTypeText, "Acme Holdings", t0)
	s.write(t, other, s.client, model.FieldTypeText, "Globex", t0)

	ids, total := s.list(t, query.Criteria{Search: "ACME"})
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{acme}, ids)

	ids, total = s.list(t, query.Criteria{Search: "100%"})
	assert.Equal(t, int64(0), total)
	assert.Empty(t, ids)
}

func TestIntegration_UpdateRoundTrip(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()

	id := s.matter(t, t0)
	s.write(t, id, s.claimValue, model.FieldTypeNumber, 1234567.0, t0)
	s.write(t, id, s.client, model.FieldTypeText, "Acme Holdings", t0)

	maps, err := repository.NewFieldValueRepository(s.db).Materialize(ctx, []string{id})
	require.NoError(t, err)

	claim := maps[id]["Claim Value"]
	assert.Equal(t, 1234567.0, claim.Value)
	assert.Equal(t, "1,234,567", claim.DisplayValue)
	assert.Equal(t, "Acme Holdings", maps[id]["Client"].Value)

	s.write(t, id, s.claimValue, model.FieldTypeNumber, nil, t0.Add(time.Hour))
	maps, err = repository.NewFieldValueRepository(s.db).Materialize(ctx, []string{id})
	require.NoError(t, err)
	assert.Nil(t, maps[id]["Claim Value"].Value)

	m, err := repository.NewMatterRepository(s.db).GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, m.UpdatedAt.Equal(t0.Add(time.Hour)))
}

func TestIntegration_FirstCompletionWins(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()

	id := s.matter(t, t0)
	s.write(t, id, s.status, model.FieldTypeStatus, s.todo, t0)
	s.write(t, id, s.status, model.FieldTypeStatus, s.inProgress, t0.Add(1*time.Hour))
	s.write(t, id, s.status, model.FieldTypeStatus, s.done, t0.Add(3*time.Hour))
	s.write(t, id, s.status, model.FieldTypeStatus, s.inProgress, t0.Add(5*time.Hour))
	s.write(t, id, s.status, model.FieldTypeStatus, s.done, t0.Add(9*time.Hour))

	cycles := repository.NewCycleTimeRepository(s.db, "Done")

	transitions, err := cycles.ListTransitions(ctx, id)
	require.NoError(t, err)
	require.Len(t, transitions, 4, "the initial assignment is not a transition")
	assert.Equal(t, s.todo, *transitions[0].FromStatusID)
	assert.Equal(t, s.inProgress, transitions[0].ToStatusID)
	assert.Equal(t, s.userID, *transitions[0].TransitionedBy)

	stamps, err := cycles.LoadStamps(ctx, []string{id})
	require.NoError(t, err)
	require.Contains(t, stamps, id)
	assert.True(t, stamps[id].StartedAt.Equal(t0.Add(time.Hour)))
	assert.True(t, stamps[id].CompletedAt.Equal(t0.Add(3*time.Hour)))
}

func TestIntegration_TransitionLogIsAppendOnly(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()

	id := s.matter(t, t0)
	s.write(t, id, s.status, model.FieldTypeStatus, s.todo, t0)
	s.write(t, id, s.status, model.FieldTypeStatus, s.done, t0.Add(time.Hour))

	_, err := s.db.Exec(ctx, `DELETE FROM matter_cycle_time_history WHERE matter_id = $1`, id)
	assert.Error(t, err)

	_, err = s.db.Exec(ctx, `UPDATE matter_cycle_time_history SET transitioned_at = now() WHERE matter_id = $1`, id)
	assert.Error(t, err)
}

func TestIntegration_UpdateRejectsForeignOption(t *testing.T) {
	s := newSeed(t)

	id := s.matter(t, t0)
	slots, err := repository.EncodeValue(model.FieldTypeStatus, uuid.NewString())
	require.NoError(t, err)

	err = repository.NewMatterRepository(s.db).UpdateField(context.Background(), model.FieldUpdate{
		MatterID:  id,
		FieldID:   s.status,
		FieldType: model.FieldTypeStatus,
		Slots:     slots,
		At:        t0,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("does not belong to field %s", s.status))
}

func TestIntegration_SortByEveryKind(t *testing.T) {
	s := newSeed(t)
	bd := s.board(t)

	tests := []struct {
		sortBy string
		asc    []string
		desc   []string
	}{
		{"Status", []string{bd.c, bd.a, bd.b, bd.d}, []string{bd.b, bd.a, bd.c, bd.d}},
		{"Assignee", []string{bd.b, bd.a, bd.c, bd.d}, []string{bd.a, bd.b, bd.d, bd.c}},
		{"Practice Area", []string{bd.b, bd.a, bd.c, bd.d}, []string{bd.a, bd.b, bd.d, bd.c}},
		{"Fee", []string{bd.a, bd.b, bd.c, bd.d}, []string{bd.a, bd.d, bd.c, bd.b}},
		{query.SortResolutionTime, []string{bd.a, bd.b, bd.c, bd.d}, []string{bd.b, bd.a, bd.d, bd.c}},
		{query.SortSLAStatus, []string{bd.b, bd.c, bd.d, bd.a}, []string{bd.a, bd.d, bd.c, bd.b}},
	}

	for _, tt := range tests {
		t.Run(tt.sortBy, func(t *testing.T) {
			asc, total := s.list(t, query.Criteria{SortBy: tt.sortBy, Direction: query.Asc})
			assert.Equal(t, int64(4), total)
			assert.Equal(t, tt.asc, asc)

			desc, _ := s.list(t, query.Criteria{SortBy: tt.sortBy, Direction: query.Desc})
			assert.Equal(t, tt.desc, desc)
		})
	}
}

func TestIntegration_SearchEveryKind(t *testing.T) {
	s := newSeed(t)
	bd := s.board(t)

	tests := []struct {
		search string
		want   []string
	}{
		{"Jane Smith", []string{bd.a}},
		{"baker", []string{bd.b}},
		{"DISCOVERY", []string{bd.c}},
		{"litigation", []string{bd.b}},
		{"1200", []string{bd.a}},
		{"breached", []string{bd.b}},
		{"in progress", []string{bd.c, bd.d}},
		{"met", []string{bd.a}},
	}

	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			ids, total := s.list(t, query.Criteria{Search: tt.search})
			assert.Equal(t, int64(len(tt.want)), total)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestIntegration_UpdateRejectsMissingUser(t *testing.T) {
	s := newSeed(t)

	id := s.matter(t, t0)
	slots, err := repository.EncodeValue(model.FieldTypeUser, int64(987654))
	require.NoError(t, err)

	err = repository.NewMatterRepository(s.db).UpdateField(context.Background(), model.FieldUpdate{
		MatterID:  id,
		FieldID:   s.assignee,
		FieldType: model.FieldTypeUser,
		Slots:     slots,
		At:        t0,
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}
