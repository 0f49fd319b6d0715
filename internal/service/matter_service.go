package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pesio-ai/be-legal-matters/internal/common/clock"
	"github.com/pesio-ai/be-legal-matters/internal/common/errors"
	"github.com/pesio-ai/be-legal-matters/internal/common/logger"
	"github.com/pesio-ai/be-legal-matters/internal/cycletime"
	"github.com/pesio-ai/be-legal-matters/internal/model"
	"github.com/pesio-ai/be-legal-matters/internal/query"
	"github.com/pesio-ai/be-legal-matters/internal/repository"
)

// List request bounds.
const (
	DefaultPage     = 1
	DefaultLimit    = 20
	MaxLimit        = 100
	MaxSearchLength = 200
	MaxSortByLength = 255
)

// MatterStore reads matter rows and runs the field write transaction.
type MatterStore interface {
	Count(ctx context.Context, plan repository.Plan) (int64, error)
	ListPage(ctx context.Context, plan repository.Plan, limit, offset int) ([]*model.Matter, error)
	GetByID(ctx context.Context, id string) (*model.Matter, error)
	UpdateField(ctx context.Context, upd model.FieldUpdate) error
}

// FieldValueStore materializes field maps.
type FieldValueStore interface {
	Materialize(ctx context.Context, matterIDs []string) (model.FieldMaps, error)
}

// CycleTimeStore reads the transition log.
type CycleTimeStore interface {
	LoadStamps(ctx context.Context, matterIDs []string) (map[string]model.CycleStamps, error)
	ListTransitions(ctx context.Context, matterID string) ([]*model.Transition, error)
}

// MatterService handles the matter list, detail and update operations.
type MatterService struct {
	matters  MatterStore
	values   FieldValueStore
	history  CycleTimeStore
	catalog  *FieldCatalog
	compiler *query.Compiler
	calc     *cycletime.Calculator
	clock    clock.Clock
	log      *logger.Logger
}

// NewMatterService creates a new matter service.
func NewMatterService(
	matters MatterStore,
	values FieldValueStore,
	history CycleTimeStore,
	catalog *FieldCatalog,
	compiler *query.Compiler,
	calc *cycletime.Calculator,
	clk clock.Clock,
	log *logger.Logger,
) *MatterService {
	return &MatterService{
		matters:  matters,
		values:   values,
		history:  history,
		catalog:  catalog,
		compiler: compiler,
		calc:     calc,
		clock:    clk,
		log:      log,
	}
}

// ListRequest represents a list matters request. Transports fill in
// DefaultPage and DefaultLimit when the caller omits them.
type ListRequest struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
	Search    string
}

// ListResponse is one page of matters.
type ListResponse struct {
	Data       []*MatterListItem `json:"data"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalPages int               `json:"totalPages"`
}

// MatterListItem is the compact row shape.
type MatterListItem struct {
	ID             string         `json:"id"`
	BoardID        string         `json:"boardId"`
	Fields         map[string]any `json:"fields"`
	ResolutionTime *string        `json:"resolutionTime"`
	SLA            string         `json:"sla"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// MatterDetail is the full matter with raw and display values.
type MatterDetail struct {
	ID        string           `json:"id"`
	BoardID   string           `json:"boardId"`
	Fields    model.FieldMap   `json:"fields"`
	CycleTime cycletime.Result `json:"cycleTime"`
	SLA       string           `json:"sla"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// UpdateFieldRequest represents an update field request
type UpdateFieldRequest struct {
	FieldID   string `json:"fieldId"`
	FieldType string `json:"fieldType"`
	Value     any    `json:"value"`
}

// normalize validates req in place and returns the criteria it implies.
func (req *ListRequest) normalize() (query.Criteria, error) {
	if req.Page < 1 {
		return query.Criteria{}, errors.InvalidInput("page", "must be at least 1")
	}
	if req.Limit < 1 || req.Limit > MaxLimit {
		return query.Criteria{}, errors.InvalidInput("limit", fmt.Sprintf("must be between 1 and %d", MaxLimit))
	}
	// The page offset must fit a signed 64-bit OFFSET.
	if int64(req.Page-1) > math.MaxInt64/int64(req.Limit) {
		return query.Criteria{}, errors.InvalidInput("page", "is too large")
	}

	order := strings.ToLower(strings.TrimSpace(req.SortOrder))
	switch order {
	case "":
		order = string(query.Asc)
	case string(query.Asc), string(query.Desc):
	default:
		return query.Criteria{}, errors.InvalidInput("sortOrder", "must be asc or desc")
	}
	req.SortOrder = order

	req.SortBy = strings.TrimSpace(req.SortBy)
	if utf8.RuneCountInString(req.SortBy) > MaxSortByLength {
		return query.Criteria{}, errors.InvalidInput("sortBy", fmt.Sprintf("must be at most %d characters", MaxSortByLength))
	}

	req.Search = strings.TrimSpace(req.Search)
	if utf8.RuneCountInString(req.Search) > MaxSearchLength {
		return query.Criteria{}, errors.InvalidInput("search", fmt.Sprintf("must be at most %d characters", MaxSearchLength))
	}

	return query.Criteria{
		SortBy:    req.SortBy,
		Direction: query.Direction(order),
		Search:    req.Search,
	}, nil
}

// List returns one page of matters.
func (s *MatterService) List(ctx context.Context, req ListRequest) (*ListResponse, error) {
	crit, err := req.normalize()
	if err != nil {
		return nil, err
	}

	plan, err := s.compiler.Compile(ctx, crit)
	if err != nil {
		return nil, err
	}

	var (
		total int64
		page  []*model.Matter
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.matters.Count(gctx, plan)
		return err
	})
	g.Go(func() error {
		var err error
		page, err = s.matters.ListPage(gctx, plan, req.Limit, (req.Page-1)*req.Limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := make([]string, len(page))
	for i, m := range page {
		ids[i] = m.ID
	}

	fields, cycles, err := s.enrich(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]*MatterListItem, len(page))
	for i, m := range page {
		items[i] = listItem(m, fields[m.ID], cycles[m.ID])
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))

	s.log.Debug().
		Str("sort_by", plan.SortKey()).
		Str("sort_order", string(plan.Direction())).
		Bool("search", !plan.MatchesAll()).
		Int64("total", total).
		Int("page", req.Page).
		Msg("Matters listed")

	return &ListResponse{
		Data:       items,
		Total:      total,
		Page:       req.Page,
		Limit:      req.Limit,
		TotalPages: totalPages,
	}, nil
}

// Get returns the detail view of one matter.
func (s *MatterService) Get(ctx context.Context, id string) (*MatterDetail, error) {
	if err := validateID("id", id); err != nil {
		return nil, err
	}

	m, err := s.matters.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	fields, cycles, err := s.enrich(ctx, []string{m.ID})
	if err != nil {
		return nil, err
	}

	return detail(m, fields[m.ID], cycles[m.ID]), nil
}

// UpdateField writes one field value and returns the refreshed matter.
func (s *MatterService) UpdateField(ctx context.Context, matterID string, req UpdateFieldRequest, actor *int64) (*MatterDetail, error) {
	if err := validateID("id", matterID); err != nil {
		return nil, err
	}
	if err := validateID("fieldId", req.FieldID); err != nil {
		return nil, err
	}

	ft := model.FieldType(strings.TrimSpace(req.FieldType))
	if !ft.Valid() {
		return nil, errors.UnsupportedType(req.FieldType)
	}

	slots, err := repository.EncodeValue(ft, req.Value)
	if err != nil {
		return nil, err
	}

	upd := model.FieldUpdate{
		MatterID:  matterID,
		FieldID:   req.FieldID,
		FieldType: ft,
		Slots:     slots,
		Actor:     actor,
		At:        s.clock.Now(),
	}
	if err := s.matters.UpdateField(ctx, upd); err != nil {
		return nil, err
	}

	evt := s.log.Info().
		Str("matter_id", matterID).
		Str("field_id", req.FieldID).
		Str("field_type", string(ft))
	if actor != nil {
		evt = evt.Int64("actor", *actor)
	}
	evt.Msg("Matter field updated")

	return s.Get(ctx, matterID)
}

// ListTransitions returns a matter's status history, oldest first.
func (s *MatterService) ListTransitions(ctx context.Context, matterID string) ([]*model.Transition, error) {
	if err := validateID("id", matterID); err != nil {
		return nil, err
	}
	if _, err := s.matters.GetByID(ctx, matterID); err != nil {
		return nil, err
	}
	return s.history.ListTransitions(ctx, matterID)
}

// ListFields returns the live field definitions.
func (s *MatterService) ListFields(ctx context.Context) ([]*model.FieldDefinition, error) {
	return s.catalog.List(ctx)
}

// enrich loads field maps and transition stamps for ids concurrently and
// derives each matter's cycle-time block.
func (s *MatterService) enrich(ctx context.Context, ids []string) (model.FieldMaps, map[string]cycletime.Result, error) {
	if len(ids) == 0 {
		return model.FieldMaps{}, map[string]cycletime.Result{}, nil
	}

	var (
		fields model.FieldMaps
		stamps map[string]model.CycleStamps
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fields, err = s.values.Materialize(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		stamps, err = s.history.LoadStamps(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	groups := make(map[string]string, len(ids))
	for _, id := range ids {
		groups[id] = fields[id].CurrentStatusGroup()
	}

	return fields, s.calc.ComputeAll(stamps, groups, ids), nil
}

func listItem(m *model.Matter, fields model.FieldMap, cycle cycletime.Result) *MatterListItem {
	compact := make(map[string]any, len(fields))
	for name, entry := range fields {
		compact[name] = entry.ListValue()
	}

	var resolution *string
	if cycle.ResolutionMs != nil {
		formatted := cycle.Formatted
		resolution = &formatted
	}

	return &MatterListItem{
		ID:             m.ID,
		BoardID:        m.BoardID,
		Fields:         compact,
		ResolutionTime: resolution,
		SLA:            string(cycle.SLA),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func detail(m *model.Matter, fields model.FieldMap, cycle cycletime.Result) *MatterDetail {
	if fields == nil {
		fields = model.FieldMap{}
	}
	return &MatterDetail{
		ID:        m.ID,
		BoardID:   m.BoardID,
		Fields:    fields,
		CycleTime: cycle,
		SLA:       string(cycle.SLA),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func validateID(field, id string) error {
	if id == "" {
		return errors.InvalidInput(field, "is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return errors.InvalidInput(field, "must be a valid UUID")
	}
	return nil
}
