// Package query compiles list criteria (sort key, direction, search term)
// into parameterised PostgreSQL against the EAV value store.
//
// Values never reach the SQL text: field ids, search patterns, the
// completion group name and the SLA threshold are all bound arguments.
// Every ordering ends with a creation-time and id tie-break in the
// requested direction so pagination is stable.
package query

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pesio-ai/be-legal-matters/internal/common/logger"
	"github.com/pesio-ai/be-legal-matters/internal/model"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

func (d Direction) sql() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// Reserved sort keys that resolve to built-in expressions.
const (
	SortCreated        = "created"
	SortUpdated        = "updated"
	SortResolutionTime = "resolutionTime"
	SortSLAStatus      = "slaStatus"
)

// IsReserved reports whether key is a built-in sort key.
func IsReserved(key string) bool {
	switch key {
	case SortCreated, SortUpdated, SortResolutionTime, SortSLAStatus:
		return true
	}
	return false
}

// Resolver turns a field name into a typed handle.
type Resolver interface {
	Resolve(ctx context.Context, name string) (model.FieldHandle, bool, error)
}

// Criteria is a validated list request.
type Criteria struct {
	SortBy    string
	Direction Direction
	Search    string
}

// Options carry the cycle-time parameters the built-in expressions need.
type Options struct {
	DoneGroup    string
	SLAThreshold time.Duration
}

// Compiler builds Plans.
type Compiler struct {
	resolver Resolver
	opts     Options
	log      *logger.Logger
}

// NewCompiler creates a compiler.
func NewCompiler(resolver Resolver, opts Options, log *logger.Logger) *Compiler {
	return &Compiler{resolver: resolver, opts: opts, log: log}
}

// Compile resolves the sort key and captures the search pattern. Unknown
// field names degrade to ordering by creation time.
func (c *Compiler) Compile(ctx context.Context, crit Criteria) (*Plan, error) {
	plan := &Plan{
		sortKey:   SortCreated,
		direction: Asc,
		opts:      c.opts,
	}
	if crit.Direction == Desc {
		plan.direction = Desc
	}

	key := strings.TrimSpace(crit.SortBy)
	switch {
	case key == "":
	case IsReserved(key):
		plan.sortKey = key
	default:
		handle, ok, err := c.resolver.Resolve(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			if _, known := sortRules[handle.Type]; known {
				plan.sortKey = key
				plan.field = &handle
				break
			}
		}
		plan.Fallback = true
		c.log.Warn().
			Str("sort_by", key).
			Str("direction", string(plan.direction)).
			Msg("Unknown sort field, falling back to creation time")
	}

	if term := strings.TrimSpace(crit.Search); term != "" {
		plan.pattern = "%" + likeEscaper.Replace(term) + "%"
	}

	return plan, nil
}

// Plan is a compiled list query. It renders fresh argument lists for the
// count and page statements.
type Plan struct {
	sortKey   string
	field     *model.FieldHandle
	direction Direction
	pattern   string
	opts      Options

	// Fallback is set when the requested sort key could not be resolved.
	Fallback bool
}

// SortKey returns the effective sort key.
func (p *Plan) SortKey() string { return p.sortKey }

// Direction returns the effective direction.
func (p *Plan) Direction() Direction { return p.direction }

// Field returns the resolved sort field, or nil for reserved keys.
func (p *Plan) Field() *model.FieldHandle { return p.field }

// MatchesAll reports whether the plan has no search predicate.
func (p *Plan) MatchesAll() bool { return p.pattern == "" }

// CountSQL renders the total-count statement. Sort joins are omitted.
func (p *Plan) CountSQL() (string, []any) {
	a := &args{}
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM matters m")
	b.WriteString(p.where(a))
	return b.String(), a.values
}

// PageSQL renders the page statement returning matter rows in order.
func (p *Plan) PageSQL(limit, offset int) (string, []any) {
	a := &args{}
	joins, order := p.ordering(a)
	where := p.where(a)

	var b strings.Builder
	b.WriteString("SELECT m.id, m.board_id, m.created_at, m.updated_at FROM matters m")
	for _, j := range joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	b.WriteString(where)
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(order, ", "))
	b.WriteString(" LIMIT ")
	b.WriteString(a.add(limit))
	b.WriteString(" OFFSET ")
	b.WriteString(a.add(offset))
	return b.String(), a.values
}

func (p *Plan) where(a *args) string {
	if p.pattern == "" {
		return ""
	}
	return " WHERE " + searchPredicate(a, p.pattern, p.opts)
}

// args numbers bound parameters.
type args struct {
	values []any
}

func (a *args) add(v any) string {
	a.values = append(a.values, v)
	return "$" + strconv.Itoa(len(a.values))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
