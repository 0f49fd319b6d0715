// Package cycletime derives resolution time and SLA status for matters
// from the first-transition and first-completion timestamps of their
// status-transition log.
package cycletime

import (
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-legal-matters/internal/common/clock"
	"github.com/pesio-ai/be-legal-matters/internal/model"
)

// SLAStatus is the verdict for a matter's resolution time.
type SLAStatus string

const (
	SLAMet        SLAStatus = "Met"
	SLABreached   SLAStatus = "Breached"
	SLAInProgress SLAStatus = "In Progress"
)

// NotAvailable is rendered when no duration can be computed.
const NotAvailable = "N/A"

// OngoingMarker prefixes a duration that is still accruing.
const OngoingMarker = "⏳ "

// Result is the cycle-time block for one matter.
type Result struct {
	StartedAt    *time.Time `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt"`
	ResolutionMs *int64     `json:"resolutionTimeMs"`
	IsInProgress bool       `json:"isInProgress"`
	// Ongoing is true when ResolutionMs was measured against now rather
	// than a completion timestamp.
	Ongoing   bool      `json:"-"`
	Formatted string    `json:"resolutionTimeFormatted"`
	SLA       SLAStatus `json:"-"`
}

// Input pairs a matter's stamps with its current status group.
type Input struct {
	Stamps       model.CycleStamps
	CurrentGroup string
}

// Calculator applies the cycle-time rules.
type Calculator struct {
	clock     clock.Clock
	threshold time.Duration
	doneGroup string
}

// NewCalculator creates a calculator. threshold is inclusive.
func NewCalculator(clk clock.Clock, threshold time.Duration, doneGroup string) *Calculator {
	return &Calculator{clock: clk, threshold: threshold, doneGroup: doneGroup}
}

// Compute derives the cycle-time block for one matter.
func (c *Calculator) Compute(in Input) Result {
	res := Result{
		StartedAt:    in.Stamps.StartedAt,
		CompletedAt:  in.Stamps.CompletedAt,
		IsInProgress: in.CurrentGroup != c.doneGroup,
	}

	switch {
	case res.StartedAt != nil && res.CompletedAt != nil:
		ms := res.CompletedAt.Sub(*res.StartedAt).Milliseconds()
		res.ResolutionMs = &ms
	case res.StartedAt != nil && res.IsInProgress:
		ms := c.clock.Now().Sub(*res.StartedAt).Milliseconds()
		res.ResolutionMs = &ms
		res.Ongoing = true
	}

	res.Formatted = FormatDuration(res.ResolutionMs, res.Ongoing)

	switch {
	case res.IsInProgress:
		res.SLA = SLAInProgress
	case res.ResolutionMs == nil:
		res.SLA = SLAInProgress
	case *res.ResolutionMs <= c.threshold.Milliseconds():
		res.SLA = SLAMet
	default:
		res.SLA = SLABreached
	}

	return res
}

// ComputeAll runs Compute for every matter in the batch. Matters without
// stamps get the no-transition result.
func (c *Calculator) ComputeAll(stamps map[string]model.CycleStamps, groups map[string]string, ids []string) map[string]Result {
	out := make(map[string]Result, len(ids))
	for _, id := range ids {
		out[id] = c.Compute(Input{Stamps: stamps[id], CurrentGroup: groups[id]})
	}
	return out
}

// FormatDuration renders milliseconds by integer decomposition: days and
// hours once a day has passed, hours and minutes under a day, bare
// minutes under an hour, otherwise seconds.
func FormatDuration(ms *int64, ongoing bool) string {
	if ms == nil || *ms < 0 {
		return NotAvailable
	}

	totalSeconds := *ms / 1000
	days := totalSeconds / 86400
	hours := (totalSeconds % 86400) / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	var parts []string
	switch {
	case days > 0:
		parts = append(parts, fmt.Sprintf("%dd", days))
		if hours > 0 {
			parts = append(parts, fmt.Sprintf("%dh", hours))
		}
	case hours > 0:
		parts = append(parts, fmt.Sprintf("%dh", hours))
		if minutes > 0 {
			parts = append(parts, fmt.Sprintf("%dm", minutes))
		}
	case minutes > 0:
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	default:
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}

	formatted := strings.Join(parts, " ")
	if ongoing {
		return OngoingMarker + formatted
	}
	return formatted
}
