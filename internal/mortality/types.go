// Package mortality maintains the longitudinal reliability profile of every
// shape: per-handoff pass/death counters, a weakest-link overall survival
// rate, a fixed-threshold classification, and a sliding-window trend.
package mortality

import (
	"time"

	"ricp/internal/shape"
)

// Status classifies a shape's longitudinal reliability.
type Status string

const (
	StatusHealthy            Status = "HEALTHY"
	StatusFlaky              Status = "FLAKY"
	StatusDegrading          Status = "DEGRADING"
	StatusSystemicallyBroken Status = "SYSTEMICALLY_BROKEN"
)

// Trend is the direction of a shape's recent survival history.
type Trend string

const (
	TrendImproving Trend = "IMPROVING"
	TrendStable    Trend = "STABLE"
	TrendDeclining Trend = "DECLINING"
)

// Classification thresholds and trend window. Fixed constants: there is no
// configuration surface for these.
const (
	healthyThreshold = 0.95
	flakyThreshold   = 0.70
	trendWindow      = 5
	trendDelta       = 0.10
	minTrendSamples  = 3
)

// HandoffStats counts survivals and deaths of one shape at one handoff.
type HandoffStats struct {
	Passes int `json:"passes"`
	Deaths int `json:"deaths"`
}

// Observations returns the total observation count.
func (s HandoffStats) Observations() int {
	return s.Passes + s.Deaths
}

// Rate returns the survival rate passes/(passes+deaths). A handoff with no
// observations reports 1.0 and is excluded from overall-rate aggregation by
// the caller.
func (s HandoffStats) Rate() float64 {
	if s.Observations() == 0 {
		return 1.0
	}
	return float64(s.Passes) / float64(s.Observations())
}

// Record is the longitudinal reliability profile for one shape.
type Record struct {
	ShapeID        string                          `json:"shape_id"`
	Runs           int                             `json:"runs"`
	FirstSeen      time.Time                       `json:"first_seen"`
	LastSeen       time.Time                       `json:"last_seen"`
	Handoffs       map[shape.Handoff]*HandoffStats `json:"handoffs"`
	History        []float64                       `json:"history"` // last trendWindow overall rates, oldest first
	OverallRate    float64                         `json:"overall_rate"`
	Classification Status                          `json:"classification"`
	Trend          Trend                           `json:"trend"`
}

// overall recomputes the weakest-link survival rate: the minimum rate across
// handoffs with at least one observation, never an average.
func (r *Record) overall() float64 {
	min := 1.0
	seen := false
	for _, s := range r.Handoffs {
		if s.Observations() == 0 {
			continue
		}
		seen = true
		if rate := s.Rate(); rate < min {
			min = rate
		}
	}
	if !seen {
		return 1.0
	}
	return min
}

// trend classifies the sliding window: split into halves, compare means, and
// call a move of more than trendDelta in either direction. Fewer than
// minTrendSamples samples always reads STABLE.
func (r *Record) trend() Trend {
	n := len(r.History)
	if n < minTrendSamples {
		return TrendStable
	}
	firstHalf := r.History[:n/2]
	secondHalf := r.History[n/2:]
	diff := mean(secondHalf) - mean(firstHalf)
	switch {
	case diff < -trendDelta:
		return TrendDeclining
	case diff > trendDelta:
		return TrendImproving
	default:
		return TrendStable
	}
}

// classify applies the fixed thresholds, then demotes a HEALTHY or FLAKY
// shape on a declining trend.
func (r *Record) classify() Status {
	var s Status
	switch {
	case r.OverallRate >= healthyThreshold:
		s = StatusHealthy
	case r.OverallRate >= flakyThreshold:
		s = StatusFlaky
	default:
		s = StatusSystemicallyBroken
	}
	if (s == StatusHealthy || s == StatusFlaky) && r.Trend == TrendDeclining {
		return StatusDegrading
	}
	return s
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// HandoffDanger is one entry of the most-dangerous-handoffs ranking.
type HandoffDanger struct {
	Handoff shape.Handoff `json:"handoff"`
	Deaths  int           `json:"deaths"`
}

// Analysis is the outbound mortality summary for reporting.
type Analysis struct {
	TotalShapes    int            `json:"total_shapes"`
	CountsByStatus map[Status]int `json:"counts_by_status"`
	MostVulnerable []Record       `json:"most_vulnerable"`
	MostDangerous  []HandoffDanger `json:"most_dangerous_handoffs"`
}
