// Package enforce implements the enforcement engine: per-shape survival
// computation, tier-law aggregation, the strict-precedence overall action,
// and the fork handshake with the TTE controller. Decisions are binding and
// non-overridable: no caller-facing knob can soften them.
package enforce

import (
	"time"

	"ricp/internal/repair"
	"ricp/internal/shape"
	"ricp/internal/trace"
	"ricp/internal/tte"
)

// Action is the binding outcome of a run, ordered by severity.
type Action string

const (
	ActionBlockAll Action = "BLOCK_ALL"
	ActionForkTTE  Action = "FORK_TTE"
	ActionWarnOnly Action = "WARN_ONLY"
)

// ViolationKind identifies why a shape violated its tier law.
type ViolationKind string

const (
	ViolationRSRBelowThreshold ViolationKind = "RSR_BELOW_THRESHOLD"
	ViolationUntoleratedLoss   ViolationKind = "UNTOLERATED_LOSS"
	ViolationInvariantLoss     ViolationKind = "INVARIANT_LOSS"
)

// Violation is one typed policy violation. Violations are data, not errors:
// they drive the enforcement state machine and surface in the decision.
type Violation struct {
	ShapeID   string            `json:"shape_id"`
	Tier      shape.Criticality `json:"tier"`
	Kind      ViolationKind     `json:"kind"`
	RSR       float64           `json:"rsr"`
	Threshold float64           `json:"threshold"`
	Handoff   shape.Handoff     `json:"handoff,omitempty"`
	Class     shape.LossClass   `json:"class,omitempty"`
	Detail    string            `json:"detail"`
}

// RSRResult is the survival computation for one shape in one run.
type RSRResult struct {
	ShapeID           string              `json:"shape_id"`
	Tier              shape.Criticality   `json:"tier"`
	RSR               float64             `json:"rsr"`
	Threshold         float64             `json:"threshold"`
	Met               bool                `json:"met"`
	PreservedCount    int                 `json:"preserved_count"`
	RequiredCount     int                 `json:"required_count"`
	UntoleratedLosses []trace.HandoffLoss `json:"untolerated_losses,omitempty"`
}

// TierResult aggregates shape results for one criticality tier.
type TierResult struct {
	Tier       shape.Criticality `json:"tier"`
	Threshold  float64           `json:"threshold"`
	Evaluated  int               `json:"evaluated"`
	Violations []Violation       `json:"violations,omitempty"`
	Passed     bool              `json:"passed"`
}

// Proof asserts how the decision was computed. All three flags are always
// true; they are recorded, not configurable.
type Proof struct {
	RunID          string    `json:"run_id"`
	InputDigest    string    `json:"input_digest"`
	NoInference    bool      `json:"no_inference"`
	NoSoftening    bool      `json:"no_softening"`
	NonOverridable bool      `json:"non_overridable"`
	ComputedAt     time.Time `json:"computed_at"`
}

// Decision is the binding outcome for one run. Immutable once returned.
// Directives holds one advisory repair directive per violated shape whenever
// the action blocks or forks; a blocked run keeps its directives even though
// no tracks exist.
type Decision struct {
	RunID               string                       `json:"run_id"`
	Results             []RSRResult                  `json:"results"`
	Tiers               []TierResult                 `json:"tiers"`
	GlobalRSR           float64                      `json:"global_rsr"` // mean over shapes
	Action              Action                       `json:"action"`
	Fork                tte.ForkDecision             `json:"fork"`
	Tracks              []*tte.Track                 `json:"tracks,omitempty"`
	Directives          map[string]*repair.Directive `json:"directives,omitempty"`
	CanonicalAllowed    bool                         `json:"canonical_allowed"`
	InvariantViolations []Violation                  `json:"invariant_violations,omitempty"`
	Proof               Proof                        `json:"proof"`
}

// ViolationsForTier returns the violations recorded for one tier.
func (d *Decision) ViolationsForTier(tier shape.Criticality) []Violation {
	for _, t := range d.Tiers {
		if t.Tier == tier {
			return t.Violations
		}
	}
	return nil
}

// Compliant reports whether every tier law is satisfied and every invariant
// preserved. Stricter than the action: WARN_ONLY is reachable while an
// ENHANCEMENT violation is still open.
func (d *Decision) Compliant() bool {
	for _, t := range d.Tiers {
		if !t.Passed {
			return false
		}
	}
	return len(d.InvariantViolations) == 0
}

// foundationalViolated reports whether any FOUNDATIONAL violation exists.
func (d *Decision) foundationalViolated() bool {
	return len(d.ViolationsForTier(shape.CriticalityFoundational)) > 0
}

// IsWireExecutionAllowed reports whether the WIRE stage may execute. There
// is no looser rule for later stages: a blocked run blocks them all.
func (d *Decision) IsWireExecutionAllowed() bool {
	if d.Action == ActionBlockAll || d.foundationalViolated() {
		return false
	}
	return d.CanonicalAllowed
}

// IsPixelExecutionAllowed mirrors IsWireExecutionAllowed by design.
func (d *Decision) IsPixelExecutionAllowed() bool {
	return d.IsWireExecutionAllowed()
}
