// Package tte implements Triple-Track Execution: forking a run into
// isolated CANONICAL/SHADOW/REMEDIATED tracks, and the promotion path that
// merges a remediated track back into the canonical lineage. Tracks are
// logically isolated: each holds its own copies of shared inputs and the
// only cross-track data is the run id and originating gate result supplied
// at creation.
package tte

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ricp/internal/repair"
	"ricp/internal/shape"
	"ricp/internal/trace"
)

// Kind identifies the role of an execution track.
type Kind string

const (
	TrackCanonical  Kind = "CANONICAL"
	TrackShadow     Kind = "SHADOW"
	TrackRemediated Kind = "REMEDIATED"
)

// Status is the track lifecycle state. PROMOTED and ABANDONED are terminal:
// a track never leaves either.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusExecuting Status = "EXECUTING"
	StatusPassed    Status = "PASSED"
	StatusAbandoned Status = "ABANDONED"
	StatusPromoted  Status = "PROMOTED"
)

// ErrTerminalTrack is returned for any transition on a promoted or abandoned
// track.
var ErrTerminalTrack = fmt.Errorf("track is in a terminal state")

// RSRCheck is one per-shape survival result attached to a track.
type RSRCheck struct {
	ShapeID   string            `json:"shape_id"`
	Tier      shape.Criticality `json:"tier"`
	RSR       float64           `json:"rsr"`
	Threshold float64           `json:"threshold"`
	Met       bool              `json:"met"`
}

// LossCheck is one observed loss attached to a track, with its budget
// tolerance already resolved.
type LossCheck struct {
	ShapeID   string          `json:"shape_id"`
	Handoff   shape.Handoff   `json:"handoff"`
	Class     shape.LossClass `json:"class"`
	Tolerated bool            `json:"tolerated"`
}

// Track is one isolated execution context.
type Track struct {
	ID        string            `json:"id"`
	RunID     string            `json:"run_id"`
	Kind      Kind              `json:"kind"`
	Isolated  bool              `json:"isolated"` // always true
	CreatedAt time.Time         `json:"created_at"`
	Directive *repair.Directive `json:"directive,omitempty"`

	mu          sync.Mutex
	status      Status
	promotable  bool
	gate        trace.GateResult
	gateResults []trace.GateResult
	rsrChecks   []RSRCheck
	lossChecks  []LossCheck
}

func newTrack(runID string, kind Kind, gate trace.GateResult) *Track {
	return &Track{
		ID:        uuid.NewString(),
		RunID:     runID,
		Kind:      kind,
		Isolated:  true,
		CreatedAt: time.Now(),
		status:    StatusPending,
		gate:      gate.Clone(),
	}
}

// Status returns the current lifecycle state.
func (t *Track) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Promotable reports whether the track has been marked promotion-eligible.
func (t *Track) Promotable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.promotable
}

// Gate returns the track's own copy of the originating gate result.
func (t *Track) Gate() trace.GateResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gate.Clone()
}

func (t *Track) transition(to Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusPromoted || t.status == StatusAbandoned {
		return fmt.Errorf("%w: %s track %s is %s", ErrTerminalTrack, t.Kind, t.ID, t.status)
	}
	t.status = to
	return nil
}

// Begin moves the track to EXECUTING.
func (t *Track) Begin() error { return t.transition(StatusExecuting) }

// Pass moves the track to PASSED.
func (t *Track) Pass() error { return t.transition(StatusPassed) }

// Abandon terminates the track. Abandonment is final.
func (t *Track) Abandon() error { return t.transition(StatusAbandoned) }

// AttachGateResult appends a gate result observed while evaluating the track.
func (t *Track) AttachGateResult(g trace.GateResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gateResults = append(t.gateResults, g.Clone())
}

// AttachRSR appends a per-shape survival check.
func (t *Track) AttachRSR(c RSRCheck) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rsrChecks = append(t.rsrChecks, c)
}

// AttachLoss appends an observed loss with its resolved tolerance.
func (t *Track) AttachLoss(c LossCheck) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lossChecks = append(t.lossChecks, c)
}

// GateResults returns a copy of the attached gate results.
func (t *Track) GateResults() []trace.GateResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]trace.GateResult, 0, len(t.gateResults))
	for _, g := range t.gateResults {
		out = append(out, g.Clone())
	}
	return out
}

// RSRChecks returns a copy of the attached survival checks.
func (t *Track) RSRChecks() []RSRCheck {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]RSRCheck(nil), t.rsrChecks...)
}

// LossChecks returns a copy of the attached loss checks.
func (t *Track) LossChecks() []LossCheck {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]LossCheck(nil), t.lossChecks...)
}
