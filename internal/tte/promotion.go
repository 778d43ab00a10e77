package tte

import (
	"fmt"
	"sync"

	"ricp/internal/logging"
	"ricp/internal/shape"
	"ricp/internal/trace"
)

// BlockerKind identifies which promotion condition failed.
type BlockerKind string

const (
	BlockerTrackType       BlockerKind = "TRACK_TYPE"
	BlockerGateFailure     BlockerKind = "GATE_FAILURE"
	BlockerRSRViolation    BlockerKind = "RSR_VIOLATION"
	BlockerUntoleratedLoss BlockerKind = "UNTOLERATED_LOSS"
)

// Blocker is one failed promotion condition.
type Blocker struct {
	Kind   BlockerKind `json:"kind"`
	Detail string      `json:"detail"`
}

// PromotionController evaluates and executes track promotion into the
// canonical lineage.
type PromotionController struct {
	mu      sync.Mutex
	lineage *LineageStore
}

// NewPromotionController creates a promotion controller. The lineage store
// may be nil for in-memory use.
func NewPromotionController(lineage *LineageStore) *PromotionController {
	return &PromotionController{lineage: lineage}
}

// Eligibility checks every promotion condition and returns all failing
// blockers. Eligible only when every condition holds: REMEDIATED kind,
// PASSED status, every attached gate result PASS, every FOUNDATIONAL and
// INTERACTIVE survival check met, and no untolerated loss.
func (p *PromotionController) Eligibility(t *Track) (bool, []Blocker) {
	var blockers []Blocker

	if t.Kind != TrackRemediated {
		blockers = append(blockers, Blocker{
			Kind:   BlockerTrackType,
			Detail: fmt.Sprintf("only REMEDIATED tracks may be promoted, track is %s", t.Kind),
		})
	}
	if st := t.Status(); st != StatusPassed {
		blockers = append(blockers, Blocker{
			Kind:   BlockerTrackType,
			Detail: fmt.Sprintf("track status is %s, must be PASSED", st),
		})
	}
	for _, g := range t.GateResults() {
		if g.Verdict != trace.GatePass {
			blockers = append(blockers, Blocker{
				Kind:   BlockerGateFailure,
				Detail: fmt.Sprintf("attached gate verdict %s", g.Verdict),
			})
		}
	}
	for _, c := range t.RSRChecks() {
		if c.Tier == shape.CriticalityEnhancement {
			continue
		}
		if !c.Met {
			blockers = append(blockers, Blocker{
				Kind:   BlockerRSRViolation,
				Detail: fmt.Sprintf("%s tier shape %s at RSR %.3f below %.3f", c.Tier, c.ShapeID, c.RSR, c.Threshold),
			})
		}
	}
	for _, l := range t.LossChecks() {
		if !l.Tolerated {
			blockers = append(blockers, Blocker{
				Kind:   BlockerUntoleratedLoss,
				Detail: fmt.Sprintf("shape %s carries untolerated %s at %s", l.ShapeID, l.Class, l.Handoff),
			})
		}
	}

	eligible := len(blockers) == 0
	t.mu.Lock()
	t.promotable = eligible
	t.mu.Unlock()
	return eligible, blockers
}

// AttemptPromotion re-checks eligibility atomically, flips the track to
// PROMOTED, and appends the run id to the canonical lineage. A promoted or
// abandoned track can never change status again.
func (p *PromotionController) AttemptPromotion(t *Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	eligible, blockers := p.Eligibility(t)
	if !eligible {
		return fmt.Errorf("track %s not promotable: %d blocker(s), first: %s (%s)",
			t.ID, len(blockers), blockers[0].Kind, blockers[0].Detail)
	}
	if err := t.transition(StatusPromoted); err != nil {
		return err
	}
	if p.lineage != nil {
		if err := p.lineage.Append(t.RunID); err != nil {
			return fmt.Errorf("failed to extend canonical lineage: %w", err)
		}
	}
	logging.Get(logging.CategoryTTE).Infow("track promoted",
		"track", t.ID, "run", t.RunID)
	return nil
}
