package tte

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"ricp/internal/repair"
	"ricp/internal/shape"
	"ricp/internal/trace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// FORK DECISION TESTS
// =============================================================================

func TestDecideFork(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   ForkInput
		want ForkDecision
	}{
		{
			name: "foundational blocks everything",
			in:   ForkInput{FoundationalViolated: []string{"STATIC_DISPLAY_CAPABILITY"}},
			want: ForkDecision{BlockAll: true, BlockCanonical: true},
		},
		{
			name: "foundational dominates interactive",
			in: ForkInput{
				FoundationalViolated: []string{"A"},
				InteractiveViolated:  []string{"B", "C"},
			},
			want: ForkDecision{BlockAll: true, BlockCanonical: true},
		},
		{
			name: "interactive forks",
			in:   ForkInput{InteractiveViolated: []string{"PAGINATION_CAPABILITY"}},
			want: ForkDecision{CreateShadow: true, RemediatedShapes: []string{"PAGINATION_CAPABILITY"}},
		},
		{
			name: "enhancement alone passes canonical",
			in:   ForkInput{EnhancementViolated: []string{"THEME_CAPABILITY"}},
			want: ForkDecision{CanonicalPassed: true},
		},
		{
			name: "clean run passes canonical",
			in:   ForkInput{},
			want: ForkDecision{CanonicalPassed: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := DecideFork(tt.in)
			if got.BlockAll != tt.want.BlockAll ||
				got.CreateShadow != tt.want.CreateShadow ||
				got.CanonicalPassed != tt.want.CanonicalPassed ||
				len(got.RemediatedShapes) != len(tt.want.RemediatedShapes) {
				t.Errorf("DecideFork = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCreateTracks(t *testing.T) {
	t.Parallel()

	c := NewController(nil)
	gate := trace.GateResult{Verdict: trace.GatePass}
	directive := &repair.Directive{ID: "d1", ShapeID: "PAGINATION_CAPABILITY", ReadOnly: true}

	t.Run("block all creates nothing", func(t *testing.T) {
		t.Parallel()
		tracks := c.CreateTracks("r1", ForkDecision{BlockAll: true}, gate, nil)
		if len(tracks) != 0 {
			t.Errorf("expected zero tracks, got %d", len(tracks))
		}
	})

	t.Run("fork creates shadow plus remediated", func(t *testing.T) {
		t.Parallel()
		tracks := c.CreateTracks("r1",
			ForkDecision{CreateShadow: true, RemediatedShapes: []string{"PAGINATION_CAPABILITY"}},
			gate,
			map[string]*repair.Directive{"PAGINATION_CAPABILITY": directive},
		)
		if len(tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(tracks))
		}
		if tracks[0].Kind != TrackShadow || tracks[1].Kind != TrackRemediated {
			t.Errorf("track kinds = %s, %s", tracks[0].Kind, tracks[1].Kind)
		}
		if tracks[1].Directive == nil || tracks[1].Directive.ID != "d1" {
			t.Error("remediated track missing its directive")
		}
		for _, tr := range tracks {
			if !tr.Isolated {
				t.Errorf("track %s not isolated", tr.ID)
			}
			if tr.Status() != StatusPending {
				t.Errorf("track %s status = %s", tr.ID, tr.Status())
			}
		}
	})

	t.Run("clean run creates passed canonical", func(t *testing.T) {
		t.Parallel()
		tracks := c.CreateTracks("r1", ForkDecision{CanonicalPassed: true}, gate, nil)
		if len(tracks) != 1 || tracks[0].Kind != TrackCanonical {
			t.Fatalf("tracks = %+v", tracks)
		}
		if tracks[0].Status() != StatusPassed {
			t.Errorf("canonical status = %s", tracks[0].Status())
		}
	})
}

// =============================================================================
// TRACK LIFECYCLE TESTS
// =============================================================================

func TestTrackIsolationOfGateCopies(t *testing.T) {
	t.Parallel()

	gate := trace.GateResult{Verdict: trace.GatePass, FatalViolations: []string{"x"}}
	c := NewController(nil)
	tracks := c.CreateTracks("r1",
		ForkDecision{CreateShadow: true, RemediatedShapes: []string{"S"}}, gate, nil)

	g0 := tracks[0].Gate()
	g0.FatalViolations[0] = "mutated"
	if tracks[1].Gate().FatalViolations[0] == "mutated" {
		t.Error("tracks share gate state")
	}
	if tracks[0].Gate().FatalViolations[0] == "mutated" {
		t.Error("returned gate aliases track state")
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	t.Parallel()

	gate := trace.GateResult{Verdict: trace.GatePass}
	tr := newTrack("r1", TrackRemediated, gate)
	if err := tr.Abandon(); err != nil {
		t.Fatalf("Abandon error: %v", err)
	}
	if err := tr.Begin(); err == nil {
		t.Error("abandoned track accepted a transition")
	}
	if err := tr.Pass(); err == nil {
		t.Error("abandoned track accepted Pass")
	}
}

func TestEvaluateTracksConcurrently(t *testing.T) {
	t.Parallel()

	gate := trace.GateResult{Verdict: trace.GatePass}
	c := NewController(nil)
	tracks := c.CreateTracks("r1",
		ForkDecision{CreateShadow: true, RemediatedShapes: []string{"A", "B", "C"}}, gate, nil)

	var mu sync.Mutex
	seen := map[string]bool{}
	err := EvaluateTracks(context.Background(), tracks, func(_ context.Context, tr *Track) error {
		if err := tr.Begin(); err != nil {
			return err
		}
		mu.Lock()
		seen[tr.ID] = true
		mu.Unlock()
		return tr.Pass()
	})
	if err != nil {
		t.Fatalf("EvaluateTracks error: %v", err)
	}
	if len(seen) != len(tracks) {
		t.Errorf("evaluated %d of %d tracks", len(seen), len(tracks))
	}
	for _, tr := range tracks {
		if tr.Status() != StatusPassed {
			t.Errorf("track %s status = %s", tr.ID, tr.Status())
		}
	}
}

// =============================================================================
// PROMOTION TESTS
// =============================================================================

func passedRemediated(t *testing.T) *Track {
	t.Helper()
	tr := newTrack("run-77", TrackRemediated, trace.GateResult{Verdict: trace.GatePass})
	if err := tr.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Pass(); err != nil {
		t.Fatal(err)
	}
	tr.AttachGateResult(trace.GateResult{Verdict: trace.GatePass})
	tr.AttachRSR(RSRCheck{ShapeID: "PAGINATION_CAPABILITY", Tier: shape.CriticalityInteractive, RSR: 1.0, Threshold: 0.95, Met: true})
	tr.AttachLoss(LossCheck{ShapeID: "PAGINATION_CAPABILITY", Handoff: shape.HandoffWirePixel, Class: shape.LossTruncation, Tolerated: true})
	return tr
}

func TestPromotionEligibility(t *testing.T) {
	t.Parallel()

	p := NewPromotionController(nil)

	t.Run("clean remediated track is eligible", func(t *testing.T) {
		t.Parallel()
		tr := passedRemediated(t)
		ok, blockers := p.Eligibility(tr)
		if !ok {
			t.Fatalf("expected eligible, blockers: %+v", blockers)
		}
		if !tr.Promotable() {
			t.Error("promotable flag not set")
		}
	})

	t.Run("non-remediated track blocked by type", func(t *testing.T) {
		t.Parallel()
		tr := newTrack("r", TrackShadow, trace.GateResult{Verdict: trace.GatePass})
		_ = tr.Begin()
		_ = tr.Pass()
		ok, blockers := p.Eligibility(tr)
		if ok {
			t.Fatal("shadow track must never be promotable")
		}
		if blockers[0].Kind != BlockerTrackType {
			t.Errorf("blocker = %s", blockers[0].Kind)
		}
	})

	t.Run("failing gate blocks", func(t *testing.T) {
		t.Parallel()
		tr := passedRemediated(t)
		tr.AttachGateResult(trace.GateResult{Verdict: trace.GateFail})
		ok, blockers := p.Eligibility(tr)
		if ok {
			t.Fatal("expected ineligible")
		}
		if !hasBlocker(blockers, BlockerGateFailure) {
			t.Errorf("blockers = %+v", blockers)
		}
	})

	t.Run("unmet interactive RSR blocks", func(t *testing.T) {
		t.Parallel()
		tr := passedRemediated(t)
		tr.AttachRSR(RSRCheck{ShapeID: "X", Tier: shape.CriticalityInteractive, RSR: 0.8, Threshold: 0.95, Met: false})
		ok, blockers := p.Eligibility(tr)
		if ok || !hasBlocker(blockers, BlockerRSRViolation) {
			t.Errorf("ok=%v blockers=%+v", ok, blockers)
		}
	})

	t.Run("unmet enhancement RSR does not block", func(t *testing.T) {
		t.Parallel()
		tr := passedRemediated(t)
		tr.AttachRSR(RSRCheck{ShapeID: "X", Tier: shape.CriticalityEnhancement, RSR: 0.5, Threshold: 0.7, Met: false})
		if ok, blockers := p.Eligibility(tr); !ok {
			t.Errorf("enhancement shortfall blocked promotion: %+v", blockers)
		}
	})

	t.Run("untolerated loss blocks", func(t *testing.T) {
		t.Parallel()
		tr := passedRemediated(t)
		tr.AttachLoss(LossCheck{ShapeID: "X", Handoff: shape.HandoffScaffoldWire, Class: shape.LossTotalOmission, Tolerated: false})
		ok, blockers := p.Eligibility(tr)
		if ok || !hasBlocker(blockers, BlockerUntoleratedLoss) {
			t.Errorf("ok=%v blockers=%+v", ok, blockers)
		}
	})
}

func hasBlocker(bs []Blocker, kind BlockerKind) bool {
	for _, b := range bs {
		if b.Kind == kind {
			return true
		}
	}
	return false
}

func TestAttemptPromotion(t *testing.T) {
	t.Parallel()

	p := NewPromotionController(nil)
	tr := passedRemediated(t)

	if err := p.AttemptPromotion(tr); err != nil {
		t.Fatalf("AttemptPromotion error: %v", err)
	}
	if tr.Status() != StatusPromoted {
		t.Errorf("status = %s", tr.Status())
	}
	// Terminal: a second promotion attempt must fail.
	if err := p.AttemptPromotion(tr); err == nil {
		t.Error("promoted track accepted a second promotion")
	}
}

func TestPromotionAppendsToLineage(t *testing.T) {
	t.Parallel()

	lineage, err := OpenLineageStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenLineageStore error: %v", err)
	}
	t.Cleanup(func() { lineage.Close() })

	p := NewPromotionController(lineage)
	tr := passedRemediated(t)
	if err := p.AttemptPromotion(tr); err != nil {
		t.Fatalf("AttemptPromotion error: %v", err)
	}

	runs, err := lineage.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	if len(runs) != 1 || runs[0] != "run-77" {
		t.Errorf("lineage = %v", runs)
	}
}
