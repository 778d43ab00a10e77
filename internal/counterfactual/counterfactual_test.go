package counterfactual

import (
	"context"
	"testing"

	"go.uber.org/goleak"

	"ricp/internal/enforce"
	"ricp/internal/repair"
	"ricp/internal/shape"
	"ricp/internal/trace"
	"ricp/internal/tte"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestAnalyzer(t *testing.T) (*Analyzer, *shape.Registry) {
	t.Helper()
	reg := shape.DefaultRegistry()
	eng := enforce.NewEngine(reg, repair.NewGenerator(reg), tte.NewController(nil))
	return NewAnalyzer(reg, eng), reg
}

func fullTrace(t *testing.T, reg *shape.Registry, runID, shapeID string) *trace.ShapeTrace {
	t.Helper()
	decl, err := reg.Shape(shapeID)
	if err != nil {
		t.Fatalf("Shape(%s): %v", shapeID, err)
	}
	tr := &trace.ShapeTrace{ShapeID: shapeID, RunID: runID, Survived: true}
	for _, s := range reg.RequiredStages(decl) {
		tr.Evidence = append(tr.Evidence, trace.StageEvidence{
			Stage:           s,
			Present:         true,
			AttributesFound: append([]string(nil), decl.RequiredAttributes...),
		})
	}
	return tr
}

// loseAttr drops attr from the evidence at stage and records the loss.
func loseAttr(t *testing.T, tr *trace.ShapeTrace, h shape.Handoff, attr string, summarized bool) {
	t.Helper()
	stage := h.Target()
	for i, ev := range tr.Evidence {
		if ev.Stage != stage {
			continue
		}
		kept := make([]string, 0, len(ev.AttributesFound))
		for _, a := range ev.AttributesFound {
			if a != attr {
				kept = append(kept, a)
			}
		}
		tr.Evidence[i].AttributesFound = kept
	}
	tr.Losses = append(tr.Losses, trace.HandoffLoss{
		Handoff:              h,
		Class:                shape.LossPartialOmission,
		LostAttributes:       []string{attr},
		SummarizationInvoked: summarized,
	})
	tr.Survived = false
}

func passGate() trace.GateResult { return trace.GateResult{Verdict: trace.GatePass} }

func TestRemoveSummarizationHealsSummarizedLossOnly(t *testing.T) {
	t.Parallel()
	a, reg := newTestAnalyzer(t)

	summarized := fullTrace(t, reg, "run-1", "PAGINATION_CAPABILITY")
	loseAttr(t, summarized, shape.HandoffWirePixel, "total_indicator", true)
	organic := fullTrace(t, reg, "run-1", "FORM_SUBMISSION_CAPABILITY")
	loseAttr(t, organic, shape.HandoffWirePixel, "error_surface", false)

	p := a.Project(ScenarioRemoveSummarization, "run-1", passGate(), []*trace.ShapeTrace{summarized, organic})
	if !p.VerifiedViaReplay {
		t.Fatal("projection must be replay-verified")
	}
	byID := map[string]float64{}
	for _, r := range p.Results {
		byID[r.ShapeID] = r.RSR
	}
	if byID["PAGINATION_CAPABILITY"] != 1.0 {
		t.Errorf("summarized loss not healed: RSR = %.2f", byID["PAGINATION_CAPABILITY"])
	}
	if byID["FORM_SUBMISSION_CAPABILITY"] != 0.75 {
		t.Errorf("organic loss must persist: RSR = %.2f, want 0.75", byID["FORM_SUBMISSION_CAPABILITY"])
	}
}

func TestFullAttributePreservationIsPerfect(t *testing.T) {
	t.Parallel()
	a, reg := newTestAnalyzer(t)

	lossy := fullTrace(t, reg, "run-2", "STATIC_DISPLAY_CAPABILITY")
	loseAttr(t, lossy, shape.HandoffScaffoldWire, "render_target", false)

	p := a.Project(ScenarioFullAttributePreservation, "run-2", passGate(), []*trace.ShapeTrace{lossy})
	if p.GlobalRSR != 1.0 || p.Action != enforce.ActionWarnOnly {
		t.Fatalf("projection = %.2f / %s, want 1.00 / WARN_ONLY", p.GlobalRSR, p.Action)
	}
}

func TestInvariantBypassLeavesCapabilitiesBroken(t *testing.T) {
	t.Parallel()
	a, reg := newTestAnalyzer(t)

	inv := fullTrace(t, reg, "run-3", "NAVIGATION_INVARIANT")
	loseAttr(t, inv, shape.HandoffArchitectureScaffold, "back_path", false)
	capab := fullTrace(t, reg, "run-3", "PAGINATION_CAPABILITY")
	loseAttr(t, capab, shape.HandoffWirePixel, "cursor_field", false)

	p := a.Project(ScenarioInvariantBypass, "run-3", passGate(), []*trace.ShapeTrace{inv, capab})
	if p.Action != enforce.ActionForkTTE {
		t.Fatalf("action = %s, want FORK_TTE (capability still violated)", p.Action)
	}
}

func TestProjectionNeverMutatesInputs(t *testing.T) {
	t.Parallel()
	a, reg := newTestAnalyzer(t)

	lossy := fullTrace(t, reg, "run-4", "PAGINATION_CAPABILITY")
	loseAttr(t, lossy, shape.HandoffWirePixel, "total_indicator", true)
	before := lossy.Clone()

	a.Project(ScenarioRemoveSummarization, "run-4", passGate(), []*trace.ShapeTrace{lossy})
	if len(lossy.Losses) != len(before.Losses) || lossy.Survived != before.Survived {
		t.Fatal("projection mutated the input trace")
	}
}

func TestComposeAdditiveScenariosAreNeutral(t *testing.T) {
	t.Parallel()
	a, reg := newTestAnalyzer(t)

	// Each scenario heals exactly one of the two broken shapes, so the
	// combined delta equals the sum of the individual deltas: no synergy.
	inv := fullTrace(t, reg, "run-5", "NAVIGATION_INVARIANT")
	loseAttr(t, inv, shape.HandoffArchitectureScaffold, "back_path", false)
	capab := fullTrace(t, reg, "run-5", "PAGINATION_CAPABILITY")
	loseAttr(t, capab, shape.HandoffWirePixel, "total_indicator", true)
	traces := []*trace.ShapeTrace{inv, capab}

	comp, err := a.Compose([]ScenarioKind{ScenarioRemoveSummarization, ScenarioInvariantBypass}, "run-5", passGate(), traces)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if comp.Interaction != InteractionNeutral {
		t.Fatalf("interaction = %s, want NEUTRAL for exactly additive scenarios", comp.Interaction)
	}
	if comp.CombinedGlobalRSR != 1.0 {
		t.Errorf("combined global RSR = %.2f, want 1.00", comp.CombinedGlobalRSR)
	}
	if comp.BestPerShape["NAVIGATION_INVARIANT"] != 1.0 || comp.BestPerShape["PAGINATION_CAPABILITY"] != 1.0 {
		t.Errorf("best-per-shape = %v, want 1.00 for both", comp.BestPerShape)
	}
	if len(comp.Interactions) != 2 {
		t.Fatalf("per-shape effects = %d, want one per shape", len(comp.Interactions))
	}
	for _, eff := range comp.Interactions {
		if eff.Effect != InteractionNeutral {
			t.Errorf("%s effect = %s, want NEUTRAL", eff.ShapeID, eff.Effect)
		}
		if eff.CombinedDelta != eff.SumOfDeltas {
			t.Errorf("%s combined delta %.4f != sum of deltas %.4f", eff.ShapeID, eff.CombinedDelta, eff.SumOfDeltas)
		}
	}
	if !comp.VerifiedViaReplay {
		t.Error("composition must be replay-verified")
	}
}

func TestComposeOverlappingScenariosInterfere(t *testing.T) {
	t.Parallel()
	a, reg := newTestAnalyzer(t)

	// Both scenarios heal the same summarized loss: the individual deltas
	// double-count the repair, so the combined delta falls short of their
	// sum.
	capab := fullTrace(t, reg, "run-11", "PAGINATION_CAPABILITY")
	loseAttr(t, capab, shape.HandoffWirePixel, "total_indicator", true)

	kinds := []ScenarioKind{ScenarioRemoveSummarization, ScenarioFullAttributePreservation}
	comp, err := a.Compose(kinds, "run-11", passGate(), []*trace.ShapeTrace{capab})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if comp.Interaction != InteractionInterference {
		t.Fatalf("interaction = %s, want INTERFERENCE for overlapping repairs", comp.Interaction)
	}
	if len(comp.Interactions) != 1 || comp.Interactions[0].Effect != InteractionInterference {
		t.Fatalf("per-shape effects = %+v, want INTERFERENCE for PAGINATION_CAPABILITY", comp.Interactions)
	}
	if eff := comp.Interactions[0]; eff.CombinedDelta >= eff.SumOfDeltas {
		t.Errorf("combined delta %.4f must fall short of sum %.4f", eff.CombinedDelta, eff.SumOfDeltas)
	}
}

func TestComposeSingleScenarioHasNoInteraction(t *testing.T) {
	t.Parallel()
	a, reg := newTestAnalyzer(t)

	traces := []*trace.ShapeTrace{fullTrace(t, reg, "run-6", "THEME_CAPABILITY")}
	comp, err := a.Compose([]ScenarioKind{ScenarioRemoveSummarization}, "run-6", passGate(), traces)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if comp.Interaction != InteractionNotApplicable {
		t.Fatalf("interaction = %s, want NOT_APPLICABLE for a single scenario", comp.Interaction)
	}
}

func TestComposeRequiresScenarios(t *testing.T) {
	t.Parallel()
	a, _ := newTestAnalyzer(t)
	if _, err := a.Compose(nil, "run-7", passGate(), nil); err == nil {
		t.Fatal("Compose with no scenarios must error")
	}
}

func TestMinimalCutSetsFindSmallestFix(t *testing.T) {
	t.Parallel()
	a, reg := newTestAnalyzer(t)

	// Non-summarized invariant loss plus capability loss: only full
	// preservation fixes both alone, so the minimal cut set has size one.
	inv := fullTrace(t, reg, "run-8", "NAVIGATION_INVARIANT")
	loseAttr(t, inv, shape.HandoffArchitectureScaffold, "back_path", false)
	capab := fullTrace(t, reg, "run-8", "PAGINATION_CAPABILITY")
	loseAttr(t, capab, shape.HandoffWirePixel, "cursor_field", false)
	traces := []*trace.ShapeTrace{inv, capab}

	sets, err := a.MinimalCutSets(context.Background(), "run-8", passGate(), traces)
	if err != nil {
		t.Fatalf("MinimalCutSets: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("cut sets = %d, want exactly one minimal set", len(sets))
	}
	got := sets[0]
	if len(got.Scenarios) != 1 || got.Scenarios[0] != ScenarioFullAttributePreservation {
		t.Fatalf("minimal set = %v, want [FULL_ATTRIBUTE_PRESERVATION]", got.Scenarios)
	}
	if got.ProjectedAction != enforce.ActionWarnOnly || !got.VerifiedViaReplay {
		t.Fatalf("cut set = %+v, want replay-verified WARN_ONLY", got)
	}
	if !got.AllTiersCompliant || !got.InvariantsPreserved {
		t.Errorf("cut set = %+v, want both compliance flags set", got)
	}
	if got.Gain <= 0 {
		t.Errorf("gain = %.2f, want positive", got.Gain)
	}
}

func TestCutSetExcludedWhileTierLawUnmet(t *testing.T) {
	t.Parallel()
	a, reg := newTestAnalyzer(t)

	// Removing summarization heals the pagination loss but leaves the theme
	// shape below the 0.70 enhancement floor, so it is not a valid cut even
	// though its replay forks nothing.
	capab := fullTrace(t, reg, "run-12", "PAGINATION_CAPABILITY")
	loseAttr(t, capab, shape.HandoffWirePixel, "total_indicator", true)
	theme := fullTrace(t, reg, "run-12", "THEME_CAPABILITY")
	loseAttr(t, theme, shape.HandoffWirePixel, "theme_tokens", false)
	traces := []*trace.ShapeTrace{capab, theme}

	sets, err := a.MinimalCutSets(context.Background(), "run-12", passGate(), traces)
	if err != nil {
		t.Fatalf("MinimalCutSets: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("cut sets = %d, want only the one that restores every tier", len(sets))
	}
	got := sets[0]
	if len(got.Scenarios) != 1 || got.Scenarios[0] != ScenarioFullAttributePreservation {
		t.Fatalf("cut set = %v, want [FULL_ATTRIBUTE_PRESERVATION]", got.Scenarios)
	}
	if !got.AllTiersCompliant || !got.InvariantsPreserved {
		t.Errorf("cut set = %+v, want both compliance flags set", got)
	}
}

func TestMinimalCutSetsRankByGain(t *testing.T) {
	t.Parallel()
	a, reg := newTestAnalyzer(t)

	// A single summarized loss: both REMOVE_SUMMARIZATION and
	// FULL_ATTRIBUTE_PRESERVATION fix it alone.
	capab := fullTrace(t, reg, "run-9", "PAGINATION_CAPABILITY")
	loseAttr(t, capab, shape.HandoffWirePixel, "total_indicator", true)

	sets, err := a.MinimalCutSets(context.Background(), "run-9", passGate(), []*trace.ShapeTrace{capab})
	if err != nil {
		t.Fatalf("MinimalCutSets: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("cut sets = %d, want 2 size-one fixes", len(sets))
	}
	for i, s := range sets {
		if len(s.Scenarios) != 1 {
			t.Errorf("set %d size = %d, want 1", i, len(s.Scenarios))
		}
	}
	if sets[0].Gain < sets[1].Gain {
		t.Error("cut sets must rank by descending gain")
	}
}

func TestCompliantRunHasNoCutSets(t *testing.T) {
	t.Parallel()
	a, reg := newTestAnalyzer(t)

	traces := []*trace.ShapeTrace{fullTrace(t, reg, "run-10", "PAGINATION_CAPABILITY")}
	sets, err := a.MinimalCutSets(context.Background(), "run-10", passGate(), traces)
	if err != nil {
		t.Fatalf("MinimalCutSets: %v", err)
	}
	if len(sets) != 0 {
		t.Fatalf("cut sets = %d, want none for a compliant run", len(sets))
	}
}
