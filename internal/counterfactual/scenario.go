// Package counterfactual answers "what would have survived" questions: it
// projects hypothetical scenarios over a run's traces, replays enforcement
// over the projection, and searches for minimal cut sets that would have
// made the run compliant. Everything here is advisory; projections never
// touch the binding decision for the real run.
package counterfactual

import (
	"fmt"

	"ricp/internal/shape"
	"ricp/internal/trace"
)

// ScenarioKind identifies one hypothetical transformation of a run.
type ScenarioKind string

const (
	// ScenarioRemoveSummarization erases every loss whose extraction was
	// attributed to summarization, restoring the attributes it dropped.
	ScenarioRemoveSummarization ScenarioKind = "REMOVE_SUMMARIZATION"
	// ScenarioFullAttributePreservation assumes every required attribute
	// survived every stage intact.
	ScenarioFullAttributePreservation ScenarioKind = "FULL_ATTRIBUTE_PRESERVATION"
	// ScenarioInvariantBypass assumes invariant shapes passed untouched,
	// isolating how much damage the capability shapes alone carry.
	ScenarioInvariantBypass ScenarioKind = "INVARIANT_BYPASS"
)

// AllScenarioKinds returns the closed scenario vocabulary.
func AllScenarioKinds() []ScenarioKind {
	return []ScenarioKind{
		ScenarioRemoveSummarization,
		ScenarioFullAttributePreservation,
		ScenarioInvariantBypass,
	}
}

// Scenario is one hypothetical to project.
type Scenario struct {
	Kind        ScenarioKind `json:"kind"`
	Description string       `json:"description"`
}

// NewScenario builds a scenario with its standard description.
func NewScenario(kind ScenarioKind) (Scenario, error) {
	switch kind {
	case ScenarioRemoveSummarization:
		return Scenario{Kind: kind, Description: "as if no handoff had invoked summarization"}, nil
	case ScenarioFullAttributePreservation:
		return Scenario{Kind: kind, Description: "as if every required attribute had survived every stage"}, nil
	case ScenarioInvariantBypass:
		return Scenario{Kind: kind, Description: "as if invariant shapes had passed untouched"}, nil
	default:
		return Scenario{}, fmt.Errorf("unknown scenario kind %q", kind)
	}
}

// project applies one scenario to cloned traces. Inputs are never mutated.
func project(kind ScenarioKind, reg *shape.Registry, traces []*trace.ShapeTrace) []*trace.ShapeTrace {
	out := make([]*trace.ShapeTrace, 0, len(traces))
	for _, tr := range traces {
		c := tr.Clone()
		switch kind {
		case ScenarioRemoveSummarization:
			healLosses(c, func(l trace.HandoffLoss) bool { return l.SummarizationInvoked })
		case ScenarioFullAttributePreservation:
			if decl, err := reg.Shape(c.ShapeID); err == nil {
				restoreAll(reg, decl, c)
			}
		case ScenarioInvariantBypass:
			if decl, err := reg.Shape(c.ShapeID); err == nil && decl.Kind == shape.KindInvariant {
				restoreAll(reg, decl, c)
			}
		}
		out = append(out, c)
	}
	return out
}

// projectAll applies scenarios in order; composition is transform chaining.
func projectAll(kinds []ScenarioKind, reg *shape.Registry, traces []*trace.ShapeTrace) []*trace.ShapeTrace {
	out := traces
	for _, k := range kinds {
		out = project(k, reg, out)
	}
	return out
}

// healLosses removes matching losses and restores their lost attributes to
// the evidence at and after the loss's target stage.
func healLosses(tr *trace.ShapeTrace, match func(trace.HandoffLoss) bool) {
	var kept []trace.HandoffLoss
	for _, l := range tr.Losses {
		if !match(l) {
			kept = append(kept, l)
			continue
		}
		from := shape.StageIndex(l.Handoff.Target())
		for i, ev := range tr.Evidence {
			if shape.StageIndex(ev.Stage) < from {
				continue
			}
			for _, attr := range l.LostAttributes {
				if !ev.Has(attr) {
					tr.Evidence[i].AttributesFound = append(tr.Evidence[i].AttributesFound, attr)
				}
			}
			tr.Evidence[i].Present = true
		}
	}
	tr.Losses = kept
	tr.Survived = len(tr.Losses) == 0
}

// restoreAll rewrites the trace as a perfect survival of the declaration.
func restoreAll(reg *shape.Registry, decl shape.Declaration, tr *trace.ShapeTrace) {
	tr.Losses = nil
	tr.Survived = true
	seen := map[shape.Stage]bool{}
	for i, ev := range tr.Evidence {
		seen[ev.Stage] = true
		tr.Evidence[i].Present = true
		tr.Evidence[i].AttributesFound = append([]string(nil), decl.RequiredAttributes...)
	}
	for _, s := range reg.RequiredStages(decl) {
		if !seen[s] {
			tr.Evidence = append(tr.Evidence, trace.StageEvidence{
				Stage:           s,
				Present:         true,
				AttributesFound: append([]string(nil), decl.RequiredAttributes...),
			})
		}
	}
}
