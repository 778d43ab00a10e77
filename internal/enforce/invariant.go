package enforce

import (
	"fmt"

	"ricp/internal/shape"
	"ricp/internal/trace"
)

// =============================================================================
// INVARIANT VALIDATION
// =============================================================================

// ValidateInvariants flags every INVARIANT-kind shape that recorded any loss
// or failed to survive its required range. Invariants have no budget: one
// recorded loss of any class is a violation, and every invariant violation
// is foundational-severity regardless of the declared tier.
func ValidateInvariants(reg *shape.Registry, traces []*trace.ShapeTrace) []Violation {
	var out []Violation
	for _, tr := range traces {
		decl, err := reg.Shape(tr.ShapeID)
		if err != nil || decl.Kind != shape.KindInvariant {
			continue
		}
		for _, loss := range tr.Losses {
			out = append(out, Violation{
				ShapeID: decl.ID,
				Tier:    decl.Criticality,
				Kind:    ViolationInvariantLoss,
				Handoff: loss.Handoff,
				Class:   loss.Class,
				Detail:  fmt.Sprintf("invariant %s recorded %s at %s", decl.ID, loss.Class, loss.Handoff),
			})
		}
		if len(tr.Losses) == 0 && !invariantSurvived(reg, decl, tr) {
			out = append(out, Violation{
				ShapeID: decl.ID,
				Tier:    decl.Criticality,
				Kind:    ViolationInvariantLoss,
				Detail:  fmt.Sprintf("invariant %s did not survive to %s", decl.ID, decl.MustReachStage),
			})
		}
	}
	return out
}

// invariantSurvived reports whether the invariant is present with all
// required attributes at its must-reach stage.
func invariantSurvived(reg *shape.Registry, decl shape.Declaration, tr *trace.ShapeTrace) bool {
	ev, ok := tr.EvidenceAt(decl.MustReachStage)
	if !ok || !ev.Present {
		return false
	}
	for _, attr := range decl.RequiredAttributes {
		if !ev.Has(attr) {
			return false
		}
	}
	return true
}
