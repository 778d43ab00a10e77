// Package repair generates Minimal Repair Directives: advisory,
// non-executing recommendations describing the smallest structural change
// that would prevent an observed loss. Directives are output only; nothing
// in this system ever applies one.
package repair

import (
	"fmt"

	"github.com/google/uuid"

	"ricp/internal/shape"
	"ricp/internal/trace"
)

// Type is the closed set of repair recommendations.
type Type string

const (
	EnforceInvariant    Type = "ENFORCE_INVARIANT"
	PreventOmission     Type = "PREVENT_OMISSION"
	PreserveStructure   Type = "PRESERVE_STRUCTURE"
	ProtectAttribute    Type = "PROTECT_ATTRIBUTE"
	AddExtractionSignal Type = "ADD_EXTRACTION_SIGNAL"
)

// LossEvidence pins a directive to the observed loss it addresses.
type LossEvidence struct {
	Handoff        shape.Handoff   `json:"handoff,omitempty"`
	Class          shape.LossClass `json:"class"`
	LostAttributes []string        `json:"lost_attributes,omitempty"`
	Detail         string          `json:"detail,omitempty"`
}

// Directive is one advisory repair recommendation.
type Directive struct {
	ID                 string       `json:"id"`
	ShapeID            string       `json:"shape_id"`
	Evidence           LossEvidence `json:"evidence"`
	Type               Type         `json:"type"`
	StructuralChange   string       `json:"structural_change"`
	Rationale          string       `json:"rationale"`
	Location           shape.Stage  `json:"location"`
	ReadOnly           bool         `json:"readonly"`            // always true
	AutomaticExecution bool         `json:"automatic_execution"` // always false
}

// Generator maps observed losses onto repair directives.
type Generator struct {
	reg *shape.Registry
}

// NewGenerator creates a directive generator over the shape catalog.
func NewGenerator(reg *shape.Registry) *Generator {
	return &Generator{reg: reg}
}

// ForShape builds the directive for one violated shape from its trace.
// Loss localization prefers the first handoff-level loss; absent one, a
// final-stage attribute shortfall is synthesized from the must-reach stage's
// evidence.
func (g *Generator) ForShape(decl shape.Declaration, tr *trace.ShapeTrace) *Directive {
	evidence, location := g.localize(decl, tr)

	d := &Directive{
		ID:                 uuid.NewString(),
		ShapeID:            decl.ID,
		Evidence:           evidence,
		Type:               repairType(decl, evidence.Class),
		Location:           location,
		ReadOnly:           true,
		AutomaticExecution: false,
	}
	d.StructuralChange, d.Rationale = describe(decl, d)
	return d
}

// localize finds where the loss happened. Collapse losses point at the
// source stage of the handoff (the collapse is committed there); everything
// else points at the stage where the loss surfaced.
func (g *Generator) localize(decl shape.Declaration, tr *trace.ShapeTrace) (LossEvidence, shape.Stage) {
	if loss, ok := tr.FirstLoss(); ok {
		ev := LossEvidence{
			Handoff:        loss.Handoff,
			Class:          loss.Class,
			LostAttributes: append([]string(nil), loss.LostAttributes...),
			Detail:         loss.Detail,
		}
		if loss.Class == shape.LossSummaryCollapse {
			return ev, loss.Handoff.Source()
		}
		return ev, loss.Handoff.Target()
	}

	// No handoff-level loss: report the final-stage attribute shortfall.
	var missing []string
	finalEv, _ := tr.EvidenceAt(decl.MustReachStage)
	for _, attr := range decl.RequiredAttributes {
		if !finalEv.Has(attr) {
			missing = append(missing, attr)
		}
	}
	return LossEvidence{
		Class:          shape.LossPartialOmission,
		LostAttributes: missing,
		Detail:         fmt.Sprintf("%d of %d required attributes absent at %s", len(missing), len(decl.RequiredAttributes), decl.MustReachStage),
	}, decl.MustReachStage
}

// repairType applies the fixed mapping. INVARIANT-kind shapes always get
// ENFORCE_INVARIANT regardless of loss class.
func repairType(decl shape.Declaration, class shape.LossClass) Type {
	if decl.Kind == shape.KindInvariant {
		return EnforceInvariant
	}
	switch class {
	case shape.LossTotalOmission, shape.LossPartialOmission:
		return PreventOmission
	case shape.LossSummaryCollapse:
		return PreserveStructure
	case shape.LossDependencySkip:
		return ProtectAttribute
	default:
		return AddExtractionSignal
	}
}

func describe(decl shape.Declaration, d *Directive) (change, rationale string) {
	attrs := d.Evidence.LostAttributes
	switch d.Type {
	case EnforceInvariant:
		change = fmt.Sprintf("re-assert invariant %s verbatim in the %s artifact; it must never be paraphrased or dropped", decl.ID, d.Location)
		rationale = fmt.Sprintf("%s is INVARIANT-kind: every loss class is forbidden, and a %s was observed", decl.ID, d.Evidence.Class)
	case PreventOmission:
		change = fmt.Sprintf("carry attributes %v for %s explicitly through %s", attrs, decl.ID, d.Location)
		rationale = fmt.Sprintf("omission (%s) removed %d required attribute(s) before %s was reached", d.Evidence.Class, len(attrs), decl.MustReachStage)
	case PreserveStructure:
		change = fmt.Sprintf("exempt %s from summarization at %s, or summarize around its structural block", decl.ID, d.Location)
		rationale = fmt.Sprintf("a summary collapse flattened the structure that %s depends on", decl.ID)
	case ProtectAttribute:
		change = fmt.Sprintf("pin the dependency chain of %v so downstream stages cannot skip it", attrs)
		rationale = fmt.Sprintf("a dependency skip detached %s from attributes it requires", decl.ID)
	default:
		change = fmt.Sprintf("add an extraction signal for %s at %s so the tracer can distinguish loss from low observability", decl.ID, d.Location)
		rationale = fmt.Sprintf("loss class %s is not attributable to omission, collapse, or dependency handling", d.Evidence.Class)
	}
	return change, rationale
}
