// Package trace defines the inbound evidence boundary of the control plane:
// per-stage extraction evidence, per-handoff loss results, and the upstream
// gate result. The external tracer produces these; the core only reads them.
// Structural signals and metadata stay opaque key-value bags on purpose.
package trace

import (
	"time"

	"ricp/internal/shape"
)

// GateVerdict is the upstream gate check outcome.
type GateVerdict string

const (
	GatePass GateVerdict = "PASS"
	GateFail GateVerdict = "FAIL"
	GateWarn GateVerdict = "WARN"
)

// GateResult is the upstream gate check supplied with each run.
type GateResult struct {
	Verdict         GateVerdict `json:"verdict" yaml:"verdict"`
	FatalViolations []string    `json:"fatal_violations,omitempty" yaml:"fatal_violations,omitempty"`
	BlockDownstream bool        `json:"block_downstream" yaml:"block_downstream"`
}

// Clone returns an independent copy. Tracks receive clones so no track can
// observe another's view of the gate.
func (g GateResult) Clone() GateResult {
	c := g
	c.FatalViolations = append([]string(nil), g.FatalViolations...)
	return c
}

// StageEvidence records what the extractor found for one shape at one stage.
type StageEvidence struct {
	Stage             shape.Stage       `json:"stage" yaml:"stage"`
	Present           bool              `json:"present" yaml:"present"`
	AttributesFound   []string          `json:"attributes_found,omitempty" yaml:"attributes_found,omitempty"`
	StructuralSignals map[string]string `json:"structural_signals,omitempty" yaml:"structural_signals,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Has reports whether the evidence contains the given attribute.
func (e StageEvidence) Has(attr string) bool {
	for _, a := range e.AttributesFound {
		if a == attr {
			return true
		}
	}
	return false
}

// HandoffLoss is one detected structural loss at one handoff.
type HandoffLoss struct {
	Handoff              shape.Handoff   `json:"handoff" yaml:"handoff"`
	Class                shape.LossClass `json:"class" yaml:"class"`
	LostAttributes       []string        `json:"lost_attributes,omitempty" yaml:"lost_attributes,omitempty"`
	AddedAttributes      []string        `json:"added_attributes,omitempty" yaml:"added_attributes,omitempty"`
	Detail               string          `json:"detail,omitempty" yaml:"detail,omitempty"`
	SummarizationInvoked bool            `json:"summarization_invoked" yaml:"summarization_invoked"`
	SummarizationRatio   float64         `json:"summarization_ratio,omitempty" yaml:"summarization_ratio,omitempty"`
}

// ShapeTrace aggregates all evidence for one shape across one run.
type ShapeTrace struct {
	ShapeID  string          `json:"shape_id" yaml:"shape_id"`
	RunID    string          `json:"run_id" yaml:"run_id"`
	Evidence []StageEvidence `json:"evidence" yaml:"evidence"`
	Losses   []HandoffLoss   `json:"losses,omitempty" yaml:"losses,omitempty"`
	Survived bool            `json:"survived" yaml:"survived"`
}

// EvidenceAt returns the evidence recorded at a stage, if any.
func (t *ShapeTrace) EvidenceAt(s shape.Stage) (StageEvidence, bool) {
	for _, e := range t.Evidence {
		if e.Stage == s {
			return e, true
		}
	}
	return StageEvidence{}, false
}

// LossesAt returns every loss recorded at a handoff, in input order.
func (t *ShapeTrace) LossesAt(h shape.Handoff) []HandoffLoss {
	var out []HandoffLoss
	for _, l := range t.Losses {
		if l.Handoff == h {
			out = append(out, l)
		}
	}
	return out
}

// FirstLoss returns the loss at the earliest handoff in pipeline order, or
// false when the trace carries no losses.
func (t *ShapeTrace) FirstLoss() (HandoffLoss, bool) {
	for _, h := range shape.Handoffs() {
		if ls := t.LossesAt(h); len(ls) > 0 {
			return ls[0], true
		}
	}
	return HandoffLoss{}, false
}

// Clone returns a deep copy. Execution tracks operate over clones only.
func (t *ShapeTrace) Clone() *ShapeTrace {
	c := &ShapeTrace{
		ShapeID:  t.ShapeID,
		RunID:    t.RunID,
		Survived: t.Survived,
	}
	for _, e := range t.Evidence {
		ce := e
		ce.AttributesFound = append([]string(nil), e.AttributesFound...)
		ce.StructuralSignals = cloneStringMap(e.StructuralSignals)
		ce.Metadata = cloneStringMap(e.Metadata)
		c.Evidence = append(c.Evidence, ce)
	}
	for _, l := range t.Losses {
		cl := l
		cl.LostAttributes = append([]string(nil), l.LostAttributes...)
		cl.AddedAttributes = append([]string(nil), l.AddedAttributes...)
		c.Losses = append(c.Losses, cl)
	}
	return c
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Bundle is one run's worth of tracer output: the gate result plus a trace
// per shape.
type Bundle struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Generated time.Time     `json:"generated" yaml:"generated"`
	Gate      GateResult    `json:"gate" yaml:"gate"`
	Traces    []*ShapeTrace `json:"traces" yaml:"traces"`
}

// TraceFor returns the trace for a shape id, if present.
func (b *Bundle) TraceFor(shapeID string) (*ShapeTrace, bool) {
	for _, t := range b.Traces {
		if t.ShapeID == shapeID {
			return t, true
		}
	}
	return nil, false
}
