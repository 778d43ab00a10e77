// Package shape defines the static requirement-shape catalog: the pipeline
// stage model, the loss-class taxonomy, shape declarations, and the
// per-handoff degradation budget matrix. Everything here is frozen at
// construction. There is no mutation API and no runtime configuration
// surface - catalog changes ship as code changes.
package shape

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// PIPELINE STAGES AND HANDOFFS
// =============================================================================

// Stage is one ordered step of the content pipeline.
type Stage string

const (
	StageIntent       Stage = "INTENT"
	StageSemantic     Stage = "SEMANTIC"
	StageArchitecture Stage = "ARCHITECTURE"
	StageScaffold     Stage = "SCAFFOLD"
	StageWire         Stage = "WIRE"
	StagePixel        Stage = "PIXEL"
)

// Stages returns the fixed pipeline order. Six stages, five handoffs.
func Stages() []Stage {
	return []Stage{
		StageIntent,
		StageSemantic,
		StageArchitecture,
		StageScaffold,
		StageWire,
		StagePixel,
	}
}

// StageIndex returns the ordinal position of a stage, or -1 for an unknown
// stage identifier.
func StageIndex(s Stage) int {
	for i, st := range Stages() {
		if st == s {
			return i
		}
	}
	return -1
}

// Handoff identifies the transition between two consecutive stages.
type Handoff string

const (
	HandoffIntentSemantic       Handoff = "INTENT->SEMANTIC"
	HandoffSemanticArchitecture Handoff = "SEMANTIC->ARCHITECTURE"
	HandoffArchitectureScaffold Handoff = "ARCHITECTURE->SCAFFOLD"
	HandoffScaffoldWire         Handoff = "SCAFFOLD->WIRE"
	HandoffWirePixel            Handoff = "WIRE->PIXEL"
)

// Handoffs returns all handoffs in pipeline order.
func Handoffs() []Handoff {
	return []Handoff{
		HandoffIntentSemantic,
		HandoffSemanticArchitecture,
		HandoffArchitectureScaffold,
		HandoffScaffoldWire,
		HandoffWirePixel,
	}
}

// HandoffBetween returns the handoff connecting two consecutive stages.
func HandoffBetween(from, to Stage) (Handoff, error) {
	fi, ti := StageIndex(from), StageIndex(to)
	if fi < 0 || ti < 0 || ti != fi+1 {
		return "", fmt.Errorf("no handoff between %s and %s", from, to)
	}
	return Handoffs()[fi], nil
}

// Source returns the stage a handoff departs from.
func (h Handoff) Source() Stage {
	for i, hh := range Handoffs() {
		if hh == h {
			return Stages()[i]
		}
	}
	return ""
}

// Target returns the stage a handoff arrives at.
func (h Handoff) Target() Stage {
	for i, hh := range Handoffs() {
		if hh == h {
			return Stages()[i+1]
		}
	}
	return ""
}

// =============================================================================
// LOSS CLASSES
// =============================================================================

// LossClass is the ordinal severity taxonomy of a structural loss.
// L0 is the strongest loss (total omission); L7 is a schema mismatch.
type LossClass int

const (
	LossTotalOmission LossClass = iota // L0
	LossPartialOmission
	LossTruncation
	LossSummaryCollapse
	LossSemanticTransformation
	LossDependencySkip
	LossOrderingLoss
	LossSchemaMismatch // L7
)

var lossClassNames = [...]string{
	"TOTAL_OMISSION",
	"PARTIAL_OMISSION",
	"TRUNCATION",
	"SUMMARY_COLLAPSE",
	"SEMANTIC_TRANSFORMATION",
	"DEPENDENCY_SKIP",
	"ORDERING_LOSS",
	"SCHEMA_MISMATCH",
}

// AllLossClasses returns every loss class in ordinal order.
func AllLossClasses() []LossClass {
	out := make([]LossClass, len(lossClassNames))
	for i := range out {
		out[i] = LossClass(i)
	}
	return out
}

// Valid reports whether the loss class is within the closed taxonomy.
func (l LossClass) Valid() bool {
	return l >= LossTotalOmission && l <= LossSchemaMismatch
}

func (l LossClass) String() string {
	if !l.Valid() {
		return fmt.Sprintf("L%d_UNKNOWN", int(l))
	}
	return fmt.Sprintf("L%d_%s", int(l), lossClassNames[l])
}

// ParseLossClass resolves a serialized loss class name ("L2_TRUNCATION" or
// "TRUNCATION") back to its ordinal.
func ParseLossClass(name string) (LossClass, error) {
	for i, n := range lossClassNames {
		lc := LossClass(i)
		if name == n || name == lc.String() {
			return lc, nil
		}
	}
	return 0, fmt.Errorf("unknown loss class %q", name)
}

// MarshalText serializes the loss class by name so JSON and YAML carry
// "L2_TRUNCATION" rather than a bare ordinal.
func (l LossClass) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid loss class %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText parses a loss class name.
func (l *LossClass) UnmarshalText(text []byte) error {
	lc, err := ParseLossClass(string(text))
	if err != nil {
		return err
	}
	*l = lc
	return nil
}

// MarshalYAML mirrors MarshalText; yaml.v3 does not consult TextMarshaler.
func (l LossClass) MarshalYAML() (interface{}, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid loss class %d", int(l))
	}
	return l.String(), nil
}

// UnmarshalYAML parses a loss class name from a YAML scalar.
func (l *LossClass) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	return l.UnmarshalText([]byte(name))
}

// =============================================================================
// SHAPE TAXONOMY
// =============================================================================

// Category partitions shapes by the kind of pipeline content they bind to.
type Category string

const (
	CategoryStateful  Category = "STATEFUL"
	CategoryStateless Category = "STATELESS"
	CategoryControl   Category = "CONTROL"
)

// Categories returns the closed category set.
func Categories() []Category {
	return []Category{CategoryStateful, CategoryStateless, CategoryControl}
}

// Kind distinguishes hard invariants from capabilities.
type Kind string

const (
	KindInvariant  Kind = "INVARIANT"
	KindCapability Kind = "CAPABILITY"
)

// Criticality is the enforcement tier a shape belongs to.
type Criticality string

const (
	CriticalityFoundational Criticality = "FOUNDATIONAL"
	CriticalityInteractive  Criticality = "INTERACTIVE"
	CriticalityEnhancement  Criticality = "ENHANCEMENT"
)

// Tiers returns criticality tiers in precedence order, most severe first.
func Tiers() []Criticality {
	return []Criticality{CriticalityFoundational, CriticalityInteractive, CriticalityEnhancement}
}

// =============================================================================
// DECLARATIONS AND BUDGETS
// =============================================================================

// Declaration is one requirement shape. Declarations are immutable for the
// process lifetime; they are never created or destroyed at runtime.
type Declaration struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Category           Category    `json:"category"`
	Kind               Kind        `json:"kind"`
	Criticality        Criticality `json:"criticality"`
	RequiredAttributes []string    `json:"required_attributes"`
	OptionalAttributes []string    `json:"optional_attributes,omitempty"`
	MustReachStage     Stage       `json:"must_reach_stage"`
	ForbiddenLosses    []LossClass `json:"forbidden_losses"`
}

// Requires reports whether attr is one of the declaration's required
// attributes.
func (d Declaration) Requires(attr string) bool {
	for _, a := range d.RequiredAttributes {
		if a == attr {
			return true
		}
	}
	return false
}

// Forbids reports whether the loss class appears in the forbidden-loss list.
func (d Declaration) Forbids(l LossClass) bool {
	for _, f := range d.ForbiddenLosses {
		if f == l {
			return true
		}
	}
	return false
}

// Budget is the allowed-vs-fatal degradation contract for one
// (handoff, category) pair.
type Budget struct {
	MaxAttributesDegraded int         `json:"max_attributes_degraded"`
	ToleratedLosses       []LossClass `json:"tolerated_losses"`
	FatalLosses           []LossClass `json:"fatal_losses"`
	MinRequiredAttributes int         `json:"min_required_attributes"`
}

// Tolerates reports whether the loss class is explicitly tolerated.
func (b Budget) Tolerates(l LossClass) bool {
	for _, t := range b.ToleratedLosses {
		if t == l {
			return true
		}
	}
	return false
}

// Fatal reports whether the loss class is explicitly fatal.
func (b Budget) Fatal(l LossClass) bool {
	for _, f := range b.FatalLosses {
		if f == l {
			return true
		}
	}
	return false
}
