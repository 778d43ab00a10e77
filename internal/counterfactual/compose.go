package counterfactual

import (
	"fmt"
	"sort"

	"ricp/internal/enforce"
	"ricp/internal/logging"
	"ricp/internal/shape"
	"ricp/internal/trace"
)

// =============================================================================
// PROJECTION AND COMPOSITION
// =============================================================================

// interactionTolerance is the band within which a combined delta counts as
// neutral rather than synergistic or interfering.
const interactionTolerance = 0.01

// Interaction classifies the combined RSR delta against the sum of the
// scenarios' individual deltas: excess is SYNERGY, deficit INTERFERENCE,
// a match within tolerance NEUTRAL. Exactly additive scenarios are NEUTRAL.
type Interaction string

const (
	InteractionSynergy       Interaction = "SYNERGY"
	InteractionInterference  Interaction = "INTERFERENCE"
	InteractionNeutral       Interaction = "NEUTRAL"
	InteractionNotApplicable Interaction = "NOT_APPLICABLE" // fewer than two scenarios
)

// Projection is one scenario replayed through enforcement. VerifiedViaReplay
// is always true: a projection that was not replayed is never returned.
type Projection struct {
	Kind              ScenarioKind        `json:"kind"`
	Results           []enforce.RSRResult `json:"results"`
	GlobalRSR         float64             `json:"global_rsr"`
	Action            enforce.Action      `json:"action"`
	VerifiedViaReplay bool                `json:"verified_via_replay"`
}

// InteractionEffect is the sum-of-deltas comparison for one shape observed
// under at least two scenarios.
type InteractionEffect struct {
	ShapeID       string      `json:"shape_id"`
	BaselineRSR   float64     `json:"baseline_rsr"`
	SumOfDeltas   float64     `json:"sum_of_deltas"`
	CombinedDelta float64     `json:"combined_delta"`
	Effect        Interaction `json:"effect"`
}

// Composition is the joint projection of several scenarios.
type Composition struct {
	Scenarios         []ScenarioKind      `json:"scenarios"`
	Individual        []Projection        `json:"individual"`
	BaselineGlobalRSR float64             `json:"baseline_global_rsr"`
	BestPerShape      map[string]float64  `json:"best_per_shape"` // best projected RSR per shape
	ComposedGlobalRSR float64             `json:"composed_global_rsr"`
	CombinedGlobalRSR float64             `json:"combined_global_rsr"`
	CombinedAction    enforce.Action      `json:"combined_action"`
	Interactions      []InteractionEffect `json:"interactions,omitempty"` // per shape, ordered by id
	Interaction       Interaction         `json:"interaction"`            // global sum-of-deltas classification
	VerifiedViaReplay bool                `json:"verified_via_replay"`
}

// Analyzer projects scenarios over runs and replays enforcement on them.
type Analyzer struct {
	reg *shape.Registry
	eng *enforce.Engine
}

// NewAnalyzer wires the analyzer to the registry and an enforcement engine
// used purely for replay.
func NewAnalyzer(reg *shape.Registry, eng *enforce.Engine) *Analyzer {
	return &Analyzer{reg: reg, eng: eng}
}

// Project replays one scenario over the run's traces.
func (a *Analyzer) Project(kind ScenarioKind, runID string, gate trace.GateResult, traces []*trace.ShapeTrace) Projection {
	projected := project(kind, a.reg, traces)
	d := a.eng.Decide(runID, gate, projected)
	return Projection{
		Kind:              kind,
		Results:           d.Results,
		GlobalRSR:         d.GlobalRSR,
		Action:            d.Action,
		VerifiedViaReplay: true,
	}
}

// Compose projects every scenario individually and jointly. The composed
// global RSR takes each shape's best individual projection; the combined
// figures come from replaying all scenarios chained together. Interaction
// compares the combined delta over the baseline against the sum of the
// individual deltas, globally and per shape, and is only defined for two or
// more scenarios.
func (a *Analyzer) Compose(kinds []ScenarioKind, runID string, gate trace.GateResult, traces []*trace.ShapeTrace) (Composition, error) {
	if len(kinds) == 0 {
		return Composition{}, fmt.Errorf("compose requires at least one scenario")
	}
	log := logging.Get(logging.CategoryCounterfactual)

	comp := Composition{
		Scenarios:         append([]ScenarioKind(nil), kinds...),
		BestPerShape:      map[string]float64{},
		VerifiedViaReplay: true,
	}

	baseline := a.eng.Decide(runID, gate, traces)
	comp.BaselineGlobalRSR = baseline.GlobalRSR
	baseRSR := map[string]float64{}
	for _, r := range baseline.Results {
		baseRSR[r.ShapeID] = r.RSR
	}

	sumDeltas := map[string]float64{}
	observed := map[string]int{}
	globalSum := 0.0
	for _, kind := range kinds {
		p := a.Project(kind, runID, gate, traces)
		comp.Individual = append(comp.Individual, p)
		globalSum += p.GlobalRSR - baseline.GlobalRSR
		for _, r := range p.Results {
			sumDeltas[r.ShapeID] += r.RSR - baseRSR[r.ShapeID]
			observed[r.ShapeID]++
			if r.RSR > comp.BestPerShape[r.ShapeID] {
				comp.BestPerShape[r.ShapeID] = r.RSR
			}
		}
	}
	comp.ComposedGlobalRSR = meanOf(comp.BestPerShape)

	combined := a.eng.Decide(runID, gate, projectAll(kinds, a.reg, traces))
	comp.CombinedGlobalRSR = combined.GlobalRSR
	comp.CombinedAction = combined.Action

	if len(kinds) < 2 {
		comp.Interaction = InteractionNotApplicable
	} else {
		comp.Interaction = classifyInteraction(globalSum, combined.GlobalRSR-baseline.GlobalRSR)
		combinedRSR := map[string]float64{}
		for _, r := range combined.Results {
			combinedRSR[r.ShapeID] = r.RSR
		}
		ids := make([]string, 0, len(observed))
		for id, n := range observed {
			if n >= 2 {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		for _, id := range ids {
			delta := combinedRSR[id] - baseRSR[id]
			comp.Interactions = append(comp.Interactions, InteractionEffect{
				ShapeID:       id,
				BaselineRSR:   baseRSR[id],
				SumOfDeltas:   sumDeltas[id],
				CombinedDelta: delta,
				Effect:        classifyInteraction(sumDeltas[id], delta),
			})
		}
	}

	log.Infow("composition replayed",
		"run_id", runID,
		"scenarios", len(kinds),
		"composed_global_rsr", comp.ComposedGlobalRSR,
		"combined_global_rsr", comp.CombinedGlobalRSR,
		"interaction", comp.Interaction,
	)
	return comp, nil
}

// classifyInteraction compares the combined delta against the sum of the
// individual deltas within the fixed tolerance.
func classifyInteraction(sumOfDeltas, combinedDelta float64) Interaction {
	switch {
	case combinedDelta > sumOfDeltas+interactionTolerance:
		return InteractionSynergy
	case combinedDelta < sumOfDeltas-interactionTolerance:
		return InteractionInterference
	default:
		return InteractionNeutral
	}
}

func meanOf(m map[string]float64) float64 {
	if len(m) == 0 {
		return 1.0
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sum float64
	for _, k := range keys {
		sum += m[k]
	}
	return sum / float64(len(m))
}
