package counterfactual

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"ricp/internal/enforce"
	"ricp/internal/logging"
	"ricp/internal/trace"
)

// =============================================================================
// MINIMAL COUNTERFACTUAL CUT SETS
// =============================================================================

// CutSet is one scenario combination that would have made the run compliant.
// AllTiersCompliant and InvariantsPreserved are true on every returned set:
// a combination that leaves any tier law unmet or any invariant broken is
// never offered.
type CutSet struct {
	Scenarios           []ScenarioKind `json:"scenarios"`
	ProjectedGlobalRSR  float64        `json:"projected_global_rsr"`
	Gain                float64        `json:"gain"` // over the real run's global RSR
	ProjectedAction     enforce.Action `json:"projected_action"`
	AllTiersCompliant   bool           `json:"all_tiers_compliant"`
	InvariantsPreserved bool           `json:"invariants_preserved"`
	VerifiedViaReplay   bool           `json:"verified_via_replay"`
}

// MinimalCutSets searches for the smallest scenario combinations whose
// replay satisfies every tier law and preserves every invariant. The action
// alone is not enough: WARN_ONLY can coexist with an open ENHANCEMENT
// violation. Subset sizes are tried in ascending order and the search stops
// at the first size with any hit, so every returned set is minimal. Hits
// within that size rank by projected gain, descending. An already-compliant
// run has nothing to cut and returns no sets.
func (a *Analyzer) MinimalCutSets(ctx context.Context, runID string, gate trace.GateResult, traces []*trace.ShapeTrace) ([]CutSet, error) {
	log := logging.Get(logging.CategoryCounterfactual)

	baseline := a.eng.Decide(runID, gate, traces)
	if baseline.Compliant() {
		return nil, nil
	}

	kinds := AllScenarioKinds()
	for size := 1; size <= len(kinds); size++ {
		var (
			mu   sync.Mutex
			hits []CutSet
		)
		g, ctx := errgroup.WithContext(ctx)
		for _, combo := range combinations(kinds, size) {
			combo := combo
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				d := a.eng.Decide(runID, gate, projectAll(combo, a.reg, traces))
				if !d.Compliant() {
					return nil
				}
				mu.Lock()
				hits = append(hits, CutSet{
					Scenarios:           combo,
					ProjectedGlobalRSR:  d.GlobalRSR,
					Gain:                d.GlobalRSR - baseline.GlobalRSR,
					ProjectedAction:     d.Action,
					AllTiersCompliant:   true,
					InvariantsPreserved: true,
					VerifiedViaReplay:   true,
				})
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			sort.Slice(hits, func(i, j int) bool {
				if hits[i].Gain != hits[j].Gain {
					return hits[i].Gain > hits[j].Gain
				}
				return lessKinds(hits[i].Scenarios, hits[j].Scenarios)
			})
			log.Infow("minimal cut sets found", "run_id", runID, "size", size, "count", len(hits))
			return hits, nil
		}
	}

	log.Infow("no cut set restores compliance", "run_id", runID)
	return nil, nil
}

// combinations returns every subset of the given size, preserving order.
func combinations(kinds []ScenarioKind, size int) [][]ScenarioKind {
	if size <= 0 || size > len(kinds) {
		return nil
	}
	var out [][]ScenarioKind
	var walk func(start int, cur []ScenarioKind)
	walk = func(start int, cur []ScenarioKind) {
		if len(cur) == size {
			out = append(out, append([]ScenarioKind(nil), cur...))
			return
		}
		for i := start; i < len(kinds); i++ {
			walk(i+1, append(cur, kinds[i]))
		}
	}
	walk(0, nil)
	return out
}

func lessKinds(a, b []ScenarioKind) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
