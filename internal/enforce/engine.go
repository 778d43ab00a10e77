package enforce

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"ricp/internal/logging"
	"ricp/internal/repair"
	"ricp/internal/shape"
	"ricp/internal/trace"
	"ricp/internal/tte"
)

// =============================================================================
// ENFORCEMENT ENGINE
// =============================================================================

// Engine turns one run's traces into a binding Decision. It owns no state
// between runs; the registry and laws it consults are frozen at construction.
type Engine struct {
	reg    *shape.Registry
	gen    *repair.Generator
	tracks *tte.Controller
	now    func() time.Time
}

// NewEngine wires the engine to its registry, directive generator, and track
// controller.
func NewEngine(reg *shape.Registry, gen *repair.Generator, tracks *tte.Controller) *Engine {
	return &Engine{reg: reg, gen: gen, tracks: tracks, now: time.Now}
}

// Decide evaluates every trace against the tier laws and emits the binding
// decision for the run. The evaluation order is fixed: per-shape survival,
// invariant validation, tier aggregation, strict-precedence action, fork.
func (e *Engine) Decide(runID string, gate trace.GateResult, traces []*trace.ShapeTrace) *Decision {
	log := logging.Get(logging.CategoryEnforce)

	d := &Decision{RunID: runID}
	violatedByTier := map[shape.Criticality][]Violation{}

	byID := make(map[string]*trace.ShapeTrace, len(traces))
	for _, tr := range traces {
		decl, err := e.reg.Shape(tr.ShapeID)
		if err != nil {
			log.Warnw("trace for undeclared shape ignored", "shape_id", tr.ShapeID, "run_id", runID)
			continue
		}
		byID[tr.ShapeID] = tr
		res := ComputeRSR(e.reg, decl, tr)
		d.Results = append(d.Results, res)
		violatedByTier[decl.Criticality] = append(violatedByTier[decl.Criticality], shapeViolations(decl, res)...)
	}
	sort.Slice(d.Results, func(i, j int) bool { return d.Results[i].ShapeID < d.Results[j].ShapeID })
	d.GlobalRSR = GlobalRSR(d.Results)

	// Invariant violations are foundational-severity regardless of the
	// shape's declared tier.
	d.InvariantViolations = ValidateInvariants(e.reg, traces)
	violatedByTier[shape.CriticalityFoundational] = append(
		violatedByTier[shape.CriticalityFoundational], d.InvariantViolations...)

	for _, tier := range TierOrder() {
		law := LawFor(tier)
		d.Tiers = append(d.Tiers, TierResult{
			Tier:       tier,
			Threshold:  law.MinRSR,
			Evaluated:  countTier(d.Results, tier),
			Violations: violatedByTier[tier],
			Passed:     len(violatedByTier[tier]) == 0,
		})
	}

	d.Action = decideAction(gate, violatedByTier)
	d.Fork = tte.DecideFork(forkInput(violatedByTier))
	if d.Action == ActionBlockAll && !d.Fork.BlockAll {
		// The gate blocked a run the tier laws alone would have allowed.
		d.Fork = tte.ForkDecision{BlockAll: true, BlockCanonical: true}
	}

	d.CanonicalAllowed = d.Action != ActionBlockAll &&
		len(violatedByTier[shape.CriticalityFoundational]) == 0 &&
		!d.Fork.BlockCanonical

	d.Directives = e.directivesFor(d.Action, violatedByTier, byID)
	d.Tracks = e.tracks.CreateTracks(runID, d.Fork, gate, d.Directives)

	d.Proof = Proof{
		RunID:          runID,
		InputDigest:    digestInputs(runID, gate, traces),
		NoInference:    true,
		NoSoftening:    true,
		NonOverridable: true,
		ComputedAt:     e.now().UTC(),
	}

	log.Infow("decision computed",
		"run_id", runID,
		"action", d.Action,
		"global_rsr", d.GlobalRSR,
		"canonical_allowed", d.CanonicalAllowed,
		"tracks", len(d.Tracks),
	)
	return d
}

// shapeViolations converts one shape's survival result into typed violations.
func shapeViolations(decl shape.Declaration, res RSRResult) []Violation {
	var out []Violation
	if res.RSR < res.Threshold {
		out = append(out, Violation{
			ShapeID:   decl.ID,
			Tier:      decl.Criticality,
			Kind:      ViolationRSRBelowThreshold,
			RSR:       res.RSR,
			Threshold: res.Threshold,
			Detail: fmt.Sprintf("%s survived %d of %d required attributes (%.2f < %.2f)",
				decl.ID, res.PreservedCount, res.RequiredCount, res.RSR, res.Threshold),
		})
	}
	for _, loss := range res.UntoleratedLosses {
		out = append(out, Violation{
			ShapeID:   decl.ID,
			Tier:      decl.Criticality,
			Kind:      ViolationUntoleratedLoss,
			RSR:       res.RSR,
			Threshold: res.Threshold,
			Handoff:   loss.Handoff,
			Class:     loss.Class,
			Detail:    fmt.Sprintf("%s suffered untolerated %s at %s", decl.ID, loss.Class, loss.Handoff),
		})
	}
	return out
}

// decideAction applies strict precedence. Ties resolve toward severity: a
// single foundational violation outweighs any number of lesser ones, and a
// blocking gate failure blocks the run outright.
func decideAction(gate trace.GateResult, violated map[shape.Criticality][]Violation) Action {
	if gate.Verdict == trace.GateFail && gate.BlockDownstream {
		return ActionBlockAll
	}
	switch {
	case len(violated[shape.CriticalityFoundational]) > 0:
		return ActionBlockAll
	case len(violated[shape.CriticalityInteractive]) > 0:
		return ActionForkTTE
	default:
		return ActionWarnOnly
	}
}

// forkInput projects tier violations onto the fork vocabulary, deduplicating
// shape ids per tier.
func forkInput(violated map[shape.Criticality][]Violation) tte.ForkInput {
	ids := func(tier shape.Criticality) []string {
		seen := map[string]bool{}
		var out []string
		for _, v := range violated[tier] {
			if !seen[v.ShapeID] {
				seen[v.ShapeID] = true
				out = append(out, v.ShapeID)
			}
		}
		sort.Strings(out)
		return out
	}
	return tte.ForkInput{
		FoundationalViolated: ids(shape.CriticalityFoundational),
		InteractiveViolated:  ids(shape.CriticalityInteractive),
		EnhancementViolated:  ids(shape.CriticalityEnhancement),
	}
}

// directivesFor generates one repair directive per violated shape whenever
// the action blocks or forks. A blocked run gets directives too, even though
// it spawns no tracks. Directives are advisory output; they never mutate the
// decision.
func (e *Engine) directivesFor(action Action, violated map[shape.Criticality][]Violation, byID map[string]*trace.ShapeTrace) map[string]*repair.Directive {
	if action == ActionWarnOnly {
		return nil
	}
	out := map[string]*repair.Directive{}
	for _, vs := range violated {
		for _, v := range vs {
			if _, done := out[v.ShapeID]; done {
				continue
			}
			decl, err := e.reg.Shape(v.ShapeID)
			if err != nil {
				continue
			}
			tr, ok := byID[v.ShapeID]
			if !ok {
				continue
			}
			out[v.ShapeID] = e.gen.ForShape(decl, tr)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func countTier(results []RSRResult, tier shape.Criticality) int {
	n := 0
	for _, r := range results {
		if r.Tier == tier {
			n++
		}
	}
	return n
}

// digestInputs fingerprints the decision inputs so the proof can be checked
// against a replay of the same run.
func digestInputs(runID string, gate trace.GateResult, traces []*trace.ShapeTrace) string {
	lines := make([]string, 0, len(traces)+2)
	lines = append(lines, "run="+runID)
	lines = append(lines, fmt.Sprintf("gate=%s|%t", gate.Verdict, gate.BlockDownstream))
	for _, tr := range traces {
		lines = append(lines, fmt.Sprintf("trace=%s|evidence=%d|losses=%d", tr.ShapeID, len(tr.Evidence), len(tr.Losses)))
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
