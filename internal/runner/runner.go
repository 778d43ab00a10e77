// Package runner orchestrates one full control-plane pass over a trace
// bundle: firewall pre-check, mortality observation, enforcement, fingerprint
// recording, counterfactual search, persistence, and report assembly.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"ricp/internal/counterfactual"
	"ricp/internal/enforce"
	"ricp/internal/fingerprint"
	"ricp/internal/logging"
	"ricp/internal/mortality"
	"ricp/internal/repair"
	"ricp/internal/report"
	"ricp/internal/shape"
	"ricp/internal/trace"
	"ricp/internal/tte"
)

// Runner owns the long-lived components and their stores.
type Runner struct {
	reg      *shape.Registry
	tracker  *mortality.Tracker
	firewall *fingerprint.Firewall
	engine   *enforce.Engine
	analyzer *counterfactual.Analyzer
	promoter *tte.PromotionController

	mortalityStore *mortality.Store
	indexStore     *fingerprint.IndexStore
	lineage        *tte.LineageStore

	now func() time.Time
}

// New opens the stores under dataDir and wires every component. Close
// releases the stores.
func New(dataDir string) (*Runner, error) {
	ms, err := mortality.OpenStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open mortality store: %w", err)
	}
	is, err := fingerprint.OpenIndexStore(dataDir)
	if err != nil {
		ms.Close()
		return nil, fmt.Errorf("failed to open fingerprint index: %w", err)
	}
	ls, err := tte.OpenLineageStore(dataDir)
	if err != nil {
		ms.Close()
		is.Close()
		return nil, fmt.Errorf("failed to open lineage store: %w", err)
	}
	r, err := assemble(ms, is, ls)
	if err != nil {
		ms.Close()
		is.Close()
		ls.Close()
		return nil, err
	}
	return r, nil
}

// NewInMemory wires a runner with no persistence. Used by tests and one-shot
// evaluations.
func NewInMemory() (*Runner, error) {
	return assemble(nil, nil, nil)
}

func assemble(ms *mortality.Store, is *fingerprint.IndexStore, ls *tte.LineageStore) (*Runner, error) {
	reg := shape.DefaultRegistry()
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape catalog: %w", err)
	}
	tracker, err := mortality.NewTracker(ms)
	if err != nil {
		return nil, err
	}
	fw, err := fingerprint.NewFirewall(is)
	if err != nil {
		return nil, err
	}
	controller := tte.NewController(ls)
	engine := enforce.NewEngine(reg, repair.NewGenerator(reg), controller)
	return &Runner{
		reg:            reg,
		tracker:        tracker,
		firewall:       fw,
		engine:         engine,
		analyzer:       counterfactual.NewAnalyzer(reg, engine),
		promoter:       tte.NewPromotionController(ls),
		mortalityStore: ms,
		indexStore:     is,
		lineage:        ls,
		now:            time.Now,
	}, nil
}

// Close releases every open store.
func (r *Runner) Close() error {
	var errs []error
	if r.mortalityStore != nil {
		errs = append(errs, r.mortalityStore.Close())
	}
	if r.indexStore != nil {
		errs = append(errs, r.indexStore.Close())
	}
	if r.lineage != nil {
		errs = append(errs, r.lineage.Close())
	}
	return errors.Join(errs...)
}

// Registry exposes the shape catalog to CLI surfaces.
func (r *Runner) Registry() *shape.Registry { return r.reg }

// Tracker exposes the mortality tracker to CLI surfaces.
func (r *Runner) Tracker() *mortality.Tracker { return r.tracker }

// Firewall exposes the fingerprint index to CLI surfaces.
func (r *Runner) Firewall() *fingerprint.Firewall { return r.firewall }

// Promoter exposes the promotion controller.
func (r *Runner) Promoter() *tte.PromotionController { return r.promoter }

// CutSets replays the counterfactual search for a bundle without recording
// anything.
func (r *Runner) CutSets(ctx context.Context, b *trace.Bundle) ([]counterfactual.CutSet, error) {
	return r.analyzer.MinimalCutSets(ctx, b.RunID, b.Gate, b.Traces)
}

// ExecuteRun performs one full control-plane pass over a bundle. The
// sequence is fixed: firewall pre-check, mortality observation, enforcement,
// outcome recording, counterfactual search, persistence, report.
func (r *Runner) ExecuteRun(ctx context.Context, b *trace.Bundle) (*report.RunReport, error) {
	log := logging.Get(logging.CategoryRunner)
	if b.RunID == "" {
		return nil, errors.New("bundle has no run id")
	}

	fps := fingerprint.Collect(b.RunID, r.reg, b.Traces)
	var blocks []*fingerprint.PredictiveBlock
	for _, fp := range fps {
		if blk := r.firewall.CheckHash(fp); blk != nil {
			blocks = append(blocks, blk)
		}
	}
	if len(blocks) > 0 {
		log.Warnw("predictive firewall vetoed execution",
			"run_id", b.RunID, "blocks", len(blocks))
	}

	r.tracker.Observe(b.RunID, r.reg, b.Traces)

	decision := r.engine.Decide(b.RunID, b.Gate, b.Traces)

	invariantByHandoff := invariantLossHandoffs(r.reg, b.Traces)
	for _, fp := range fps {
		causedLoss := len(fp.ShapesLost) > 0 || len(fp.ShapesDegraded) > 0
		r.firewall.Record(fp, causedLoss, invariantByHandoff[fp.Handoff])
	}

	var cuts []counterfactual.CutSet
	if !decision.Compliant() {
		var err error
		cuts, err = r.analyzer.MinimalCutSets(ctx, b.RunID, b.Gate, b.Traces)
		if err != nil {
			return nil, fmt.Errorf("cut set search failed: %w", err)
		}
	}

	if err := r.tracker.Persist(); err != nil {
		return nil, fmt.Errorf("failed to persist mortality records: %w", err)
	}
	if err := r.firewall.Persist(); err != nil {
		return nil, fmt.Errorf("failed to persist fingerprint index: %w", err)
	}

	var directives []*repair.Directive
	for _, dir := range decision.Directives {
		directives = append(directives, dir)
	}
	sort.Slice(directives, func(i, j int) bool { return directives[i].ShapeID < directives[j].ShapeID })

	rep := &report.RunReport{
		RunID:               b.RunID,
		GeneratedAt:         r.now().UTC(),
		Decision:            decision,
		Mortality:           r.tracker.Analyze(5),
		Fingerprints:        fps,
		PredictiveBlocks:    blocks,
		PreemptivelyBlocked: len(blocks) > 0,
		Directives:          directives,
		CutSets:             cuts,
	}
	log.Infow("run complete",
		"run_id", b.RunID,
		"action", decision.Action,
		"global_rsr", decision.GlobalRSR,
		"preemptive_blocks", len(blocks),
		"cut_sets", len(cuts),
	)
	return rep, nil
}

// invariantLossHandoffs marks every handoff where an invariant shape
// recorded a loss.
func invariantLossHandoffs(reg *shape.Registry, traces []*trace.ShapeTrace) map[shape.Handoff]bool {
	out := map[shape.Handoff]bool{}
	for _, tr := range traces {
		decl, err := reg.Shape(tr.ShapeID)
		if err != nil || decl.Kind != shape.KindInvariant {
			continue
		}
		for _, l := range tr.Losses {
			out[l.Handoff] = true
		}
	}
	return out
}
