package tte

import (
	"context"

	"golang.org/x/sync/errgroup"

	"ricp/internal/logging"
	"ricp/internal/repair"
	"ricp/internal/trace"
)

// ForkInput is the tier-violation summary the enforcement engine hands to
// the controller. Shape ids only; the controller never re-derives policy.
type ForkInput struct {
	FoundationalViolated []string
	InteractiveViolated  []string
	EnhancementViolated  []string
}

// ForkDecision is a pure function of the tier results.
type ForkDecision struct {
	BlockAll         bool     `json:"block_all"`
	CreateShadow     bool     `json:"create_shadow"`
	RemediatedShapes []string `json:"remediated_shapes,omitempty"`
	CanonicalPassed  bool     `json:"canonical_passed"`
	BlockCanonical   bool     `json:"block_canonical"`
}

// DecideFork applies the fixed forking law: any FOUNDATIONAL violation
// blocks everything and creates nothing; any INTERACTIVE violation forks
// into SHADOW plus one REMEDIATED track per violated shape; a clean run
// yields a single passed CANONICAL track.
func DecideFork(in ForkInput) ForkDecision {
	switch {
	case len(in.FoundationalViolated) > 0:
		return ForkDecision{BlockAll: true, BlockCanonical: true}
	case len(in.InteractiveViolated) > 0:
		return ForkDecision{
			CreateShadow:     true,
			RemediatedShapes: append([]string(nil), in.InteractiveViolated...),
		}
	default:
		return ForkDecision{CanonicalPassed: true}
	}
}

// Controller creates and manages execution tracks.
type Controller struct {
	lineage *LineageStore
}

// NewController creates a track controller. The lineage store may be nil for
// in-memory use.
func NewController(lineage *LineageStore) *Controller {
	return &Controller{lineage: lineage}
}

// CreateTracks materializes the fork decision. Every track receives its own
// clone of the originating gate result; REMEDIATED tracks carry the repair
// directive generated for their shape.
func (c *Controller) CreateTracks(runID string, d ForkDecision, gate trace.GateResult, directives map[string]*repair.Directive) []*Track {
	log := logging.Get(logging.CategoryTTE)

	if d.BlockAll {
		log.Infow("fork blocked, no tracks created", "run", runID)
		return nil
	}

	var tracks []*Track
	if d.CanonicalPassed {
		t := newTrack(runID, TrackCanonical, gate)
		t.status = StatusPassed
		tracks = append(tracks, t)
		log.Infow("canonical track passed", "run", runID, "track", t.ID)
		return tracks
	}

	if d.CreateShadow {
		t := newTrack(runID, TrackShadow, gate)
		tracks = append(tracks, t)
		log.Infow("shadow track created", "run", runID, "track", t.ID)
	}
	for _, shapeID := range d.RemediatedShapes {
		t := newTrack(runID, TrackRemediated, gate)
		t.Directive = directives[shapeID]
		tracks = append(tracks, t)
		log.Infow("remediated track created", "run", runID, "track", t.ID, "shape", shapeID)
	}
	return tracks
}

// EvaluateTracks runs fn over every track concurrently. Isolation is the
// caller's contract: fn must only touch the track it is given and that
// track's own input copies.
func EvaluateTracks(ctx context.Context, tracks []*Track, fn func(context.Context, *Track) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tracks {
		t := t
		g.Go(func() error { return fn(ctx, t) })
	}
	return g.Wait()
}
