package mortality

import (
	"sort"
	"sync"
	"time"

	"ricp/internal/logging"
	"ricp/internal/shape"
	"ricp/internal/trace"
)

// Tracker updates mortality records from per-run trace results. Records load
// fully from the store at construction and persist fully after each run.
type Tracker struct {
	mu      sync.RWMutex
	store   *Store
	records map[string]*Record
	now     func() time.Time
}

// NewTracker creates a tracker over an opened store. The store may be nil for
// in-memory use (tests, counterfactual replay).
func NewTracker(store *Store) (*Tracker, error) {
	t := &Tracker{
		store:   store,
		records: make(map[string]*Record),
		now:     time.Now,
	}
	if store != nil {
		recs, err := store.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			t.records[r.ShapeID] = r
		}
	}
	return t, nil
}

// Observe updates every shape's record from one run's traces. For each
// handoff inside the shape's required range: a loss record at the handoff is
// a death, evidence at both endpoint stages without a loss is a pass, and a
// handoff with neither contributes no observation.
func (t *Tracker) Observe(runID string, reg *shape.Registry, traces []*trace.ShapeTrace) {
	t.mu.Lock()
	defer t.mu.Unlock()

	log := logging.Get(logging.CategoryMortality)
	now := t.now()

	for _, tr := range traces {
		decl, err := reg.Shape(tr.ShapeID)
		if err != nil {
			log.Warnw("trace for unknown shape ignored", "shape", tr.ShapeID, "run", runID)
			continue
		}

		rec, ok := t.records[tr.ShapeID]
		if !ok {
			rec = &Record{
				ShapeID:   tr.ShapeID,
				FirstSeen: now,
				Handoffs:  make(map[shape.Handoff]*HandoffStats),
			}
			t.records[tr.ShapeID] = rec
		}
		rec.Runs++
		rec.LastSeen = now

		lastRequired := shape.StageIndex(decl.MustReachStage)
		for i, h := range shape.Handoffs() {
			if i+1 > lastRequired {
				break
			}
			stats, ok := rec.Handoffs[h]
			if !ok {
				stats = &HandoffStats{}
				rec.Handoffs[h] = stats
			}
			switch {
			case len(tr.LossesAt(h)) > 0:
				stats.Deaths++
			case observedAt(tr, h):
				stats.Passes++
			}
		}

		rec.OverallRate = rec.overall()
		rec.History = append(rec.History, rec.OverallRate)
		if len(rec.History) > trendWindow {
			rec.History = rec.History[len(rec.History)-trendWindow:]
		}
		rec.Trend = rec.trend()
		rec.Classification = rec.classify()

		log.Debugw("shape observed",
			"shape", tr.ShapeID,
			"run", runID,
			"overall_rate", rec.OverallRate,
			"classification", rec.Classification,
			"trend", rec.Trend,
		)
	}
}

// observedAt reports whether the trace carries evidence at both endpoint
// stages of the handoff with the shape present at the source.
func observedAt(tr *trace.ShapeTrace, h shape.Handoff) bool {
	src, okSrc := tr.EvidenceAt(h.Source())
	_, okDst := tr.EvidenceAt(h.Target())
	return okSrc && okDst && src.Present
}

// Record returns a copy of one shape's record.
func (t *Tracker) Record(shapeID string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[shapeID]
	if !ok {
		return Record{}, false
	}
	return copyRecord(r), true
}

// MostVulnerable ranks shapes by ascending overall survival rate.
func (t *Tracker) MostVulnerable(limit int) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, copyRecord(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OverallRate != out[j].OverallRate {
			return out[i].OverallRate < out[j].OverallRate
		}
		return out[i].ShapeID < out[j].ShapeID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MostDangerousHandoffs ranks handoffs by descending total death count across
// all shapes.
func (t *Tracker) MostDangerousHandoffs(limit int) []HandoffDanger {
	t.mu.RLock()
	defer t.mu.RUnlock()

	deaths := make(map[shape.Handoff]int)
	for _, r := range t.records {
		for h, s := range r.Handoffs {
			deaths[h] += s.Deaths
		}
	}
	out := make([]HandoffDanger, 0, len(deaths))
	for _, h := range shape.Handoffs() {
		if d, ok := deaths[h]; ok {
			out = append(out, HandoffDanger{Handoff: h, Deaths: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Deaths > out[j].Deaths })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Analyze produces the outbound mortality summary.
func (t *Tracker) Analyze(limit int) *Analysis {
	t.mu.RLock()
	counts := make(map[Status]int)
	total := len(t.records)
	for _, r := range t.records {
		counts[r.Classification]++
	}
	t.mu.RUnlock()

	return &Analysis{
		TotalShapes:    total,
		CountsByStatus: counts,
		MostVulnerable: t.MostVulnerable(limit),
		MostDangerous:  t.MostDangerousHandoffs(limit),
	}
}

// Persist rewrites the full record set to the store.
func (t *Tracker) Persist() error {
	if t.store == nil {
		return nil
	}
	t.mu.RLock()
	recs := make([]*Record, 0, len(t.records))
	for _, r := range t.records {
		recs = append(recs, r)
	}
	t.mu.RUnlock()
	return t.store.SaveAll(recs)
}

// Reset drops all records, in memory and in the store. Records are never
// deleted otherwise.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	t.records = make(map[string]*Record)
	t.mu.Unlock()
	if t.store == nil {
		return nil
	}
	return t.store.Reset()
}

func copyRecord(r *Record) Record {
	c := *r
	c.Handoffs = make(map[shape.Handoff]*HandoffStats, len(r.Handoffs))
	for h, s := range r.Handoffs {
		cs := *s
		c.Handoffs[h] = &cs
	}
	c.History = append([]float64(nil), r.History...)
	return c
}
