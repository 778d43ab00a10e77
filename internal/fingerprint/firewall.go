package fingerprint

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"ricp/internal/logging"
	"ricp/internal/shape"
)

// Verdict is the deterministic historical classification of a fingerprint.
// A verdict only moves from SAFE toward a worse verdict within one index
// lifetime, never back.
type Verdict string

const (
	VerdictSafe                     Verdict = "SAFE"
	VerdictCausedLoss               Verdict = "CAUSED_LOSS"
	VerdictCausedInvariantViolation Verdict = "CAUSED_INVARIANT_VIOLATION"
)

// worse orders verdicts by severity.
func worse(a, b Verdict) Verdict {
	rank := map[Verdict]int{VerdictSafe: 0, VerdictCausedLoss: 1, VerdictCausedInvariantViolation: 2}
	if rank[a] >= rank[b] {
		return a
	}
	return b
}

// Occurrence is one historical sighting of a fingerprint.
type Occurrence struct {
	RunID                    string    `json:"run_id"`
	Timestamp                time.Time `json:"timestamp"`
	CausedLoss               bool      `json:"caused_loss"`
	CausedInvariantViolation bool      `json:"caused_invariant_violation"`
}

// IndexEntry is the append-only aggregate for one fingerprint hash.
type IndexEntry struct {
	Hash                 string        `json:"hash"`
	Handoff              shape.Handoff `json:"handoff"`
	Occurrences          []Occurrence  `json:"occurrences"`
	LossOccurrences      int           `json:"loss_occurrences"`
	InvariantOccurrences int           `json:"invariant_occurrences"`
	Verdict              Verdict       `json:"verdict"`
}

// firstBad returns the earliest occurrence that caused loss or an invariant
// violation.
func (e *IndexEntry) firstBad() (Occurrence, bool) {
	for _, o := range e.Occurrences {
		if o.CausedLoss || o.CausedInvariantViolation {
			return o, true
		}
	}
	return Occurrence{}, false
}

// recomputeVerdict applies the deterministic rule: any invariant violation
// ever recorded dominates, then any loss, then SAFE. Monotonicity holds
// because occurrence history is append-only.
func (e *IndexEntry) recomputeVerdict() {
	v := VerdictSafe
	if e.LossOccurrences > 0 {
		v = VerdictCausedLoss
	}
	if e.InvariantOccurrences > 0 {
		v = VerdictCausedInvariantViolation
	}
	e.Verdict = worse(v, e.Verdict)
}

// PredictiveBlock is a preemptive veto issued on an exact historical match.
type PredictiveBlock struct {
	Decision      string        `json:"decision"` // always BLOCK_PREEMPTIVELY
	Hash          string        `json:"hash"`
	Handoff       shape.Handoff `json:"handoff"`
	Verdict       Verdict       `json:"verdict"`
	EvidenceRunID string        `json:"evidence_run_id"`
	Occurrences   int           `json:"occurrences"`
	Reason        string        `json:"reason"`
}

// BlockPreemptively is the only decision a predictive block carries.
const BlockPreemptively = "BLOCK_PREEMPTIVELY"

// Firewall indexes fingerprints across runs and vetoes transformations whose
// exact hash previously caused loss. It is an exact-match circuit breaker:
// no similarity, no probability threshold. An empty index blocks nothing.
type Firewall struct {
	mu      sync.Mutex
	store   *IndexStore
	entries map[string]*IndexEntry
	now     func() time.Time
}

// NewFirewall loads the full index from the store. A nil store keeps the
// index in memory only.
func NewFirewall(store *IndexStore) (*Firewall, error) {
	f := &Firewall{
		store:   store,
		entries: make(map[string]*IndexEntry),
		now:     time.Now,
	}
	if store != nil {
		entries, err := store.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			f.entries[e.Hash] = e
		}
	}
	return f, nil
}

// CheckHash returns a preemptive block when the fingerprint exactly matches
// a non-SAFE index entry, citing the first bad historical occurrence. A hash
// with no history returns nil: no history means no block.
func (f *Firewall) CheckHash(fp *Fingerprint) *PredictiveBlock {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[fp.Hash]
	if !ok || e.Verdict == VerdictSafe {
		return nil
	}
	evidence, _ := e.firstBad()
	block := &PredictiveBlock{
		Decision:      BlockPreemptively,
		Hash:          fp.Hash,
		Handoff:       fp.Handoff,
		Verdict:       e.Verdict,
		EvidenceRunID: evidence.RunID,
		Occurrences:   len(e.Occurrences),
		Reason: fmt.Sprintf("transformation %s at %s matched historical verdict %s (first seen in run %s)",
			fp.Hash, fp.Handoff, e.Verdict, evidence.RunID),
	}
	logging.Get(logging.CategoryFirewall).Infow("preemptive block",
		"hash", fp.Hash, "handoff", fp.Handoff, "verdict", e.Verdict,
		"evidence_run", evidence.RunID)
	return block
}

// Record appends the run's outcome for a fingerprint and recomputes the
// entry's verdict.
func (f *Firewall) Record(fp *Fingerprint, causedLoss, causedInvariantViolation bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[fp.Hash]
	if !ok {
		e = &IndexEntry{Hash: fp.Hash, Handoff: fp.Handoff, Verdict: VerdictSafe}
		f.entries[fp.Hash] = e
	}
	e.Occurrences = append(e.Occurrences, Occurrence{
		RunID:                    fp.RunID,
		Timestamp:                f.now(),
		CausedLoss:               causedLoss,
		CausedInvariantViolation: causedInvariantViolation,
	})
	if causedLoss {
		e.LossOccurrences++
	}
	if causedInvariantViolation {
		e.InvariantOccurrences++
	}
	e.recomputeVerdict()
}

// Entries returns a copy of the index ordered by hash.
func (f *Firewall) Entries() []IndexEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]IndexEntry, 0, len(f.entries))
	for _, e := range f.entries {
		c := *e
		c.Occurrences = append([]Occurrence(nil), e.Occurrences...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

// Persist rewrites the full index to the store.
func (f *Firewall) Persist() error {
	if f.store == nil {
		return nil
	}
	f.mu.Lock()
	entries := make([]*IndexEntry, 0, len(f.entries))
	for _, e := range f.entries {
		entries = append(entries, e)
	}
	f.mu.Unlock()
	return f.store.SaveAll(entries)
}
