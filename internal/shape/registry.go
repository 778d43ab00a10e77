package shape

import (
	"fmt"
	"sort"
)

// Registry is the frozen shape catalog plus the degradation budget matrix.
// All data is copied at construction; lookups never mutate. An unknown
// (handoff, category) budget lookup resolves to a fatal-by-default budget.
type Registry struct {
	shapes  map[string]Declaration
	ordered []string
	matrix  map[Handoff]map[Category]Budget
}

// fatalDefaultBudget is returned for any (handoff, category) pair the matrix
// does not model: every loss class fatal, nothing tolerated, zero degraded
// attributes allowed.
func fatalDefaultBudget() Budget {
	return Budget{
		MaxAttributesDegraded: 0,
		ToleratedLosses:       nil,
		FatalLosses:           AllLossClasses(),
		MinRequiredAttributes: 1,
	}
}

// NewRegistry builds a registry from declarations and a budget matrix.
// Inputs are deep-copied so later mutation by the caller cannot leak in.
func NewRegistry(decls []Declaration, matrix map[Handoff]map[Category]Budget) *Registry {
	r := &Registry{
		shapes: make(map[string]Declaration, len(decls)),
		matrix: make(map[Handoff]map[Category]Budget, len(matrix)),
	}
	for _, d := range decls {
		c := d
		c.RequiredAttributes = append([]string(nil), d.RequiredAttributes...)
		c.OptionalAttributes = append([]string(nil), d.OptionalAttributes...)
		c.ForbiddenLosses = append([]LossClass(nil), d.ForbiddenLosses...)
		r.shapes[c.ID] = c
		r.ordered = append(r.ordered, c.ID)
	}
	sort.Strings(r.ordered)
	for h, row := range matrix {
		dst := make(map[Category]Budget, len(row))
		for cat, b := range row {
			cb := b
			cb.ToleratedLosses = append([]LossClass(nil), b.ToleratedLosses...)
			cb.FatalLosses = append([]LossClass(nil), b.FatalLosses...)
			dst[cat] = cb
		}
		r.matrix[h] = dst
	}
	return r
}

// Shape returns the declaration for id.
func (r *Registry) Shape(id string) (Declaration, error) {
	d, ok := r.shapes[id]
	if !ok {
		return Declaration{}, fmt.Errorf("unknown shape %q", id)
	}
	return d, nil
}

// All returns every declaration, ordered by id.
func (r *Registry) All() []Declaration {
	out := make([]Declaration, 0, len(r.ordered))
	for _, id := range r.ordered {
		out = append(out, r.shapes[id])
	}
	return out
}

// ShapesByCategory returns every declaration in the given category, ordered
// by id.
func (r *Registry) ShapesByCategory(cat Category) []Declaration {
	var out []Declaration
	for _, id := range r.ordered {
		if d := r.shapes[id]; d.Category == cat {
			out = append(out, d)
		}
	}
	return out
}

// BudgetFor returns the degradation budget for a (handoff, category) pair.
// Unmodeled pairs fail closed to the fatal default.
func (r *Registry) BudgetFor(h Handoff, cat Category) Budget {
	if row, ok := r.matrix[h]; ok {
		if b, ok := row[cat]; ok {
			return b
		}
	}
	return fatalDefaultBudget()
}

// IsFatalLoss reports whether a loss of class l at handoff h is fatal for
// shapes of category cat. A loss that is neither tolerated nor listed fatal
// is fatal: the matrix fails closed.
func (r *Registry) IsFatalLoss(h Handoff, cat Category, l LossClass) bool {
	b := r.BudgetFor(h, cat)
	if b.Tolerates(l) {
		return false
	}
	return true
}

// IsToleratedLoss reports whether a loss of class l at handoff h is within
// budget for shapes of category cat.
func (r *Registry) IsToleratedLoss(h Handoff, cat Category, l LossClass) bool {
	return r.BudgetFor(h, cat).Tolerates(l)
}

// MustSurviveTo reports whether the shape is required to be present at the
// given stage.
func (r *Registry) MustSurviveTo(shapeID string, s Stage) (bool, error) {
	d, err := r.Shape(shapeID)
	if err != nil {
		return false, err
	}
	si, ti := StageIndex(s), StageIndex(d.MustReachStage)
	if si < 0 {
		return false, fmt.Errorf("unknown stage %q", s)
	}
	return si <= ti, nil
}

// RequiredStages returns the ordered stages the shape must reach, from the
// first pipeline stage through its must-reach stage.
func (r *Registry) RequiredStages(d Declaration) []Stage {
	ti := StageIndex(d.MustReachStage)
	if ti < 0 {
		ti = len(Stages()) - 1
	}
	return Stages()[:ti+1]
}

// Validate checks configuration integrity: every declaration must carry
// non-empty required attributes and a non-empty forbidden-loss list, and an
// INVARIANT-kind shape must forbid every loss class. Violations are surfaced,
// never auto-corrected.
func (r *Registry) Validate() error {
	for _, id := range r.ordered {
		d := r.shapes[id]
		if len(d.RequiredAttributes) == 0 {
			return fmt.Errorf("shape %s: empty required attribute list", id)
		}
		if len(d.ForbiddenLosses) == 0 {
			return fmt.Errorf("shape %s: empty forbidden-loss list", id)
		}
		if StageIndex(d.MustReachStage) < 0 {
			return fmt.Errorf("shape %s: unknown must-reach stage %q", id, d.MustReachStage)
		}
		if d.Kind == KindInvariant {
			for _, l := range AllLossClasses() {
				if !d.Forbids(l) {
					return fmt.Errorf("shape %s: invariant does not forbid %s", id, l)
				}
			}
		}
	}
	return nil
}
