package enforce

import (
	"ricp/internal/shape"
	"ricp/internal/trace"
)

// =============================================================================
// REQUIREMENT SURVIVAL RATE
// =============================================================================

// ComputeRSR measures how much of a shape survived one run. An attribute
// counts as preserved only when every observed required stage carries it; a
// stage with no evidence record contributes nothing either way, but a stage
// where the shape itself is absent fails every attribute. A trace with no
// evidence inside the required range scores zero: silence is not survival.
func ComputeRSR(reg *shape.Registry, decl shape.Declaration, tr *trace.ShapeTrace) RSRResult {
	law := LawFor(decl.Criticality)
	res := RSRResult{
		ShapeID:       decl.ID,
		Tier:          decl.Criticality,
		Threshold:     law.MinRSR,
		RequiredCount: len(decl.RequiredAttributes),
	}
	if res.RequiredCount == 0 {
		res.Met = true
		res.RSR = 1.0
		return res
	}

	observed := 0
	preserved := make(map[string]bool, res.RequiredCount)
	for _, attr := range decl.RequiredAttributes {
		preserved[attr] = true
	}
	for _, stage := range reg.RequiredStages(decl) {
		ev, ok := tr.EvidenceAt(stage)
		if !ok {
			continue
		}
		observed++
		for _, attr := range decl.RequiredAttributes {
			if !ev.Present || !ev.Has(attr) {
				preserved[attr] = false
			}
		}
	}
	if observed == 0 {
		res.RSR = 0
		return res
	}

	for _, ok := range preserved {
		if ok {
			res.PreservedCount++
		}
	}
	res.RSR = float64(res.PreservedCount) / float64(res.RequiredCount)
	res.UntoleratedLosses = untoleratedLosses(reg, decl, law, tr)
	res.Met = res.RSR >= law.MinRSR && len(res.UntoleratedLosses) == 0
	return res
}

// untoleratedLosses returns the losses neither the tier law nor the handoff
// budget matrix tolerates. A loss the shape itself forbids is never
// tolerated, whatever the law or the matrix say.
func untoleratedLosses(reg *shape.Registry, decl shape.Declaration, law TierLaw, tr *trace.ShapeTrace) []trace.HandoffLoss {
	var out []trace.HandoffLoss
	for _, loss := range tr.Losses {
		if decl.Forbids(loss.Class) {
			out = append(out, loss)
			continue
		}
		if !law.Tolerates(loss.Class) {
			out = append(out, loss)
			continue
		}
		if !reg.IsToleratedLoss(loss.Handoff, decl.Category, loss.Class) {
			out = append(out, loss)
		}
	}
	return out
}

// GlobalRSR is the mean survival rate across evaluated shapes. An empty run
// scores 1.0: nothing was at risk, so nothing was lost.
func GlobalRSR(results []RSRResult) float64 {
	if len(results) == 0 {
		return 1.0
	}
	var sum float64
	for _, r := range results {
		sum += r.RSR
	}
	return sum / float64(len(results))
}
