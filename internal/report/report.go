// Package report renders one run's full outcome as Markdown or JSON. The
// formatters are pure: they read the aggregate, never recompute policy.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"ricp/internal/counterfactual"
	"ricp/internal/enforce"
	"ricp/internal/fingerprint"
	"ricp/internal/mortality"
	"ricp/internal/repair"
	"ricp/internal/tte"
)

// RunReport aggregates everything one run produced.
type RunReport struct {
	RunID            string                         `json:"run_id"`
	GeneratedAt      time.Time                      `json:"generated_at"`
	Decision         *enforce.Decision              `json:"decision"`
	Mortality        *mortality.Analysis            `json:"mortality,omitempty"`
	Fingerprints     []*fingerprint.Fingerprint     `json:"fingerprints,omitempty"`
	PredictiveBlocks []*fingerprint.PredictiveBlock `json:"predictive_blocks,omitempty"`

	// PreemptivelyBlocked is set when the firewall vetoed execution before
	// enforcement ran. The decision is still computed and reported.
	PreemptivelyBlocked bool `json:"preemptively_blocked"`

	Directives []*repair.Directive     `json:"directives,omitempty"`
	CutSets    []counterfactual.CutSet `json:"cut_sets,omitempty"`
}

// JSON renders the report for machine consumers.
func (r *RunReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Markdown renders the human-facing digest.
func (r *RunReport) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "Generated %s\n\n", r.GeneratedAt.Format(time.RFC3339))

	if r.PreemptivelyBlocked {
		fmt.Fprintf(&b, "> **BLOCK_PREEMPTIVELY** — a handoff transformation matched a fingerprint that previously caused loss. Execution was vetoed before enforcement.\n\n")
	}

	if d := r.Decision; d != nil {
		fmt.Fprintf(&b, "## Decision\n\n")
		fmt.Fprintf(&b, "- **Action:** %s\n", d.Action)
		fmt.Fprintf(&b, "- **Global RSR:** %.2f\n", d.GlobalRSR)
		fmt.Fprintf(&b, "- **Canonical allowed:** %t\n", d.CanonicalAllowed)
		fmt.Fprintf(&b, "- **Wire execution:** %s\n", allowed(d.IsWireExecutionAllowed()))
		fmt.Fprintf(&b, "- **Pixel execution:** %s\n\n", allowed(d.IsPixelExecutionAllowed()))

		writeTiers(&b, d)
		writeShapes(&b, d)
		writeTracks(&b, d.Tracks)
	}

	writeBlocks(&b, r.PredictiveBlocks)
	writeDirectives(&b, r.Directives)
	writeMortality(&b, r.Mortality)
	writeCutSets(&b, r.CutSets)

	return b.String()
}

func allowed(ok bool) string {
	if ok {
		return "allowed"
	}
	return "blocked"
}

func writeTiers(b *strings.Builder, d *enforce.Decision) {
	fmt.Fprintf(b, "### Tier results\n\n")
	fmt.Fprintf(b, "| Tier | Threshold | Shapes | Violations | Passed |\n")
	fmt.Fprintf(b, "|------|-----------|--------|------------|--------|\n")
	for _, t := range d.Tiers {
		fmt.Fprintf(b, "| %s | %.2f | %d | %d | %t |\n",
			t.Tier, t.Threshold, t.Evaluated, len(t.Violations), t.Passed)
	}
	fmt.Fprintln(b)

	var violations []enforce.Violation
	for _, t := range d.Tiers {
		violations = append(violations, t.Violations...)
	}
	if len(violations) > 0 {
		fmt.Fprintf(b, "### Violations\n\n")
		for _, v := range violations {
			fmt.Fprintf(b, "- `%s` %s: %s\n", v.ShapeID, v.Kind, v.Detail)
		}
		fmt.Fprintln(b)
	}
}

func writeShapes(b *strings.Builder, d *enforce.Decision) {
	if len(d.Results) == 0 {
		return
	}
	fmt.Fprintf(b, "### Shape survival\n\n")
	fmt.Fprintf(b, "| Shape | Tier | RSR | Threshold | Met |\n")
	fmt.Fprintf(b, "|-------|------|-----|-----------|-----|\n")
	for _, res := range d.Results {
		fmt.Fprintf(b, "| %s | %s | %.2f | %.2f | %t |\n",
			res.ShapeID, res.Tier, res.RSR, res.Threshold, res.Met)
	}
	fmt.Fprintln(b)
}

func writeTracks(b *strings.Builder, tracks []*tte.Track) {
	if len(tracks) == 0 {
		return
	}
	fmt.Fprintf(b, "### Execution tracks\n\n")
	for _, t := range tracks {
		line := fmt.Sprintf("- **%s** `%s`: %s", t.Kind, t.ID, t.Status())
		if t.Directive != nil {
			line += fmt.Sprintf(" (repairing %s)", t.Directive.ShapeID)
		}
		fmt.Fprintln(b, line)
	}
	fmt.Fprintln(b)
}

func writeBlocks(b *strings.Builder, blocks []*fingerprint.PredictiveBlock) {
	if len(blocks) == 0 {
		return
	}
	fmt.Fprintf(b, "## Predictive firewall\n\n")
	for _, blk := range blocks {
		fmt.Fprintf(b, "- **%s** at %s: %s\n", blk.Decision, blk.Handoff, blk.Reason)
	}
	fmt.Fprintln(b)
}

func writeDirectives(b *strings.Builder, directives []*repair.Directive) {
	if len(directives) == 0 {
		return
	}
	sorted := append([]*repair.Directive(nil), directives...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ShapeID < sorted[j].ShapeID })

	fmt.Fprintf(b, "## Repair directives (advisory)\n\n")
	for _, d := range sorted {
		fmt.Fprintf(b, "### %s — %s\n\n", d.ShapeID, d.Type)
		fmt.Fprintf(b, "- **Location:** %s stage\n", d.Location)
		fmt.Fprintf(b, "- **Change:** %s\n", d.StructuralChange)
		fmt.Fprintf(b, "- **Rationale:** %s\n\n", d.Rationale)
	}
}

func writeMortality(b *strings.Builder, a *mortality.Analysis) {
	if a == nil || a.TotalShapes == 0 {
		return
	}
	fmt.Fprintf(b, "## Mortality\n\n")
	for _, status := range []mortality.Status{
		mortality.StatusHealthy, mortality.StatusFlaky,
		mortality.StatusDegrading, mortality.StatusSystemicallyBroken,
	} {
		if n := a.CountsByStatus[status]; n > 0 {
			fmt.Fprintf(b, "- %s: %d\n", status, n)
		}
	}
	fmt.Fprintln(b)

	if len(a.MostVulnerable) > 0 {
		fmt.Fprintf(b, "### Most vulnerable shapes\n\n")
		fmt.Fprintf(b, "| Shape | Overall rate | Status | Trend |\n")
		fmt.Fprintf(b, "|-------|--------------|--------|-------|\n")
		for _, rec := range a.MostVulnerable {
			fmt.Fprintf(b, "| %s | %.2f | %s | %s |\n",
				rec.ShapeID, rec.OverallRate, rec.Classification, rec.Trend)
		}
		fmt.Fprintln(b)
	}
	if len(a.MostDangerous) > 0 {
		fmt.Fprintf(b, "### Most dangerous handoffs\n\n")
		for _, h := range a.MostDangerous {
			fmt.Fprintf(b, "- %s: %d deaths\n", h.Handoff, h.Deaths)
		}
		fmt.Fprintln(b)
	}
}

func writeCutSets(b *strings.Builder, sets []counterfactual.CutSet) {
	if len(sets) == 0 {
		return
	}
	fmt.Fprintf(b, "## Minimal counterfactual cut sets\n\n")
	for i, s := range sets {
		names := make([]string, 0, len(s.Scenarios))
		for _, k := range s.Scenarios {
			names = append(names, string(k))
		}
		fmt.Fprintf(b, "%d. {%s} — projected RSR %.2f (gain %+.2f), replay-verified\n",
			i+1, strings.Join(names, ", "), s.ProjectedGlobalRSR, s.Gain)
	}
	fmt.Fprintln(b)
}
