// Package fingerprint derives content-addressed hashes of each handoff's
// structural transformation and maintains the append-only historical index
// behind the predictive firewall. Hashes are computed from structural fields
// only - shape ids, attribute deltas, summarization markers - never from
// free-text content, so identical transformations always collide.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"ricp/internal/shape"
	"ricp/internal/trace"
)

// hashLen is the truncated hex length of a fingerprint hash.
const hashLen = 16

// Fingerprint is the structural digest of one handoff in one run.
type Fingerprint struct {
	Hash                   string        `json:"hash"`
	Handoff                shape.Handoff `json:"handoff"`
	RunID                  string        `json:"run_id"`
	InputShapes            []string      `json:"input_shapes"`
	OutputShapes           []string      `json:"output_shapes"`
	ShapesLost             []string      `json:"shapes_lost,omitempty"`
	ShapesDegraded         []string      `json:"shapes_degraded,omitempty"`
	LostAttributes         []string      `json:"lost_attributes,omitempty"`
	AddedAttributes        []string      `json:"added_attributes,omitempty"`
	InvariantShapesPresent []string      `json:"invariant_shapes_present,omitempty"`
	SummarizationInvoked   bool          `json:"summarization_invoked"`
	SummarizationRatio     float64       `json:"summarization_ratio,omitempty"`
}

// Collect computes one fingerprint per handoff from the run's traces.
func Collect(runID string, reg *shape.Registry, traces []*trace.ShapeTrace) []*Fingerprint {
	var out []*Fingerprint
	for _, h := range shape.Handoffs() {
		fp := collectHandoff(runID, h, reg, traces)
		if fp != nil {
			out = append(out, fp)
		}
	}
	return out
}

func collectHandoff(runID string, h shape.Handoff, reg *shape.Registry, traces []*trace.ShapeTrace) *Fingerprint {
	fp := &Fingerprint{Handoff: h, RunID: runID}
	observed := false

	for _, tr := range traces {
		srcEv, okSrc := tr.EvidenceAt(h.Source())
		dstEv, okDst := tr.EvidenceAt(h.Target())
		losses := tr.LossesAt(h)
		if !okSrc && !okDst && len(losses) == 0 {
			continue
		}
		observed = true

		if okSrc && srcEv.Present {
			fp.InputShapes = append(fp.InputShapes, tr.ShapeID)
		}
		if okDst && dstEv.Present {
			fp.OutputShapes = append(fp.OutputShapes, tr.ShapeID)
		}

		decl, err := reg.Shape(tr.ShapeID)
		if err == nil && decl.Kind == shape.KindInvariant && okSrc && srcEv.Present {
			fp.InvariantShapesPresent = append(fp.InvariantShapesPresent, tr.ShapeID)
		}

		for _, l := range losses {
			if l.Class == shape.LossTotalOmission {
				fp.ShapesLost = append(fp.ShapesLost, tr.ShapeID)
			} else {
				fp.ShapesDegraded = append(fp.ShapesDegraded, tr.ShapeID)
			}
			fp.LostAttributes = append(fp.LostAttributes, l.LostAttributes...)
			fp.AddedAttributes = append(fp.AddedAttributes, l.AddedAttributes...)
			if l.SummarizationInvoked {
				fp.SummarizationInvoked = true
				if l.SummarizationRatio > fp.SummarizationRatio {
					fp.SummarizationRatio = l.SummarizationRatio
				}
			}
		}
	}

	if !observed {
		return nil
	}

	sortUnique(&fp.InputShapes)
	sortUnique(&fp.OutputShapes)
	sortUnique(&fp.ShapesLost)
	sortUnique(&fp.ShapesDegraded)
	sortUnique(&fp.LostAttributes)
	sortUnique(&fp.AddedAttributes)
	sortUnique(&fp.InvariantShapesPresent)

	fp.Hash = hash(fp)
	return fp
}

// hash digests the sorted structural fields. The run id is deliberately
// excluded: the same transformation in two runs must collide. Every element
// is length-prefixed so ids containing separator characters cannot collide
// across elements or field groups.
func hash(fp *Fingerprint) string {
	var b strings.Builder
	writeElem := func(s string) {
		fmt.Fprintf(&b, "%d:%s", len(s), s)
	}
	writeElem(string(fp.Handoff))
	for _, group := range [][]string{
		fp.InputShapes, fp.OutputShapes,
		fp.ShapesLost, fp.ShapesDegraded,
		fp.LostAttributes, fp.AddedAttributes,
		fp.InvariantShapesPresent,
	} {
		fmt.Fprintf(&b, "#%d", len(group))
		for _, v := range group {
			writeElem(v)
		}
	}
	fmt.Fprintf(&b, "summarized=%t|ratio=%.4f", fp.SummarizationInvoked, fp.SummarizationRatio)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:hashLen]
}

func sortUnique(xs *[]string) {
	s := *xs
	sort.Strings(s)
	out := s[:0]
	var prev string
	for i, v := range s {
		if i > 0 && v == prev {
			continue
		}
		out = append(out, v)
		prev = v
	}
	*xs = out
}
