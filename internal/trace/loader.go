package trace

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ricp/internal/shape"
)

// LoadBundle reads a tracer output bundle from a YAML file.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse trace bundle YAML: %w", err)
	}
	if err := validateBundle(&b); err != nil {
		return nil, fmt.Errorf("invalid trace bundle %s: %w", path, err)
	}
	return &b, nil
}

// validateBundle rejects structurally broken tracer output before any
// component consumes it. It does not second-guess the tracer's findings.
func validateBundle(b *Bundle) error {
	if b.RunID == "" {
		return fmt.Errorf("missing run_id")
	}
	switch b.Gate.Verdict {
	case GatePass, GateFail, GateWarn:
	default:
		return fmt.Errorf("unknown gate verdict %q", b.Gate.Verdict)
	}
	for _, t := range b.Traces {
		if t.ShapeID == "" {
			return fmt.Errorf("trace with empty shape_id")
		}
		for _, e := range t.Evidence {
			if shape.StageIndex(e.Stage) < 0 {
				return fmt.Errorf("shape %s: unknown stage %q", t.ShapeID, e.Stage)
			}
		}
		for _, l := range t.Losses {
			if l.Handoff.Source() == "" {
				return fmt.Errorf("shape %s: unknown handoff %q", t.ShapeID, l.Handoff)
			}
			if !l.Class.Valid() {
				return fmt.Errorf("shape %s: invalid loss class %d", t.ShapeID, int(l.Class))
			}
		}
	}
	return nil
}
