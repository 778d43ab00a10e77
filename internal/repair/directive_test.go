package repair

import (
	"testing"

	"ricp/internal/shape"
	"ricp/internal/trace"
)

func declOf(t *testing.T, id string) shape.Declaration {
	t.Helper()
	d, err := shape.DefaultRegistry().Shape(id)
	if err != nil {
		t.Fatalf("unknown shape %s: %v", id, err)
	}
	return d
}

func TestDirectivesAreAdvisoryOnly(t *testing.T) {
	t.Parallel()

	g := NewGenerator(shape.DefaultRegistry())
	d := g.ForShape(declOf(t, "PAGINATION_CAPABILITY"), &trace.ShapeTrace{
		ShapeID: "PAGINATION_CAPABILITY",
		Losses: []trace.HandoffLoss{{
			Handoff: shape.HandoffWirePixel,
			Class:   shape.LossPartialOmission,
		}},
	})

	if !d.ReadOnly {
		t.Error("directive not readonly")
	}
	if d.AutomaticExecution {
		t.Error("directive marked for automatic execution")
	}
	if d.ID == "" || d.Rationale == "" || d.StructuralChange == "" {
		t.Error("directive missing id or human-readable content")
	}
}

func TestRepairTypeMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		shapeID string
		class   shape.LossClass
		want    Type
	}{
		{"invariant always enforced", "NAVIGATION_INVARIANT", shape.LossTruncation, EnforceInvariant},
		{"total omission", "PAGINATION_CAPABILITY", shape.LossTotalOmission, PreventOmission},
		{"partial omission", "PAGINATION_CAPABILITY", shape.LossPartialOmission, PreventOmission},
		{"collapse", "PAGINATION_CAPABILITY", shape.LossSummaryCollapse, PreserveStructure},
		{"dependency skip", "FORM_SUBMISSION_CAPABILITY", shape.LossDependencySkip, ProtectAttribute},
		{"everything else", "THEME_CAPABILITY", shape.LossOrderingLoss, AddExtractionSignal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewGenerator(shape.DefaultRegistry())
			d := g.ForShape(declOf(t, tt.shapeID), &trace.ShapeTrace{
				ShapeID: tt.shapeID,
				Losses: []trace.HandoffLoss{{
					Handoff: shape.HandoffScaffoldWire,
					Class:   tt.class,
				}},
			})
			if d.Type != tt.want {
				t.Errorf("repair type = %s, want %s", d.Type, tt.want)
			}
		})
	}
}

func TestLocalizationUsesFirstLoss(t *testing.T) {
	t.Parallel()

	g := NewGenerator(shape.DefaultRegistry())
	d := g.ForShape(declOf(t, "PAGINATION_CAPABILITY"), &trace.ShapeTrace{
		ShapeID: "PAGINATION_CAPABILITY",
		Losses: []trace.HandoffLoss{
			{Handoff: shape.HandoffWirePixel, Class: shape.LossPartialOmission},
			{Handoff: shape.HandoffSemanticArchitecture, Class: shape.LossTruncation, LostAttributes: []string{"cursor_field"}},
		},
	})

	if d.Evidence.Handoff != shape.HandoffSemanticArchitecture {
		t.Errorf("evidence handoff = %s, want the earliest handoff in pipeline order", d.Evidence.Handoff)
	}
	if d.Location != shape.StageArchitecture {
		t.Errorf("location = %s, want the stage where loss surfaced", d.Location)
	}
}

func TestCollapseLocatesAtSourceStage(t *testing.T) {
	t.Parallel()

	g := NewGenerator(shape.DefaultRegistry())
	d := g.ForShape(declOf(t, "PAGINATION_CAPABILITY"), &trace.ShapeTrace{
		ShapeID: "PAGINATION_CAPABILITY",
		Losses: []trace.HandoffLoss{{
			Handoff: shape.HandoffScaffoldWire,
			Class:   shape.LossSummaryCollapse,
		}},
	})

	if d.Location != shape.StageScaffold {
		t.Errorf("collapse location = %s, want the handoff's source stage", d.Location)
	}
}

func TestFinalStageShortfallWithoutHandoffLoss(t *testing.T) {
	t.Parallel()

	decl := declOf(t, "PAGINATION_CAPABILITY")
	g := NewGenerator(shape.DefaultRegistry())
	d := g.ForShape(decl, &trace.ShapeTrace{
		ShapeID: "PAGINATION_CAPABILITY",
		Evidence: []trace.StageEvidence{{
			Stage:           shape.StagePixel,
			Present:         true,
			AttributesFound: []string{"page_size", "cursor_field", "next_control", "prev_control"},
		}},
	})

	if d.Location != shape.StagePixel {
		t.Errorf("location = %s, want must-reach stage", d.Location)
	}
	if len(d.Evidence.LostAttributes) != 1 || d.Evidence.LostAttributes[0] != "total_indicator" {
		t.Errorf("lost attributes = %v", d.Evidence.LostAttributes)
	}
	if d.Type != PreventOmission {
		t.Errorf("repair type = %s", d.Type)
	}
}
