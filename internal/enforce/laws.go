package enforce

import "ricp/internal/shape"

// =============================================================================
// TIER LAWS
// =============================================================================

// TierLaw binds a criticality tier to its survival threshold and the loss
// classes the tier itself tolerates. Laws are compiled constants: there is
// no API, flag, or file that changes them at runtime.
type TierLaw struct {
	Tier            shape.Criticality
	MinRSR          float64
	ToleratedLosses []shape.LossClass
}

// Tolerates reports whether the law itself tolerates the loss class. A loss
// must also clear the handoff budget matrix to count as tolerated overall.
func (l TierLaw) Tolerates(class shape.LossClass) bool {
	for _, c := range l.ToleratedLosses {
		if c == class {
			return true
		}
	}
	return false
}

var tierLaws = map[shape.Criticality]TierLaw{
	// Zero tolerance: perfect survival, no loss class is acceptable.
	shape.CriticalityFoundational: {
		Tier:   shape.CriticalityFoundational,
		MinRSR: 1.0,
	},
	// Near-perfect survival; truncation is the only tolerated degradation.
	shape.CriticalityInteractive: {
		Tier:            shape.CriticalityInteractive,
		MinRSR:          0.95,
		ToleratedLosses: []shape.LossClass{shape.LossTruncation},
	},
	// Degradation is acceptable as long as the shape is not erased outright
	// or structurally misread.
	shape.CriticalityEnhancement: {
		Tier:   shape.CriticalityEnhancement,
		MinRSR: 0.70,
		ToleratedLosses: []shape.LossClass{
			shape.LossPartialOmission,
			shape.LossTruncation,
			shape.LossSummaryCollapse,
			shape.LossSemanticTransformation,
			shape.LossDependencySkip,
			shape.LossOrderingLoss,
		},
	},
}

// LawFor returns the compiled law for a tier. Unknown tiers fall back to the
// foundational law: failing closed beats guessing.
func LawFor(tier shape.Criticality) TierLaw {
	if law, ok := tierLaws[tier]; ok {
		return law
	}
	return tierLaws[shape.CriticalityFoundational]
}

// TierOrder returns tiers from most to least critical. Aggregation and
// precedence both walk this order.
func TierOrder() []shape.Criticality {
	return []shape.Criticality{
		shape.CriticalityFoundational,
		shape.CriticalityInteractive,
		shape.CriticalityEnhancement,
	}
}
