package shape

// The default catalog and budget matrix are code-defined and versioned with
// the binary. Changing a threshold or budget means shipping a new build;
// there is intentionally no loader for these from disk or environment.

// DefaultCatalog returns the built-in shape declarations.
func DefaultCatalog() []Declaration {
	return []Declaration{
		{
			ID:          "STATIC_DISPLAY_CAPABILITY",
			Name:        "Static content display",
			Category:    CategoryStateless,
			Kind:        KindCapability,
			Criticality: CriticalityFoundational,
			RequiredAttributes: []string{
				"content_source", "layout_slot", "render_target", "visibility_rule",
			},
			MustReachStage:  StagePixel,
			ForbiddenLosses: AllLossClasses(),
		},
		{
			ID:          "NAVIGATION_INVARIANT",
			Name:        "Every view reachable from the navigation graph",
			Category:    CategoryControl,
			Kind:        KindInvariant,
			Criticality: CriticalityFoundational,
			RequiredAttributes: []string{
				"route_table", "entry_point", "back_path",
			},
			MustReachStage:  StagePixel,
			ForbiddenLosses: AllLossClasses(),
		},
		{
			ID:          "DATA_INTEGRITY_INVARIANT",
			Name:        "Persisted state round-trips without field loss",
			Category:    CategoryStateful,
			Kind:        KindInvariant,
			Criticality: CriticalityFoundational,
			RequiredAttributes: []string{
				"schema_fields", "write_path", "read_path", "conflict_rule",
			},
			MustReachStage:  StageWire,
			ForbiddenLosses: AllLossClasses(),
		},
		{
			ID:          "PAGINATION_CAPABILITY",
			Name:        "List pagination",
			Category:    CategoryStateful,
			Kind:        KindCapability,
			Criticality: CriticalityInteractive,
			RequiredAttributes: []string{
				"page_size", "cursor_field", "next_control", "prev_control", "total_indicator",
			},
			OptionalAttributes: []string{"jump_to_page"},
			MustReachStage:     StagePixel,
			ForbiddenLosses:    []LossClass{LossTotalOmission, LossPartialOmission, LossSummaryCollapse, LossSchemaMismatch},
		},
		{
			ID:          "FORM_SUBMISSION_CAPABILITY",
			Name:        "Validated form submission",
			Category:    CategoryStateful,
			Kind:        KindCapability,
			Criticality: CriticalityInteractive,
			RequiredAttributes: []string{
				"field_schema", "validation_rules", "submit_action", "error_surface",
			},
			OptionalAttributes: []string{"draft_autosave"},
			MustReachStage:     StagePixel,
			ForbiddenLosses:    []LossClass{LossTotalOmission, LossPartialOmission, LossDependencySkip, LossSchemaMismatch},
		},
		{
			ID:          "REALTIME_SYNC_CAPABILITY",
			Name:        "Live data synchronization",
			Category:    CategoryStateful,
			Kind:        KindCapability,
			Criticality: CriticalityInteractive,
			RequiredAttributes: []string{
				"subscription_source", "update_channel", "reconnect_rule", "staleness_indicator",
			},
			MustReachStage:  StageWire,
			ForbiddenLosses: []LossClass{LossTotalOmission, LossPartialOmission, LossDependencySkip},
		},
		{
			ID:          "SESSION_CONTINUITY_CAPABILITY",
			Name:        "Session survives reload",
			Category:    CategoryControl,
			Kind:        KindCapability,
			Criticality: CriticalityInteractive,
			RequiredAttributes: []string{
				"session_token", "restore_path", "expiry_rule",
			},
			MustReachStage:  StageWire,
			ForbiddenLosses: []LossClass{LossTotalOmission, LossPartialOmission, LossSchemaMismatch},
		},
		{
			ID:          "FILTER_SORT_CAPABILITY",
			Name:        "List filtering and sorting",
			Category:    CategoryStateless,
			Kind:        KindCapability,
			Criticality: CriticalityEnhancement,
			RequiredAttributes: []string{
				"filter_fields", "sort_keys", "default_order",
			},
			MustReachStage:  StagePixel,
			ForbiddenLosses: []LossClass{LossTotalOmission},
		},
		{
			ID:          "THEME_CAPABILITY",
			Name:        "Theme switching",
			Category:    CategoryStateless,
			Kind:        KindCapability,
			Criticality: CriticalityEnhancement,
			RequiredAttributes: []string{
				"theme_tokens", "toggle_control",
			},
			OptionalAttributes: []string{"system_preference"},
			MustReachStage:     StagePixel,
			ForbiddenLosses:    []LossClass{LossTotalOmission},
		},
		{
			ID:          "KEYBOARD_SHORTCUT_CAPABILITY",
			Name:        "Keyboard shortcuts",
			Category:    CategoryControl,
			Kind:        KindCapability,
			Criticality: CriticalityEnhancement,
			RequiredAttributes: []string{
				"binding_table", "conflict_policy",
			},
			MustReachStage:  StageWire,
			ForbiddenLosses: []LossClass{LossTotalOmission},
		},
	}
}

// DefaultBudgetMatrix returns the built-in degradation budget matrix.
// STATEFUL and STATELESS rows are defined per handoff; CONTROL shapes share
// a single zero-tolerance row regardless of handoff. Anything absent resolves
// through the registry's fatal default.
func DefaultBudgetMatrix() map[Handoff]map[Category]Budget {
	zeroTolerance := Budget{
		MaxAttributesDegraded: 0,
		ToleratedLosses:       nil,
		FatalLosses:           AllLossClasses(),
		MinRequiredAttributes: 1,
	}

	m := map[Handoff]map[Category]Budget{
		HandoffIntentSemantic: {
			CategoryStateful: {
				MaxAttributesDegraded: 1,
				ToleratedLosses:       []LossClass{LossTruncation},
				FatalLosses:           []LossClass{LossTotalOmission, LossSummaryCollapse, LossSchemaMismatch},
				MinRequiredAttributes: 2,
			},
			CategoryStateless: {
				MaxAttributesDegraded: 2,
				ToleratedLosses:       []LossClass{LossTruncation, LossOrderingLoss},
				FatalLosses:           []LossClass{LossTotalOmission, LossSchemaMismatch},
				MinRequiredAttributes: 1,
			},
		},
		HandoffSemanticArchitecture: {
			CategoryStateful: {
				MaxAttributesDegraded: 1,
				ToleratedLosses:       []LossClass{LossTruncation},
				FatalLosses:           []LossClass{LossTotalOmission, LossPartialOmission, LossSummaryCollapse, LossSchemaMismatch},
				MinRequiredAttributes: 2,
			},
			CategoryStateless: {
				MaxAttributesDegraded: 2,
				ToleratedLosses:       []LossClass{LossTruncation, LossSemanticTransformation},
				FatalLosses:           []LossClass{LossTotalOmission, LossSchemaMismatch},
				MinRequiredAttributes: 1,
			},
		},
		HandoffArchitectureScaffold: {
			CategoryStateful: {
				MaxAttributesDegraded: 0,
				ToleratedLosses:       []LossClass{LossTruncation},
				FatalLosses:           []LossClass{LossTotalOmission, LossPartialOmission, LossDependencySkip, LossSchemaMismatch},
				MinRequiredAttributes: 2,
			},
			CategoryStateless: {
				MaxAttributesDegraded: 1,
				ToleratedLosses:       []LossClass{LossTruncation, LossOrderingLoss},
				FatalLosses:           []LossClass{LossTotalOmission, LossSchemaMismatch},
				MinRequiredAttributes: 1,
			},
		},
		HandoffScaffoldWire: {
			CategoryStateful: {
				MaxAttributesDegraded: 0,
				ToleratedLosses:       nil,
				FatalLosses:           []LossClass{LossTotalOmission, LossPartialOmission, LossDependencySkip, LossSummaryCollapse, LossSchemaMismatch},
				MinRequiredAttributes: 2,
			},
			CategoryStateless: {
				MaxAttributesDegraded: 1,
				ToleratedLosses:       []LossClass{LossTruncation},
				FatalLosses:           []LossClass{LossTotalOmission, LossSchemaMismatch},
				MinRequiredAttributes: 1,
			},
		},
		HandoffWirePixel: {
			CategoryStateful: {
				MaxAttributesDegraded: 0,
				ToleratedLosses:       nil,
				FatalLosses:           AllLossClasses(),
				MinRequiredAttributes: 2,
			},
			CategoryStateless: {
				MaxAttributesDegraded: 1,
				ToleratedLosses:       []LossClass{LossTruncation},
				FatalLosses:           []LossClass{LossTotalOmission, LossPartialOmission, LossSchemaMismatch},
				MinRequiredAttributes: 1,
			},
		},
	}

	for _, h := range Handoffs() {
		m[h][CategoryControl] = zeroTolerance
	}
	return m
}

// DefaultRegistry builds a registry over the built-in catalog and matrix.
func DefaultRegistry() *Registry {
	return NewRegistry(DefaultCatalog(), DefaultBudgetMatrix())
}
