package catalog

// #region categories

// DefaultCategories is the category table.
var DefaultCategories = []CategoryInfo{
	{Code: Stability, Name: "stability"},
	{Code: Intensity, Name: "intensity"},
	{Code: Psychology, Name: "psychology"},
	{Code: Cohesion, Name: "cohesion"},
	{Code: Visual, Name: "visual", Visual: true},
}

// #endregion categories

// #region behaviors

// DefaultBehaviors is the behavior table. Two primary signals at 0.6 and one
// corroborating signal at 0.5 per row.
var DefaultBehaviors = []Behavior{
	{
		Code: "STB_01", Name: "Structural Collapse", Category: Stability,
		Zone: ZoneLast15Min, Contradicts: "STB_02",
		Rule: []RuleSignal{
			{Stability, "low_block_drop", 0.6},
			{Stability, "xg_against_spike", 0.6},
			{Cohesion, "coordination_loss", 0.5},
		},
	},
	{
		Code: "STB_02", Name: "Tactical Lock", Category: Stability,
		Zone: ZoneGlobal, ZoneAgnostic: true, Contradicts: "STB_01",
		Rule: []RuleSignal{
			{Stability, "high_compactness", 0.6},
			{Stability, "successful_low_block", 0.6},
			{Cohesion, "passing_accuracy", 0.5},
		},
	},
	{
		Code: "INT_01", Name: "Pressing Surge", Category: Intensity,
		Zone: ZoneGlobal, ZoneAgnostic: true, Contradicts: "INT_02",
		Rule: []RuleSignal{
			{Intensity, "pressing_wave", 0.6},
			{Intensity, "high_duel_pressure", 0.6},
			{Cohesion, "collective_movement", 0.5},
		},
	},
	{
		Code: "INT_02", Name: "Physical Decline", Category: Intensity,
		Zone: ZoneLast15Min, Contradicts: "INT_01",
		Rule: []RuleSignal{
			{Intensity, "running_distance_drop", 0.6},
			{Intensity, "duel_loss_spike", 0.6},
			{Intensity, "sprint_drop", 0.5},
		},
	},
	{
		Code: "PSY_01", Name: "Active Frustration", Category: Psychology,
		Zone: ZoneLast15Min, Contradicts: "PSY_02",
		Rule: []RuleSignal{
			{Psychology, "fouls_spike", 0.6},
			{Psychology, "protest_pattern", 0.6},
			{Psychology, "card_pressure", 0.5},
		},
	},
	{
		Code: "PSY_02", Name: "Resilience", Category: Psychology,
		Zone: ZoneLast15Min, ZoneAgnostic: true, Contradicts: "PSY_01",
		Rule: []RuleSignal{
			{Psychology, "high_defensive_recovery", 0.6},
			{Psychology, "late_pressing_effort", 0.6},
			{Cohesion, "possession_control", 0.5},
		},
	},
}

// #endregion behaviors

// #region patterns

// DefaultPatterns is the combination table.
var DefaultPatterns = []PatternDefinition{
	// triples
	{Code: "PTN_03", Name: "Complete Disintegration", Kind: KindTriple, Required: []string{"STB_01", "PSY_01", "INT_02"}},
	{Code: "PTN_07", Name: "Total Control", Kind: KindTriple, Required: []string{"STB_02", "INT_01", "PSY_02"}},

	// doubles
	{Code: "PTN_01", Name: "Loss of Control Under Pressure", Kind: KindDouble, Required: []string{"STB_01", "PSY_01"}},
	{Code: "PTN_02", Name: "Fatigue Collapse", Kind: KindDouble, Required: []string{"STB_01", "INT_02"}},
	{Code: "PTN_04", Name: "Active Tactical Dominance", Kind: KindDouble, Required: []string{"STB_02", "INT_01"}},
	{Code: "PTN_05", Name: "Organized Resilience", Kind: KindDouble, Required: []string{"STB_02", "PSY_02"}},
	{Code: "PTN_06", Name: "Mental Pressing", Kind: KindDouble, Required: []string{"INT_01", "PSY_02"}},
	{Code: "PTN_08", Name: "Disordered Aggression", Kind: KindDouble, Required: []string{"INT_01", "PSY_01"}},
	{Code: "PTN_09", Name: "Emotional Decline", Kind: KindDouble, Required: []string{"INT_02", "PSY_01"}},
	{Code: "PTN_10", Name: "Resilience Under Fatigue", Kind: KindDouble, Required: []string{"INT_02", "PSY_02"}},
	{Code: "PTN_11", Name: "Offensive Chaos", Kind: KindDouble, Required: []string{"STB_01", "INT_01"}},
	{Code: "PTN_12", Name: "Late Defensive Lock", Kind: KindDouble, Required: []string{"STB_02", "INT_02"}},

	// stats + vision
	{Code: "PTN_VIS_01", Name: "Defense Under Visual Siege", Kind: KindVisual, Required: []string{"STB_01", "VIS_PRESS_HIGH"}},
	{Code: "PTN_VIS_02", Name: "Visually Concentrated Pressing", Kind: KindVisual, Required: []string{"INT_01", "VIS_CLUSTER_HIGH"}},
	{Code: "PTN_VIS_03", Name: "Visible Spatial Disorganization", Kind: KindVisual, Required: []string{"STB_01", "VIS_CLUSTER_LOW"}},
	{Code: "PTN_VIS_04", Name: "Visual Control of Space", Kind: KindVisual, Required: []string{"STB_02", "VIS_PRESS_LOW"}},
	{Code: "PTN_VIS_05", Name: "Visual Slowdown", Kind: KindVisual, Required: []string{"INT_02", "VIS_FLOW_LOW"}},
	{Code: "PTN_VIS_06", Name: "Complete Defensive Siege", Kind: KindVisual, Required: []string{"STB_01", "INT_02", "VIS_PRESS_HIGH"}},
}

// #endregion patterns

// #region visual

// VisualFamilies are the visual signal codes the vision collaborator produces.
var VisualFamilies = []string{"VIS_CLUSTER", "VIS_PRESS", "VIS_FLOW"}

// Visual discretization bounds: LOW <= 0.3 < MED <= 0.7 < HIGH.
const (
	VisualLowMax = 0.3
	VisualMedMax = 0.7
)

// #endregion visual
