package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogLoads(t *testing.T) {
	c := Default()

	assert.Len(t, c.Behaviors(), len(DefaultBehaviors))
	assert.Len(t, c.Patterns(), len(DefaultPatterns))

	b, ok := c.Behavior("STB_01")
	require.True(t, ok)
	assert.Equal(t, ZoneLast15Min, b.Zone)
	assert.Len(t, b.Rule, 3)
}

func TestPatternsOrderedByKindThenCode(t *testing.T) {
	ps := Default().Patterns()

	assert.Equal(t, "PTN_03", ps[0].Code)
	assert.Equal(t, "PTN_07", ps[1].Code)
	assert.Equal(t, "PTN_01", ps[2].Code)
	assert.Equal(t, "PTN_VIS_06", ps[len(ps)-1].Code)
	for i := 1; i < len(ps); i++ {
		if ps[i-1].Kind == ps[i].Kind {
			assert.Less(t, ps[i-1].Code, ps[i].Code)
		} else {
			assert.Less(t, KindRank[ps[i-1].Kind], KindRank[ps[i].Kind])
		}
	}
}

func TestLoadRejectsUnknownBehaviorReference(t *testing.T) {
	patterns := append([]PatternDefinition(nil), DefaultPatterns...)
	patterns = append(patterns, PatternDefinition{Code: "PTN_99", Kind: KindDouble, Required: []string{"STB_01", "XYZ_09"}})

	_, err := Load(DefaultCategories, DefaultBehaviors, patterns)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownBehaviorReference))

	var re *ReferenceError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "PTN_99", re.Owner)
	assert.Equal(t, "XYZ_09", re.Ref)
}

func TestLoadRejectsUnknownSignalCategory(t *testing.T) {
	behaviors := []Behavior{{
		Code: "TMP_01", Category: Stability, Zone: ZoneGlobal,
		Rule: []RuleSignal{{Category: "WTH", Code: "rain", Threshold: 0.5}},
	}}

	_, err := Load(DefaultCategories, behaviors, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownSignalCategory))
}

func TestLoadRejectsMalformedRows(t *testing.T) {
	cases := map[string]struct {
		behaviors []Behavior
		patterns  []PatternDefinition
	}{
		"duplicate behavior": {
			behaviors: []Behavior{DefaultBehaviors[0], DefaultBehaviors[0]},
		},
		"bad zone": {
			behaviors: []Behavior{{Code: "B", Category: Stability, Zone: "halftime", Rule: []RuleSignal{{Stability, "x", 0.5}}}},
		},
		"empty rule": {
			behaviors: []Behavior{{Code: "B", Category: Stability, Zone: ZoneGlobal}},
		},
		"double with three behaviors": {
			behaviors: DefaultBehaviors,
			patterns:  []PatternDefinition{{Code: "P", Kind: KindDouble, Required: []string{"STB_01", "PSY_01", "INT_02"}}},
		},
		"visual without visual code": {
			behaviors: DefaultBehaviors,
			patterns:  []PatternDefinition{{Code: "P", Kind: KindVisual, Required: []string{"STB_01"}}},
		},
		"unknown contradiction": {
			behaviors: []Behavior{{Code: "B", Category: Stability, Zone: ZoneGlobal, Contradicts: "NOPE", Rule: []RuleSignal{{Stability, "x", 0.5}}}},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(DefaultCategories, tc.behaviors, tc.patterns)
			assert.Error(t, err)
		})
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	c := Default()

	b, _ := c.Behavior("INT_01")
	b.Rule[0].Threshold = 99

	again, _ := c.Behavior("INT_01")
	assert.Equal(t, 0.6, again.Rule[0].Threshold)

	p, _ := c.Pattern("PTN_01")
	p.Required[0] = "mutated"
	again2, _ := c.Pattern("PTN_01")
	assert.Equal(t, "STB_01", again2.Required[0])
}

func TestPresenceCode(t *testing.T) {
	c := Default()

	assert.Equal(t, "VIS_PRESS_HIGH", c.PresenceCode("VIS_PRESS", 0.85))
	assert.Equal(t, "VIS_PRESS_MED", c.PresenceCode("VIS_PRESS", 0.7))
	assert.Equal(t, "VIS_CLUSTER_LOW", c.PresenceCode("vis_cluster", 0.3))
	assert.Equal(t, "VIS_FLOW_LOW", c.PresenceCode("VIS_FLOW_LOW", 0.9))
	assert.True(t, c.IsVisualCode("VIS_FLOW_MED"))
	assert.False(t, c.IsVisualCode("VIS_PRESS"))
}

func TestLoadFileOverridesPatterns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := []byte(`
patterns:
  - code: PTN_X1
    name: Custom
    kind: double
    required: [STB_01, PSY_01]
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, c.Patterns(), 1)
	assert.Equal(t, "PTN_X1", c.Patterns()[0].Code)
	assert.Len(t, c.Behaviors(), len(DefaultBehaviors))
}

func TestLoadYAMLRejectsUnknownReference(t *testing.T) {
	_, err := LoadYAML([]byte(`
patterns:
  - code: PTN_X1
    kind: visual
    required: [STB_01, VIS_SMOKE_HIGH]
`))
	assert.True(t, errors.Is(err, ErrUnknownBehaviorReference))
}
