package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// #region catalog
// Catalog is the frozen, validated form of the tables. Accessors return copies.
type Catalog struct {
	categories map[Category]CategoryInfo
	behaviors  map[string]Behavior
	patterns   map[string]PatternDefinition
	visual     map[string]struct{}

	behaviorOrder []string
	patternOrder  []string
}

// Load validates the tables and returns an immutable catalog. Any inconsistency
// aborts construction.
func Load(categories []CategoryInfo, behaviors []Behavior, patterns []PatternDefinition) (*Catalog, error) {
	c := &Catalog{
		categories: make(map[Category]CategoryInfo, len(categories)),
		behaviors:  make(map[string]Behavior, len(behaviors)),
		patterns:   make(map[string]PatternDefinition, len(patterns)),
		visual:     make(map[string]struct{}),
	}

	for _, ci := range categories {
		if _, dup := c.categories[ci.Code]; dup {
			return nil, fmt.Errorf("duplicate category %s", ci.Code)
		}
		c.categories[ci.Code] = ci
	}
	for _, fam := range VisualFamilies {
		for _, lvl := range []string{"LOW", "MED", "HIGH"} {
			c.visual[fam+"_"+lvl] = struct{}{}
		}
	}

	for _, b := range behaviors {
		if err := c.addBehavior(b); err != nil {
			return nil, err
		}
	}
	for _, b := range c.behaviors {
		if b.Contradicts == "" {
			continue
		}
		if _, ok := c.behaviors[b.Contradicts]; !ok {
			return nil, &ReferenceError{Owner: b.Code, Ref: b.Contradicts, Err: ErrUnknownBehaviorReference}
		}
	}
	for _, p := range patterns {
		if err := c.addPattern(p); err != nil {
			return nil, err
		}
	}

	sort.Strings(c.behaviorOrder)
	sort.Slice(c.patternOrder, func(i, j int) bool {
		pi, pj := c.patterns[c.patternOrder[i]], c.patterns[c.patternOrder[j]]
		if KindRank[pi.Kind] != KindRank[pj.Kind] {
			return KindRank[pi.Kind] < KindRank[pj.Kind]
		}
		return pi.Code < pj.Code
	})
	return c, nil
}

// Default loads the built-in tables. They are covered by tests, so a failure is a programming error.
func Default() *Catalog {
	c, err := Load(DefaultCategories, DefaultBehaviors, DefaultPatterns)
	if err != nil {
		panic(fmt.Sprintf("default catalog: %v", err))
	}
	return c
}

// #endregion catalog

// #region validation

func (c *Catalog) addBehavior(b Behavior) error {
	if b.Code == "" {
		return fmt.Errorf("behavior with empty code")
	}
	if _, dup := c.behaviors[b.Code]; dup {
		return fmt.Errorf("duplicate behavior %s", b.Code)
	}
	if _, ok := c.categories[b.Category]; !ok {
		return &ReferenceError{Owner: b.Code, Ref: string(b.Category), Err: ErrUnknownSignalCategory}
	}
	if b.Zone != ZoneGlobal && b.Zone != ZoneLast15Min {
		return fmt.Errorf("behavior %s: invalid zone %q", b.Code, b.Zone)
	}
	if len(b.Rule) == 0 {
		return fmt.Errorf("behavior %s: empty activation rule", b.Code)
	}
	seen := make(map[string]struct{}, len(b.Rule))
	for _, rs := range b.Rule {
		if _, ok := c.categories[rs.Category]; !ok {
			return &ReferenceError{Owner: b.Code, Ref: string(rs.Category), Err: ErrUnknownSignalCategory}
		}
		key := string(rs.Category) + "/" + rs.Code
		if _, dup := seen[key]; dup {
			return fmt.Errorf("behavior %s: duplicate rule signal %s", b.Code, key)
		}
		seen[key] = struct{}{}
	}
	b.Rule = append([]RuleSignal(nil), b.Rule...)
	c.behaviors[b.Code] = b
	c.behaviorOrder = append(c.behaviorOrder, b.Code)
	return nil
}

func (c *Catalog) addPattern(p PatternDefinition) error {
	if p.Code == "" {
		return fmt.Errorf("pattern with empty code")
	}
	if _, dup := c.patterns[p.Code]; dup {
		return fmt.Errorf("duplicate pattern %s", p.Code)
	}
	if _, ok := KindRank[p.Kind]; !ok {
		return fmt.Errorf("pattern %s: invalid kind %q", p.Code, p.Kind)
	}
	var behaviors, visuals int
	for _, code := range p.Required {
		switch {
		case c.hasBehavior(code):
			behaviors++
		case c.IsVisualCode(code):
			visuals++
		default:
			return &ReferenceError{Owner: p.Code, Ref: code, Err: ErrUnknownBehaviorReference}
		}
	}
	switch p.Kind {
	case KindDouble:
		if behaviors != 2 || visuals != 0 {
			return fmt.Errorf("pattern %s: double needs exactly 2 behaviors", p.Code)
		}
	case KindTriple:
		if behaviors != 3 || visuals != 0 {
			return fmt.Errorf("pattern %s: triple needs exactly 3 behaviors", p.Code)
		}
	case KindVisual:
		if visuals == 0 {
			return fmt.Errorf("pattern %s: visual pattern needs a visual code", p.Code)
		}
	}
	p.Required = append([]string(nil), p.Required...)
	c.patterns[p.Code] = p
	c.patternOrder = append(c.patternOrder, p.Code)
	return nil
}

func (c *Catalog) hasBehavior(code string) bool {
	_, ok := c.behaviors[code]
	return ok
}

// #endregion validation

// #region accessors

// Category looks up a category row.
func (c *Catalog) Category(code Category) (CategoryInfo, bool) {
	ci, ok := c.categories[code]
	return ci, ok
}

// Behavior returns a copy of a behavior row.
func (c *Catalog) Behavior(code string) (Behavior, bool) {
	b, ok := c.behaviors[code]
	if !ok {
		return Behavior{}, false
	}
	b.Rule = append([]RuleSignal(nil), b.Rule...)
	return b, true
}

// Behaviors returns every behavior ordered by code.
func (c *Catalog) Behaviors() []Behavior {
	out := make([]Behavior, 0, len(c.behaviorOrder))
	for _, code := range c.behaviorOrder {
		b, _ := c.Behavior(code)
		out = append(out, b)
	}
	return out
}

// Patterns returns every pattern ordered by kind then code.
func (c *Catalog) Patterns() []PatternDefinition {
	out := make([]PatternDefinition, 0, len(c.patternOrder))
	for _, code := range c.patternOrder {
		p := c.patterns[code]
		p.Required = append([]string(nil), p.Required...)
		out = append(out, p)
	}
	return out
}

// Pattern returns a copy of a pattern row.
func (c *Catalog) Pattern(code string) (PatternDefinition, bool) {
	p, ok := c.patterns[code]
	if !ok {
		return PatternDefinition{}, false
	}
	p.Required = append([]string(nil), p.Required...)
	return p, true
}

// IsPatternCode reports whether code names a catalog pattern.
func (c *Catalog) IsPatternCode(code string) bool {
	_, ok := c.patterns[code]
	return ok
}

// IsVisualCode reports whether code is a discretized visual presence code.
func (c *Catalog) IsVisualCode(code string) bool {
	_, ok := c.visual[code]
	return ok
}

// #endregion accessors

// #region visual-discretization

// VisualLevel maps a [0,1] value to LOW, MED or HIGH. Out-of-range values are clamped.
func VisualLevel(value float64) string {
	switch {
	case value <= VisualLowMax:
		return "LOW"
	case value <= VisualMedMax:
		return "MED"
	default:
		return "HIGH"
	}
}

// PresenceCode turns a visual signal into the code the matcher sees.
// Codes already carrying a level suffix pass through unchanged.
func (c *Catalog) PresenceCode(code string, value float64) string {
	if c.IsVisualCode(code) {
		return code
	}
	return strings.ToUpper(code) + "_" + VisualLevel(value)
}

// #endregion visual-discretization

// #region file-loading

// fileTables is the YAML shape of a catalog override file.
type fileTables struct {
	Categories []CategoryInfo      `koanf:"categories"`
	Behaviors  []Behavior          `koanf:"behaviors"`
	Patterns   []PatternDefinition `koanf:"patterns"`
}

// LoadFile reads a YAML catalog. Sections left out fall back to the built-in tables.
func LoadFile(path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return LoadYAML(content)
}

// LoadYAML parses catalog tables from YAML bytes.
func LoadYAML(content []byte) (*Catalog, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	var t fileTables
	if err := k.Unmarshal("", &t); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}
	if len(t.Categories) == 0 {
		t.Categories = DefaultCategories
	}
	if len(t.Behaviors) == 0 {
		t.Behaviors = DefaultBehaviors
	}
	if len(t.Patterns) == 0 {
		t.Patterns = DefaultPatterns
	}
	return Load(t.Categories, t.Behaviors, t.Patterns)
}

// #endregion file-loading
