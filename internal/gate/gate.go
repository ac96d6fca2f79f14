package gate

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// #region gate
// Gate rejects records carrying score, result, odds or probability shaped fields.
// It is the single validator used by every constructor that touches persisted or
// reported data.
type Gate struct {
	deny     map[string]struct{}
	exempt   map[string]struct{}
	patterns []*regexp.Regexp
}

// New compiles a gate from config.
func New(cfg Config) (*Gate, error) {
	g := &Gate{
		deny:   make(map[string]struct{}, len(cfg.Denylist)),
		exempt: make(map[string]struct{}, len(cfg.Exempt)),
	}
	for _, name := range cfg.Denylist {
		g.deny[Normalize(name)] = struct{}{}
	}
	for _, name := range cfg.Exempt {
		g.exempt[Normalize(name)] = struct{}{}
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile denylist pattern %q: %w", p, err)
		}
		g.patterns = append(g.patterns, re)
	}
	return g, nil
}

// Default returns a gate built from DefaultConfig.
func Default() *Gate {
	g, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return g
}

// #endregion gate

// #region name-checks

// Inspect returns the violation for a single field name, or nil when it passes.
func (g *Gate) Inspect(path, name string) *Violation {
	norm := Normalize(name)
	if _, ok := g.deny[norm]; ok {
		return &Violation{Kind: ViolationDenylisted, Path: path, Field: name, Reason: "name is denylisted"}
	}
	if _, ok := g.exempt[norm]; ok {
		return nil
	}
	for _, re := range g.patterns {
		if re.MatchString(norm) {
			return &Violation{
				Kind:   ViolationPattern,
				Path:   path,
				Field:  name,
				Reason: fmt.Sprintf("name matches denylist pattern %s", re.String()),
			}
		}
	}
	return nil
}

// CheckName fails closed when name is forbidden.
func (g *Gate) CheckName(path, name string) error {
	if v := g.Inspect(path, name); v != nil {
		return &ForbiddenFieldError{Violations: []Violation{*v}}
	}
	return nil
}

// CheckAllowed rejects any key outside allowed, then runs the denylist over the rest.
func (g *Gate) CheckAllowed(path string, keys []string, allowed map[string]struct{}) error {
	var violations []Violation
	for _, k := range sortedCopy(keys) {
		p := join(path, k)
		if v := g.Inspect(p, k); v != nil {
			violations = append(violations, *v)
			continue
		}
		if _, ok := allowed[k]; !ok {
			violations = append(violations, Violation{
				Kind:   ViolationNotAllowed,
				Path:   p,
				Field:  k,
				Reason: "field is not in the allow-list",
			})
		}
	}
	return asError(violations)
}

// #endregion name-checks

// #region map-scan

// Scan walks a decoded JSON-like value and collects every forbidden key.
// Keys are visited in sorted order so results are deterministic.
func (g *Gate) Scan(path string, v any) []Violation {
	var out []Violation
	g.scan(path, v, &out)
	return out
}

// CheckMap fails closed if Scan finds anything.
func (g *Gate) CheckMap(path string, m map[string]any) error {
	return asError(g.Scan(path, m))
}

func (g *Gate) scan(path string, v any, out *[]Violation) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p := join(path, k)
			if viol := g.Inspect(p, k); viol != nil {
				*out = append(*out, *viol)
			}
			g.scan(p, t[k], out)
		}
	case map[string]float64:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if viol := g.Inspect(join(path, k), k); viol != nil {
				*out = append(*out, *viol)
			}
		}
	case []any:
		for i, item := range t {
			g.scan(fmt.Sprintf("%s[%d]", path, i), item, out)
		}
	}
}

// #endregion map-scan

// #region struct-scan

// CheckStruct walks exported struct fields (by json name), string-keyed maps and
// slices. It guards entity types: a new field named like an outcome fails here
// the first time the entity is built.
func (g *Gate) CheckStruct(path string, v any) error {
	var out []Violation
	g.walk(path, reflect.ValueOf(v), &out)
	return asError(out)
}

func (g *Gate) walk(path string, rv reflect.Value, out *[]Violation) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			if !f.IsExported() {
				continue
			}
			name := fieldName(f)
			if name == "-" {
				continue
			}
			p := path
			if !f.Anonymous {
				p = join(path, name)
				if viol := g.Inspect(p, name); viol != nil {
					*out = append(*out, *viol)
				}
			}
			g.walk(p, rv.Field(i), out)
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, k := range keys {
			p := join(path, k.String())
			if viol := g.Inspect(p, k.String()); viol != nil {
				*out = append(*out, *viol)
			}
			g.walk(p, rv.MapIndex(k), out)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			g.walk(fmt.Sprintf("%s[%d]", path, i), rv.Index(i), out)
		}
	}
}

// #endregion struct-scan

// #region helpers

// Normalize lowercases a field name and maps camelCase, dashes, dots and spaces to snake_case.
func Normalize(name string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(name))
	for i, r := range runes {
		switch {
		case r == '-' || r == ' ' || r == '.':
			b.WriteRune('_')
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func fieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func sortedCopy(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	return out
}

func asError(violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}
	return &ForbiddenFieldError{Violations: violations}
}

// #endregion helpers
