package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// sections are the top-level keys environment variables may target.
var sections = map[string]struct{}{
	"match": {}, "catalog": {}, "smoothing": {}, "behavior": {}, "flow": {},
	"memory": {}, "gate": {}, "vision": {}, "server": {}, "log": {},
}

// nested maps an env field prefix to a sub-section, e.g. BEHAVIOR_RECENCY_KIND.
var nested = map[string][]string{
	"behavior": {"recency"},
}

// listFields take comma-separated env values.
var listFields = map[string]struct{}{
	"behavior.zone_agnostic": {},
	"gate.exempt":            {},
	"gate.denylist":          {},
}

// Load reads path (optional; empty skips the file), then environment
// variables, over Default().
//
//	MEMORY_MAX_EPISODES   -> memory.max_episodes
//	BEHAVIOR_RECENCY_KIND -> behavior.recency.kind
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return Config{}, fmt.Errorf("stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return Config{}, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps SECTION_FIELD to section.field and drops variables outside the
// known sections. Comma-separated values become lists for gate and behavior.
func envKey(key, value string) (string, interface{}) {
	parts := strings.SplitN(strings.ToLower(key), "_", 2)
	if len(parts) != 2 {
		return "", nil
	}
	section, field := parts[0], parts[1]
	if _, ok := sections[section]; !ok {
		return "", nil
	}
	for _, sub := range nested[section] {
		if rest, ok := strings.CutPrefix(field, sub+"_"); ok {
			return section + "." + sub + "." + rest, value
		}
	}
	if _, ok := listFields[section+"."+field]; ok {
		return section + "." + field, splitList(value)
	}
	return section + "." + field, value
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
