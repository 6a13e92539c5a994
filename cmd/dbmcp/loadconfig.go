package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"

	dbmcp "github.com/rickchristie/dbmcp"
)

// defaultConfigPath is used when neither the -config flag nor
// DBMCP_CONFIG_PATH is set.
const defaultConfigPath = ".dbmcp/config.json"

func configPathDefault() string {
	if p := os.Getenv("DBMCP_CONFIG_PATH"); p != "" {
		return p
	}
	return defaultConfigPath
}

// loadServerConfig reads a JSON, YAML, or TOML config file (selected by
// extension), applies environment substitution, and decodes it into a
// ServerConfig. All formats normalize through JSON so field names follow the
// json tags regardless of the source format.
func loadServerConfig(path string) (*dbmcp.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var tree any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		tree = normalizeKeys(tree)
	case ".toml":
		var m map[string]any
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
		tree = m
	default:
		if err := json.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}

	tree = resolveEnv(tree)

	normalized, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize config: %w", err)
	}
	var config dbmcp.ServerConfig
	if err := json.Unmarshal(normalized, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &config, nil
}

// normalizeKeys converts yaml's map[interface{}]interface{} trees into
// map[string]any so they survive the JSON round trip.
func normalizeKeys(v any) any {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[fmt.Sprintf("%v", k)] = normalizeKeys(item)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = normalizeKeys(item)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = normalizeKeys(item)
		}
		return s
	default:
		return v
	}
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// resolveEnv substitutes environment variables in string values: a value of
// "env:NAME" is replaced wholesale, and ${NAME} references are expanded
// in place. Substitution walks the decoded tree rather than the raw text, so
// regex patterns keep their $ anchors.
func resolveEnv(v any) any {
	switch val := v.(type) {
	case string:
		if name, ok := strings.CutPrefix(val, "env:"); ok {
			return os.Getenv(strings.TrimSpace(name))
		}
		return envRefPattern.ReplaceAllStringFunc(val, func(ref string) string {
			return os.Getenv(ref[2 : len(ref)-1])
		})
	case map[string]any:
		for k, item := range val {
			val[k] = resolveEnv(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = resolveEnv(item)
		}
		return val
	default:
		return v
	}
}
