// Package config loads flag values from YAML files for kong.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

// YAML is a kong.ConfigurationLoader. Keys match long flag names, and nested
// maps are joined with "-" so a section lines up with an embedded flag
// prefix:
//
//	server-url: https://api.example.com
//	session:
//	  safety-margin: 45s
//
// Underscores are accepted in place of dashes.
func YAML(r io.Reader) (kong.Resolver, error) {
	raw := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	values := map[string]any{}
	flatten("", raw, values)

	var f kong.ResolverFunc = func(kctx *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
		if v, ok := values[flag.Name]; ok {
			return v, nil
		}
		return nil, nil
	}

	return f, nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := strings.ReplaceAll(strings.ToLower(k), "_", "-")
		if prefix != "" {
			key = prefix + "-" + key
		}

		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}

		out[key] = v
	}
}
