package config

import (
	"strings"
)

// secretKeys lists the dot-separated keys whose values are masked on display.
var secretKeys = map[string]bool{
	"llm.api_key":    true,
	"brave.api_key":  true,
	"telegram.token": true,
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten converts a nested map into dot-separated keys:
// {"graph": {"model_policy": "first"}} becomes {"graph.model_policy": "first"}.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto("", m, out)
	return out
}

func flattenInto(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flattenInto(key, child, out)
			continue
		}
		out[key] = v
	}
}

// Unflatten is the inverse of Flatten. A scalar sitting where a section is
// needed is replaced by the section.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range flat {
		parts := strings.Split(k, ".")
		current := out
		for _, part := range parts[:len(parts)-1] {
			m, ok := current[part].(map[string]any)
			if !ok {
				m = make(map[string]any)
				current[part] = m
			}
			current = m
		}
		current[parts[len(parts)-1]] = v
	}
	return out
}

// MaskSecrets returns a copy of flat with non-empty secrets shown as
// "***" plus their last four characters.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		out[k] = v
		s, ok := v.(string)
		if !secretKeys[k] || !ok || s == "" {
			continue
		}
		if len(s) > 4 {
			s = s[len(s)-4:]
		}
		out[k] = "***" + s
	}
	return out
}
