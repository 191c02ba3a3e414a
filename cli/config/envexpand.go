// Package config handles warden.yaml loading: subsystem/phase defaults,
// guard patterns, archive and adapter settings.
package config

import (
	"os"
	"strings"
)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references in the input
// with environment variable values. Only the braced form expands; a bare
// $VAR passes through untouched so shell-ish values survive.
//
// ${VAR} of an unset variable expands to the empty string rather than
// failing: required values are caught by downstream validation (e.g. the
// adapter URL check). ${VAR:-default} falls back when VAR is unset or
// empty, matching shell semantics.
func ExpandEnv(input string) string {
	var b strings.Builder
	b.Grow(len(input))

	for {
		start := strings.Index(input, "${")
		if start < 0 {
			break
		}
		end := strings.Index(input[start:], "}")
		if end < 0 {
			break
		}
		end += start

		b.WriteString(input[:start])
		b.WriteString(expandRef(input[start+2 : end]))
		input = input[end+1:]
	}
	b.WriteString(input)
	return b.String()
}

// expandRef resolves the content between ${ and }.
func expandRef(ref string) string {
	name, fallback, hasFallback := strings.Cut(ref, ":-")
	if !validEnvName(name) {
		// Not a variable reference; reproduce the original text.
		return "${" + ref + "}"
	}
	if value := os.Getenv(name); value != "" {
		return value
	}
	if hasFallback {
		return fallback
	}
	return ""
}

func validEnvName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
