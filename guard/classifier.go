// Package guard implements tool-call interception for phase execution:
// phase-scoped write protection, universal command checks, and read-budget
// accounting. The classifier half is pure; the enforcer half composes the
// classifier with the budget ledger.
package guard

import (
	"path/filepath"
	"strings"
)

// Category names a protected file class. Which categories a phase protects
// is configuration, not code; see PhaseProtections.
type Category string

const (
	CategoryTest    Category = "test"
	CategorySpec    Category = "spec"
	CategoryMetrics Category = "metrics"
	CategoryLog     Category = "log"
	CategoryState   Category = "state"
)

// Classification is the classifier's verdict for one path under one phase.
type Classification struct {
	// Protected is true when the path matches a category the phase
	// protects and no allowlist pattern exempts it.
	Protected bool
	// Category is the matched category when Protected is true.
	Category Category
}

// ClassifierConfig holds the pattern data the classifier consumes. All
// three maps/lists are data: callers may replace any of them wholesale.
type ClassifierConfig struct {
	// Categories maps each category to its glob patterns. A pattern
	// without a path separator matches the basename; a pattern ending in
	// "/" matches any path under that directory name; anything else
	// matches the full slash-normalized path.
	Categories map[Category][]string
	// PhaseProtections maps a phase name to the categories it protects.
	// A phase with no entry protects nothing (universal checks still
	// apply in the enforcer).
	PhaseProtections map[string][]Category
	// AllowedPaths are glob patterns exempt from protection and budget
	// charging. Callers union environment, default, and per-request
	// sources before constructing the classifier.
	AllowedPaths []string
}

// DefaultCategories returns the built-in category patterns.
func DefaultCategories() map[Category][]string {
	return map[Category][]string{
		CategoryTest:    {"*_test.go", "test_*.py", "*_test.py", "*.test.ts", "*.test.js", "*.spec.ts", "tests/", "test/"},
		CategorySpec:    {"*.spec.md", "spec/", "specs/"},
		CategoryMetrics: {"metrics.json", "*.metrics.json", "metrics/"},
		CategoryLog:     {"*.log", "logs/"},
		CategoryState:   {"*.state", "*.budget", "state/", ".warden/"},
	}
}

// DefaultPhaseProtections returns the built-in phase rules: implementation
// phases must not touch tests or specs, test-writing phases must not touch
// metrics, and no phase writes logs or state directly.
func DefaultPhaseProtections() map[string][]Category {
	return map[string][]Category{
		"implement": {CategoryTest, CategorySpec, CategoryLog, CategoryState},
		"refactor":  {CategoryTest, CategorySpec, CategoryMetrics, CategoryLog, CategoryState},
		"write-tests": {
			CategoryMetrics, CategoryLog, CategoryState,
		},
		"experiment": {CategorySpec, CategoryLog, CategoryState},
		"formalize":  {CategoryTest, CategoryLog, CategoryState},
	}
}

// Classifier decides whether a path is protected for a phase. Pure: no
// state beyond its configuration, safe for concurrent use.
type Classifier struct {
	categories map[Category][]string
	phases     map[string][]Category
	allow      []string
}

// NewClassifier builds a classifier. Nil Categories or PhaseProtections
// fall back to the defaults; AllowedPaths is used as given.
func NewClassifier(config ClassifierConfig) *Classifier {
	categories := config.Categories
	if categories == nil {
		categories = DefaultCategories()
	}
	phases := config.PhaseProtections
	if phases == nil {
		phases = DefaultPhaseProtections()
	}
	return &Classifier{
		categories: categories,
		phases:     phases,
		allow:      config.AllowedPaths,
	}
}

// Allowlisted reports whether any allow pattern matches the path in either
// its given form or its absolutized form. Checking both forms closes the
// relative-path alias hole: an allowlisted absolute path stays allowlisted
// when referenced relatively, and vice versa.
func (c *Classifier) Allowlisted(path string) bool {
	for _, form := range pathForms(path) {
		for _, pattern := range c.allow {
			if matchPattern(pattern, form) {
				return true
			}
		}
	}
	return false
}

// Classify returns the protection verdict for a path under a phase. An
// allowlisted path is never protected, even when a category matches.
func (c *Classifier) Classify(path, phase string) Classification {
	if c.Allowlisted(path) {
		return Classification{}
	}

	protected, ok := c.phases[phase]
	if !ok {
		return Classification{}
	}

	forms := pathForms(path)
	for _, category := range protected {
		for _, pattern := range c.categories[category] {
			for _, form := range forms {
				if matchPattern(pattern, form) {
					return Classification{Protected: true, Category: category}
				}
			}
		}
	}
	return Classification{}
}

// pathForms returns the path as given plus its absolutized form, both
// slash-normalized, deduplicated.
func pathForms(path string) []string {
	given := filepath.ToSlash(path)
	abs, err := filepath.Abs(path)
	if err != nil {
		return []string{given}
	}
	abs = filepath.ToSlash(abs)
	if abs == given {
		return []string{given}
	}
	return []string{given, abs}
}

// matchPattern applies one pattern to one slash-normalized path.
//
//   - "name/" matches when any directory segment equals name
//   - a pattern containing "/" matches the full path and any suffix of it
//   - a bare pattern matches the basename
func matchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/") {
		segment := strings.TrimSuffix(pattern, "/")
		for _, part := range strings.Split(path, "/") {
			if part == segment {
				return true
			}
		}
		return false
	}
	if strings.Contains(pattern, "/") {
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
		// Suffix match so "spec/*.md" also hits "/abs/root/spec/x.md".
		parts := strings.Split(path, "/")
		for i := range parts {
			if ok, _ := filepath.Match(pattern, strings.Join(parts[i:], "/")); ok {
				return true
			}
		}
		return false
	}
	ok, _ := filepath.Match(pattern, filepath.Base(path))
	return ok
}
