package guard

import "testing"

func TestClassify_PhaseScopedProtection(t *testing.T) {
	c := NewClassifier(ClassifierConfig{})

	tests := []struct {
		name     string
		path     string
		phase    string
		want     bool
		category Category
	}{
		{"test file during implement", "pkg/parser_test.go", "implement", true, CategoryTest},
		{"test file during write-tests", "pkg/parser_test.go", "write-tests", false, ""},
		{"source file during implement", "pkg/parser.go", "implement", false, ""},
		{"tests dir during implement", "tests/fixtures/input.json", "implement", true, CategoryTest},
		{"log file during experiment", "runs/r1/logs/phase.log", "experiment", true, CategoryLog},
		{"metrics during refactor", "metrics.json", "refactor", true, CategoryMetrics},
		{"unknown phase protects nothing", "pkg/parser_test.go", "review", false, ""},
		{"empty phase protects nothing", "pkg/parser_test.go", "", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.path, tt.phase)
			if got.Protected != tt.want {
				t.Errorf("Classify(%q, %q).Protected = %v, want %v", tt.path, tt.phase, got.Protected, tt.want)
			}
			if got.Category != tt.category {
				t.Errorf("category = %q, want %q", got.Category, tt.category)
			}
		})
	}
}

func TestClassify_AllowlistOverridesProtection(t *testing.T) {
	c := NewClassifier(ClassifierConfig{
		AllowedPaths: []string{"pkg/golden_test.go"},
	})

	if got := c.Classify("pkg/golden_test.go", "implement"); got.Protected {
		t.Error("allowlisted path must never be protected")
	}
	if got := c.Classify("pkg/other_test.go", "implement"); !got.Protected {
		t.Error("non-allowlisted test file should stay protected")
	}
}

func TestAllowlisted_ChecksBothPathForms(t *testing.T) {
	// Pattern lists the relative form; the query uses the absolute form
	// of the same file, and the reverse. Neither alias may escape.
	abs := "/work/project/pkg/data.json"
	c := NewClassifier(ClassifierConfig{
		AllowedPaths: []string{"pkg/data.json", abs},
	})

	if !c.Allowlisted("pkg/data.json") {
		t.Error("relative form should match")
	}
	if !c.Allowlisted(abs) {
		t.Error("absolute form should match")
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*_test.go", "a/b/c_test.go", true},
		{"*_test.go", "a/b/c.go", false},
		{"tests/", "tests/unit/x.py", true},
		{"tests/", "src/tests/x.py", true},
		{"tests/", "src/testsuite/x.py", false},
		{"spec/*.md", "spec/api.md", true},
		{"spec/*.md", "/abs/root/spec/api.md", true},
		{"spec/*.md", "spec/deep/api.md", false},
		{"*.log", "runs/r1/logs/phase.log", true},
	}
	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.path); got != tt.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}
