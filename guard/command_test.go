package guard

import "testing"

// The command classifier is a known-imprecise, best-effort layer. These
// cases pin its current behavior on representative commands, not a full
// shell grammar.
func TestCommandClassifier_Mutating(t *testing.T) {
	c := NewCommandClassifier()

	tests := []struct {
		command string
		want    bool
	}{
		{"rm -rf build/", true},
		{"mv a.go b.go", true},
		{"sed -i 's/x/y/' main.go", true},
		{"echo hi > out.txt", true},
		{"cat main.go", false},
		{"grep -r pattern src/", false},
		{"go test ./...", false},
		{"git log --oneline", false},
	}
	for _, tt := range tests {
		if got := c.Mutating(tt.command); got != tt.want {
			t.Errorf("Mutating(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestCommandClassifier_PrivilegeEscalation(t *testing.T) {
	c := NewCommandClassifier()

	tests := []struct {
		command string
		want    bool
	}{
		{"sudo rm -rf /", true},
		{"cat x | sudo tee /etc/hosts", true},
		{"doas pkg_add vim", true},
		{"echo pseudo-random", false},
		{"cat sudoku.txt", false},
	}
	for _, tt := range tests {
		if got := c.PrivilegeEscalation(tt.command); got != tt.want {
			t.Errorf("PrivilegeEscalation(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestCommandClassifier_RevertsFiles(t *testing.T) {
	c := NewCommandClassifier()

	tests := []struct {
		command string
		want    bool
	}{
		{"git checkout -- pkg/parser_test.go", true},
		{"git restore pkg/parser_test.go", true},
		{"git reset --hard HEAD~1", true},
		{"git clean -fd", true},
		{"git stash pop", true},
		{"git checkout -b feature", false},
		{"git commit -m msg", false},
		{"git diff", false},
	}
	for _, tt := range tests {
		if got := c.RevertsFiles(tt.command); got != tt.want {
			t.Errorf("RevertsFiles(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestCommandClassifier_Targets(t *testing.T) {
	c := NewCommandClassifier()

	targets := c.Targets("rm pkg/a_test.go && echo done > status.txt")
	want := map[string]bool{"pkg/a_test.go": true, "status.txt": true}
	for _, target := range targets {
		delete(want, target)
	}
	if len(want) != 0 {
		t.Errorf("Targets missing %v (got %v)", want, targets)
	}
}
