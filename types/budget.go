package types

import "fmt"

// ReadBudget bounds what a phase may read. Zero values mean unlimited.
// A budget travels on interop requests and is applied to the child run;
// the stricter of the request budget and the target phase default wins.
type ReadBudget struct {
	// MaxFiles is the ceiling on distinct files charged in a run.
	MaxFiles int `json:"max_files,omitempty" yaml:"max_files"`
	// MaxTotalBytes is the ceiling on cumulative bytes charged in a run.
	MaxTotalBytes int64 `json:"max_total_bytes,omitempty" yaml:"max_total_bytes"`
	// AllowedPaths are glob patterns exempt from budget and protection
	// enforcement. Multiple allow sources are unioned before matching.
	AllowedPaths []string `json:"allowed_paths,omitempty" yaml:"allowed_paths"`
}

// Unlimited returns true when neither ceiling is set.
func (b ReadBudget) Unlimited() bool {
	return b.MaxFiles <= 0 && b.MaxTotalBytes <= 0
}

// Merge combines two budgets, keeping the stricter ceiling wherever both
// are set and unioning the allowlists. An unset ceiling (zero) on one side
// defers to the other side's value.
func (b ReadBudget) Merge(other ReadBudget) ReadBudget {
	merged := ReadBudget{
		MaxFiles:      stricterInt(b.MaxFiles, other.MaxFiles),
		MaxTotalBytes: stricterInt64(b.MaxTotalBytes, other.MaxTotalBytes),
	}
	merged.AllowedPaths = unionPaths(b.AllowedPaths, other.AllowedPaths)
	return merged
}

// Validate rejects negative ceilings.
func (b ReadBudget) Validate() error {
	if b.MaxFiles < 0 {
		return fmt.Errorf("max_files must be >= 0, got %d", b.MaxFiles)
	}
	if b.MaxTotalBytes < 0 {
		return fmt.Errorf("max_total_bytes must be >= 0, got %d", b.MaxTotalBytes)
	}
	return nil
}

func stricterInt(a, b int) int {
	if a <= 0 {
		return b
	}
	if b <= 0 || a < b {
		return a
	}
	return b
}

func stricterInt64(a, b int64) int64 {
	if a <= 0 {
		return b
	}
	if b <= 0 || a < b {
		return a
	}
	return b
}

// unionPaths merges two pattern lists preserving order and dropping
// duplicates.
func unionPaths(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, p := range a {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range b {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
