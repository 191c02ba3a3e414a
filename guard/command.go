package guard

import (
	"regexp"
	"strings"
)

// CommandClassifier inspects opaque shell command text. It is a best-effort
// heuristic layer, not a security boundary: it can over-block a benign
// command containing a forbidden substring and under-block a mutating
// command phrased unusually. Kept behind this interface so a structured
// command model can replace it without touching the enforcer.
type CommandClassifier interface {
	// Mutating reports whether the command looks like it writes, moves,
	// or deletes files.
	Mutating(command string) bool
	// PrivilegeEscalation reports sudo/su/doas style elevation.
	PrivilegeEscalation(command string) bool
	// RevertsFiles reports version-control operations that would restore
	// or discard file content (checkout --, restore, reset --hard, clean).
	RevertsFiles(command string) bool
	// Targets extracts the path-looking tokens a mutating command appears
	// to operate on. Best-effort; may miss targets or include non-paths.
	Targets(command string) []string
}

// regexClassifier is the default CommandClassifier.
type regexClassifier struct{}

// NewCommandClassifier returns the default regex-based classifier.
func NewCommandClassifier() CommandClassifier {
	return regexClassifier{}
}

var (
	mutatingPattern = regexp.MustCompile(
		`(?:^|[;&|]\s*|\s)(rm|mv|cp|dd|truncate|shred|unlink|rmdir|tee|sed\s+(?:-[a-zA-Z]*i|--in-place)|chmod|chown|ln|touch|mkdir|install|rsync|patch)\b`)
	redirectPattern  = regexp.MustCompile(`(?:^|[^<>])>{1,2}\s*\S`)
	escalatePattern  = regexp.MustCompile(`(?:^|[;&|]\s*|\s)(sudo|doas|su)\b`)
	vcsRevertPattern = regexp.MustCompile(
		`(?:^|[;&|]\s*)git\s+(checkout\s+(?:--\s|[^-])|restore\b|reset\s+--hard|clean\s+-[a-zA-Z]*f|stash\s+(?:pop|drop|apply))`)
	// flagToken filters option tokens out of target extraction.
	flagToken = regexp.MustCompile(`^-`)
)

func (regexClassifier) Mutating(command string) bool {
	return mutatingPattern.MatchString(command) || redirectPattern.MatchString(command)
}

func (regexClassifier) PrivilegeEscalation(command string) bool {
	return escalatePattern.MatchString(command)
}

func (regexClassifier) RevertsFiles(command string) bool {
	return vcsRevertPattern.MatchString(command)
}

// Targets returns tokens that look like file paths: anything after the
// first word that is not a flag and contains a path hint (separator, dot
// extension, or glob), plus redirect targets.
func (regexClassifier) Targets(command string) []string {
	var targets []string
	seen := make(map[string]struct{})
	add := func(token string) {
		token = strings.Trim(token, `"'`)
		if token == "" {
			return
		}
		if _, ok := seen[token]; ok {
			return
		}
		seen[token] = struct{}{}
		targets = append(targets, token)
	}

	for _, segment := range splitCommandSegments(command) {
		fields := strings.Fields(segment)
		for i, token := range fields {
			if i == 0 || flagToken.MatchString(token) {
				continue
			}
			if looksLikePath(strings.Trim(token, `"'`)) {
				add(token)
			}
		}
	}
	for _, m := range redirectTargetPattern.FindAllStringSubmatch(command, -1) {
		add(m[1])
	}
	return targets
}

var redirectTargetPattern = regexp.MustCompile(`>{1,2}\s*([^\s;|&]+)`)

// splitCommandSegments breaks a command line at ;, && and | boundaries.
func splitCommandSegments(command string) []string {
	return regexp.MustCompile(`[;|&]+`).Split(command, -1)
}

func looksLikePath(token string) bool {
	if strings.ContainsAny(token, "/*") {
		return true
	}
	if i := strings.LastIndexByte(token, '.'); i > 0 && i < len(token)-1 {
		return true
	}
	return false
}
