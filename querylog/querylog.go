// Package querylog provides bounded access to raw run logs. Logs are
// write-only for the phase that owns them and unbounded on disk; every
// read goes through this package's tail, grep, or summary modes, each
// capped in bytes, so no caller ever pulls a whole transcript into an
// agent context.
package querylog

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// MaxOutputBytes is the hard cap on any query result.
const MaxOutputBytes = 16 * 1024

// DefaultTailLines is the tail line count when the caller does not choose.
const DefaultTailLines = 40

// Result is one bounded query answer.
type Result struct {
	// Lines are the selected log lines, oldest first.
	Lines []string
	// Truncated is true when the byte cap cut the selection.
	Truncated bool
	// TotalLines is the full line count of the underlying log.
	TotalLines int
}

// Tail returns the last n lines of the log, byte-capped.
func Tail(path string, n int) (*Result, error) {
	if n <= 0 {
		n = DefaultTailLines
	}
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	start := len(lines) - n
	if start < 0 {
		start = 0
	}
	return capResult(lines[start:], len(lines)), nil
}

// Grep returns the lines matching a regular expression, byte-capped.
func Grep(path, pattern string) (*Result, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	var matched []string
	for _, line := range lines {
		if re.MatchString(line) {
			matched = append(matched, line)
		}
	}
	return capResult(matched, len(lines)), nil
}

// Summary returns a compact digest: line/byte totals plus the first and
// last few lines, byte-capped.
func Summary(path string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat log %s: %w", path, err)
	}
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	const edge = 5
	digest := []string{
		fmt.Sprintf("log: %s (%d lines, %d bytes)", path, len(lines), info.Size()),
	}
	if len(lines) <= 2*edge {
		digest = append(digest, lines...)
	} else {
		digest = append(digest, lines[:edge]...)
		digest = append(digest, fmt.Sprintf("... %d lines omitted ...", len(lines)-2*edge))
		digest = append(digest, lines[len(lines)-edge:]...)
	}
	return capResult(digest, len(lines)), nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log %s: %w", path, err)
	}
	return lines, nil
}

// capResult enforces MaxOutputBytes, dropping the oldest lines first so
// the most recent output survives.
func capResult(lines []string, total int) *Result {
	result := &Result{Lines: lines, TotalLines: total}
	size := 0
	for _, line := range lines {
		size += len(line) + 1
	}
	for size > MaxOutputBytes && len(result.Lines) > 1 {
		size -= len(result.Lines[0]) + 1
		result.Lines = result.Lines[1:]
		result.Truncated = true
	}
	if size > MaxOutputBytes && len(result.Lines) == 1 {
		line := result.Lines[0]
		result.Lines[0] = line[:MaxOutputBytes]
		result.Truncated = true
	}
	return result
}

// Render joins a result for terminal output, flagging truncation.
func Render(result *Result) string {
	var b strings.Builder
	for _, line := range result.Lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if result.Truncated {
		b.WriteString("[output truncated to byte cap]\n")
	}
	return b.String()
}
