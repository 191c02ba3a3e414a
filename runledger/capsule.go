package runledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/warden/iox"
	"github.com/pithecene-io/warden/types"
)

// CapsuleMaxLines is the hard ceiling on capsule length. Capsules over the
// ceiling are truncated with a visible flag, never silently dropped.
const CapsuleMaxLines = 30

// truncationFlag marks a capsule that hit the line ceiling, so a truncated
// capsule is distinguishable from a complete one.
const truncationFlag = "[truncated: capsule exceeded %d lines, %d omitted]"

// Capsule is the bounded phase summary: outcome, evidence pointers, and on
// failure the reason. Pointers reference paths, never content.
type Capsule struct {
	Outcome  types.RunStatus
	Pointers []string
	// Reason is required when the outcome is failed or blocked.
	Reason string
	// Notes are optional extra summary lines.
	Notes []string
}

// WriteCapsule renders and persists the capsule for a run, updates the run
// record's capsule pointer, and returns the capsule path. Write-once: a
// second write for the same run is ErrArtifactExists.
func (l *Ledger) WriteCapsule(runID string, capsule Capsule) (string, error) {
	meta, err := l.Load(runID)
	if err != nil {
		return "", err
	}
	if (capsule.Outcome == types.RunStatusFailed || capsule.Outcome == types.RunStatusBlocked) && capsule.Reason == "" {
		return "", fmt.Errorf("capsule with %s outcome requires a reason", capsule.Outcome)
	}

	path := filepath.Join(l.RunDir(runID), "capsules",
		fmt.Sprintf("%s_%s.md", meta.Subsystem, meta.Phase))
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrArtifactExists, path)
	}

	lines := renderCapsule(meta, capsule)
	lines = capLines(lines, CapsuleMaxLines)
	content := strings.Join(lines, "\n") + "\n"
	if err := iox.AtomicWrite(path, []byte(content), 0o644); err != nil {
		return "", err
	}

	meta.CapsulePath = path
	if err := l.Update(meta); err != nil {
		return "", err
	}
	return path, nil
}

func renderCapsule(meta *types.RunMeta, capsule Capsule) []string {
	lines := []string{
		fmt.Sprintf("# %s/%s — %s", meta.Subsystem, meta.Phase, capsule.Outcome),
		fmt.Sprintf("run: %s", meta.RunID),
	}
	if capsule.Reason != "" {
		lines = append(lines, fmt.Sprintf("reason: %s", capsule.Reason))
	}
	for _, note := range capsule.Notes {
		lines = append(lines, note)
	}
	if len(capsule.Pointers) > 0 {
		lines = append(lines, "evidence:")
		for _, pointer := range capsule.Pointers {
			lines = append(lines, "- "+pointer)
		}
	}
	return lines
}

// capLines enforces the line ceiling, reserving the last line for the
// truncation flag when content is cut.
func capLines(lines []string, max int) []string {
	if len(lines) <= max {
		return lines
	}
	kept := lines[:max-1]
	omitted := len(lines) - len(kept)
	return append(kept, fmt.Sprintf(truncationFlag, max, omitted))
}
