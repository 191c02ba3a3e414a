package runledger

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pithecene-io/warden/iox"
	"github.com/pithecene-io/warden/types"
)

// ManifestMaxArtifacts bounds the manifest's artifact index. The manifest
// is a pointer set, not a listing of the whole tree: entries beyond the
// bound are summarized into a count.
const ManifestMaxArtifacts = 100

// ArtifactEntry is one tracked artifact: pointer plus integrity fields,
// never content.
type ArtifactEntry struct {
	Path      string `json:"path"`
	SHA256    string `json:"sha256,omitempty"`
	SizeBytes int64  `json:"size_bytes"`
}

// Manifest is the structured phase record: run metadata, the bounded
// artifact index, and pointers to truth sources, log, and capsule.
type Manifest struct {
	Run               types.RunMeta   `json:"run"`
	Artifacts         []ArtifactEntry `json:"artifacts,omitempty"`
	ArtifactsOmitted  int             `json:"artifacts_omitted,omitempty"`
	TruthPointers     []string        `json:"truth_pointers,omitempty"`
	LogPointer        string          `json:"log_pointer,omitempty"`
	CapsulePointer    string          `json:"capsule_pointer,omitempty"`
	ExpectedArtifacts []string        `json:"expected_artifacts,omitempty"`
}

// HashArtifact builds an ArtifactEntry for a file on disk.
func HashArtifact(path string) (ArtifactEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return ArtifactEntry{}, fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return ArtifactEntry{}, fmt.Errorf("hash artifact %s: %w", path, err)
	}
	return ArtifactEntry{
		Path:      path,
		SHA256:    fmt.Sprintf("%x", h.Sum(nil)),
		SizeBytes: size,
	}, nil
}

// WriteManifest persists the manifest for a run, updates the run record's
// manifest pointer, and returns the manifest path. The artifact index is
// capped at ManifestMaxArtifacts with the overflow summarized. Write-once:
// a second write for the same run is ErrArtifactExists.
func (l *Ledger) WriteManifest(runID string, artifacts []ArtifactEntry, truthPointers []string) (string, error) {
	meta, err := l.Load(runID)
	if err != nil {
		return "", err
	}

	path := filepath.Join(l.RunDir(runID), "manifests",
		fmt.Sprintf("%s_%s.json", meta.Subsystem, meta.Phase))
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrArtifactExists, path)
	}

	manifest := Manifest{
		Run:            *meta,
		Artifacts:      artifacts,
		TruthPointers:  truthPointers,
		LogPointer:     meta.LogPath,
		CapsulePointer: meta.CapsulePath,
	}
	if len(manifest.Artifacts) > ManifestMaxArtifacts {
		manifest.ArtifactsOmitted = len(manifest.Artifacts) - ManifestMaxArtifacts
		manifest.Artifacts = manifest.Artifacts[:ManifestMaxArtifacts]
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest %s: %w", runID, err)
	}
	if err := iox.AtomicWrite(path, append(data, '\n'), 0o644); err != nil {
		return "", err
	}

	meta.ManifestPath = path
	if err := l.Update(meta); err != nil {
		return "", err
	}
	return path, nil
}

// LoadManifest reads a manifest record from disk.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return &manifest, nil
}
