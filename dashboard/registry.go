// Package dashboard builds a read-only, queryable index over many
// projects' run ledgers. Each registered project gets its own SQLite
// partition file, so a project-scoped reindex rewrites exactly one file
// and every other partition stays byte-identical. The index is derived
// purely from pointer artifacts (run records, events, request/response
// files); it never loads capsule bodies or raw logs.
package dashboard

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pithecene-io/warden/iox"
	"github.com/pithecene-io/warden/types"
)

// Project is one registered project in the dashboard registry.
type Project struct {
	// ID is derived from the project root, so re-registering the same
	// root is idempotent.
	ID string `json:"id"`
	// ProjectRoot is the project working tree.
	ProjectRoot string `json:"project_root"`
	// OrchestrationRoot holds the runs/ and interop/ trees for the
	// project.
	OrchestrationRoot string `json:"orchestration_root"`
	// RegisteredAt is the first registration timestamp.
	RegisteredAt string `json:"registered_at"`
}

// Registry maps project roots to index partitions. Persisted as
// registry.json under the dashboard home.
type Registry struct {
	home string
}

type registryFile struct {
	Projects []Project `json:"projects"`
}

// NewRegistry opens the registry under the given dashboard home directory.
func NewRegistry(home string) *Registry {
	return &Registry{home: home}
}

// Home returns the dashboard home directory.
func (r *Registry) Home() string { return r.home }

// PartitionPath returns the index partition file for a project.
func (r *Registry) PartitionPath(projectID string) string {
	return filepath.Join(r.home, "index", projectID+".db")
}

func (r *Registry) registryPath() string {
	return filepath.Join(r.home, "registry.json")
}

// ProjectID derives the stable project id from a project root.
func ProjectID(projectRoot string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(projectRoot)))
	return fmt.Sprintf("%x", sum[:6])
}

// Register adds a project, returning its id. Idempotent: registering an
// already-registered root returns the existing id without rewriting the
// record.
func (r *Registry) Register(projectRoot, orchestrationRoot string) (string, error) {
	state, err := r.load()
	if err != nil {
		return "", err
	}

	id := ProjectID(projectRoot)
	for _, project := range state.Projects {
		if project.ID == id {
			return id, nil
		}
	}

	state.Projects = append(state.Projects, Project{
		ID:                id,
		ProjectRoot:       filepath.Clean(projectRoot),
		OrchestrationRoot: filepath.Clean(orchestrationRoot),
		RegisteredAt:      types.NowUTC(),
	})
	if err := r.save(state); err != nil {
		return "", err
	}
	return id, nil
}

// Unregister removes a project and deletes only that project's index
// partition. Unknown ids are a no-op.
func (r *Registry) Unregister(projectID string) error {
	state, err := r.load()
	if err != nil {
		return err
	}

	kept := state.Projects[:0]
	removed := false
	for _, project := range state.Projects {
		if project.ID == projectID {
			removed = true
			continue
		}
		kept = append(kept, project)
	}
	if !removed {
		return nil
	}
	state.Projects = kept
	if err := r.save(state); err != nil {
		return err
	}

	if err := os.Remove(r.PartitionPath(projectID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove index partition %s: %w", projectID, err)
	}
	return nil
}

// Projects returns all registered projects.
func (r *Registry) Projects() ([]Project, error) {
	state, err := r.load()
	if err != nil {
		return nil, err
	}
	return state.Projects, nil
}

// Lookup resolves one project by id.
func (r *Registry) Lookup(projectID string) (*Project, error) {
	projects, err := r.Projects()
	if err != nil {
		return nil, err
	}
	for i := range projects {
		if projects[i].ID == projectID {
			return &projects[i], nil
		}
	}
	return nil, fmt.Errorf("project %s not registered", projectID)
}

func (r *Registry) load() (*registryFile, error) {
	data, err := os.ReadFile(r.registryPath())
	if os.IsNotExist(err) {
		return &registryFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var state registryFile
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return &state, nil
}

func (r *Registry) save(state *registryFile) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	return iox.AtomicWrite(r.registryPath(), append(data, '\n'), 0o644)
}
