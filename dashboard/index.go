package dashboard

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/pithecene-io/warden/interop"
	"github.com/pithecene-io/warden/log"
	"github.com/pithecene-io/warden/runledger"
	"github.com/pithecene-io/warden/types"
)

const partitionSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	subsystem     TEXT NOT NULL,
	phase         TEXT NOT NULL,
	parent_run_id TEXT,
	status        TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	finished_at   TEXT,
	host          TEXT,
	pid           INTEGER,
	agent_runtime TEXT,
	capsule_path  TEXT,
	manifest_path TEXT,
	reasoning     TEXT,
	orphaned      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_parent ON runs(parent_run_id);
CREATE INDEX IF NOT EXISTS idx_runs_subsystem ON runs(subsystem, phase);

CREATE TABLE IF NOT EXISTS requests (
	request_id      TEXT PRIMARY KEY,
	from_subsystem  TEXT NOT NULL,
	from_phase      TEXT,
	to_subsystem    TEXT NOT NULL,
	action          TEXT NOT NULL,
	parent_run_id   TEXT,
	priority        TEXT,
	reasoning       TEXT,
	enqueued_at     TEXT,
	response_status TEXT,
	response_run_id TEXT,
	completed_at    TEXT
);
CREATE INDEX IF NOT EXISTS idx_requests_route ON requests(from_subsystem, to_subsystem);

CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Indexer rebuilds index partitions from run ledgers. At most one indexer
// should run per project partition at a time; viewers may read partitions
// concurrently because each rebuild writes to a temporary file and swaps
// it in atomically.
type Indexer struct {
	registry *Registry
	logger   *log.Logger
}

// NewIndexer builds an indexer over a registry.
func NewIndexer(registry *Registry, logger *log.Logger) *Indexer {
	if logger == nil {
		logger = log.NewPlainLogger()
	}
	return &Indexer{registry: registry, logger: logger}
}

// IndexAll rebuilds every registered project's partition. When the
// registry is empty and seedRoot is non-empty, the root is registered
// first so a fresh install indexes itself.
func (x *Indexer) IndexAll(seedRoot string) error {
	projects, err := x.registry.Projects()
	if err != nil {
		return err
	}
	if len(projects) == 0 && seedRoot != "" {
		if _, err := x.registry.Register(seedRoot, seedRoot); err != nil {
			return err
		}
		projects, err = x.registry.Projects()
		if err != nil {
			return err
		}
	}

	for _, project := range projects {
		if err := x.IndexProject(project.ID); err != nil {
			return err
		}
	}
	return nil
}

// IndexProject rebuilds exactly one project's partition. Every other
// partition file is untouched: the rebuild happens in a temporary
// database that replaces the partition in a single rename.
func (x *Indexer) IndexProject(projectID string) error {
	project, err := x.registry.Lookup(projectID)
	if err != nil {
		return err
	}

	partition := x.registry.PartitionPath(projectID)
	if err := os.MkdirAll(filepath.Dir(partition), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := partition + ".rebuild"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear stale rebuild %s: %w", tmp, err)
	}

	if err := x.buildPartition(tmp, project); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, partition); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("swap partition %s: %w", projectID, err)
	}
	x.logger.Info("partition indexed", map[string]any{"project_id": projectID})
	return nil
}

func (x *Indexer) buildPartition(path string, project *Project) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open partition db: %w", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(partitionSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin index transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := x.indexRuns(tx, project); err != nil {
		return err
	}
	if err := x.indexRequests(tx, project); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO index_meta (key, value) VALUES ('indexed_at', ?), ('project_root', ?)`,
		types.NowUTC(), project.ProjectRoot); err != nil {
		return fmt.Errorf("write index meta: %w", err)
	}
	return tx.Commit()
}

func (x *Indexer) indexRuns(tx *sql.Tx, project *Project) error {
	ledger := runledger.New(project.OrchestrationRoot)
	runs, err := ledger.List()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO runs
		(run_id, subsystem, phase, parent_run_id, status, started_at, finished_at,
		 host, pid, agent_runtime, capsule_path, manifest_path, reasoning, orphaned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare run insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, run := range runs {
		orphaned := 0
		if runledger.Orphaned(run) {
			orphaned = 1
		}
		if _, err := stmt.Exec(
			run.RunID, run.Subsystem, run.Phase, run.ParentRunID,
			string(run.Status), run.StartedAt, run.FinishedAt,
			run.Host, run.PID, run.AgentRuntime,
			run.CapsulePath, run.ManifestPath, run.Reasoning, orphaned,
		); err != nil {
			return fmt.Errorf("index run %s: %w", run.RunID, err)
		}
	}
	return nil
}

func (x *Indexer) indexRequests(tx *sql.Tx, project *Project) error {
	store := interop.NewStore(project.OrchestrationRoot)
	requests, err := store.ListRequests()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO requests
		(request_id, from_subsystem, from_phase, to_subsystem, action,
		 parent_run_id, priority, reasoning, enqueued_at,
		 response_status, response_run_id, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare request insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, request := range requests {
		var responseStatus, responseRunID, completedAt any
		if response, err := store.LoadResponse(request.RequestID); err == nil {
			responseStatus = string(response.Status)
			responseRunID = response.RunID
			completedAt = response.CompletedAt
		}
		if _, err := stmt.Exec(
			request.RequestID, request.FromSubsystem, request.FromPhase,
			request.ToSubsystem, request.Action, request.ParentRunID,
			string(request.Priority), request.Reasoning, request.EnqueuedAt,
			responseStatus, responseRunID, completedAt,
		); err != nil {
			return fmt.Errorf("index request %s: %w", request.RequestID, err)
		}
	}
	return nil
}
