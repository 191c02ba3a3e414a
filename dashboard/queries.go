package dashboard

import (
	"database/sql"
	"fmt"
	"os"
)

// RunRow is one indexed run as the query surface exposes it.
type RunRow struct {
	ProjectID    string
	RunID        string
	Subsystem    string
	Phase        string
	ParentRunID  string
	Status       string
	StartedAt    string
	FinishedAt   string
	AgentRuntime string
	Reasoning    string
	Orphaned     bool
}

// Edge is one aggregated cross-phase handoff derived from request/response
// pairs.
type Edge struct {
	ProjectID string
	From      string
	To        string
	Count     int
	// Answered counts edges whose request has a response.
	Answered int
}

// Queries reads index partitions. Partitions are opened read-only per
// call; a concurrent reindex swaps the whole file, so a reader sees either
// the old complete index or the new one.
type Queries struct {
	registry *Registry
}

// NewQueries builds the query surface over a registry.
func NewQueries(registry *Registry) *Queries {
	return &Queries{registry: registry}
}

// ListProjects returns all registered projects.
func (q *Queries) ListProjects() ([]Project, error) {
	return q.registry.Projects()
}

// Runs returns indexed runs. With a project id, only that partition is
// read; with an empty id, all partitions are merged.
func (q *Queries) Runs(projectID string) ([]RunRow, error) {
	return q.acrossPartitions(projectID, q.runsInPartition)
}

// Thread returns a run and its ancestors within one project partition,
// child first.
func (q *Queries) Thread(projectID, runID string) ([]RunRow, error) {
	runs, err := q.Runs(projectID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]RunRow, len(runs))
	for _, run := range runs {
		byID[run.RunID] = run
	}

	var thread []RunRow
	id := runID
	for id != "" {
		run, ok := byID[id]
		if !ok {
			break
		}
		thread = append(thread, run)
		id = run.ParentRunID
	}
	if len(thread) == 0 {
		return nil, fmt.Errorf("run %s not in index", runID)
	}
	return thread, nil
}

// Edges returns the cross-phase edge summary derived from indexed
// requests, per project or merged across all.
func (q *Queries) Edges(projectID string) ([]Edge, error) {
	projects, err := q.selectProjects(projectID)
	if err != nil {
		return nil, err
	}

	var edges []Edge
	for _, project := range projects {
		partition, err := q.openPartition(project.ID)
		if err != nil {
			continue
		}
		rows, err := partition.Query(`
			SELECT from_subsystem || '.' || COALESCE(from_phase, '?') AS from_node,
			       CASE WHEN instr(action, '.') > 0 THEN action
			            ELSE to_subsystem || '.' || action END AS to_node,
			       COUNT(*) AS n,
			       SUM(CASE WHEN response_status IS NOT NULL THEN 1 ELSE 0 END) AS answered
			FROM requests
			GROUP BY from_node, to_node
			ORDER BY from_node, to_node`)
		if err != nil {
			_ = partition.Close()
			return nil, fmt.Errorf("edge query %s: %w", project.ID, err)
		}
		for rows.Next() {
			edge := Edge{ProjectID: project.ID}
			if err := rows.Scan(&edge.From, &edge.To, &edge.Count, &edge.Answered); err != nil {
				_ = rows.Close()
				_ = partition.Close()
				return nil, err
			}
			edges = append(edges, edge)
		}
		err = rows.Err()
		_ = rows.Close()
		_ = partition.Close()
		if err != nil {
			return nil, err
		}
	}
	return edges, nil
}

func (q *Queries) acrossPartitions(projectID string, scan func(*sql.DB, string) ([]RunRow, error)) ([]RunRow, error) {
	projects, err := q.selectProjects(projectID)
	if err != nil {
		return nil, err
	}

	var out []RunRow
	for _, project := range projects {
		partition, err := q.openPartition(project.ID)
		if err != nil {
			// Registered but never indexed: nothing to report yet.
			continue
		}
		rows, err := scan(partition, project.ID)
		_ = partition.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (q *Queries) selectProjects(projectID string) ([]Project, error) {
	if projectID == "" {
		return q.registry.Projects()
	}
	project, err := q.registry.Lookup(projectID)
	if err != nil {
		return nil, err
	}
	return []Project{*project}, nil
}

func (q *Queries) openPartition(projectID string) (*sql.DB, error) {
	path := q.registry.PartitionPath(projectID)
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return sql.Open("sqlite", path)
}

func (q *Queries) runsInPartition(db *sql.DB, projectID string) ([]RunRow, error) {
	rows, err := db.Query(`
		SELECT run_id, subsystem, phase, COALESCE(parent_run_id, ''),
		       status, started_at, COALESCE(finished_at, ''),
		       COALESCE(agent_runtime, ''), COALESCE(reasoning, ''), orphaned
		FROM runs ORDER BY run_id`)
	if err != nil {
		return nil, fmt.Errorf("run query %s: %w", projectID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunRow
	for rows.Next() {
		run := RunRow{ProjectID: projectID}
		var orphaned int
		if err := rows.Scan(&run.RunID, &run.Subsystem, &run.Phase, &run.ParentRunID,
			&run.Status, &run.StartedAt, &run.FinishedAt,
			&run.AgentRuntime, &run.Reasoning, &orphaned); err != nil {
			return nil, err
		}
		run.Orphaned = orphaned == 1
		out = append(out, run)
	}
	return out, rows.Err()
}
