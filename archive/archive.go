// Package archive mirrors finished run artifacts into a Lode dataset so
// runs survive the orchestration root being cleaned up. Records are
// Hive-partitioned by project/subsystem/day/run_id and carry the bounded
// artifacts only: run record, capsule, manifest, and the event stream —
// never raw logs.
package archive

import (
	"context"
	"fmt"
	"os"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/warden/runledger"
	"github.com/pithecene-io/warden/types"
)

// Config identifies the archive dataset and the owning project.
type Config struct {
	// Dataset is the Lode dataset id, e.g. "warden-runs".
	Dataset string
	// Project labels every archived record; it is the first partition key.
	Project string
}

// Validate checks required configuration.
func (c *Config) Validate() error {
	if c.Dataset == "" {
		return fmt.Errorf("archive dataset is required")
	}
	if c.Project == "" {
		return fmt.Errorf("archive project is required")
	}
	return nil
}

// Archiver writes finished runs to the archive dataset.
type Archiver struct {
	dataset lode.Dataset
	config  Config
}

// New creates an archiver backed by filesystem storage rooted at root.
func New(config Config, root string) (*Archiver, error) {
	return NewWithFactory(config, lode.NewFSFactory(root))
}

// NewWithFactory creates an archiver with a custom store factory. Use
// lode.NewMemoryFactory() in tests.
func NewWithFactory(config Config, factory lode.StoreFactory) (*Archiver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	dataset, err := lode.NewDataset(
		lode.DatasetID(config.Dataset),
		factory,
		lode.WithHiveLayout("project", "subsystem", "day", "run_id"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, wrapStorageError(err, "init", config.Dataset)
	}
	return &Archiver{dataset: dataset, config: config}, nil
}

// ArchiveRun mirrors one terminal run into the dataset. In-progress runs
// are rejected: the archive holds only immutable records.
func (a *Archiver) ArchiveRun(ctx context.Context, ledger *runledger.Ledger, runID string) error {
	meta, err := ledger.Load(runID)
	if err != nil {
		return err
	}
	if !meta.Status.Terminal() {
		return fmt.Errorf("run %s is still in progress, refusing to archive", runID)
	}

	records := []any{runRecord(a.config, meta)}
	if capsule := readBounded(meta.CapsulePath); capsule != "" {
		records = append(records, artifactRecord(a.config, meta, "capsule", meta.CapsulePath, capsule))
	}
	if manifest := readBounded(meta.ManifestPath); manifest != "" {
		records = append(records, artifactRecord(a.config, meta, "manifest", meta.ManifestPath, manifest))
	}

	events, err := runledger.ReadEvents(meta.EventsPath)
	if err != nil {
		return err
	}
	for _, event := range events {
		records = append(records, eventRecord(a.config, meta, event))
	}

	if _, err := a.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return wrapStorageError(err, "write", runID)
	}
	return nil
}

func partitionFields(config Config, meta *types.RunMeta) map[string]any {
	return map[string]any{
		"project":   config.Project,
		"subsystem": meta.Subsystem,
		"day":       day(meta.StartedAt),
		"run_id":    meta.RunID,
	}
}

func runRecord(config Config, meta *types.RunMeta) map[string]any {
	record := partitionFields(config, meta)
	record["record_kind"] = "run"
	record["phase"] = meta.Phase
	record["status"] = string(meta.Status)
	record["started_at"] = meta.StartedAt
	record["host"] = meta.Host
	record["agent_runtime"] = meta.AgentRuntime
	if meta.ParentRunID != nil {
		record["parent_run_id"] = *meta.ParentRunID
	}
	if meta.FinishedAt != nil {
		record["finished_at"] = *meta.FinishedAt
	}
	return record
}

func artifactRecord(config Config, meta *types.RunMeta, kind, path, content string) map[string]any {
	record := partitionFields(config, meta)
	record["record_kind"] = kind
	record["path"] = path
	record["content"] = content
	return record
}

func eventRecord(config Config, meta *types.RunMeta, event types.Event) map[string]any {
	record := partitionFields(config, meta)
	record["record_kind"] = "event"
	record["seq"] = event.Seq
	record["event_type"] = string(event.Type)
	record["ts"] = event.Ts
	if event.Payload != nil {
		record["payload"] = event.Payload
	}
	return record
}

// readBounded reads a capsule or manifest. Both are size-bounded at write
// time, so a whole-file read is safe here. Missing artifacts read as empty.
func readBounded(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

// day extracts the YYYY-MM-DD partition key from an ISO 8601 timestamp.
func day(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}
