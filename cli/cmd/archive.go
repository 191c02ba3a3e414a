package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/archive"
	"github.com/pithecene-io/warden/cli/config"
	"github.com/pithecene-io/warden/runledger"
)

// ArchiveCommand returns the archive command: persist a finalized run's
// bounded artifacts to cold storage.
func ArchiveCommand() *cli.Command {
	return &cli.Command{
		Name:      "archive",
		Usage:     "Archive a finalized run to cold storage",
		ArgsUsage: "<run-id>",
		Flags: []cli.Flag{
			ConfigFlag,
			RootFlag,
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Storage backend: fs or s3 (default from config)",
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "Storage path (fs: directory, s3: s3://bucket/prefix)",
			},
			&cli.StringFlag{
				Name:  "project",
				Usage: "Project label, the first partition key",
			},
		},
		Action: archiveAction,
	}
}

func archiveAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("archive requires exactly one run id", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	archiver, err := buildArchiver(c, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("archive setup: %v", err), exitSetupError)
	}

	ledger := runledger.New(resolveRoot(c, cfg))
	runID := c.Args().First()
	if err := archiver.ArchiveRun(c.Context, ledger, runID); err != nil {
		return fmt.Errorf("archive run %s: %w", runID, err)
	}
	fmt.Printf("archived %s\n", runID)
	return nil
}

func buildArchiver(c *cli.Context, cfg *config.Config) (*archive.Archiver, error) {
	backend := c.String("backend")
	if backend == "" {
		backend = cfg.Archive.Backend
	}
	path := c.String("path")
	if path == "" {
		path = cfg.Archive.Path
	}
	project := c.String("project")
	if project == "" {
		project = cfg.Archive.Project
	}
	dataset := cfg.Archive.Dataset
	if dataset == "" {
		dataset = "warden-runs"
	}

	archiveConfig := archive.Config{Dataset: dataset, Project: project}

	switch backend {
	case "", "fs":
		if path == "" {
			return nil, fmt.Errorf("fs backend requires --path or archive.path in config")
		}
		return archive.New(archiveConfig, path)
	case "s3":
		bucket, prefix := archive.ParseS3Path(strings.TrimPrefix(path, "s3://"))
		return archive.NewS3(c.Context, archiveConfig, archive.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       cfg.Archive.Region,
			Endpoint:     cfg.Archive.Endpoint,
			UsePathStyle: cfg.Archive.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown backend: %s (must be fs or s3)", backend)
	}
}
