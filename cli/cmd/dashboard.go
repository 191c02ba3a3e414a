package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/cli/render"
	"github.com/pithecene-io/warden/dashboard"
)

// homeFlag overrides the dashboard home directory.
var homeFlag = &cli.StringFlag{
	Name:  "home",
	Usage: "Dashboard home holding the registry and index partitions",
}

// DashboardCommand returns the dashboard command with subcommands for the
// cross-project registry and index.
func DashboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "dashboard",
		Usage: "Multi-project registry and index",
		Subcommands: []*cli.Command{
			dashboardRegisterCommand(),
			dashboardUnregisterCommand(),
			dashboardIndexCommand(),
			dashboardListCommand(),
			dashboardRunsCommand(),
			dashboardEdgesCommand(),
		},
	}
}

func dashboardRegisterCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Register the current project with the dashboard",
		Flags: append(ReadOnlyFlags(), homeFlag),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			projectRoot, err := os.Getwd()
			if err != nil {
				return err
			}
			root := resolveRoot(c, cfg)
			if !filepath.IsAbs(root) {
				root = filepath.Join(projectRoot, root)
			}

			registry := dashboard.NewRegistry(resolveDashboardHome(c, cfg))
			projectID, err := registry.Register(projectRoot, root)
			if err != nil {
				return fmt.Errorf("register project: %w", err)
			}
			return r.Render(map[string]string{
				"project_id":   projectID,
				"project_root": projectRoot,
			})
		},
	}
}

func dashboardUnregisterCommand() *cli.Command {
	return &cli.Command{
		Name:      "unregister",
		Usage:     "Remove a project and its index partition",
		ArgsUsage: "<project-id>",
		Flags:     append(ReadOnlyFlags(), homeFlag),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("unregister requires exactly one project id", 1)
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			registry := dashboard.NewRegistry(resolveDashboardHome(c, cfg))
			return registry.Unregister(c.Args().First())
		},
	}
}

func dashboardIndexCommand() *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "Rebuild index partitions (all projects, or one by id)",
		ArgsUsage: "[project-id]",
		Flags:     append(ReadOnlyFlags(), homeFlag),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			registry := dashboard.NewRegistry(resolveDashboardHome(c, cfg))
			indexer := dashboard.NewIndexer(registry, nil)

			if c.NArg() == 1 {
				return indexer.IndexProject(c.Args().First())
			}

			projectRoot, err := os.Getwd()
			if err != nil {
				return err
			}
			return indexer.IndexAll(projectRoot)
		},
	}
}

func dashboardListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List registered projects",
		Flags: append(ReadOnlyFlags(), homeFlag),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			queries := dashboard.NewQueries(dashboard.NewRegistry(resolveDashboardHome(c, cfg)))
			projects, err := queries.ListProjects()
			if err != nil {
				return err
			}
			return r.Render(projects)
		},
	}
}

func dashboardRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List indexed runs across projects",
		Flags: append(ReadOnlyFlags(), homeFlag,
			&cli.StringFlag{
				Name:  "project",
				Usage: "Restrict to one project id",
			},
			&cli.StringFlag{
				Name:  "thread",
				Usage: "Show one run's ancestor chain instead, child first",
			},
		),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			queries := dashboard.NewQueries(dashboard.NewRegistry(resolveDashboardHome(c, cfg)))

			if runID := c.String("thread"); runID != "" {
				thread, err := queries.Thread(c.String("project"), runID)
				if err != nil {
					return err
				}
				return r.Render(thread)
			}

			runs, err := queries.Runs(c.String("project"))
			if err != nil {
				return err
			}
			return r.Render(runs)
		},
	}
}

func dashboardEdgesCommand() *cli.Command {
	return &cli.Command{
		Name:  "edges",
		Usage: "Show the cross-phase handoff summary",
		Flags: append(ReadOnlyFlags(), homeFlag,
			&cli.StringFlag{
				Name:  "project",
				Usage: "Restrict to one project id",
			},
		),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			queries := dashboard.NewQueries(dashboard.NewRegistry(resolveDashboardHome(c, cfg)))
			edges, err := queries.Edges(c.String("project"))
			if err != nil {
				return err
			}
			return r.Render(edges)
		},
	}
}
