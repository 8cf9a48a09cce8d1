package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "lotpool",
		Usage: "Solana staking pool synchronization service CLI",
		Description: `A command-line tool for managing and debugging the lotpool service.

Use this CLI to report finalized pool transactions, inspect on-chain and
projected pool state, run admin operations, and manage the reconcile
schedule.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// HTTP API commands
			poolCommands(),
			// Direct chain reads
			chainCommands(),
			// Admin transactions signed with the admin keypair
			adminCommands(),
			// Projection database inspection
			{
				Name:  "db",
				Usage: "Projection database inspection commands",
				Subcommands: []*cli.Command{
					dbListPoolsCommand(),
					dbGetPoolCommand(),
					dbListTransactionsCommand(),
				},
			},
			// Temporal schedule management
			{
				Name:  "temporal",
				Usage: "Temporal schedule inspection and management commands",
				Subcommands: []*cli.Command{
					createScheduleCommand(),
					describeScheduleCommand(),
					pauseScheduleCommand(),
					resumeScheduleCommand(),
					deleteScheduleCommand(),
					triggerScheduleCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "temporal-task-queue",
				Usage:   "Temporal task queue for the reconcile workflow",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "lotpool-reconcile",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Server URL for API and health checks",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
