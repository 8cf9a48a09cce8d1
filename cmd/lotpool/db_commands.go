package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/lotpool/lotpool/service/db"
)

// getStore connects to the projection database using the global flag.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	databaseURL := c.String("database-url")
	if databaseURL == "" {
		return nil, nil, fmt.Errorf("database URL is required (--database-url or DATABASE_URL)")
	}

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db.NewStore(pool), pool.Close, nil
}

func dbListPoolsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-pools",
		Usage:   "List pool projections",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Filter by status (open, locked, ended, ...)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of pools",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			pools, err := store.ListPools(context.Background(), db.ListPoolsParams{
				Status: c.String("status"),
				Limit:  int32(c.Int("limit")),
			})
			if err != nil {
				return fmt.Errorf("failed to list pools: %w", err)
			}

			if c.Bool("json") {
				return printJSON(os.Stdout, pools, "")
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tSTATUS\tPARTICIPANTS\tTOTAL AMOUNT\tUPDATED")
			for _, p := range pools {
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%s\n",
					p.Address,
					p.Status,
					p.ParticipantCount,
					p.MaxParticipants,
					p.TotalAmount,
					p.UpdatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d pools\n", len(pools))
			return nil
		},
	}
}

func dbGetPoolCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-pool",
		Usage:     "Get one pool projection",
		Aliases:   []string{"get"},
		ArgsUsage: "<address>",
		Flags:     []cli.Flag{filterFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: pool address")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			pool, err := store.GetPool(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get pool: %w", err)
			}

			return printJSON(os.Stdout, pool, c.String("filter"))
		},
	}
}

func dbListTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transactions",
		Usage:   "List consumed transaction signatures",
		Aliases: []string{"txs"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "pool",
				Aliases: []string{"p"},
				Usage:   "Filter by pool address",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   50,
				Usage:   "Maximum number of rows",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			txns, err := store.ListUsedTransactions(context.Background(), c.String("pool"), int32(c.Int("limit")))
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if c.Bool("json") {
				return printJSON(os.Stdout, txns, "")
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SIGNATURE\tOPERATION\tPOOL\tACTOR\tSLOT\tUSED AT")
			for _, t := range txns {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					t.Signature,
					t.Operation,
					t.PoolAddress,
					t.Actor,
					t.Slot,
					t.UsedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d transactions\n", len(txns))
			return nil
		},
	}
}
