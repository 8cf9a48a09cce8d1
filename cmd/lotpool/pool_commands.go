package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/lotpool/lotpool/client"
)

func poolCommands() *cli.Command {
	return &cli.Command{
		Name:  "pool",
		Usage: "Pool commands against the HTTP API",
		Subcommands: []*cli.Command{
			poolRegisterCommand(),
			poolGetCommand(),
			poolListCommand(),
			poolParticipantsCommand(),
			poolClaimCommand("join", "Report a finalized join_pool transaction",
				func(cl *client.Client, ctx context.Context, pool string, claim client.Claim) (*client.Pool, error) {
					return cl.Join(ctx, pool, claim)
				}),
			poolClaimCommand("donate", "Report a finalized donate transaction",
				func(cl *client.Client, ctx context.Context, pool string, claim client.Claim) (*client.Pool, error) {
					return cl.Donate(ctx, pool, claim)
				}),
			poolClaimCommand("cancel", "Report a finalized cancel_pool transaction",
				func(cl *client.Client, ctx context.Context, pool string, claim client.Claim) (*client.Pool, error) {
					return cl.Cancel(ctx, pool, claim)
				}),
			poolClaimCommand("claim-refund", "Report a finalized claim_refund transaction",
				func(cl *client.Client, ctx context.Context, pool string, claim client.Claim) (*client.Pool, error) {
					return cl.ClaimRefund(ctx, pool, claim)
				}),
			poolClaimCommand("claim-rent", "Report a finalized claim_rent transaction",
				func(cl *client.Client, ctx context.Context, pool string, claim client.Claim) (*client.Pool, error) {
					return cl.ClaimRent(ctx, pool, claim)
				}),
		},
	}
}

func apiClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, errLogger())
}

func poolRegisterCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "Register a freshly created pool with its creation signature",
		ArgsUsage: "POOL_ADDRESS SIGNATURE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("requires exactly two arguments: pool address and creation signature")
			}

			cl := apiClient(c)
			pool, err := cl.RegisterPool(context.Background(), c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return fmt.Errorf("failed to register pool: %w", err)
			}

			return printJSON(os.Stdout, pool, "")
		},
	}
}

// poolClaimCommand builds one claim subcommand; the five claim routes only
// differ in the endpoint they hit.
func poolClaimCommand(name, usage string, call func(*client.Client, context.Context, string, client.Claim) (*client.Pool, error)) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "POOL_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "signature",
				Usage:    "Finalized transaction signature",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "actor",
				Usage:    "Address that signed the transaction",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:  "amount",
				Usage: "Expected token amount encoded in the instruction (optional)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: pool address")
			}

			claim := client.Claim{
				Signature: c.String("signature"),
				Actor:     c.String("actor"),
			}
			if c.IsSet("amount") {
				amount := c.Uint64("amount")
				claim.Amount = &amount
			}

			cl := apiClient(c)
			pool, err := call(cl, context.Background(), c.Args().First(), claim)
			if err != nil {
				return fmt.Errorf("claim failed: %w", err)
			}

			return printJSON(os.Stdout, pool, "")
		},
	}
}

func poolGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Aliases:   []string{"show"},
		Usage:     "Get a pool projection",
		ArgsUsage: "POOL_ADDRESS",
		Flags:     []cli.Flag{filterFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: pool address")
			}

			cl := apiClient(c)
			pool, err := cl.GetPool(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get pool: %w", err)
			}

			return printJSON(os.Stdout, pool, c.String("filter"))
		},
	}
}

func poolListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List pool projections",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by status (open, locked, ended, ...)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of pools to return",
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of pools to skip",
			},
			filterFlag(),
		},
		Action: func(c *cli.Context) error {
			cl := apiClient(c)
			pools, err := cl.ListPools(context.Background(), client.ListPoolsOptions{
				Status: c.String("status"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return fmt.Errorf("failed to list pools: %w", err)
			}

			return printJSON(os.Stdout, pools, c.String("filter"))
		},
	}
}

func poolParticipantsCommand() *cli.Command {
	return &cli.Command{
		Name:      "participants",
		Usage:     "List the recorded participants of a pool",
		ArgsUsage: "POOL_ADDRESS",
		Flags:     []cli.Flag{filterFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: pool address")
			}

			cl := apiClient(c)
			participants, err := cl.ListParticipants(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to list participants: %w", err)
			}

			return printJSON(os.Stdout, participants, c.String("filter"))
		},
	}
}
