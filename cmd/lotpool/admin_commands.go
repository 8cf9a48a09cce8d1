package main

import (
	"context"
	"fmt"
	"os"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	sol "github.com/lotpool/lotpool/service/solana"
)

func adminCommands() *cli.Command {
	return &cli.Command{
		Name:  "admin",
		Usage: "Admin transactions signed with the admin keypair",
		Subcommands: []*cli.Command{
			adminSimpleCommand("pause", "Pause a pool; the reconciler skips paused pools",
				func(b *sol.InstructionBuilder, pool, admin solanago.PublicKey, _ *cli.Context) solanago.Instruction {
					return b.PausePool(pool, admin)
				}, nil),
			adminSimpleCommand("unpause", "Unpause a pool",
				func(b *sol.InstructionBuilder, pool, admin solanago.PublicKey, _ *cli.Context) solanago.Instruction {
					return b.UnpausePool(pool, admin)
				}, nil),
			adminSimpleCommand("force-expire", "Force a pool into its expiry path",
				func(b *sol.InstructionBuilder, pool, admin solanago.PublicKey, _ *cli.Context) solanago.Instruction {
					return b.ForceExpire(pool, admin)
				}, nil),
			adminSimpleCommand("set-lock-duration", "Override a pool's lock duration",
				func(b *sol.InstructionBuilder, pool, admin solanago.PublicKey, c *cli.Context) solanago.Instruction {
					return b.SetLockDuration(pool, admin, int64(c.Duration("duration")/time.Second))
				}, []cli.Flag{
					&cli.DurationFlag{
						Name:     "duration",
						Usage:    "New lock duration (e.g. 30m, 2h)",
						Required: true,
					},
				}),
		},
	}
}

func adminFlags() []cli.Flag {
	return append(chainFlags(),
		&cli.StringFlag{
			Name:    "keypair",
			Usage:   "Path to the admin keypair file",
			EnvVars: []string{"ADMIN_KEYPAIR_PATH"},
		},
		&cli.Uint64Flag{
			Name:    "priority-fee",
			Usage:   "Priority fee in micro-lamports per compute unit",
			EnvVars: []string{"PRIORITY_FEE_MICRO_LAMPORTS"},
		},
	)
}

// adminSimpleCommand builds one admin subcommand. The admin operations all
// take the pool address as the only argument and differ in the instruction
// they submit.
func adminSimpleCommand(name, usage string, build func(*sol.InstructionBuilder, solanago.PublicKey, solanago.PublicKey, *cli.Context) solanago.Instruction, extraFlags []cli.Flag) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "POOL_ADDRESS",
		Flags:     append(adminFlags(), extraFlags...),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: pool address")
			}
			pool, err := solanago.PublicKeyFromBase58(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid pool address: %w", err)
			}

			if c.String("keypair") == "" {
				return fmt.Errorf("admin keypair is required (--keypair or ADMIN_KEYPAIR_PATH)")
			}
			wallet, err := sol.LoadKeypairWallet(c.String("keypair"))
			if err != nil {
				return fmt.Errorf("failed to load admin keypair: %w", err)
			}

			chainClient, err := buildChainClient(c)
			if err != nil {
				return err
			}

			submitter := sol.NewSubmitter(chainClient, sol.DefaultRetryPolicy, c.Uint64("priority-fee"), nil, errLogger())
			builder := sol.NewInstructionBuilder(chainClient.ProgramID())
			ix := build(builder, pool, wallet.PublicKey(), c)

			fmt.Fprintf(os.Stderr, "Submitting %s for pool %s as %s...\n", name, pool, wallet.PublicKey())

			sig, err := submitter.Submit(context.Background(), wallet, []solanago.Instruction{ix})
			if err != nil {
				return fmt.Errorf("submit failed: %w", err)
			}

			return printJSON(os.Stdout, map[string]interface{}{
				"operation": name,
				"pool":      pool.String(),
				"admin":     wallet.PublicKey().String(),
				"signature": sig.String(),
			}, "")
		},
	}
}
