package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	sol "github.com/lotpool/lotpool/service/solana"
)

func chainCommands() *cli.Command {
	return &cli.Command{
		Name:  "chain",
		Usage: "Direct on-chain reads of pool program accounts",
		Subcommands: []*cli.Command{
			chainInspectCommand(),
			chainParticipantsCommand(),
			chainDeriveCommand(),
		},
	}
}

func chainFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "rpc-url",
			Usage:   "Solana RPC endpoint",
			EnvVars: []string{"SOLANA_RPC_URL"},
			Value:   "https://api.devnet.solana.com",
		},
		&cli.StringFlag{
			Name:    "network",
			Usage:   "Expected network (mainnet or devnet)",
			EnvVars: []string{"SOLANA_NETWORK"},
			Value:   "devnet",
		},
		&cli.StringFlag{
			Name:    "program-id",
			Usage:   "Pool program ID",
			EnvVars: []string{"POOL_PROGRAM_ID"},
		},
	}
}

func buildChainClient(c *cli.Context) (*sol.Client, error) {
	if c.String("program-id") == "" {
		return nil, fmt.Errorf("program ID is required (--program-id or POOL_PROGRAM_ID)")
	}
	programID, err := solanago.PublicKeyFromBase58(c.String("program-id"))
	if err != nil {
		return nil, fmt.Errorf("invalid program ID: %w", err)
	}

	rpcURL := c.String("rpc-url")
	rpcClient := sol.NewRPCClient(rpcURL)
	chainClient := sol.NewClient(rpcClient, programID, c.String("network"), sol.DefaultParticipantsLayout, rpcURL, nil, errLogger())

	verifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := chainClient.VerifyNetwork(verifyCtx); err != nil {
		return nil, fmt.Errorf("rpc endpoint network check failed: %w", err)
	}

	return chainClient, nil
}

// poolAccountView is the JSON shape of a decoded pool account; raw public
// keys and status bytes are rendered readable.
type poolAccountView struct {
	PoolID                 uint64 `json:"pool_id"`
	Mint                   string `json:"mint"`
	PoolToken              string `json:"pool_token"`
	Creator                string `json:"creator"`
	Status                 string `json:"status"`
	StatusByte             uint8  `json:"status_byte"`
	StatusReason           uint8  `json:"status_reason,omitempty"`
	Paused                 bool   `json:"paused"`
	Initialized            bool   `json:"initialized"`
	Amount                 uint64 `json:"amount"`
	TotalAmount            uint64 `json:"total_amount"`
	TotalVolume            uint64 `json:"total_volume"`
	TotalJoins             uint32 `json:"total_joins"`
	TotalDonations         uint32 `json:"total_donations"`
	MaxParticipants        uint8  `json:"max_participants"`
	Schema                 uint8  `json:"schema"`
	Version                uint8  `json:"version"`
	StartTime              int64  `json:"start_time,omitempty"`
	EndTime                int64  `json:"end_time,omitempty"`
	UnlockTime             int64  `json:"unlock_time,omitempty"`
	LockStartTime          int64  `json:"lock_start_time,omitempty"`
	LockDuration           int64  `json:"lock_duration,omitempty"`
	RandomnessAccount      string `json:"randomness_account,omitempty"`
	RandomnessDeadlineSlot uint64 `json:"randomness_deadline_slot,omitempty"`
	ParticipantsAccount    string `json:"participants_account"`
	Winner                 string `json:"winner,omitempty"`
	DevWallet              string `json:"dev_wallet"`
	TreasuryWallet         string `json:"treasury_wallet"`
}

func viewPoolAccount(account *sol.PoolAccount) poolAccountView {
	view := poolAccountView{
		PoolID:                 account.PoolID,
		Mint:                   account.Mint.String(),
		PoolToken:              account.PoolToken.String(),
		Creator:                account.Creator.String(),
		Status:                 account.Status.String(),
		StatusByte:             uint8(account.Status),
		StatusReason:           account.StatusReason,
		Paused:                 account.Paused,
		Initialized:            account.Initialized,
		Amount:                 account.Amount,
		TotalAmount:            account.TotalAmount,
		TotalVolume:            account.TotalVolume,
		TotalJoins:             account.TotalJoins,
		TotalDonations:         account.TotalDonations,
		MaxParticipants:        account.MaxParticipants,
		Schema:                 account.Schema,
		Version:                account.Version,
		StartTime:              account.StartTime,
		EndTime:                account.EndTime,
		UnlockTime:             account.UnlockTime,
		LockStartTime:          account.LockStartTime,
		LockDuration:           account.LockDuration,
		RandomnessDeadlineSlot: account.RandomnessDeadlineSlot,
		ParticipantsAccount:    account.ParticipantsAccount.String(),
		DevWallet:              account.DevWallet.String(),
		TreasuryWallet:         account.TreasuryWallet.String(),
	}
	if !account.RandomnessAccount.IsZero() {
		view.RandomnessAccount = account.RandomnessAccount.String()
	}
	if !account.Winner.IsZero() {
		view.Winner = account.Winner.String()
	}
	return view
}

func chainInspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Decode a pool account at the finalized commitment",
		ArgsUsage: "POOL_ADDRESS",
		Flags:     append(chainFlags(), filterFlag()),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: pool address")
			}
			address, err := solanago.PublicKeyFromBase58(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid pool address: %w", err)
			}

			chainClient, err := buildChainClient(c)
			if err != nil {
				return err
			}

			account, err := chainClient.GetPoolState(context.Background(), address)
			if err != nil {
				return fmt.Errorf("failed to read pool account: %w", err)
			}

			return printJSON(os.Stdout, viewPoolAccount(account), c.String("filter"))
		},
	}
}

func chainParticipantsCommand() *cli.Command {
	return &cli.Command{
		Name:      "participants",
		Usage:     "Decode a pool's participant list at the finalized commitment",
		ArgsUsage: "POOL_ADDRESS",
		Flags:     append(chainFlags(), filterFlag()),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: pool address")
			}
			address, err := solanago.PublicKeyFromBase58(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid pool address: %w", err)
			}

			chainClient, err := buildChainClient(c)
			if err != nil {
				return err
			}

			ctx := context.Background()
			account, err := chainClient.GetPoolState(ctx, address)
			if err != nil {
				return fmt.Errorf("failed to read pool account: %w", err)
			}

			participants, err := chainClient.GetParticipants(ctx, account.ParticipantsAccount, account.Schema)
			if err != nil {
				return fmt.Errorf("failed to read participants account: %w", err)
			}

			list := make([]string, len(participants.List))
			for i, p := range participants.List {
				list[i] = p.String()
			}
			out := map[string]interface{}{
				"pool":         address.String(),
				"account":      account.ParticipantsAccount.String(),
				"count":        participants.Count,
				"capacity":     participants.Capacity,
				"participants": list,
			}
			return printJSON(os.Stdout, out, c.String("filter"))
		},
	}
}

// parseSalt decodes a 32-byte hex salt; empty means the zero salt.
func parseSalt(s string) ([32]byte, error) {
	var salt [32]byte
	if s == "" {
		return salt, nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return salt, fmt.Errorf("salt must be hex: %w", err)
	}
	if len(decoded) != 32 {
		return salt, fmt.Errorf("salt must be 32 bytes, got %d", len(decoded))
	}
	copy(salt[:], decoded)
	return salt, nil
}

func chainDeriveCommand() *cli.Command {
	return &cli.Command{
		Name:      "derive",
		Usage:     "Derive the pool and participants addresses for a mint and salt",
		ArgsUsage: "MINT_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "program-id",
				Usage:   "Pool program ID",
				EnvVars: []string{"POOL_PROGRAM_ID"},
			},
			&cli.StringFlag{
				Name:  "salt",
				Usage: "32-byte creation salt as hex (default: zero salt)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: mint address")
			}
			if c.String("program-id") == "" {
				return fmt.Errorf("program ID is required (--program-id or POOL_PROGRAM_ID)")
			}

			mint, err := solanago.PublicKeyFromBase58(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid mint address: %w", err)
			}
			programID, err := solanago.PublicKeyFromBase58(c.String("program-id"))
			if err != nil {
				return fmt.Errorf("invalid program ID: %w", err)
			}
			salt, err := parseSalt(c.String("salt"))
			if err != nil {
				return err
			}

			pool, poolBump, err := sol.DerivePoolAddress(programID, mint, salt)
			if err != nil {
				return fmt.Errorf("failed to derive pool address: %w", err)
			}
			participants, participantsBump, err := sol.DeriveParticipantsAddress(programID, pool)
			if err != nil {
				return fmt.Errorf("failed to derive participants address: %w", err)
			}

			return printJSON(os.Stdout, map[string]interface{}{
				"pool":              pool.String(),
				"pool_bump":         poolBump,
				"participants":      participants.String(),
				"participants_bump": participantsBump,
			}, "")
		},
	}
}
