package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// errLogger returns a logger that only surfaces errors; command output goes
// to stdout, diagnostics to stderr.
func errLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// printJSON writes v to w as indented JSON, optionally piped through a jq
// filter first. Each filter result is printed on its own line.
func printJSON(w io.Writer, v interface{}, filter string) error {
	if filter == "" {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	results, err := applyFilter(v, filter)
	if err != nil {
		return err
	}
	for _, r := range results {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal filtered output: %w", err)
		}
		fmt.Fprintln(w, string(data))
	}
	return nil
}

// applyFilter runs a jq filter over v and returns the produced values.
// gojq only accepts plain JSON types, so v is round-tripped through
// encoding/json first.
func applyFilter(v interface{}, filter string) ([]interface{}, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input: %w", err)
	}
	var plain interface{}
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input: %w", err)
	}

	var results []interface{}
	iter := code.Run(plain)
	for {
		r, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := r.(error); isErr {
			return nil, fmt.Errorf("jq filter error: %w", err)
		}
		results = append(results, r)
	}
	return results, nil
}

// filterFlag is the shared --filter flag for read commands.
func filterFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "filter",
		Aliases: []string{"f"},
		Usage:   "jq filter applied to the JSON output (e.g. '.status')",
	}
}
