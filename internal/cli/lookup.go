package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clientdesk/internal/config"
	"clientdesk/internal/credential"
	"clientdesk/internal/lookup"
	"clientdesk/internal/sheets"
)

// newLookupCommand runs a single query against the sheet from the terminal,
// useful for checking the configuration before pointing the bot at a chat.
func newLookupCommand(logger *slog.Logger) *cobra.Command {
	var noSnapshot bool
	command := &cobra.Command{
		Use:   "lookup <text>",
		Short: "Run a one-shot client lookup",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()

			creds, err := credential.Resolve(cfg.SheetsToken, cfg.SheetsTokenFile)
			if err != nil {
				creds = credential.Static("")
			}
			sheetClient := sheets.New(cfg.SheetsAPI, cfg.SpreadsheetID, cfg.SheetName, creds, logger)
			resolver, err := lookup.NewRowResolver(sheetClient, cfg.RowCacheSize)
			if err != nil {
				return err
			}
			var snapshots lookup.SnapshotStore
			if !noSnapshot {
				snapshots = lookup.NewFileSnapshotStore(cfg.SnapshotPath)
			}
			engine := lookup.NewEngine(sheetClient, resolver, snapshots, lookup.Options{
				Keywords:  cfg.ColumnKeywords(),
				IndexTTL:  time.Duration(cfg.IndexTTLSec) * time.Second,
				MinDigits: cfg.MinClientDigits,
				Logger:    logger,
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.RefreshTimeoutSec)*time.Second)
			defer cancel()
			if err := engine.Warm(ctx); err != nil {
				return fmt.Errorf("build index: %w", err)
			}

			result := engine.Lookup(ctx, lookup.Query{
				Conversation: "cli",
				Sender:       "cli",
				Text:         strings.Join(args, " "),
			})
			printResult(cmd, result)
			return nil
		},
	}
	command.Flags().BoolVar(&noSnapshot, "no-snapshot", false, "ignore the persisted index snapshot")
	return command
}

func printResult(cmd *cobra.Command, result lookup.Result) {
	switch result.Outcome {
	case lookup.OutcomeFound:
		if result.SuffixMatched {
			cmd.Println("matched by number ending")
		}
		cmd.Printf("row %d\n", result.Record.RowNumber)
		cmd.Println(result.Record.String())
	case lookup.OutcomeNotFound:
		cmd.Printf("no client found for %s\n", result.Key)
	case lookup.OutcomeNoKey:
		cmd.Println("no usable client number in input")
	default:
		cmd.Printf("lookup failed: %v\n", result.Err)
	}
}
