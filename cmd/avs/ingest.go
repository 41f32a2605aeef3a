package avs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TFMV/avs/internal/dataset"
)

var (
	format    string
	batchSize int
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Load reference addresses from a file",
	Long: `Load reference addresses from a CSV or JSON file into the configured
store. Addresses are canonicalized first; invalid rows and addresses the
store already holds are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := dataset.ReadFile(args[0], format)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
		}
		defer st.Close(context.Background())

		logger.Info("ingesting addresses", zap.String("file", args[0]), zap.Int("rows", len(rows)))
		start := time.Now()

		stats, err := dataset.NewLoader(st, batchSize, logger).Load(ctx, rows)
		if err != nil {
			return fmt.Errorf("ingest stopped after %d inserts: %w", stats.Inserted, err)
		}

		logger.Info("ingest finished",
			zap.Int("inserted", stats.Inserted),
			zap.Int("duplicates", stats.Duplicates),
			zap.Int("invalid", stats.Invalid),
			zap.Duration("duration", time.Since(start)))

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&format, "format", "", "Input format: csv or json (default from the file extension)")
	ingestCmd.Flags().IntVar(&batchSize, "batch-size", dataset.DefaultBatchSize, "Addresses inserted per batch")
}
