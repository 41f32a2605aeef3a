package avs

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TFMV/avs/internal/config"
	"github.com/TFMV/avs/internal/logging"
)

var cfgFile string
var cfg *config.Config
var logger *zap.Logger

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "avs",
	Short: "AVS - address verification service",
	Long: `AVS verifies postal addresses against a reference address store.
Exact matches are confirmed with a canonical recommendation, near matches
are ranked by string similarity and the reference data is managed over an
authenticated HTTP API or loaded in bulk from CSV and JSON files.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("error creating logger: %w", err)
	}
	return nil
}
