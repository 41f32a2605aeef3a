package avs

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TFMV/avs/internal/config"
	"github.com/TFMV/avs/internal/store/postgres"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Store.Driver != config.DriverPostgres {
			return fmt.Errorf("migrate needs the %s driver, configured driver is %s", config.DriverPostgres, cfg.Store.Driver)
		}

		ctx := cmd.Context()
		st, err := postgres.Open(ctx, cfg.Store.Postgres.DSN)
		if err != nil {
			return err
		}
		defer st.Close(ctx)

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("database migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
