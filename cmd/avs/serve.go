package avs

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TFMV/avs/api"
	"github.com/TFMV/avs/internal/config"
	"github.com/TFMV/avs/internal/events"
	"github.com/TFMV/avs/internal/metrics"
	"github.com/TFMV/avs/internal/similarity"
	"github.com/TFMV/avs/internal/store"
	"github.com/TFMV/avs/internal/verify"
)

var (
	serverPort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server providing address verification, API key
issuance and management of the reference addresses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Use configured port if not overridden
		if serverPort != 0 {
			cfg.API.Port = serverPort
		}

		return Serve(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&serverPort, "port", 0, "Server port (overrides config)")
}

// Serve opens the configured store and event publisher and runs the API
// server until ctx is canceled or the process is signaled.
func Serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	defer st.Close(context.Background())

	m := metrics.New(metrics.DefaultNamespace)
	verifier, err := newVerifier(cfg, st, logger, verify.WithObserver(m))
	if err != nil {
		return err
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.Events.NATSURL != "" {
		nc, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			return err
		}
		publisher = nc
		logger.Info("publishing change events", zap.String("url", cfg.Events.NATSURL))
	}
	defer publisher.Close()

	server := api.NewServer(cfg, api.Deps{
		Store:    st,
		Verifier: verifier,
		Events:   publisher,
		Metrics:  m,
		Logger:   logger,
	})
	return api.RunServer(ctx, server, cfg.ShutdownTimeout())
}

// newVerifier builds the verification service from the matching settings.
func newVerifier(cfg *config.Config, st store.AddressStore, logger *zap.Logger, opts ...verify.Option) (*verify.Service, error) {
	scorer, err := similarity.NewRegistry().Lookup(cfg.Matching.Scorer)
	if err != nil {
		return nil, err
	}

	opts = append([]verify.Option{verify.WithLogger(logger)}, opts...)
	return verify.NewService(st, verify.Config{
		QueryTimeout:        cfg.QueryTimeout(),
		SimilarityFloor:     cfg.Matching.SimilarityFloor,
		FuzzyCandidateLimit: cfg.Matching.FuzzyCandidateLimit,
		Similarity:          scorer,
	}, opts...), nil
}
