package avs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/TFMV/avs/api"
	"github.com/TFMV/avs/internal/store"
)

var keyClient string

// keysCmd groups the API key commands
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

// keysCreateCmd issues a key for a client without going through the API
var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue an API key for a client IP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
		}
		defer st.Close(context.Background())

		return createKey(ctx, cmd.OutOrStdout(), st, keyClient)
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd)

	keysCreateCmd.Flags().StringVar(&keyClient, "client", "", "Client IP the key is issued to")
	_ = keysCreateCmd.MarkFlagRequired("client")
}

// createKey stores a new key for client. A client holds at most one key.
func createKey(ctx context.Context, w io.Writer, st store.KeyStore, client string) error {
	if _, err := st.FindKeyByClient(ctx, client); err == nil {
		return fmt.Errorf("client %s already holds a key", client)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	key, err := api.NewAPIKey()
	if err != nil {
		return err
	}
	issued := store.APIKey{Key: key, ClientIP: client, Created: time.Now().UTC()}
	if err := st.InsertKey(ctx, issued); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(issued)
}
