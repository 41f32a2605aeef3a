package avs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/verify"
)

var (
	verifyFile     string
	verifyInput    address.Address
	noRecommend    bool
	verifyIndented bool
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify one address against the reference store",
	Long: `Verify one address, given by flags or as a JSON document, and print
the verification result in the same envelope the HTTP API returns.`,
	Example: `  avs verify --line1 "2870 Clay Rd" --city Antioch --state TN --postal 37013 --country US
  avs verify --file address.json --no-recommendation`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := verifyInput
		if verifyFile != "" {
			var err error
			if a, err = readAddressFile(verifyFile); err != nil {
				return err
			}
		}

		ctx := cmd.Context()
		st, err := openStore(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
		}
		defer st.Close(context.Background())

		verifier, err := newVerifier(cfg, st, logger)
		if err != nil {
			return err
		}
		return runVerify(ctx, cmd.OutOrStdout(), verifier, a, verify.Options{SuppressRecommendation: noRecommend}, verifyIndented)
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	f := verifyCmd.Flags()
	f.StringVar(&verifyFile, "file", "", "JSON file holding the address to verify")
	f.StringVar(&verifyInput.AddressLine1, "line1", "", "Street line")
	f.StringVar(&verifyInput.AddressLine2, "line2", "", "Secondary line")
	f.StringVar(&verifyInput.City, "city", "", "City")
	f.StringVar(&verifyInput.StateProv, "state", "", "State or province")
	f.StringVar(&verifyInput.PostalCode, "postal", "", "Postal code")
	f.StringVar(&verifyInput.Country, "country", "", "Country")
	f.BoolVar(&noRecommend, "no-recommendation", false, "Omit the recommended address")
	f.BoolVar(&verifyIndented, "pretty", true, "Indent the JSON output")
	verifyCmd.MarkFlagsMutuallyExclusive("file", "line1")
}

// runVerify verifies a and writes the result envelope to w. Validation
// failures are reported per field.
func runVerify(ctx context.Context, w io.Writer, v *verify.Service, a address.Address, opts verify.Options, indent bool) error {
	res, err := v.Verify(ctx, a, opts)
	if err != nil {
		var verr *address.ValidationError
		if errors.As(err, &verr) {
			for _, f := range verr.Fields {
				fmt.Fprintf(w, "%s: %s\n", f.Field, f.Message)
			}
			return errors.New("invalid address")
		}
		return err
	}

	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}

func readAddressFile(path string) (address.Address, error) {
	var a address.Address
	data, err := os.ReadFile(path)
	if err != nil {
		return a, fmt.Errorf("error reading address file: %w", err)
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("error parsing address file: %w", err)
	}
	return a, nil
}
