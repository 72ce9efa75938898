package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cloudpulse/internal/app"
)

var (
	recordsAccountID string
	recordsFrom      string
	recordsTo        string
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List stored cost records for one cloud account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if recordsAccountID == "" {
			return fmt.Errorf("--account is required")
		}

		opts := app.RecordsOptions{AccountID: recordsAccountID}

		if recordsFrom != "" {
			from, err := time.Parse("2006-01-02", recordsFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if recordsTo != "" {
			to, err := time.Parse("2006-01-02", recordsTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().Records(cmd.Context(), opts)
	},
}

func init() {
	recordsCmd.Flags().StringVar(&recordsAccountID, "account", "", "Cloud account ID")
	recordsCmd.Flags().StringVar(&recordsFrom, "from", "", "Start date (YYYY-MM-DD, inclusive; defaults to 30 days back)")
	recordsCmd.Flags().StringVar(&recordsTo, "to", "", "End date (YYYY-MM-DD, exclusive; defaults to tomorrow)")
}
