package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cloudpulse/internal/app"
)

var (
	fetchAccountID string
	fetchStartDate string
	fetchEndDate   string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch and store cost data for one cloud account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if fetchAccountID == "" {
			return fmt.Errorf("--account is required")
		}

		opts := app.FetchOptions{
			AccountID: fetchAccountID,
			StartDate: fetchStartDate,
			EndDate:   fetchEndDate,
		}
		return getApp().Fetch(cmd.Context(), opts)
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchAccountID, "account", "", "Cloud account ID to fetch")
	fetchCmd.Flags().StringVar(&fetchStartDate, "from", "", "Start date (YYYY-MM-DD, inclusive; defaults to lookback window)")
	fetchCmd.Flags().StringVar(&fetchEndDate, "to", "", "End date (YYYY-MM-DD, exclusive; defaults to tomorrow)")
}
