package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cloudpulse/internal/app"
)

var (
	historyProjectID string
	historyLimit     int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display a project's delivered alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyProjectID == "" {
			return fmt.Errorf("--project is required")
		}
		if historyLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.HistoryOptions{
			ProjectID: historyProjectID,
			Limit:     historyLimit,
		}
		return getApp().History(cmd.Context(), opts)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyProjectID, "project", "", "Project ID")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Number of alerts to display")
}
