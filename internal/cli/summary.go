package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cloudpulse/internal/app"
)

var summaryProjectID string

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Display a project's spend summary and forecast",
	RunE: func(cmd *cobra.Command, args []string) error {
		if summaryProjectID == "" {
			return fmt.Errorf("--project is required")
		}

		return getApp().Summary(cmd.Context(), app.SummaryOptions{ProjectID: summaryProjectID})
	},
}

func init() {
	summaryCmd.Flags().StringVar(&summaryProjectID, "project", "", "Project ID to summarise")
}
