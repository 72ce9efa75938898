package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cloudpulse/internal/app"
)

var (
	ruleAddProjectID     string
	ruleAddDailyBudget   float64
	ruleAddMonthlyBudget float64
	ruleAddSpikePct      int
	ruleAddEmail         bool
	ruleAddWebhookURL    string

	ruleListProjectID string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage alert rules",
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an alert rule for a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		if ruleAddProjectID == "" {
			return fmt.Errorf("--project is required")
		}

		opts := app.RuleAddOptions{
			ProjectID:         ruleAddProjectID,
			DailyBudget:       ruleAddDailyBudget,
			MonthlyBudget:     ruleAddMonthlyBudget,
			SpikeThresholdPct: ruleAddSpikePct,
			EmailEnabled:      ruleAddEmail,
			SlackWebhookURL:   ruleAddWebhookURL,
		}
		return getApp().RuleAdd(cmd.Context(), opts)
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a project's alert rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		if ruleListProjectID == "" {
			return fmt.Errorf("--project is required")
		}
		return getApp().RuleList(cmd.Context(), ruleListProjectID)
	},
}

func init() {
	rulesAddCmd.Flags().StringVar(&ruleAddProjectID, "project", "", "Project ID the rule applies to")
	rulesAddCmd.Flags().Float64Var(&ruleAddDailyBudget, "daily-budget", 0, "Daily budget in USD (0 means unset)")
	rulesAddCmd.Flags().Float64Var(&ruleAddMonthlyBudget, "monthly-budget", 0, "Monthly budget in USD (0 means unset)")
	rulesAddCmd.Flags().IntVar(&ruleAddSpikePct, "spike-threshold", 0, "Spike threshold percentage (0 means unset)")
	rulesAddCmd.Flags().BoolVar(&ruleAddEmail, "email", false, "Send alerts to the project owner's email")
	rulesAddCmd.Flags().StringVar(&ruleAddWebhookURL, "webhook", "", "Webhook URL for alert delivery")

	rulesListCmd.Flags().StringVar(&ruleListProjectID, "project", "", "Project ID")

	rulesCmd.AddCommand(rulesAddCmd)
	rulesCmd.AddCommand(rulesListCmd)
}
