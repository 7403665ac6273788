package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/zarrbench/zarrbench/pkg/models"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show server health and job counts",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	c := newClient()
	health, err := c.Health()
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(health)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Status", health.Status)
	for _, status := range []models.JobStatus{
		models.JobStatusPending, models.JobStatusRunning,
		models.JobStatusCompleted, models.JobStatusFailed,
	} {
		table.Append("Jobs "+string(status), fmt.Sprintf("%d", health.Jobs[status]))
	}
	table.Append("Queue depth", fmt.Sprintf("%d", health.QueueDepth))
	table.Append("Uptime", fmt.Sprintf("%ds", health.UptimeSeconds))
	table.Render()
	return nil
}
