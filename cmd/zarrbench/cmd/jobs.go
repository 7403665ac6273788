package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/zarrbench/zarrbench/pkg/models"
)

var jobsStatusFilter string

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List benchmark jobs",
	RunE:  runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.Flags().StringVar(&jobsStatusFilter, "status", "", "filter by status: pending, running, completed or failed")
}

func runJobs(cmd *cobra.Command, args []string) error {
	c := newClient()
	jobs, err := c.ListJobs(models.JobStatus(jobsStatusFilter))
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(jobs)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Job ID", "Dataset", "Type", "Status", "Submitted")
	for _, job := range jobs {
		table.Append(
			job.ID,
			job.Spec.Name,
			string(job.Spec.DatasetType),
			string(job.Status),
			job.SubmittedAt.Format(time.RFC3339),
		)
	}
	table.Render()
	fmt.Printf("\nTotal: %d jobs\n", len(jobs))
	return nil
}
