package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/zarrbench/zarrbench/pkg/models"
)

var followStatus bool

var statusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show the status of a benchmark job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVarP(&followStatus, "follow", "F", false, "poll every 2 seconds until the job finishes")
}

func runStatus(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	c := newClient()

	if followStatus {
		fmt.Printf("Following job %s (press Ctrl+C to stop)...\n\n", jobID)
		for {
			job, err := c.Status(jobID)
			if err != nil {
				return err
			}
			fmt.Printf("[%s] status=%s\n", time.Now().Format("15:04:05"), job.Status)
			if models.IsTerminalState(job.Status) {
				fmt.Println()
				return printJob(job)
			}
			time.Sleep(2 * time.Second)
		}
	}

	job, err := c.Status(jobID)
	if err != nil {
		return err
	}
	return printJob(job)
}

func printJob(job *models.Job) error {
	if IsJSONOutput() {
		return printJSON(job)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Job ID", job.ID)
	table.Append("Dataset", job.Spec.Name)
	table.Append("Type", string(job.Spec.DatasetType))
	table.Append("Shape", formatShape(job.Spec.Shape))
	table.Append("Status", string(job.Status))
	table.Append("Submitted", job.SubmittedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		table.Append("Started", job.StartedAt.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		table.Append("Completed", job.CompletedAt.Format(time.RFC3339))
	}
	if job.Error != nil {
		table.Append("Error", fmt.Sprintf("[%s] %s", job.Error.Kind, job.Error.Message))
	}
	table.Render()

	if job.Results != nil {
		fmt.Println()
		printResult(job.Results)
	}
	return nil
}

func printResult(r *models.Result) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Codec", "Chunks", "Write s", "Read s", "Write MB/s", "Read MB/s", "Ratio")
	for _, m := range r.Measurements {
		table.Append(
			m.Codec,
			formatShape(m.Chunks),
			fmt.Sprintf("%.3f", m.WriteSeconds),
			fmt.Sprintf("%.3f", m.ReadSeconds),
			fmt.Sprintf("%.1f", m.WriteMBPerSec),
			fmt.Sprintf("%.1f", m.ReadMBPerSec),
			fmt.Sprintf("%.2f", m.Ratio),
		)
	}
	table.Render()

	fmt.Printf("\nBest write:       %s (%.1f MB/s)\n", r.BestWrite.Codec, r.BestWrite.MBPerSec)
	fmt.Printf("Best read:        %s (%.1f MB/s)\n", r.BestRead.Codec, r.BestRead.MBPerSec)
	fmt.Printf("Best compression: %s (%.2fx)\n", r.BestCompression.Codec, r.BestCompression.Ratio)
	fmt.Printf("Recommended:      %s, chunks %s\n", r.Recommended.Codec, formatShape(r.Recommended.Chunks))
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, dim := range shape {
		parts[i] = fmt.Sprintf("%d", dim)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
