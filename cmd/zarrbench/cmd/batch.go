package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zarrbench/zarrbench/pkg/batch"
	"github.com/zarrbench/zarrbench/pkg/logging"
	"github.com/zarrbench/zarrbench/pkg/models"
)

var (
	batchConcurrency  int
	batchPollInterval time.Duration
	batchTimeout      time.Duration
)

var batchCmd = &cobra.Command{
	Use:   "batch <file.yaml>",
	Short: "Submit a batch of benchmark jobs and wait for all of them",
	Long: `Submit every specification in a YAML file, poll each job until it
finishes, and print one summary row per spec in submission order. One
job's failure never aborts the rest of the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 4, "bound on concurrent client-side polling")
	batchCmd.Flags().DurationVar(&batchPollInterval, "poll-interval", 2*time.Second, "status polling interval")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 45*time.Minute, "per-job polling budget")
}

// batchFile is the YAML layout: either a top-level spec list or a
// {benchmarks: [...]} document.
type batchFile struct {
	Benchmarks []models.BenchmarkSpec `yaml:"benchmarks"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	specs, err := loadBatchFile(args[0])
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return fmt.Errorf("no benchmark specifications in %s", args[0])
	}

	log := logging.New(logging.WARN, false)
	log.SetOutput(os.Stderr)

	orch := batch.New(newClient(), batch.Config{
		Concurrency:  batchConcurrency,
		PollInterval: batchPollInterval,
		JobTimeout:   batchTimeout,
	}, log)

	fmt.Printf("Submitting %d benchmarks to %s...\n", len(specs), GetServerURL())
	outcomes := orch.Run(context.Background(), specs)

	if IsJSONOutput() {
		return printJSON(outcomes)
	}
	printBatchSummary(outcomes)
	return nil
}

func loadBatchFile(path string) ([]models.BenchmarkSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var file batchFile
	if err := yaml.Unmarshal(data, &file); err == nil && len(file.Benchmarks) > 0 {
		return file.Benchmarks, nil
	}

	var specs []models.BenchmarkSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	return specs, nil
}

func printBatchSummary(outcomes []batch.Outcome) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "Dataset", "Outcome", "Recommended", "Ratio", "Elapsed")

	succeeded := 0
	for _, out := range outcomes {
		row := []string{fmt.Sprintf("%d", out.Index+1), out.Name, "", "", "", ""}
		switch {
		case out.Succeeded():
			succeeded++
			r := out.Job.Results
			row[2] = "completed"
			row[3] = r.Recommended.Codec + " " + formatShape(r.Recommended.Chunks)
			row[4] = fmt.Sprintf("%.2f", r.BestCompression.Ratio)
			row[5] = out.Elapsed.Round(time.Second).String()
		case out.Job != nil && out.Job.Error != nil:
			row[2] = fmt.Sprintf("failed: [%s] %s", out.Job.Error.Kind, out.Job.Error.Message)
			row[5] = out.Elapsed.Round(time.Second).String()
		case out.Err != nil:
			row[2] = "failed: " + out.Err.Error()
		default:
			row[2] = "failed"
		}
		table.Append(row[0], row[1], row[2], row[3], row[4], row[5])
	}
	table.Render()

	fmt.Printf("\n%d/%d benchmarks completed\n", succeeded, len(outcomes))
}
