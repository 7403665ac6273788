package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zarrbench/zarrbench/pkg/models"
)

var (
	submitFile    string
	submitName    string
	submitType    string
	submitShape   string
	submitDtype   string
	submitProfile string
	submitCodecs  string
	submitRuns    int
	submitWait    bool
	submitTimeout time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a benchmark job",
	Long: `Submit a benchmark specification, either from a YAML file (--file) or
built from flags. Prints the job id; with --wait, polls until the job
finishes and prints the result.`,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "", "YAML file with a benchmark specification")
	submitCmd.Flags().StringVar(&submitName, "name", "", "dataset name")
	submitCmd.Flags().StringVar(&submitType, "type", "synthetic", "dataset type (cryoet, light_sheet, confocal, ...)")
	submitCmd.Flags().StringVar(&submitShape, "shape", "", "dataset shape, comma-separated (e.g. 512,512,64)")
	submitCmd.Flags().StringVar(&submitDtype, "dtype", "", "element type: float32, uint16 or uint8")
	submitCmd.Flags().StringVar(&submitProfile, "profile", "", "compression profile (archival, balanced, fast, lossless, analysis)")
	submitCmd.Flags().StringVar(&submitCodecs, "codecs", "", "codecs to measure, comma-separated (overrides the profile's set)")
	submitCmd.Flags().IntVar(&submitRuns, "runs", 0, "number of timing runs per configuration")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "poll until the job reaches a terminal state")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 45*time.Minute, "polling budget with --wait")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	spec, err := buildSpec()
	if err != nil {
		return err
	}

	c := newClient()
	resp, err := c.Submit(spec)
	if err != nil {
		return err
	}

	if !submitWait {
		if IsJSONOutput() {
			return printJSON(resp)
		}
		fmt.Printf("Job submitted: %s\n", resp.JobID)
		fmt.Printf("Poll with: zarrbench status %s --follow\n", resp.JobID)
		return nil
	}

	fmt.Printf("Job submitted: %s, waiting...\n", resp.JobID)
	job, err := c.WaitForTerminal(context.Background(), resp.JobID, 2*time.Second, submitTimeout)
	if err != nil {
		return err
	}
	return printJob(job)
}

func buildSpec() (models.BenchmarkSpec, error) {
	var spec models.BenchmarkSpec

	if submitFile != "" {
		data, err := os.ReadFile(submitFile)
		if err != nil {
			return spec, fmt.Errorf("failed to read spec file: %w", err)
		}
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return spec, fmt.Errorf("failed to parse spec file: %w", err)
		}
		return spec, nil
	}

	if submitShape == "" {
		return spec, fmt.Errorf("either --file or --shape is required")
	}
	shape, err := parseShape(submitShape)
	if err != nil {
		return spec, err
	}

	spec = models.BenchmarkSpec{
		Name:               submitName,
		DatasetType:        models.DatasetType(submitType),
		Shape:              shape,
		Dtype:              submitDtype,
		CompressionProfile: models.CompressionProfile(submitProfile),
		NumRuns:            submitRuns,
	}
	if submitCodecs != "" {
		spec.CustomCodecs = strings.Split(submitCodecs, ",")
	}
	return spec, nil
}

func parseShape(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	shape := make([]int, 0, len(parts))
	for _, p := range parts {
		dim, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid shape dimension %q", p)
		}
		shape = append(shape, dim)
	}
	return shape, nil
}

func printJSON(v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(output))
	return nil
}
