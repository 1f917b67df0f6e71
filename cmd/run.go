package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/intel-pipeline/internal/pipeline"
)

var (
	runCompanyID string
	runCompany   string
	runLocation  string
	runObjective string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline for a single company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		env.Coordinator.Start(ctx)

		job, err := env.Coordinator.Submit(ctx, pipeline.SubmitRequest{
			CompanyID:   runCompanyID,
			CompanyName: runCompany,
			Location:    runLocation,
			Objective:   runObjective,
		})
		if err != nil {
			return eris.Wrap(err, "submit job")
		}

		// Poll until the job reaches a terminal status.
		for !job.Status.Terminal() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			job, err = env.Coordinator.Status(ctx, job.JobID)
			if err != nil {
				return eris.Wrap(err, "poll job")
			}
		}

		zap.L().Info("run complete",
			zap.String("job_id", job.JobID),
			zap.String("status", string(job.Status)),
			zap.Int("progress_pct", job.ProgressPct),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

func init() {
	runCmd.Flags().StringVar(&runCompanyID, "company-id", "", "company identifier (required)")
	runCmd.Flags().StringVar(&runCompany, "company", "", "company name (required)")
	runCmd.Flags().StringVar(&runLocation, "location", "", "company location hint")
	runCmd.Flags().StringVar(&runObjective, "objective", "", "research objective text (required)")
	_ = runCmd.MarkFlagRequired("company-id")
	_ = runCmd.MarkFlagRequired("company")
	_ = runCmd.MarkFlagRequired("objective")
	rootCmd.AddCommand(runCmd)
}
