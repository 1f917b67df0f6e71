package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/intel-pipeline/internal/model"
	"github.com/sells-group/intel-pipeline/internal/store"
)

var (
	jobsStatus    string
	jobsCompanyID string
	jobsLimit     int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List pipeline jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		list, err := st.ListJobs(ctx, store.JobFilter{
			Status:    model.JobStatus(jobsStatus),
			CompanyID: jobsCompanyID,
			Limit:     jobsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list jobs")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by job status")
	jobsCmd.Flags().StringVar(&jobsCompanyID, "company-id", "", "filter by company")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 50, "maximum jobs to list")
	rootCmd.AddCommand(jobsCmd)
}
