package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/intel-pipeline/internal/model"
)

var (
	classifyCompanyID string
	classifyObjective string
	classifyPersist   bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Re-classify a company's stored documents against an objective",
	Long:  "Runs the relevance classifier over documents already persisted for a company, without re-scraping. Useful for recalibrating cut points or trying a new objective.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		docs, err := env.Store.ListDocuments(ctx, classifyCompanyID)
		if err != nil {
			return eris.Wrap(err, "list documents")
		}
		if len(docs) == 0 {
			return eris.Errorf("no stored documents for company %s", classifyCompanyID)
		}

		results, err := env.Classifier.ClassifyAll(ctx, docs, classifyObjective)
		if err != nil {
			return eris.Wrap(err, "classify")
		}

		if classifyPersist {
			if err := env.Store.SaveClassifications(ctx, results); err != nil {
				return eris.Wrap(err, "save classifications")
			}
		}

		relevant := 0
		for _, r := range results {
			if r.Label != model.LabelNotRelevant {
				relevant++
			}
		}
		zap.L().Info("classification complete",
			zap.String("company_id", classifyCompanyID),
			zap.Int("documents", len(results)),
			zap.Int("relevant", relevant),
			zap.Bool("persisted", classifyPersist),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyCompanyID, "company-id", "", "company identifier (required)")
	classifyCmd.Flags().StringVar(&classifyObjective, "objective", "", "research objective text (required)")
	classifyCmd.Flags().BoolVar(&classifyPersist, "persist", false, "overwrite stored classifications with these results")
	_ = classifyCmd.MarkFlagRequired("company-id")
	_ = classifyCmd.MarkFlagRequired("objective")
	rootCmd.AddCommand(classifyCmd)
}
