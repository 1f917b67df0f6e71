package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	profileCompanyID string
	profileVersions  bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show a company's generated profile",
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

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if profileVersions {
			versions, err := st.ListProfileVersions(ctx, profileCompanyID)
			if err != nil {
				return eris.Wrap(err, "list profile versions")
			}
			return enc.Encode(versions)
		}

		p, err := st.GetProfile(ctx, profileCompanyID)
		if err != nil {
			return eris.Wrap(err, "get profile")
		}
		return enc.Encode(p)
	},
}

func init() {
	profileCmd.Flags().StringVar(&profileCompanyID, "company-id", "", "company identifier (required)")
	profileCmd.Flags().BoolVar(&profileVersions, "versions", false, "list archived versions instead of the live profile")
	_ = profileCmd.MarkFlagRequired("company-id")
	rootCmd.AddCommand(profileCmd)
}
