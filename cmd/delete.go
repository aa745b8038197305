package cmd

import (
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a project and everything indexed for it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := resolveProject("")
		if err != nil {
			return err
		}
		svc, err := newServices(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.store.DeleteProject(cmd.Context(), projectID); err != nil {
			return err
		}
		successColor.Printf("Deleted project %s\n", projectID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
