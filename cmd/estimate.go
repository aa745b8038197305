package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate <repo>",
	Short: "Count the fragments indexing a repository would produce",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		n, err := svc.indexer.EstimateCost(cmd.Context(), args[0], credentials())
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s fragments (one summary and one embedding each)\n", args[0], titleColor.Sprint(n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(estimateCmd)
}
