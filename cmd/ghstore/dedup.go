package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Find and collapse duplicate anchors sharing a uid",
	Long: `dedup sweeps the repository for uids with more than one live
anchor and collapses each group to one canonical anchor, deprecating
the rest.`,
	Args: cobra.NoArgs,
	RunE: runDedup,
}

func runDedup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, shutdown, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer shutdown()
	summary, err := s.Reconcile(ctx)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(summary)
	}
	fmt.Printf("reconciled %d duplicate group(s), deprecated %d issue(s)\n", summary.GroupsProcessed, summary.IssuesDeprecated)
	return nil
}
