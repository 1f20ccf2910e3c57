package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmarx/gh-store/internal/issuestore"
)

var listSince string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every live object",
	Long: `list prints every non-archived, non-alias object. With --since,
only objects whose computed update time is at or after the given
RFC3339 timestamp are shown.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listSince, "since", "", "RFC3339 timestamp; only list objects updated at or after this time")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, shutdown, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	var objs []issuestore.StoredObject
	if listSince != "" {
		since, err := time.Parse(time.RFC3339, listSince)
		if err != nil {
			return fmt.Errorf("ghstore: --since must be RFC3339: %w", err)
		}
		objs, err = s.ListUpdatedSince(ctx, since)
		if err != nil {
			return err
		}
	} else {
		objs, err = s.List(ctx)
		if err != nil {
			return err
		}
	}

	if flagJSON {
		return printJSON(objs)
	}
	for _, obj := range objs {
		fmt.Printf("%-30s issue #%-6d v%-4d updated %s\n",
			obj.Meta.ObjectID, obj.Meta.IssueNumber, obj.Meta.Version, obj.Meta.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}
