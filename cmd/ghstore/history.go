package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <object-id>",
	Short: "Show an object's full update history",
	Long: `history decodes every comment on object-id's anchor, in
chronological order. If object-id is an alias, its canonical anchor's
history is shown.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, shutdown, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	entries, err := s.History(ctx, args[0])
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(entries)
	}
	for _, e := range entries {
		typ := string(e.Type)
		if typ == "" {
			typ = "update"
		}
		fmt.Printf("%s  %-24s %s\n", e.Timestamp.Format(time.RFC3339), typ, string(e.Data))
	}
	return nil
}
