package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var processAll bool

var processCmd = &cobra.Command{
	Use:   "process [object-id]",
	Short: "Replay pending updates into an anchor",
	Long: `process runs one process cycle: it applies every unprocessed
update comment on object-id's anchor, in timestamp order, and writes
the merged state back. With --all, every open anchor is processed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().BoolVar(&processAll, "all", false, "process every open anchor instead of a single object")
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, shutdown, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	if processAll {
		objs, err := s.ProcessAll(ctx)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(objs)
		}
		fmt.Printf("processed %d anchors\n", len(objs))
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("ghstore: process requires an object-id, or --all")
	}
	obj, err := s.ProcessUpdates(ctx, args[0])
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(obj)
	}
	fmt.Printf("processed %s (version %d)\n", obj.Meta.ObjectID, obj.Meta.Version)
	return nil
}
