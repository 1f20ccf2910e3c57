package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmarx/gh-store/internal/ghcomment"
)

var updateMode string

var updateCmd = &cobra.Command{
	Use:   "update <object-id> <patch.json|->",
	Short: "Submit an update",
	Long: `update posts a new update comment against object-id and reopens
its anchor for processing. The change is not visible to "get" until
"process" runs.`,
	Args: cobra.ExactArgs(2),
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().StringVar(&updateMode, "mode", "append", `merge mode: "append" (deep merge) or "replace" (whole-state replace)`)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, path := args[0], args[1]

	mode := ghcomment.UpdateMode(updateMode)
	if mode != ghcomment.ModeAppend && mode != ghcomment.ModeReplace {
		return fmt.Errorf("ghstore: --mode must be %q or %q", ghcomment.ModeAppend, ghcomment.ModeReplace)
	}

	data, err := readJSONArg(path)
	if err != nil {
		return err
	}

	s, shutdown, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	if err := s.Update(ctx, id, data, mode); err != nil {
		return err
	}
	fmt.Printf("update submitted for %s\n", id)
	return nil
}
