package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmarx/gh-store/internal/store"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [out.json]",
	Short: "Export a full snapshot of every stored object",
	Long: `snapshot writes { snapshot_time, repository, objects } for
every live object in the repository to out.json, or stdout if omitted.
Pair with "snapshot update" to refresh it later without re-exporting
everything.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSnapshot,
}

var snapshotUpdateCmd = &cobra.Command{
	Use:   "update <snapshot.json|-> [out.json]",
	Short: "Refresh a snapshot with everything changed since it was taken",
	Long: `update reads an existing snapshot file, rewrites its
snapshot_time to now, and replaces or inserts an entry for every
object changed since the snapshot's original snapshot_time -- every
other entry is left untouched. Writes the result to out.json, or back
over the input path if out.json is omitted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSnapshotUpdate,
}

func init() {
	snapshotCmd.AddCommand(snapshotUpdateCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, shutdown, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	return writeSnapshot(snap, optionalArg(args, 0))
}

func runSnapshotUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	inPath := args[0]
	outPath := inPath
	if len(args) == 2 {
		outPath = args[1]
	}

	raw, err := readJSONArg(inPath)
	if err != nil {
		return err
	}
	var prev store.Snapshot
	if err := json.Unmarshal(raw, &prev); err != nil {
		return fmt.Errorf("ghstore: %q is not a valid snapshot: %w", inPath, err)
	}

	s, shutdown, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	snap, err := s.UpdateSnapshot(ctx, prev)
	if err != nil {
		return err
	}
	return writeSnapshot(snap, outPath)
}

func writeSnapshot(snap store.Snapshot, path string) error {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("ghstore: encode snapshot: %w", err)
	}
	if path == "" {
		fmt.Println(string(b))
		return nil
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("ghstore: write %q: %w", path, err)
	}
	fmt.Printf("wrote snapshot to %s\n", path)
	return nil
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
