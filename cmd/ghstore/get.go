package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <object-id>",
	Short: "Read an object's current state",
	Long: `get prints the object's last persisted state. Updates that are
still pending are not reflected until "ghstore process <object-id>"
runs.`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, shutdown, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	obj, err := s.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(obj)
	}
	fmt.Println(string(obj.Data))
	return nil
}
