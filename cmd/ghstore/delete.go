package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <object-id>",
	Short: "Archive an object",
	Long: `delete soft-deletes object-id: its history is retained, but it
no longer resolves via get/list.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, shutdown, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer shutdown()
	if err := s.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("archived %s\n", args[0])
	return nil
}
