package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <object-id> <data.json|->",
	Short: "Create a new object anchor",
	Long: `create opens a new anchor issue for object-id, seeded with the
JSON in data.json (or stdin, if "-"), and closes it as already
processed.`,
	Args: cobra.ExactArgs(2),
	RunE: runCreate,
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, path := args[0], args[1]

	data, err := readJSONArg(path)
	if err != nil {
		return err
	}

	s, shutdown, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	obj, err := s.Create(ctx, id, data)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(obj)
	}
	fmt.Printf("created %s (issue #%d)\n", obj.Meta.ObjectID, obj.Meta.IssueNumber)
	return nil
}
