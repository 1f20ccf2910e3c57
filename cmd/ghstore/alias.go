package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var aliasCmd = &cobra.Command{
	Use:   "alias",
	Short: "Manage object aliases",
}

var aliasCreateCmd = &cobra.Command{
	Use:   "create <canonical-id> <alias-id>",
	Short: "Make alias-id an alias of canonical-id",
	Args:  cobra.ExactArgs(2),
	RunE:  runAliasCreate,
}

var aliasListCmd = &cobra.Command{
	Use:   "list <canonical-id>",
	Short: "List the aliases of canonical-id",
	Args:  cobra.ExactArgs(1),
	RunE:  runAliasList,
}

func init() {
	aliasCmd.AddCommand(aliasCreateCmd)
	aliasCmd.AddCommand(aliasListCmd)
}

func runAliasCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, shutdown, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer shutdown()
	if err := s.CreateAlias(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("%s is now an alias of %s\n", args[1], args[0])
	return nil
}

func runAliasList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, shutdown, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer shutdown()
	aliases, err := s.ListAliases(ctx, args[0])
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(aliases)
	}
	for _, a := range aliases {
		fmt.Printf("issue #%d: %s\n", a.Number, a.Title)
	}
	return nil
}
