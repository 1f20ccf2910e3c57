package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Install the base label grammar on the repository",
	Long: `init creates the labels gh-store relies on (the base object
label, canonical-object, alias-object, deprecated-object, archived) if
they are missing. Safe to run repeatedly.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, shutdown, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer shutdown()
	if err := s.Init(ctx); err != nil {
		return err
	}
	fmt.Println("gh-store labels installed")
	return nil
}
