package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/dmarx/gh-store/internal/githubgw"
	"github.com/dmarx/gh-store/internal/store"
)

// Global flags, set by rootCmd's persistent flags and shared by every
// subcommand's RunE.
var (
	flagConfig    string
	flagOwner     string
	flagRepo      string
	flagToken     string
	flagJSON      bool
)

var rootCmd = &cobra.Command{
	Use:   "ghstore",
	Short: "Durable, auditable JSON object storage backed by GitHub Issues",
	Long: `ghstore stores versioned JSON objects as GitHub issues: one anchor
issue per object, one comment per update, replayed in order to recover
the object's current state.

Examples:
  ghstore init
  ghstore create widget-1 data.json
  ghstore update widget-1 patch.json --mode append
  ghstore process widget-1
  ghstore get widget-1`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (defaults to ~/.config/gh-store/config.yml if present)")
	rootCmd.PersistentFlags().StringVar(&flagOwner, "owner", os.Getenv("GH_STORE_OWNER"), "repository owner (or $GH_STORE_OWNER)")
	rootCmd.PersistentFlags().StringVar(&flagRepo, "repo", os.Getenv("GH_STORE_REPO"), "repository name (or $GH_STORE_REPO)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "GitHub API token (defaults to $GITHUB_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&flagMetrics, "metrics", false, "emit operation counters to stderr on exit")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(aliasCmd)
	rootCmd.AddCommand(dedupCmd)
}

// buildStore wires a store.Store from the global flags: resolves and
// loads config, builds an authenticated go-github client, and
// constructs the production githubgw.Gateway from it. The returned
// func flushes metrics (if --metrics is set) and must be deferred by
// the caller.
func buildStore(ctx context.Context) (*store.Store, func(), error) {
	configPath, err := store.ResolveConfigPath(flagConfig)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := store.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	owner, repo, err := ownerAndRepo()
	if err != nil {
		return nil, nil, err
	}

	logger := buildLogger(cfg)

	token := flagToken
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return nil, nil, fmt.Errorf("ghstore: no GitHub token: pass --token or set $GITHUB_TOKEN")
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	metrics, shutdown, err := buildMetrics(ctx)
	if err != nil {
		return nil, nil, err
	}

	gw := githubgw.New(github.NewClient(httpClient), owner, repo, cfg.Store.Retries.ToGatewayConfig(), logger)
	return store.New(gw, cfg, metrics, logger), shutdown, nil
}

func ownerAndRepo() (string, string, error) {
	if flagOwner != "" && flagRepo != "" {
		return flagOwner, flagRepo, nil
	}
	return "", "", fmt.Errorf("ghstore: --owner and --repo are required (or $GH_STORE_OWNER / $GH_STORE_REPO)")
}

func buildLogger(cfg store.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToUpper(cfg.Store.Log.Level) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Store.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
