// Package main is the entry point for the boundfetch CLI.
//
// Usage:
//
//	boundfetch fetch -n 4 https://a.example/x https://b.example/y
//	boundfetch digest ./release.tar.gz s3://bucket/release.tar.gz
//	boundfetch watch -c boundfetch.yaml
//	boundfetch validate -c boundfetch.yaml
//	boundfetch version
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/boundfetch"
	"github.com/jpalmerr/boundfetch/config"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "boundfetch",
		Short: "Fetch and hash many resources under a concurrency budget",
		Long: `boundfetch fetches http(s) URLs, local files and s3:// objects with at most
N fetches in flight, and returns results in input order.

Quick start:
  boundfetch fetch -n 4 https://example.com/a https://example.com/b
  boundfetch digest ./artifact.tar.gz
  boundfetch watch -c boundfetch.yaml

Example config:
  concurrency: 4
  policy: rolling
  resources:
    - id: https://releases.example.com/app.tar.gz
      expected_md5: 5d41402abc4b2a76b9719d911017c592`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level: debug, info, warn or error")

	root.AddCommand(
		newVersionCmd(),
		newFetchCmd(g),
		newDigestCmd(g),
		newWatchCmd(g),
		newValidateCmd(g),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build date of this boundfetch binary.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "boundfetch %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// newLogger creates a JSON logger for CLI use.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// loadConfig loads the config file, or returns defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Parse(nil)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// resolveIDs returns the identifiers given on the command line, or the
// configured resources when there are none.
func resolveIDs(args []string, cfg *config.Config) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	resources, err := config.BuildResources(cfg)
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, errors.New("no resources: pass identifiers or configure resources")
	}
	return boundfetch.IDs(resources), nil
}

// newFetcher builds a Fetcher from the config, then applies extra options.
func newFetcher(cfg *config.Config, logger *slog.Logger, extra ...boundfetch.Option) (*boundfetch.Fetcher, error) {
	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, boundfetch.WithLogger(logger))
	opts = append(opts, extra...)

	f, err := boundfetch.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}
	return f, nil
}
