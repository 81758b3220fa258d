package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/boundfetch/config"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		Long: `Validate a boundfetch configuration file without fetching anything.

This command parses the YAML, expands environment variables, validates all
fields and expands resource sets. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  boundfetch validate -c boundfetch.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, g)
		},
	}
}

func runValidate(cmd *cobra.Command, g *globalFlags) error {
	if g.configPath == "" {
		return errors.New("validate requires --config")
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	resources, err := config.BuildResources(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	direct := len(cfg.Resources)
	fromSets := len(resources) - direct
	policy := cfg.Policy
	if policy == "" {
		policy = "batch"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Concurrency:   %d\n", cfg.Concurrency)
	fmt.Fprintf(out, "  Policy:        %s\n", policy)
	fmt.Fprintf(out, "  Schedule:      %s\n", cfg.Watch.Schedule)
	fmt.Fprintf(out, "  Resources:     %d direct + %d from sets = %d total\n",
		direct, fromSets, len(resources))

	return nil
}
