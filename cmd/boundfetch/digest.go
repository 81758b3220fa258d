package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/boundfetch"
)

type digestFlags struct {
	concurrency int
	upper       bool
}

func newDigestCmd(g *globalFlags) *cobra.Command {
	fl := &digestFlags{}

	cmd := &cobra.Command{
		Use:   "digest [ids...]",
		Short: "Print the MD5 of each resource",
		Long: `Fetch each identifier and print its MD5 in md5sum layout:

  <digest>  <id>

Failures are reported on stderr and the command exits non-zero after
printing every digest that succeeded.

Example:
  boundfetch digest ./release.tar.gz https://mirror.example.com/release.tar.gz
  boundfetch digest --upper s3://artifacts/release.tar.gz`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd, g, fl, args)
		},
	}

	cmd.Flags().IntVarP(&fl.concurrency, "concurrency", "n", 0, "maximum fetches in flight (default from config, or 4)")
	cmd.Flags().BoolVar(&fl.upper, "upper", false, "print uppercase hex")
	return cmd
}

func runDigest(cmd *cobra.Command, g *globalFlags, fl *digestFlags, args []string) error {
	logger, err := newLogger(cmd.ErrOrStderr(), g.logLevel)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return err
	}
	ids, err := resolveIDs(args, cfg)
	if err != nil {
		return err
	}

	budget := cfg.Concurrency
	if cmd.Flags().Changed("concurrency") {
		budget = fl.concurrency
	}

	var extra []boundfetch.Option
	if fl.upper {
		extra = append(extra, boundfetch.WithDigestFormat(boundfetch.DigestUpper))
	}

	f, err := newFetcher(cfg, logger, extra...)
	if err != nil {
		return err
	}
	defer f.Close()

	out := cmd.OutOrStdout()

	if len(ids) == 1 {
		sum, err := f.Digest(cmd.Context(), ids[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s  %s\n", sum, ids[0])
		return nil
	}

	outcomes, err := f.FetchAllSettled(cmd.Context(), ids, budget)
	if err != nil {
		return err
	}

	format := boundfetch.DigestLower
	if fl.upper {
		format = boundfetch.DigestUpper
	} else if cfg.DigestFormat != "" {
		format, _ = boundfetch.ParseDigestFormat(cfg.DigestFormat)
	}

	failed := 0
	for _, o := range outcomes {
		if !o.OK() {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "boundfetch: %v\n", o.Err)
			continue
		}
		fmt.Fprintf(out, "%s  %s\n", boundfetch.FormatDigest(o.Body, format), o.ID)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d digests failed", failed, len(outcomes))
	}
	return nil
}
