package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/boundfetch"
)

type fetchFlags struct {
	concurrency int
	sync        bool
	policy      string
	out         string
	progress    bool
	failFast    bool
}

func newFetchCmd(g *globalFlags) *cobra.Command {
	fl := &fetchFlags{}

	cmd := &cobra.Command{
		Use:   "fetch [ids...]",
		Short: "Fetch resources and print or save their bodies",
		Long: `Fetch every identifier with at most --concurrency fetches in flight.

Bodies are written to stdout in input order, or to one file per resource
under --out. Without identifiers, the resources in the config file are
fetched. The whole command fails if any fetch fails.

Example:
  boundfetch fetch -n 8 --policy rolling https://example.com/a https://example.com/b
  boundfetch fetch -c boundfetch.yaml --out ./downloads --progress`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, g, fl, args)
		},
	}

	cmd.Flags().IntVarP(&fl.concurrency, "concurrency", "n", 0, "maximum fetches in flight (default from config, or 4)")
	cmd.Flags().BoolVar(&fl.sync, "sync", false, "fetch one at a time, stopping at the first failure")
	cmd.Flags().StringVar(&fl.policy, "policy", "", "drain policy: batch, rolling or pool")
	cmd.Flags().StringVarP(&fl.out, "out", "o", "", "write each body to a file in this directory")
	cmd.Flags().BoolVar(&fl.progress, "progress", false, "show a progress bar on stderr")
	cmd.Flags().BoolVar(&fl.failFast, "fail-fast", false, "cancel remaining fetches after the first failure")
	return cmd
}

func runFetch(cmd *cobra.Command, g *globalFlags, fl *fetchFlags, args []string) error {
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
	if cmd.Flags().Changed("policy") {
		p, err := boundfetch.ParseDrainPolicy(fl.policy)
		if err != nil {
			return err
		}
		extra = append(extra, boundfetch.WithDrainPolicy(p))
	}
	if cmd.Flags().Changed("fail-fast") {
		extra = append(extra, boundfetch.WithFailFast(fl.failFast))
	}

	var bar *progressbar.ProgressBar
	if fl.progress {
		bar = progressbar.NewOptions(len(ids),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("fetching"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(cmd.ErrOrStderr())
			}),
		)
		extra = append(extra, boundfetch.WithFetchCallback(func(boundfetch.FetchEvent) {
			_ = bar.Add(1)
		}))
	}

	f, err := newFetcher(cfg, logger, extra...)
	if err != nil {
		return err
	}
	defer f.Close()

	start := time.Now()
	var results boundfetch.Results
	if fl.sync {
		results, err = f.FetchAllSync(cmd.Context(), ids)
	} else {
		results, err = f.FetchAllBounded(cmd.Context(), ids, budget)
	}
	if err != nil {
		return err
	}
	logger.Info("fetch finished",
		"resources", results.Len(),
		"sync", fl.sync,
		"concurrency", budget,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if fl.out != "" {
		return writeFiles(cmd, fl.out, ids, results)
	}

	out := cmd.OutOrStdout()
	for _, body := range results.All() {
		if _, err := out.Write(body); err != nil {
			return err
		}
	}
	return nil
}

// writeFiles saves each body under dir and prints one line per file.
func writeFiles(cmd *cobra.Command, dir string, ids []string, results boundfetch.Results) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for i, body := range results.All() {
		p := filepath.Join(dir, outputName(i, ids[i]))
		if err := os.WriteFile(p, body, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", p, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", p, len(body), ids[i])
	}
	return nil
}

// outputName derives a file name from the identifier's last path element,
// prefixed with the input index so names never collide.
func outputName(i int, id string) string {
	base := id
	if j := strings.IndexAny(base, "?#"); j >= 0 {
		base = base[:j]
	}
	base = path.Base(filepath.ToSlash(base))

	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if strings.Trim(clean, "._") == "" {
		clean = "resource"
	}
	return fmt.Sprintf("%03d-%s", i, clean)
}
