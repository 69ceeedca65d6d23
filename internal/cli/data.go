package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"boshdata/internal/datacache"
	"boshdata/internal/history"
	"boshdata/internal/publish"
	"boshdata/internal/zenodo"
)

// NewDataCmd groups the execution-record cache commands.
func NewDataCmd(rf *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage the execution-record cache and publish it to Zenodo",
	}

	cmd.AddCommand(newDataInspectCmd(rf))
	cmd.AddCommand(newDataDiscardCmd(rf))
	cmd.AddCommand(newDataPublishCmd(rf))
	cmd.AddCommand(newDataHistoryCmd(rf))
	return cmd
}

func openCache(rf rootFlags) (paths, *datacache.Manager, error) {
	p, err := resolvePaths(rf)
	if err != nil {
		return p, nil, err
	}
	m, err := datacache.Open(p.CacheDir)
	if err != nil {
		return p, nil, err
	}
	m.Hide(history.IsLedgerFile)
	return p, m, nil
}

func newDataInspectCmd(rf *rootFlags) *cobra.Command {
	var example bool
	var long bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List cached execution records, or print one with --example",
		Example: strings.TrimSpace(`
  bosh data inspect
  bosh data inspect --example
  bosh data inspect --long
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, m, err := openCache(*rf)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !example && rf.Output != "text" {
				files, err := m.Files()
				if err != nil {
					return err
				}
				return writeStructured(out, rf.Output, map[string]any{
					"cache_dir": m.Dir(),
					"count":     len(files),
					"files":     files,
				})
			}
			if long && !example {
				return m.InspectLong(out, time.Now())
			}
			return m.Inspect(out, example)
		},
	}

	cmd.Flags().BoolVarP(&example, "example", "e", false, "Print the first cached record, or a bundled example if the cache is empty")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show size and age of each cached record")
	return cmd
}

func newDataDiscardCmd(rf *rootFlags) *cobra.Command {
	var file string
	var all bool

	cmd := &cobra.Command{
		Use:     "discard",
		Aliases: []string{"delete"},
		Short:   "Remove one cached record, or all of them",
		Example: strings.TrimSpace(`
  bosh data discard --file 2026-10-19T10:00:00_bet.json
  bosh data discard --all
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, m, err := openCache(*rf)
			if err != nil {
				return err
			}
			return m.Discard(cmd.OutOrStdout(), file, all)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Record to remove")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Remove every cached record")
	return cmd
}

type dataPublishFlags struct {
	File          string
	Individually  bool
	Author        string
	Token         string
	Sandbox       bool
	NoInteractive bool
	Verbose       bool
	Replace       string
	Endpoint      string
	Timeout       time.Duration
}

func newDataPublishCmd(rf *rootFlags) *cobra.Command {
	var f dataPublishFlags

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish cached records to Zenodo as data-sets",
		Long: strings.TrimSpace(`
Publish uploads cached execution records to Zenodo and publishes them.

By default every cached record goes into a single data-set. --file publishes one record,
--individually publishes one data-set per record. Published records are removed from the
cache and listed by "bosh data history".
`),
		Example: strings.TrimSpace(`
  bosh data publish --author "Jane Doe"
  bosh data publish --file 2026-10-19T10:00:00_bet.json --sandbox
  bosh data publish --individually --no-interactive --token $ZENODO_TOKEN
  bosh data publish --replace 1234567
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, m, err := openCache(*rf)
			if err != nil {
				return err
			}

			pub := &publish.Publisher{
				Cache:       m,
				Credentials: zenodo.Credentials{Path: p.Credentials},
				Ledger:      &history.Ledger{Path: p.History},
			}

			pr := newPrompter(cmd)
			opts := publish.Options{
				File:          f.File,
				Individually:  f.Individually,
				Author:        f.Author,
				Token:         firstNonEmpty(f.Token, envFirst("", "BOSH_ZENODO_TOKEN")),
				Sandbox:       f.Sandbox,
				Replace:       f.Replace,
				NoInteractive: f.NoInteractive,
				Verbose:       f.Verbose,
				Endpoint:      firstNonEmpty(f.Endpoint, envFirst("", "BOSH_ZENODO_ENDPOINT")),
				HTTPClient:    &http.Client{Timeout: f.Timeout},
				Log:           cmd.ErrOrStderr(),
				Confirm: func(prompt string) bool {
					answer, err := pr.Raw(prompt, false)
					if err != nil {
						return false
					}
					return publish.IsAffirmative(answer)
				},
				AskToken: func(prompt string) (string, error) {
					tok, err := pr.Raw(prompt, true /* secret */)
					if errors.Is(err, io.EOF) {
						return tok, nil
					}
					return tok, err
				},
			}

			res, err := pub.Run(cmd.Context(), opts)
			if err != nil {
				var zerr *zenodo.Error
				if f.Verbose && errors.As(err, &zerr) {
					if d := zerr.Detail(); d != "" {
						fmt.Fprintln(cmd.ErrOrStderr(), d)
					}
				}
				return err
			}
			if res.Cancelled {
				return nil
			}

			if rf.Output != "text" {
				return writeStructured(cmd.OutOrStdout(), rf.Output, res)
			}
			for _, d := range res.Depositions {
				fmt.Fprintf(cmd.OutOrStdout(), "Published %s to %s, doi is %s\n", strings.Join(d.Files, ", "), res.Endpoint, d.DOI)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.File, "file", "f", "", "Publish only this cached record")
	cmd.Flags().BoolVarP(&f.Individually, "individually", "i", false, "Publish each cached record as its own data-set")
	cmd.Flags().StringVar(&f.Author, "author", "Anonymous", "Author name for the data-set")
	cmd.Flags().StringVar(&f.Token, "token", "", "Zenodo access token (or set BOSH_ZENODO_TOKEN); saved for later use")
	cmd.Flags().BoolVar(&f.Sandbox, "sandbox", false, "Publish to the Zenodo sandbox")
	cmd.Flags().BoolVarP(&f.NoInteractive, "no-interactive", "y", false, "Never prompt; fail when input is missing")
	cmd.Flags().BoolVarP(&f.Verbose, "verbose", "v", false, "Print progress messages")
	cmd.Flags().StringVar(&f.Replace, "replace", "", "Publish as a new version of this existing Zenodo deposition id")
	cmd.Flags().StringVar(&f.Endpoint, "endpoint", "", "Override the Zenodo base URL (or set BOSH_ZENODO_ENDPOINT)")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "HTTP timeout per request (0 means none)")
	cmd.MarkFlagsMutuallyExclusive("file", "individually")
	cmd.MarkFlagsMutuallyExclusive("replace", "individually")
	_ = cmd.Flags().MarkHidden("endpoint")
	return cmd
}

func newDataHistoryCmd(rf *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List data-sets published from this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolvePaths(*rf)
			if err != nil {
				return err
			}
			recs, err := history.Ledger{Path: p.History}.List(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rf.Output != "text" {
				if recs == nil {
					recs = []history.Record{}
				}
				return writeStructured(out, rf.Output, recs)
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "nothing published yet")
				return nil
			}
			now := time.Now()
			for _, r := range recs {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n",
					r.DOI, r.DepositionID, humanize.RelTime(r.PublishedAt, now, "ago", "from now"), r.Endpoint, strings.Join(r.Files, ","))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Max records to show")
	return cmd
}
