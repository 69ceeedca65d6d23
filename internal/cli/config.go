package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"boshdata/internal/datacache"
	"boshdata/internal/history"
	"boshdata/internal/zenodo"
)

// paths are the on-disk locations every command works against.
type paths struct {
	CacheDir    string
	Credentials string
	History     string
}

// resolvePaths applies flag > env > home-directory default.
func resolvePaths(rf rootFlags) (paths, error) {
	var p paths

	p.CacheDir = firstNonEmpty(rf.CacheDir, envFirst("", "BOSH_CACHE_DIR"))
	if p.CacheDir == "" {
		d, err := datacache.DefaultDir()
		if err != nil {
			return p, err
		}
		p.CacheDir = d
	}

	p.Credentials = firstNonEmpty(rf.ConfigPath, envFirst("", "BOSH_CONFIG"))
	if p.Credentials == "" {
		c, err := zenodo.DefaultCredentialsPath()
		if err != nil {
			return p, err
		}
		p.Credentials = c
	}

	p.History = history.PathFor(p.CacheDir)
	return p, nil
}

func NewConfigCmd(rf *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect local paths and stored credentials",
	}

	cmd.AddCommand(newConfigViewCmd(rf))
	cmd.AddCommand(newConfigPathCmd(rf))
	return cmd
}

func newConfigPathCmd(rf *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the credentials file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolvePaths(*rf)
			if err != nil {
				return err
			}

			exists := true
			if _, err := os.Stat(p.Credentials); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					exists = false
				} else {
					return err
				}
			}

			if rf.Output != "text" {
				return writeStructured(cmd.OutOrStdout(), rf.Output, map[string]any{
					"config_path": p.Credentials,
					"exists":      exists,
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), p.Credentials)
			if !exists {
				fmt.Fprintln(cmd.ErrOrStderr(), "credentials file does not exist yet (run: bosh login)")
			}
			return nil
		},
	}
	return cmd
}

func newConfigViewCmd(rf *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Print the effective paths and which Zenodo tokens are stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolvePaths(*rf)
			if err != nil {
				return err
			}
			creds := zenodo.Credentials{Path: p.Credentials}.Load()

			tokens := map[string]string{}
			for _, sandbox := range []bool{false, true} {
				name := zenodo.TokenProperty(sandbox)
				v, _ := creds[name].(string)
				tokens[name] = maskToken(v)
			}

			view := configView{
				CacheDir:    p.CacheDir,
				Credentials: p.Credentials,
				History:     p.History,
				Tokens:      tokens,
			}
			if rf.Output != "text" {
				return writeStructured(cmd.OutOrStdout(), rf.Output, view)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cache_dir: %s\ncredentials: %s\nhistory: %s\n", p.CacheDir, p.Credentials, p.History)
			names := make([]string, 0, len(tokens))
			for n := range tokens {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintf(out, "%s: %s\n", n, tokens[n])
			}
			return nil
		},
	}
	return cmd
}

type configView struct {
	CacheDir    string            `json:"cache_dir" yaml:"cache_dir"`
	Credentials string            `json:"credentials" yaml:"credentials"`
	History     string            `json:"history" yaml:"history"`
	Tokens      map[string]string `json:"tokens" yaml:"tokens"`
}

func maskToken(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "(not set)"
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "..." + s[len(s)-4:]
	}
}

// writeStructured renders v as json or yaml.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		b = append(b, '\n')
		_, err = w.Write(b)
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("invalid --output %q (expected text, json or yaml)", format)
	}
}

func envFirst(def string, keys ...string) string {
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			return v
		}
	}
	return def
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
