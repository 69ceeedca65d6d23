package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"boshdata/internal/zenodo"
)

type requestFlags struct {
	Method      string
	Path        string
	Query       []string
	Body        string
	Sandbox     bool
	Token       string
	Endpoint    string
	ShowHeaders bool
	Debug       bool
	Timeout     time.Duration
}

func NewRequestCmd(rf *rootFlags) *cobra.Command {
	var f requestFlags

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Make a raw Zenodo API request with the stored access token",
		Example: strings.TrimSpace(`
  bosh request --path /api/deposit/depositions
  bosh request --sandbox --path /api/deposit/depositions/1234 --show-headers
  bosh request --method PUT --path /api/deposit/depositions/1234 --body @metadata.json
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolvePaths(*rf)
			if err != nil {
				return err
			}

			token := strings.TrimSpace(firstNonEmpty(f.Token, envFirst("", "BOSH_ZENODO_TOKEN"), zenodo.Credentials{Path: p.Credentials}.Token(f.Sandbox)))
			if token == "" {
				return fmt.Errorf("no %s stored in %s (run: bosh login)", zenodo.TokenProperty(f.Sandbox), p.Credentials)
			}
			base := firstNonEmpty(f.Endpoint, envFirst("", "BOSH_ZENODO_ENDPOINT"), zenodo.Endpoint(f.Sandbox))

			reqURL, err := buildRequestURL(base, f.Path, token, f.Query)
			if err != nil {
				return err
			}

			var bodyReader io.Reader
			if f.Body != "" {
				b, err := readBodyArg(f.Body)
				if err != nil {
					return err
				}
				bodyReader = bytes.NewReader(b)
			}

			req, err := http.NewRequestWithContext(cmd.Context(), strings.ToUpper(f.Method), reqURL, bodyReader)
			if err != nil {
				return err
			}
			if bodyReader != nil {
				req.Header.Set("Content-Type", "application/json")
			}

			client := &http.Client{Timeout: f.Timeout}
			start := time.Now()
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}

			if f.Debug {
				fmt.Fprintf(cmd.ErrOrStderr(), "HTTP %s %s -> %d (%s)\n", req.Method, zenodo.RedactToken(req.URL), resp.StatusCode, time.Since(start))
			}

			out := cmd.OutOrStdout()
			if f.ShowHeaders {
				fmt.Fprintf(out, "%s\n", resp.Status)
				for k, vals := range resp.Header {
					for _, v := range vals {
						fmt.Fprintf(out, "%s: %s\n", k, v)
					}
				}
				fmt.Fprintln(out)
			}

			if looksLikeJSON(resp.Header.Get("Content-Type"), b) {
				if pretty, ok := zenodo.PrettyJSON(b); ok {
					b = pretty
				}
			}
			_, _ = out.Write(b)
			if len(b) == 0 || b[len(b)-1] != '\n' {
				fmt.Fprintln(out)
			}

			if resp.StatusCode >= 400 {
				return fmt.Errorf("request failed with status %d", resp.StatusCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&f.Method, "method", "GET", "HTTP method")
	cmd.Flags().StringVar(&f.Path, "path", "", "Path to request, joined with the Zenodo base URL")
	cmd.Flags().StringArrayVar(&f.Query, "query", nil, "Query param (repeatable), e.g. --query q=boutiques")
	cmd.Flags().StringVar(&f.Body, "body", "", "Request body; prefix with @ to read from file (e.g. @payload.json)")
	cmd.Flags().BoolVar(&f.Sandbox, "sandbox", false, "Use the Zenodo sandbox and its token")
	cmd.Flags().StringVar(&f.Token, "token", "", "Zenodo access token (default: the stored one)")
	cmd.Flags().StringVar(&f.Endpoint, "endpoint", "", "Override the Zenodo base URL (or set BOSH_ZENODO_ENDPOINT)")
	cmd.Flags().BoolVar(&f.ShowHeaders, "show-headers", false, "Print response status line and headers")
	cmd.Flags().BoolVar(&f.Debug, "debug", false, "Print the request line and timing to stderr")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 30*time.Second, "HTTP timeout")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.Flags().MarkHidden("endpoint")
	return cmd
}

func buildRequestURL(baseURL, path, token string, query []string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("--path is required")
	}
	bu, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	pu, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	u := bu.ResolveReference(pu)

	q := u.Query()
	for _, kv := range query {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return "", fmt.Errorf("invalid --query %q (expected k=v)", kv)
		}
		q.Add(k, v)
	}
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readBodyArg(s string) ([]byte, error) {
	if name, ok := strings.CutPrefix(s, "@"); ok {
		if name == "-" {
			return io.ReadAll(os.Stdin)
		}
		return os.ReadFile(name)
	}
	return []byte(s), nil
}

func looksLikeJSON(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "application/json") || strings.Contains(ct, "+json") {
		return true
	}
	trim := bytes.TrimSpace(body)
	return len(trim) > 0 && (trim[0] == '{' || trim[0] == '[')
}
