package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"boshdata/internal/zenodo"
)

func NewLoginCmd(rf *rootFlags) *cobra.Command {
	var token string
	var sandbox bool
	var endpoint string
	var noPrompt bool
	var noVerify bool
	var verifyTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save a Zenodo access token to the credentials file",
		Long: strings.TrimSpace(`
Login stores a Zenodo personal access token so later publish calls do not prompt for it.
Production and sandbox tokens are stored separately.

Examples:
  bosh login --token $ZENODO_TOKEN
  bosh login --sandbox   # prompts and saves the sandbox token
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolvePaths(*rf)
			if err != nil {
				return err
			}
			creds := zenodo.Credentials{Path: p.Credentials}

			token = strings.TrimSpace(firstNonEmpty(token, envFirst("", "BOSH_ZENODO_TOKEN", "ZENODO_ACCESS_TOKEN")))
			if token == "" && !noPrompt {
				pr := newPrompter(cmd)
				for {
					s, err := pr.String("Zenodo access token", "", true /* secret */)
					if err != nil {
						return fmt.Errorf("read access token: %w", err)
					}
					s = strings.TrimSpace(s)
					if strings.ContainsAny(s, " \t") {
						fmt.Fprintln(cmd.ErrOrStderr(), "Token should not contain spaces. If you're trying to pass flags, run: bosh login --token ...")
						continue
					}
					if s == "" {
						fmt.Fprintln(cmd.ErrOrStderr(), "Token is empty.")
						continue
					}
					token = s
					break
				}
			}
			if token == "" {
				return errors.New("access token is empty (set --token or BOSH_ZENODO_TOKEN)")
			}

			// Verify the token before persisting it.
			if !noVerify {
				base := firstNonEmpty(endpoint, envFirst("", "BOSH_ZENODO_ENDPOINT"), zenodo.Endpoint(sandbox))
				client := zenodo.NewClient(base, &http.Client{Timeout: verifyTimeout}, false, cmd.ErrOrStderr())
				if err := client.TestAPI(cmd.Context(), token); err != nil {
					return fmt.Errorf("login preflight failed: %w", err)
				}
			}

			if err := creds.SaveToken(sandbox, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", p.Credentials, zenodo.TokenProperty(sandbox))
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Zenodo access token (or set BOSH_ZENODO_TOKEN)")
	cmd.Flags().BoolVar(&sandbox, "sandbox", false, "Store the token for the Zenodo sandbox")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Override the Zenodo base URL (or set BOSH_ZENODO_ENDPOINT)")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Fail instead of prompting for missing values")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "Skip checking the token against the Zenodo API")
	cmd.Flags().DurationVar(&verifyTimeout, "verify-timeout", 20*time.Second, "Timeout for login preflight verification")
	_ = cmd.Flags().MarkHidden("endpoint")
	return cmd
}

// prompter reads answers from the command's stdin. One prompter per command
// invocation keeps buffered bytes across consecutive prompts.
type prompter struct {
	cmd *cobra.Command
	in  *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{cmd: cmd, in: bufio.NewReader(cmd.InOrStdin())}
}

// String writes label to stderr and reads one line. Secrets are read without
// echo when stdin is a terminal.
func (p *prompter) String(label, def string, secret bool) (string, error) {
	out := p.cmd.ErrOrStderr() // prompts go to stderr
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	return p.read(def, secret)
}

// Raw writes a complete prompt text as-is and reads one line.
func (p *prompter) Raw(prompt string, secret bool) (string, error) {
	fmt.Fprint(p.cmd.ErrOrStderr(), prompt)
	return p.read("", secret)
}

func (p *prompter) read(def string, secret bool) (string, error) {
	out := p.cmd.ErrOrStderr()

	// Best-effort hidden input for secrets when reading from a real TTY.
	if secret && p.cmd.InOrStdin() == os.Stdin && term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out) // newline after password input
		if err != nil {
			return "", err
		}
		s := strings.TrimSpace(string(b))
		if s == "" {
			return def, nil
		}
		return s, nil
	}

	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	// Without a trailing newline ReadString returns the data with io.EOF; keep it.
	// io.EOF is only reported when nothing at all was read.
	if errors.Is(err, io.EOF) && line == "" {
		return def, io.EOF
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}
