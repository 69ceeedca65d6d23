package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"boshdata/internal/datacache"
	"boshdata/internal/history"
	"boshdata/internal/zenodo"
)

// Mode selects how cached files are grouped into depositions.
type Mode int

const (
	// Bulk puts every cached file into one deposition.
	Bulk Mode = iota
	// Single publishes one named file.
	Single
	// Individually creates one deposition per cached file.
	Individually
)

func (m Mode) String() string {
	switch m {
	case Single:
		return "single"
	case Individually:
		return "individually"
	default:
		return "bulk"
	}
}

// Options configures one publish call.
type Options struct {
	File         string
	Individually bool
	Author       string
	Token        string
	Sandbox      bool
	// Replace publishes a new version of an existing deposition instead of a new one.
	Replace       string
	NoInteractive bool
	Verbose       bool

	// Endpoint overrides the production/sandbox base URL.
	Endpoint   string
	HTTPClient *http.Client

	// Confirm is asked before anything is sent; false cancels silently.
	Confirm func(prompt string) bool
	// AskToken is used when no token is supplied or stored.
	AskToken func(prompt string) (string, error)

	Log io.Writer
}

// Deposition is one published dataset.
type Deposition struct {
	ID    string   `json:"deposition_id" yaml:"deposition_id"`
	DOI   string   `json:"doi" yaml:"doi"`
	Files []string `json:"files" yaml:"files"`
}

type Result struct {
	Cancelled   bool         `json:"cancelled" yaml:"cancelled"`
	BatchID     string       `json:"batch_id,omitempty" yaml:"batch_id,omitempty"`
	Endpoint    string       `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Depositions []Deposition `json:"depositions" yaml:"depositions"`
}

// Publisher drives the publish sequence against a cache and a credentials file.
// Ledger is optional.
type Publisher struct {
	Cache       *datacache.Manager
	Credentials zenodo.Credentials
	Ledger      *history.Ledger

	Now func() time.Time
}

// IsAffirmative reports whether a prompt answer means yes.
func IsAffirmative(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}

// Run publishes according to opts. A declined confirmation returns a cancelled
// Result and no error.
func (p *Publisher) Run(ctx context.Context, opts Options) (Result, error) {
	log := opts.Log
	if log == nil {
		log = io.Discard
	}
	infof := func(format string, args ...any) {
		if opts.Verbose {
			fmt.Fprintf(log, "[ INFO ] "+format+"\n", args...)
		}
	}

	mode, groups, err := p.selectGroups(opts)
	if err != nil {
		return Result{}, err
	}

	token, err := p.resolveToken(opts)
	if err != nil {
		return Result{}, err
	}
	if err := p.Credentials.SaveToken(opts.Sandbox, token); err != nil {
		return Result{}, fmt.Errorf("save zenodo access token: %w", err)
	}
	infof("Zenodo access token saved in %s", p.Credentials.Path)

	if !opts.NoInteractive {
		if opts.Confirm == nil || !opts.Confirm(confirmPrompt(mode, groups)) {
			return Result{Cancelled: true}, nil
		}
	}

	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = zenodo.Endpoint(opts.Sandbox)
	}
	client := zenodo.NewClient(endpoint, opts.HTTPClient, opts.Verbose, log)
	if err := client.TestAPI(ctx, token); err != nil {
		return Result{}, err
	}

	res := Result{BatchID: uuid.NewString(), Endpoint: client.Endpoint}
	for _, names := range groups {
		dep, err := p.publishGroup(ctx, client, token, opts, names, infof)
		if err != nil {
			return res, err
		}
		res.Depositions = append(res.Depositions, dep)

		for _, n := range names {
			if err := p.Cache.Remove(n); err != nil {
				return res, fmt.Errorf("remove published file %s from cache: %w", n, err)
			}
		}
		p.record(res, opts.Author, dep, infof)
	}
	return res, nil
}

func (p *Publisher) selectGroups(opts Options) (Mode, [][]string, error) {
	file := strings.TrimSpace(opts.File)
	if file != "" && opts.Individually {
		return 0, nil, datacache.InvalidArgument("Cannot publish a single file individually")
	}
	if strings.TrimSpace(opts.Replace) != "" && opts.Individually {
		return 0, nil, datacache.InvalidArgument("Cannot replace a deposition when publishing files individually")
	}

	if file != "" {
		name := filepath.Base(file)
		if err := p.Cache.Require(name); err != nil {
			return 0, nil, err
		}
		return Single, [][]string{{name}}, nil
	}

	files, err := p.Cache.Files()
	if err != nil {
		return 0, nil, err
	}
	if len(files) == 0 {
		return 0, nil, datacache.InvalidArgument("There are no files in the data cache to publish")
	}
	if opts.Individually {
		groups := make([][]string, 0, len(files))
		for _, f := range files {
			groups = append(groups, []string{f})
		}
		return Individually, groups, nil
	}
	return Bulk, [][]string{files}, nil
}

func (p *Publisher) resolveToken(opts Options) (string, error) {
	if tok := strings.TrimSpace(opts.Token); tok != "" {
		return tok, nil
	}
	if tok := p.Credentials.Token(opts.Sandbox); tok != "" {
		return tok, nil
	}
	if opts.NoInteractive || opts.AskToken == nil {
		return "", &zenodo.Error{Message: "Cannot find Zenodo credentials."}
	}
	prompt := fmt.Sprintf("Please enter your Zenodo access token (it will be saved in %s for future use): ", p.Credentials.Path)
	return opts.AskToken(prompt)
}

func confirmPrompt(mode Mode, groups [][]string) string {
	switch mode {
	case Single:
		return fmt.Sprintf("The file %s will be published to Zenodo, this cannot be undone. Are you sure? (Y/n) ", groups[0][0])
	case Individually:
		return fmt.Sprintf("The %d files in the data cache will be published to Zenodo as individual data-sets, this cannot be undone. Are you sure? (Y/n) ", len(groups))
	default:
		return fmt.Sprintf("The %d files in the data cache will be published to Zenodo as a single data-set, this cannot be undone. Are you sure? (Y/n) ", len(groups[0]))
	}
}

func (p *Publisher) publishGroup(ctx context.Context, client *zenodo.Client, token string, opts Options, names []string, infof func(string, ...any)) (Deposition, error) {
	contents := make(map[string][]byte, len(names))
	for _, n := range names {
		b, err := p.Cache.Read(n)
		if err != nil {
			return Deposition{}, err
		}
		contents[n] = b
	}
	md := buildMetadata(opts.Author, names, contents)

	var depID string
	var err error
	if replace := strings.TrimSpace(opts.Replace); replace != "" {
		depID, err = client.NewVersion(ctx, token, replace,
			func(ctx context.Context, id, doi string) error {
				infof("Drafting new version of %s as deposition %s", doi, id)
				return client.UpdateMetadata(ctx, token, id, md)
			},
			func(ctx context.Context, id string, files []zenodo.DepositionFile) error {
				for _, f := range files {
					if err := client.DeleteFile(ctx, token, id, f.ID); err != nil {
						return err
					}
				}
				return nil
			})
	} else {
		depID, err = client.Deposit(ctx, token, md)
	}
	if err != nil {
		return Deposition{}, err
	}

	for _, n := range names {
		if err := client.UploadFile(ctx, token, depID, n, bytes.NewReader(contents[n])); err != nil {
			return Deposition{}, err
		}
	}

	what := "Execution records"
	if len(names) == 1 {
		what = names[0]
	}
	doi, err := client.Publish(ctx, token, depID, what)
	if err != nil {
		return Deposition{}, err
	}
	return Deposition{ID: depID, DOI: doi, Files: names}, nil
}

// record writes to the ledger; a ledger failure never fails the publish.
func (p *Publisher) record(res Result, author string, dep Deposition, infof func(string, ...any)) {
	if p.Ledger == nil {
		return
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	if strings.TrimSpace(author) == "" {
		author = defaultAuthor
	}
	err := p.Ledger.Add(history.Record{
		BatchID:      res.BatchID,
		DepositionID: dep.ID,
		DOI:          dep.DOI,
		Endpoint:     res.Endpoint,
		Author:       author,
		Files:        dep.Files,
		PublishedAt:  now(),
	})
	if err != nil {
		infof("Could not record deposition %s in %s: %v", dep.ID, p.Ledger.Path, err)
	}
}
