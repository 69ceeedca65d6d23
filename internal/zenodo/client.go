package zenodo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	ProductionEndpoint = "https://zenodo.org"
	SandboxEndpoint    = "https://sandbox.zenodo.org"

	depositionsPath = "/api/deposit/depositions"
)

// Endpoint picks the production or sandbox base URL.
func Endpoint(sandbox bool) string {
	if sandbox {
		return SandboxEndpoint
	}
	return ProductionEndpoint
}

// Client talks to the deposition API of one Zenodo instance.
// Every method performs a single blocking request and maps any unexpected
// status to an *Error; nothing is retried.
type Client struct {
	Endpoint   string
	HTTPClient *http.Client

	// Verbose writes progress messages to Log.
	Verbose bool
	Log     io.Writer
}

// NewClient returns a client for endpoint. A nil httpClient uses a default one
// with no timeout.
func NewClient(endpoint string, httpClient *http.Client, verbose bool, log io.Writer) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = io.Discard
	}
	c := &Client{
		Endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		HTTPClient: httpClient,
		Verbose:    verbose,
		Log:        log,
	}
	c.infof("Using Zenodo endpoint %s", c.Endpoint)
	return c
}

type Creator struct {
	Name string `json:"name"`
}

// Metadata is the deposition metadata block. UploadType is always "dataset"
// for execution records.
type Metadata struct {
	UploadType  string    `json:"upload_type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Creators    []Creator `json:"creators"`
	Keywords    []string  `json:"keywords,omitempty"`
	DOI         string    `json:"doi,omitempty"`
}

type metadataEnvelope struct {
	Metadata Metadata `json:"metadata"`
}

// DepositionFile is a file attached to a deposition.
type DepositionFile struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize,omitempty"`
	Checksum string `json:"checksum,omitempty"`
}

// NewVersion callbacks, run against the new draft.
type (
	UpdateMetadataFunc func(ctx context.Context, depositionID, doi string) error
	DeleteFilesFunc    func(ctx context.Context, depositionID string, files []DepositionFile) error
)

// TestAPI checks the service is reachable (anonymous request is refused with
// 401) and that token authenticates (200).
func (c *Client) TestAPI(ctx context.Context, token string) error {
	status, body, err := c.do(ctx, http.MethodGet, depositionsPath, "", nil, "")
	if err != nil {
		return err
	}
	if status != http.StatusUnauthorized {
		return statusError("Cannot access Zenodo", status, body)
	}
	c.infof("Zenodo is accessible")

	status, body, err = c.do(ctx, http.MethodGet, depositionsPath, token, nil, "")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return statusError("Cannot authenticate to Zenodo API, check your access token", status, body)
	}
	c.infof("Authentication to Zenodo successful")
	return nil
}

// Deposit creates a draft deposition and returns its id.
func (c *Client) Deposit(ctx context.Context, token string, md Metadata) (string, error) {
	blob, err := json.Marshal(metadataEnvelope{Metadata: md})
	if err != nil {
		return "", err
	}
	status, body, err := c.do(ctx, http.MethodPost, depositionsPath, token, bytes.NewReader(blob), "application/json")
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", statusError("Deposition failed", status, body)
	}

	var out struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.ID.String() == "" {
		return "", statusError("Deposition failed", status, body)
	}
	zid := out.ID.String()
	c.infof("Deposition succeeded, id is %s", zid)
	return zid, nil
}

// UploadFile attaches content to a deposition under name.
func (c *Client) UploadFile(ctx context.Context, token, depositionID, name string, content io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("filename", name); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	p := fmt.Sprintf("%s/%s/files", depositionsPath, url.PathEscape(depositionID))
	status, body, err := c.do(ctx, http.MethodPost, p, token, &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return statusError("Cannot upload descriptor", status, body)
	}
	c.infof("File %s uploaded to deposition %s", name, depositionID)
	return nil
}

// Publish publishes a draft and returns its DOI. what names the published
// object in messages.
func (c *Client) Publish(ctx context.Context, token, depositionID, what string) (string, error) {
	p := fmt.Sprintf("%s/%s/actions/publish", depositionsPath, url.PathEscape(depositionID))
	status, body, err := c.do(ctx, http.MethodPost, p, token, nil, "")
	if err != nil {
		return "", err
	}
	if status != http.StatusAccepted {
		return "", statusError(fmt.Sprintf("Cannot publish %s", what), status, body)
	}
	var out struct {
		DOI string `json:"doi"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", statusError(fmt.Sprintf("Cannot publish %s", what), status, body)
	}
	c.infof("%s published to Zenodo, doi is %s", what, out.DOI)
	return out.DOI, nil
}

// NewVersion opens a new draft version of depositionID, runs updateMetadata
// and deleteFiles against it, and returns the new draft's id.
func (c *Client) NewVersion(ctx context.Context, token, depositionID string, updateMetadata UpdateMetadataFunc, deleteFiles DeleteFilesFunc) (string, error) {
	p := fmt.Sprintf("%s/%s/actions/newversion", depositionsPath, url.PathEscape(depositionID))
	status, body, err := c.do(ctx, http.MethodPost, p, token, nil, "")
	if err != nil {
		return "", err
	}
	const failMsg = "Deposition of new version failed. Check that the Zenodo ID is correct (if one was provided)."
	if status != http.StatusCreated {
		return "", statusError(failMsg, status, body)
	}
	c.infof("Deposition of new version succeeded")

	var out struct {
		Links struct {
			LatestDraft string `json:"latest_draft"`
		} `json:"links"`
		DOI   string           `json:"doi"`
		Files []DepositionFile `json:"files"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", statusError(failMsg, status, body)
	}
	newID := lastPathSegment(out.Links.LatestDraft)
	if newID == "" {
		return "", statusError(failMsg, status, body)
	}

	if updateMetadata != nil {
		if err := updateMetadata(ctx, newID, out.DOI); err != nil {
			return "", err
		}
	}
	if deleteFiles != nil {
		if err := deleteFiles(ctx, newID, out.Files); err != nil {
			return "", err
		}
	}
	return newID, nil
}

// UpdateMetadata replaces the metadata of a draft deposition.
func (c *Client) UpdateMetadata(ctx context.Context, token, depositionID string, md Metadata) error {
	blob, err := json.Marshal(metadataEnvelope{Metadata: md})
	if err != nil {
		return err
	}
	p := fmt.Sprintf("%s/%s", depositionsPath, url.PathEscape(depositionID))
	status, body, err := c.do(ctx, http.MethodPut, p, token, bytes.NewReader(blob), "application/json")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return statusError(fmt.Sprintf("Cannot update metadata of deposition %s", depositionID), status, body)
	}
	c.infof("Metadata of deposition %s updated", depositionID)
	return nil
}

// DeleteFile removes one file from a draft deposition.
func (c *Client) DeleteFile(ctx context.Context, token, depositionID, fileID string) error {
	p := fmt.Sprintf("%s/%s/files/%s", depositionsPath, url.PathEscape(depositionID), url.PathEscape(fileID))
	status, body, err := c.do(ctx, http.MethodDelete, p, token, nil, "")
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return statusError(fmt.Sprintf("Cannot delete file %s from deposition %s", fileID, depositionID), status, body)
	}
	c.infof("File %s deleted from deposition %s", fileID, depositionID)
	return nil
}

// do sends one request. An empty token sends it unauthenticated.
func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader, contentType string) (int, []byte, error) {
	u, err := c.buildURL(path, token)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if c.Verbose {
		fmt.Fprintf(c.Log, "HTTP %s %s -> %d (%s)\n", method, RedactToken(req.URL), resp.StatusCode, time.Since(start).Round(time.Millisecond))
	}
	return resp.StatusCode, b, nil
}

func (c *Client) buildURL(path, token string) (string, error) {
	if strings.TrimSpace(c.Endpoint) == "" {
		return "", errors.New("zenodo endpoint is empty")
	}
	bu, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid zenodo endpoint %q: %w", c.Endpoint, err)
	}
	pu, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	u := bu.ResolveReference(pu)
	if token != "" {
		q := u.Query()
		q.Set("access_token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// RedactToken returns u as a string with any access_token query value masked.
func RedactToken(u *url.URL) string {
	cp := *u
	q := cp.Query()
	if q.Has("access_token") {
		q.Set("access_token", "REDACTED")
		cp.RawQuery = q.Encode()
	}
	return cp.String()
}

func lastPathSegment(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

func (c *Client) infof(format string, args ...any) {
	if !c.Verbose {
		return
	}
	fmt.Fprintf(c.Log, "[ INFO ] "+format+"\n", args...)
}
