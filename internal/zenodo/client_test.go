package zenodo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	var log bytes.Buffer
	return NewClient(srv.URL, srv.Client(), true, &log), &log
}

func TestEndpoint(t *testing.T) {
	if Endpoint(false) != "https://zenodo.org" || Endpoint(true) != "https://sandbox.zenodo.org" {
		t.Fatalf("unexpected endpoints %q %q", Endpoint(false), Endpoint(true))
	}
}

func TestTestAPI_Success(t *testing.T) {
	c, log := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/deposit/depositions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("access_token") == "tok" {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `[]`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))

	if err := c.TestAPI(context.Background(), "tok"); err != nil {
		t.Fatalf("TestAPI: %v", err)
	}
	s := log.String()
	if !strings.Contains(s, "Zenodo is accessible") || !strings.Contains(s, "Authentication to Zenodo successful") {
		t.Fatalf("missing verbose messages: %q", s)
	}
	if strings.Contains(s, "access_token=tok") {
		t.Fatalf("token leaked into log: %q", s)
	}
}

func TestTestAPI_Unreachable(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	err := c.TestAPI(context.Background(), "tok")
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Message != "Cannot access Zenodo" || zerr.StatusCode != 503 {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTestAPI_BadToken(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"status":401,"message":"The server could not verify that you are authorized"}`)
	}))
	err := c.TestAPI(context.Background(), "bad")
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Message != "Cannot authenticate to Zenodo API, check your access token" {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(zerr.Detail(), "could not verify") {
		t.Fatalf("detail = %q", zerr.Detail())
	}
}

func TestDeposit(t *testing.T) {
	var got metadataEnvelope
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Query().Get("access_token") != "tok" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 1234}`)
	}))

	md := Metadata{
		UploadType:  "dataset",
		Title:       "t",
		Description: "d",
		Creators:    []Creator{{Name: "Jane"}},
		Keywords:    []string{"Boutiques"},
	}
	id, err := c.Deposit(context.Background(), "tok", md)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if id != "1234" {
		t.Fatalf("id = %q", id)
	}
	if diff := cmp.Diff(md, got.Metadata); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestDeposit_Failure(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	_, err := c.Deposit(context.Background(), "tok", Metadata{UploadType: "dataset"})
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Message != "Deposition failed" || zerr.StatusCode != 500 {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUploadFile(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/deposit/depositions/42/files" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("filename") != "rec.json" {
			t.Errorf("filename field = %q", r.FormValue("filename"))
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			b, _ := io.ReadAll(f)
			if string(b) != `{"a":1}` {
				t.Errorf("content = %q", b)
			}
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"f1"}`)
	}))

	if err := c.UploadFile(context.Background(), "tok", "42", "rec.json", strings.NewReader(`{"a":1}`)); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
}

func TestUploadFile_Failure(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	err := c.UploadFile(context.Background(), "tok", "42", "rec.json", strings.NewReader("x"))
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Message != "Cannot upload descriptor" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPublish(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/deposit/depositions/42/actions/publish" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"doi":"10.5072/zenodo.42"}`)
	}))
	doi, err := c.Publish(context.Background(), "tok", "42", "Records")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if doi != "10.5072/zenodo.42" {
		t.Fatalf("doi = %q", doi)
	}
}

func TestPublish_Failure(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	_, err := c.Publish(context.Background(), "tok", "42", "rec.json")
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Message != "Cannot publish rec.json" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewVersion(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/deposit/depositions/42/actions/newversion" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{
			"doi": "10.5072/zenodo.42",
			"links": {"latest_draft": "https://sandbox.zenodo.org/api/deposit/depositions/43"},
			"files": [{"id": "f-1", "filename": "old.json"}]
		}`)
	}))

	var calls []string
	newID, err := c.NewVersion(context.Background(), "tok", "42",
		func(ctx context.Context, id, doi string) error {
			calls = append(calls, "update:"+id+":"+doi)
			return nil
		},
		func(ctx context.Context, id string, files []DepositionFile) error {
			for _, f := range files {
				calls = append(calls, "delete:"+id+":"+f.ID)
			}
			return nil
		})
	if err != nil {
		t.Fatalf("NewVersion: %v", err)
	}
	if newID != "43" {
		t.Fatalf("newID = %q", newID)
	}
	want := []string{"update:43:10.5072/zenodo.42", "delete:43:f-1"}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Fatalf("callbacks mismatch (-want +got):\n%s", diff)
	}
}

func TestNewVersion_Failure(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	called := false
	_, err := c.NewVersion(context.Background(), "tok", "999",
		func(context.Context, string, string) error { called = true; return nil }, nil)
	var zerr *Error
	if !errors.As(err, &zerr) || !strings.HasPrefix(zerr.Message, "Deposition of new version failed") {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("callback must not run after failure")
	}
}

func TestUpdateMetadataAndDeleteFile(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/api/deposit/depositions/43":
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/api/deposit/depositions/43/files/f-1":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	ctx := context.Background()
	if err := c.UpdateMetadata(ctx, "tok", "43", Metadata{UploadType: "dataset"}); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	if err := c.DeleteFile(ctx, "tok", "43", "f-1"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if err := c.DeleteFile(ctx, "tok", "43", "f-2"); err == nil {
		t.Fatalf("expected error for unknown file")
	}
}
