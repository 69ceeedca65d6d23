package zenodo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestCredentialsMissingFileIsEmpty(t *testing.T) {
	c := Credentials{Path: filepath.Join(t.TempDir(), ".boutiques")}
	if got := c.Load(); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
	if tok := c.Token(false); tok != "" {
		t.Fatalf("token = %q", tok)
	}
}

func TestCredentialsGarbageIsEmpty(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".boutiques")
	if err := os.WriteFile(p, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	c := Credentials{Path: p}
	if got := c.Load(); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
	if err := c.SaveToken(false, "abc"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if c.Token(false) != "abc" {
		t.Fatalf("token not saved over garbage")
	}
}

func TestCredentialsSaveMerges(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".boutiques")
	if err := os.WriteFile(p, []byte(`{"other-tool": {"x": 1}, "zenodo-access-token": "prod"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	c := Credentials{Path: p}
	if err := c.SaveToken(true, "sandbox-tok"); err != nil {
		t.Fatalf("save: %v", err)
	}

	if c.Token(false) != "prod" || c.Token(true) != "sandbox-tok" {
		t.Fatalf("tokens = %q / %q", c.Token(false), c.Token(true))
	}

	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("written file is not json: %v", err)
	}
	if _, ok := raw["other-tool"].(map[string]any); !ok {
		t.Fatalf("other property lost: %s", b)
	}
}

func TestTokenProperty(t *testing.T) {
	if TokenProperty(false) != "zenodo-access-token" || TokenProperty(true) != "zenodo-access-token-test" {
		t.Fatalf("unexpected property names")
	}
}
