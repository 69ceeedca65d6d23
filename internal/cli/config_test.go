package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"boshdata/internal/zenodo"
)

func TestMaskToken(t *testing.T) {
	cases := map[string]string{
		"":                 "(not set)",
		"short":            "****",
		"abcdefghijklmnop": "abcd...mnop",
	}
	for in, want := range cases {
		if got := maskToken(in); got != want {
			t.Fatalf("maskToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolvePathsPrefersFlags(t *testing.T) {
	t.Setenv("BOSH_CACHE_DIR", "/env/cache")
	t.Setenv("BOSH_CONFIG", "/env/creds")

	p, err := resolvePaths(rootFlags{CacheDir: "/flag/cache/data"})
	if err != nil {
		t.Fatal(err)
	}
	if p.CacheDir != "/flag/cache/data" || p.Credentials != "/env/creds" {
		t.Fatalf("unexpected paths %+v", p)
	}
	if p.History != filepath.Join("/flag/cache", "publications.sqlite") {
		t.Fatalf("history = %q", p.History)
	}
}

func TestConfigViewMasksTokens(t *testing.T) {
	td := t.TempDir()
	cfgPath := filepath.Join(td, ".boutiques")
	if err := (zenodo.Credentials{Path: cfgPath}).SaveToken(false, "0123456789abcdef"); err != nil {
		t.Fatal(err)
	}

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "view", "--output", "yaml", "--config", cfgPath, "--cache-dir", filepath.Join(td, "data")})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.Contains(out.String(), "0123456789abcdef") {
		t.Fatalf("token leaked: %q", out.String())
	}

	var view configView
	if err := yaml.Unmarshal(out.Bytes(), &view); err != nil {
		t.Fatalf("not yaml: %v", err)
	}
	if view.Tokens["zenodo-access-token"] != "0123...cdef" {
		t.Fatalf("tokens = %v", view.Tokens)
	}
	if view.Tokens["zenodo-access-token-test"] != "(not set)" {
		t.Fatalf("tokens = %v", view.Tokens)
	}
}

func TestInvalidOutputFormat(t *testing.T) {
	var b bytes.Buffer
	if err := writeStructured(&b, "xml", map[string]string{}); err == nil {
		t.Fatalf("expected error")
	}
}
