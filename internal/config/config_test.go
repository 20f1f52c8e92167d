package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadJSONCAndPrecedence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	work := t.TempDir()
	oldwd, _ := os.Getwd()
	if err := os.Chdir(work); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldwd) })

	globalDir := filepath.Join(home, ".agi")
	if err := os.MkdirAll(globalDir, 0o755); err != nil {
		t.Fatal(err)
	}
	globalCfg := `{
  // global
  "server": {"url": "http://global:9100"},
  "session": {"model": "global-model", "reopen_last": false}
}`
	if err := os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(globalCfg), 0o644); err != nil {
		t.Fatal(err)
	}
	projectCfg := `{
  "session": {"model": "project-model"},
  "ui": {"markdown": false}
}`
	if err := os.WriteFile("agi.config.json", []byte(projectCfg), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.URL != "http://global:9100" {
		t.Fatalf("server url=%q", cfg.Server.URL)
	}
	if cfg.Session.Model != "project-model" {
		t.Fatalf("model=%q", cfg.Session.Model)
	}
	if cfg.Session.ReopenLast {
		t.Fatal("reopen_last expected false from global config")
	}
	if cfg.UI.Markdown {
		t.Fatal("ui.markdown expected false from project config")
	}
}

func TestEnvOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("AGI_SERVER_URL", "http://env:9100/")
	t.Setenv("AGI_MODEL", "env-model")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.URL != "http://env:9100" {
		t.Fatalf("server url should be trimmed env value, got %q", cfg.Server.URL)
	}
	if cfg.Session.Model != "env-model" {
		t.Fatalf("model=%q", cfg.Session.Model)
	}
}

func TestInvalidTimeoutEnv(t *testing.T) {
	t.Setenv("AGI_TIMEOUT_MS", "zero")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for bad AGI_TIMEOUT_MS")
	}
}

func TestStorageDirExpansion(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.BaseDir != filepath.Join(home, ".agi") {
		t.Fatalf("storage dir=%q", cfg.Storage.BaseDir)
	}
}
