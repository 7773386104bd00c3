package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func Test_MyConfig(t *testing.T) {
	c := configData{}
	s := c.MyConfig()
	if s.Port != 8080 {
		t.Errorf("expected default port, got %d", s.Port)
	}
	if s.QueueSize != 64 || s.VisibleRows != 20 || s.ThumbnailCacheSize != 256 {
		t.Error("defaults not applied")
	}
	if s.RequestTimeout != 15*time.Second {
		t.Errorf("expected default timeout, got %v", s.RequestTimeout)
	}
	if s.CellWidth != 300 || s.CellHeight != 170 || s.Scale != 1 {
		t.Error("bad default cell geometry")
	}
}

func Test_KeyConfigured(t *testing.T) {
	s := siteConfig{}
	if s.KeyConfigured() {
		t.Error("no key by default")
	}
	s.APIKey = "foo"
	if !s.KeyConfigured() {
		t.Error("now there should be one")
	}
}

func Test_loadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	err := os.WriteFile(path, []byte(`{"port": 9000, "api_key": "from-file", "cell_width": 120, "cell_height": 68}`), 0644)
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("NOWPLAYING_API_KEY", "from-env")

	c, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Port != 9000 {
		t.Errorf("expected port from file, got %d", c.Port)
	}
	if c.APIKey != "from-env" {
		t.Errorf("environment should win, got %q", c.APIKey)
	}
	if c.CellWidth != 120 || c.CellHeight != 68 {
		t.Errorf("bad cell size %vx%v", c.CellWidth, c.CellHeight)
	}
	if c.Language != "en-US" || c.Scale != 2 {
		t.Error("defaults should fill keys missing from the file")
	}
}

func Test_loadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("missing config file should be an error")
	}
	c, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Port != 8080 {
		t.Error("no file means defaults")
	}
}
