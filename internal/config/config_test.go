package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gmd"
	"gmd/internal/dump"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	tgt, err := c.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	want := Target{Platform: gmd.PlatformMobile, Game: gmd.GameDD}
	if tgt != want {
		t.Errorf("Resolve = %+v, want %+v", tgt, want)
	}
	if c.BackupSuffix != ".bk" {
		t.Errorf("BackupSuffix = %q", c.BackupSuffix)
	}
	opts, err := c.DumpOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Format != dump.FormatJSON || opts.Compression != dump.CompressionNone {
		t.Errorf("DumpOptions = %+v", opts)
	}
}

func TestManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gmdtool.json")
	m := NewManager(path)
	if err := m.Load(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("defaults were not written: %v", err)
	}
	var onDisk Config
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if onDisk != *DefaultConfig() {
		t.Errorf("written config = %+v", onDisk)
	}
}

func TestManagerLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gmdtool.json")
	m := NewManager(path)
	c := m.GetConfig()
	c.Platform = "ctr"
	c.Game = "dgs2"
	c.Version = "v2"
	c.DumpCompression = "zstd"
	if err := m.Save(); err != nil {
		t.Fatal(err)
	}

	m2 := NewManager(path)
	if err := m2.Load(); err != nil {
		t.Fatal(err)
	}
	tgt, err := m2.GetConfig().Resolve()
	if err != nil {
		t.Fatal(err)
	}
	want := Target{Platform: gmd.PlatformCTR, Game: gmd.GameDGS2, Version: gmd.V2}
	if tgt != want {
		t.Errorf("Resolve = %+v, want %+v", tgt, want)
	}
	// Fields missing from the file keep their defaults.
	if m2.GetConfig().BackupSuffix != ".bk" {
		t.Errorf("BackupSuffix = %q", m2.GetConfig().BackupSuffix)
	}
}

func TestManagerLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "{"},
		{"platform", `{"platform":"ps5"}`},
		{"game", `{"game":"pw"}`},
		{"version", `{"version":"v9"}`},
		{"dump format", `{"dump_format":"yaml"}`},
		{"suffix", `{"backup_suffix":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "gmdtool.json")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if err := NewManager(path).Load(); err == nil {
				t.Error("Load succeeded")
			}
		})
	}
}
