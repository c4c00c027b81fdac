package riscvdis

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disassembler_config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, "disassemble:\n  sections:\n    - .text\n    - .init\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := []string{".text", ".init"}
	if len(cfg.Disassemble.Sections) != len(want) {
		t.Fatalf("sections = %v, want %v", cfg.Disassemble.Sections, want)
	}
	for i, s := range want {
		if cfg.Disassemble.Sections[i] != s {
			t.Errorf("sections[%d] = %q, want %q", i, cfg.Disassemble.Sections[i], s)
		}
	}
}

func TestLoadConfigEmptySectionsIsError(t *testing.T) {
	path := writeTempConfig(t, "disassemble:\n  sections: []\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for a config with no sections")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
