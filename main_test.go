package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/camden-git/photodb/config"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-d", "/photos", "-s", "/tmp/records.json", "-l", "debug"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if opts.scanDir != "/photos" || opts.save != "/tmp/records.json" || opts.logLevel != "debug" {
		t.Errorf("opts = %+v", opts)
	}
	if opts.configPath != config.DefaultConfigPath {
		t.Errorf("config path = %q, want default", opts.configPath)
	}

	opts, err = parseFlags([]string{"--extract", "dump.csv"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if opts.extract != "dump.csv" {
		t.Errorf("extract = %q", opts.extract)
	}
}

func TestParseFlagsRejectsSeveralOperations(t *testing.T) {
	for _, args := range [][]string{
		{"-d", "/photos", "-r", "records.json"},
		{"-i", "-x", "dump.json"},
		{"--picture", "a.jpg", "--scan-dir", "/photos"},
	} {
		if _, err := parseFlags(args); err == nil {
			t.Errorf("parseFlags(%v) accepted several operations", args)
		}
	}
}

func TestParseFlagsRejectsStrayArguments(t *testing.T) {
	if _, err := parseFlags([]string{"-d", "/photos", "extra"}); err == nil {
		t.Error("stray positional argument accepted")
	}
}

func TestCheckExtractTarget(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "records.json")

	if err := checkExtractTarget(journalPath, journalPath); err == nil {
		t.Error("extract into the journal file accepted")
	}
	if err := checkExtractTarget(dir+"/./records.json", journalPath); err == nil {
		t.Error("extract into an unclean path to the journal file accepted")
	}
	if err := checkExtractTarget(filepath.Join(dir, "dump.json"), journalPath); err != nil {
		t.Errorf("extract into another file rejected: %v", err)
	}

	if err := os.WriteFile(journalPath, []byte("[\n\n]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.json")
	if err := os.Symlink(journalPath, link); err != nil {
		t.Skipf("symlinks not available: %v", err)
	}
	if err := checkExtractTarget(link, journalPath); err == nil {
		t.Error("extract through a symlink to the journal file accepted")
	}
}
