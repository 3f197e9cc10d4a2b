package utils

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Address string `toml:"address"`
	Retries int    `toml:"retries"`
}

func TestSaveTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := SaveTOMLFile(sample{Address: "127.0.0.1:4005", Retries: 5}, path); err != nil {
		t.Fatalf("SaveTOMLFile failed: %v", err)
	}
	var got sample
	if err := LoadTOMLFile(path, &got); err != nil {
		t.Fatalf("LoadTOMLFile failed: %v", err)
	}
	if got.Address != "127.0.0.1:4005" || got.Retries != 5 {
		t.Errorf("got %+v", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %v", entries)
	}
}

func TestSaveTOMLFileErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no", "such", "dir", "config.toml")
	err := SaveTOMLFile(sample{}, missing)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("got %v, want an error wrapping fs.ErrNotExist", err)
	}
	if !strings.HasPrefix(err.Error(), "utils: creating ") {
		t.Errorf("error lacks context: %v", err)
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("keep = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := SaveTOMLFile(make(chan int), path); err == nil {
		t.Fatal("expected an encode error")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "keep = true\n" {
		t.Errorf("failed save clobbered the file: %q", data)
	}
}

func TestEnsureDirWrapsError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err := EnsureDir(filepath.Join(file, "sub"))
	if err == nil {
		t.Fatal("expected an error creating a dir under a file")
	}
	var pathErr *fs.PathError
	if !errors.As(err, &pathErr) {
		t.Errorf("got %T, want a wrapped *fs.PathError", err)
	}
}

func TestCheckDirStatus(t *testing.T) {
	base := t.TempDir()

	fresh := filepath.Join(base, "slynkserve")
	status := CheckDirStatus(fresh)
	if !status.Exists || !status.Writable || status.Err != nil {
		t.Errorf("new dir: got %+v", status)
	}
	if !FileExists(fresh) {
		t.Error("dir was not created")
	}

	file := filepath.Join(base, "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	status = CheckDirStatus(filepath.Join(file, "slynkserve"))
	if status.Exists || status.Writable || status.Err == nil {
		t.Errorf("dir under a file: got %+v", status)
	}
}

func TestAbsPath(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/etc/slynkserve/config.toml", "/etc/slynkserve/config.toml"},
		{"config.toml", filepath.Join(wd, "config.toml")},
	}

	for _, tt := range tests {
		if got := AbsPath(tt.in); got != tt.want {
			t.Errorf("AbsPath(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
