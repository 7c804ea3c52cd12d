package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStoreGetMissingKey(t *testing.T) {
	s := New(t.TempDir())
	data, ok, err := s.Get("runtime-config-v2")
	if err != nil {
		t.Fatalf("expected no error for missing key, got %v", err)
	}
	if ok || data != nil {
		t.Fatalf("expected missing key, got ok=%t data=%q", ok, data)
	}
}

func TestStoreSetGetDelete(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	if err := s.Set("runtime-config-v2", []byte(`{"hosts":[]}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	data, ok, err := s.Get("runtime-config-v2")
	if err != nil || !ok {
		t.Fatalf("expected stored key, got ok=%t err=%v", ok, err)
	}
	if string(data) != `{"hosts":[]}` {
		t.Fatalf("unexpected data: %q", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "runtime-config-v2.json")); err != nil {
		t.Fatalf("expected key file on disk: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			t.Fatalf("unexpected leftover file %q", e.Name())
		}
	}

	if err := s.Delete("runtime-config-v2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get("runtime-config-v2"); ok {
		t.Fatalf("expected key to be gone after delete")
	}
}

func TestStoreRejectsPathKeys(t *testing.T) {
	s := New(t.TempDir())
	_, _, err := s.Get("../escape")
	if !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestStoreUpdateHoldsLock(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	err := s.Update(func() error {
		if _, err := AcquireLock(dir); !errors.Is(err, ErrLocked) {
			t.Fatalf("expected lock to be held inside Update, got %v", err)
		}
		return s.SetJSON("k", map[string]int{"a": 1})
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	var got map[string]int
	path, _ := s.Path("k")
	if err := ReadJSON(path, &got); err != nil {
		t.Fatal(err)
	}
	if got["a"] != 1 {
		t.Fatalf("expected a=1, got %v", got)
	}
}

func TestDefaultDirPrefersExplicit(t *testing.T) {
	got, err := DefaultDir("  /tmp/state  ")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/state" {
		t.Fatalf("expected /tmp/state, got %q", got)
	}

	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	t.Setenv("HOME", "/tmp/home")
	got, err = DefaultDir("")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != DirName {
		t.Fatalf("expected default dir to end with %s, got %q", DirName, got)
	}
}

func TestWriteFileModes(t *testing.T) {
	dir := t.TempDir()
	state := filepath.Join(dir, "state.json")
	output := filepath.Join(dir, "nested", "out.zip")

	if err := WriteBytes(state, []byte("{}")); err != nil {
		t.Fatalf("write state: %v", err)
	}
	if err := WriteFile(output, []byte("PK"), OutputFileMode); err != nil {
		t.Fatalf("write output: %v", err)
	}

	for path, want := range map[string]os.FileMode{state: StateFileMode, output: OutputFileMode} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if got := info.Mode().Perm(); got != want {
			t.Fatalf("expected mode %o for %s, got %o", want, path, got)
		}
	}
}
