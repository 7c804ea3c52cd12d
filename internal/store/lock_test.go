package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireLock_BlocksConcurrentAcquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	_, err = AcquireLock(dir)
	if err == nil {
		t.Fatalf("expected second acquire to fail")
	}
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("release lock: %v", err)
	}

	lock2, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := lock2.Release(); err != nil {
		t.Fatalf("release second lock: %v", err)
	}
}

func TestAcquireLock_BreaksStaleLock(t *testing.T) {
	dir := t.TempDir()
	lockDir := filepath.Join(dir, lockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		t.Fatal(err)
	}
	old := lockOwner{PID: 4242, CreatedAt: time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)}
	if err := WriteJSON(filepath.Join(lockDir, lockOwnerFile), old); err != nil {
		t.Fatal(err)
	}

	lock, err := acquireLock(dir, time.Minute)
	if err != nil {
		t.Fatalf("expected stale lock to be broken, got %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}
