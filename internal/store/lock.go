package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	lockDirName   = ".state.lock"
	lockOwnerFile = "owner.json"
)

var ErrLocked = errors.New("state directory is locked")

type Lock struct {
	lockDir string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireLock takes an exclusive directory lock inside dir. Locks left behind
// by a crashed process older than staleAfter are broken.
func AcquireLock(dir string) (Lock, error) {
	return acquireLock(dir, 30*time.Second)
}

func acquireLock(dir string, staleAfter time.Duration) (Lock, error) {
	target := strings.TrimSpace(dir)
	if target == "" {
		return Lock{}, fmt.Errorf("state directory is required")
	}

	lockDir := filepath.Join(target, lockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if !os.IsExist(err) {
			return Lock{}, fmt.Errorf("acquire state lock for %s: %w", target, err)
		}
		ownerPath := filepath.Join(lockDir, lockOwnerFile)
		var owner lockOwner
		readErr := ReadJSON(ownerPath, &owner)
		if readErr == nil && owner.PID > 0 && owner.CreatedAt != "" {
			created, parseErr := time.Parse(time.RFC3339, owner.CreatedAt)
			if parseErr != nil || time.Since(created) < staleAfter {
				return Lock{}, fmt.Errorf(
					"%w: %s (pid=%d created_at=%s host=%s)",
					ErrLocked, target, owner.PID, owner.CreatedAt, owner.Hostname,
				)
			}
		} else if info, statErr := os.Stat(lockDir); statErr == nil && time.Since(info.ModTime()) < staleAfter {
			return Lock{}, fmt.Errorf("%w: %s", ErrLocked, target)
		}
		_ = os.Remove(ownerPath)
		if err := os.Remove(lockDir); err != nil && !os.IsNotExist(err) {
			return Lock{}, fmt.Errorf("break stale state lock %s: %w", lockDir, err)
		}
		if err := os.Mkdir(lockDir, 0o755); err != nil {
			return Lock{}, fmt.Errorf("%w: %s", ErrLocked, target)
		}
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	ownerPath := filepath.Join(lockDir, lockOwnerFile)
	if err := WriteJSON(ownerPath, owner); err != nil {
		_ = os.Remove(lockDir)
		return Lock{}, fmt.Errorf("write state lock owner for %s: %w", target, err)
	}

	return Lock{lockDir: lockDir}, nil
}

func (l Lock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, lockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release state lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
