package export

import (
	"context"
	"path/filepath"
	"strings"

	"pipeline-monitor/internal/store"
)

// Sink receives a finished archive.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// FileSink writes archives to disk. With Path set every archive goes
// there; otherwise it lands in Dir under its own name.
type FileSink struct {
	Dir  string
	Path string
}

func (s FileSink) Put(_ context.Context, name string, data []byte) (string, error) {
	target := strings.TrimSpace(s.Path)
	if target == "" {
		dir := strings.TrimSpace(s.Dir)
		if dir == "" {
			dir = "."
		}
		target = filepath.Join(dir, filepath.Base(name))
	}
	if err := store.WriteFile(target, data, store.OutputFileMode); err != nil {
		return "", err
	}
	return target, nil
}
