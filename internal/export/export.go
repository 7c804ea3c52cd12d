// Package export builds zip archives from the PDFs executions reference,
// either as-is or rasterized to one PNG per page.
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrCancelled = errors.New("export cancelled")
	ErrNoSources = errors.New("no PDF files to export")
)

// Source is one file to export. Name is its path inside the archive.
type Source struct {
	URL     string            `json:"url"`
	Name    string            `json:"name"`
	Headers map[string]string `json:"-"`
}

type Mode string

const (
	ModeBundle Mode = "bundle"
	ModeImages Mode = "images"
)

func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "pdf", "bundle":
		return ModeBundle, nil
	case "images", "image", "png":
		return ModeImages, nil
	default:
		return "", fmt.Errorf("unknown export mode %q (use pdf or images)", raw)
	}
}

// ArchiveName is the default file name of an archive built at now.
func ArchiveName(mode Mode, now time.Time) string {
	kind := "pdf"
	if mode == ModeImages {
		kind = "images"
	}
	return fmt.Sprintf("executions-%s-%d.zip", kind, now.UnixMilli())
}

type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	pct := p.Completed * 100 / p.Total
	return min(100, max(0, pct))
}

type ProgressFunc func(Progress)

func (f ProgressFunc) report(total, completed int) {
	if f != nil {
		f(Progress{Total: total, Completed: completed})
	}
}

// Fetcher downloads a URL with the given headers.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

func cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}
