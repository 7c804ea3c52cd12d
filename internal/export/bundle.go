package export

import (
	"archive/zip"
	"bytes"
	"context"
	"time"

	"github.com/pkg/errors"
)

type archiveWriter struct {
	buf bytes.Buffer
	zw  *zip.Writer
	n   int
}

func newArchiveWriter() *archiveWriter {
	a := &archiveWriter{}
	a.zw = zip.NewWriter(&a.buf)
	return a
}

func (a *archiveWriter) add(name string, data []byte) error {
	w, err := a.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return errors.Wrapf(err, "add %s to archive", name)
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrapf(err, "write %s to archive", name)
	}
	a.n++
	return nil
}

func (a *archiveWriter) bytes() ([]byte, error) {
	if err := a.zw.Close(); err != nil {
		return nil, errors.Wrap(err, "finish archive")
	}
	return a.buf.Bytes(), nil
}

// Bundle zips the sources as they are. A source that cannot be fetched is
// left out but still counts toward progress.
func Bundle(ctx context.Context, f Fetcher, sources []Source, onProgress ProgressFunc) ([]byte, error) {
	total := len(sources)
	onProgress.report(total, 0)

	archive := newArchiveWriter()
	for i, src := range sources {
		if cancelled(ctx) {
			return nil, ErrCancelled
		}
		data, err := f.Fetch(ctx, src.URL, src.Headers)
		if err == nil {
			if err := archive.add(src.Name, data); err != nil {
				return nil, err
			}
		} else if cancelled(ctx) {
			return nil, ErrCancelled
		}
		onProgress.report(total, i+1)
	}
	if cancelled(ctx) {
		return nil, ErrCancelled
	}
	return archive.bytes()
}
