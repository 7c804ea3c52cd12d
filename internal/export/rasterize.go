package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gabriel-vasile/mimetype"

	"pipeline-monitor/internal/filekey"
	"pipeline-monitor/internal/slogx"
)

const RenderScale = 2.0

// PdfRasterizer renders PDF pages locally.
type PdfRasterizer interface {
	PageCount(ctx context.Context, pdf []byte) (int, error)
	RenderPNG(ctx context.Context, pdf []byte, page int, scale float64) ([]byte, error)
}

type rasterDoc struct {
	src   Source
	data  []byte
	pages int
}

// PageName is the archive path of page (1-based) of a PDF named name.
func PageName(name string, page int) string {
	return fmt.Sprintf("%s/page-%03d.png", filekey.StripExt(name, ".pdf"), page)
}

// Rasterize renders every page of every readable PDF to PNG. Page counts
// are read up front so progress is determinate; sources that cannot be
// fetched or are not PDFs are skipped.
func Rasterize(ctx context.Context, f Fetcher, r PdfRasterizer, sources []Source, onProgress ProgressFunc) ([]byte, error) {
	return rasterize(ctx, f, r, sources, onProgress, slogx.Discard())
}

func rasterize(ctx context.Context, f Fetcher, r PdfRasterizer, sources []Source, onProgress ProgressFunc, logger *slog.Logger) ([]byte, error) {
	docs := make([]rasterDoc, 0, len(sources))
	total := 0
	for _, src := range sources {
		if cancelled(ctx) {
			return nil, ErrCancelled
		}
		data, err := f.Fetch(ctx, src.URL, src.Headers)
		if err != nil {
			logger.WarnContext(ctx, "skip unreadable export source", slog.String("name", src.Name), slogx.Error(err))
			continue
		}
		if mt := mimetype.Detect(data); !mt.Is("application/pdf") {
			logger.WarnContext(ctx, "skip non-PDF export source", slog.String("name", src.Name), slog.String("mime", mt.String()))
			continue
		}
		pages, err := r.PageCount(ctx, data)
		if err != nil || pages <= 0 {
			logger.WarnContext(ctx, "skip PDF without pages", slog.String("name", src.Name), slogx.Error(err))
			continue
		}
		docs = append(docs, rasterDoc{src: src, data: data, pages: pages})
		total += pages
	}
	onProgress.report(total, 0)

	archive := newArchiveWriter()
	completed := 0
	for _, doc := range docs {
		if cancelled(ctx) {
			return nil, ErrCancelled
		}
		for page := 1; page <= doc.pages; page++ {
			if cancelled(ctx) {
				return nil, ErrCancelled
			}
			png, err := r.RenderPNG(ctx, doc.data, page, RenderScale)
			if err != nil {
				if cancelled(ctx) {
					return nil, ErrCancelled
				}
				logger.WarnContext(ctx, "render page failed, skipping rest of document",
					slog.String("name", doc.src.Name), slog.Int("page", page), slogx.Error(err))
				break
			}
			if err := archive.add(PageName(doc.src.Name, page), png); err != nil {
				return nil, err
			}
			completed++
			onProgress.report(total, completed)
		}
	}
	if cancelled(ctx) {
		return nil, ErrCancelled
	}
	return archive.bytes()
}
