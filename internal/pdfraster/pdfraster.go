// Package pdfraster renders PDF pages with the poppler command-line tools.
package pdfraster

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const (
	pdfinfoBin  = "pdfinfo"
	pdftoppmBin = "pdftoppm"

	baseDPI = 72.0
)

type DependencyReport struct {
	PdfinfoFound  bool   `json:"pdfinfo_found"`
	PdfinfoPath   string `json:"pdfinfo_path,omitempty"`
	PdftoppmFound bool   `json:"pdftoppm_found"`
	PdftoppmPath  string `json:"pdftoppm_path,omitempty"`
}

func (r DependencyReport) OK() bool {
	return r.PdfinfoFound && r.PdftoppmFound
}

func DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath(pdfinfoBin); err == nil {
		report.PdfinfoFound = true
		report.PdfinfoPath = path
	}
	if path, err := exec.LookPath(pdftoppmBin); err == nil {
		report.PdftoppmFound = true
		report.PdftoppmPath = path
	}
	return report
}

func CheckDependencies() error {
	report := DependencyStatus()
	if !report.PdfinfoFound {
		return fmt.Errorf("missing dependency: pdfinfo (poppler-utils) is not installed or not on PATH")
	}
	if !report.PdftoppmFound {
		return fmt.Errorf("missing dependency: pdftoppm (poppler-utils) is not installed or not on PATH")
	}
	return nil
}

// Poppler satisfies export.PdfRasterizer. PDFs are spooled to a temp file
// because pdfinfo cannot read stdin.
type Poppler struct {
	TempDir string
}

func (p Poppler) PageCount(ctx context.Context, pdf []byte) (int, error) {
	path, cleanup, err := p.spool(pdf)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	out, err := run(ctx, pdfinfoBin, path)
	if err != nil {
		return 0, err
	}
	return parsePages(out)
}

func (p Poppler) RenderPNG(ctx context.Context, pdf []byte, page int, scale float64) ([]byte, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1, got %d", page)
	}
	if scale <= 0 {
		scale = 1
	}
	path, cleanup, err := p.spool(pdf)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	n := strconv.Itoa(page)
	out, err := run(ctx, pdftoppmBin,
		"-png",
		"-r", strconv.FormatFloat(baseDPI*scale, 'f', -1, 64),
		"-f", n, "-l", n,
		"-singlefile",
		path,
	)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("pdftoppm returned empty output for page %d", page)
	}
	return out, nil
}

func (p Poppler) spool(pdf []byte) (string, func(), error) {
	f, err := os.CreateTemp(p.TempDir, "pmon-raster-*.pdf")
	if err != nil {
		return "", nil, fmt.Errorf("create temp PDF: %w", err)
	}
	path := f.Name()
	cleanup := func() {
		_ = os.Remove(path)
	}
	if _, err := f.Write(pdf); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp PDF: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp PDF: %w", err)
	}
	return path, cleanup, nil
}

func run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s failed: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func parsePages(info []byte) (int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(info))
	for scanner.Scan() {
		line := scanner.Text()
		rest, ok := strings.CutPrefix(line, "Pages:")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return 0, fmt.Errorf("parse pdfinfo page count %q: %w", strings.TrimSpace(rest), err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("pdfinfo output has no Pages line")
}
