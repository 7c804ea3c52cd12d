package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeline-monitor/internal/slogx"
)

var fakePDF = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

type fakeFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, _ map[string]string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	data, ok := f.files[url]
	if !ok {
		return nil, fmt.Errorf("404 %s", url)
	}
	return data, nil
}

type fakeRasterizer struct {
	pages   map[string]int
	failAt  map[string]int
	renders atomic.Int32
}

func (r *fakeRasterizer) PageCount(_ context.Context, pdf []byte) (int, error) {
	return r.pages[string(pdf)], nil
}

func (r *fakeRasterizer) RenderPNG(_ context.Context, pdf []byte, page int, scale float64) ([]byte, error) {
	if page == r.failAt[string(pdf)] {
		return nil, errors.New("render failed")
	}
	r.renders.Add(1)
	return []byte(fmt.Sprintf("png:%d:%.0f", page, scale)), nil
}

func pdfNamed(tag string) []byte {
	return append(append([]byte{}, fakePDF...), []byte("%"+tag+"\n")...)
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func collect() (*[]Progress, ProgressFunc) {
	var mu sync.Mutex
	got := []Progress{}
	return &got, func(p Progress) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeBundle, "pdf": ModeBundle, "bundle": ModeBundle, "IMAGES": ModeImages, "png": ModeImages} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("tiff")
	assert.Error(t, err)
}

func TestArchiveName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	assert.Equal(t, "executions-pdf-1700000000123.zip", ArchiveName(ModeBundle, now))
	assert.Equal(t, "executions-images-1700000000123.zip", ArchiveName(ModeImages, now))
}

func TestBundleCountsFailedFetches(t *testing.T) {
	f := &fakeFetcher{files: map[string][]byte{"u1": fakePDF, "u3": fakePDF}}
	progress, onProgress := collect()

	data, err := Bundle(context.Background(), f, []Source{
		{URL: "u1", Name: "aaaaaaaa/one.pdf"},
		{URL: "u2", Name: "aaaaaaaa/missing.pdf"},
		{URL: "u3", Name: "bbbbbbbb/three.pdf"},
	}, onProgress)
	require.NoError(t, err)

	assert.Equal(t, []string{"aaaaaaaa/one.pdf", "bbbbbbbb/three.pdf"}, zipNames(t, data))
	assert.Equal(t, []Progress{{3, 0}, {3, 1}, {3, 2}, {3, 3}}, *progress)
}

func TestBundleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	data, err := Bundle(ctx, &fakeFetcher{}, []Source{{URL: "u1", Name: "a.pdf"}}, nil)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, data)
}

func TestPageName(t *testing.T) {
	assert.Equal(t, "abcdefgh/report/page-007.png", PageName("abcdefgh/report.PDF", 7))
}

func TestRasterizeSkipsUnreadableAndNonPDF(t *testing.T) {
	a, b := pdfNamed("a"), pdfNamed("b")
	f := &fakeFetcher{files: map[string][]byte{
		"a":   a,
		"b":   b,
		"txt": []byte("plain text, not a pdf"),
	}}
	r := &fakeRasterizer{pages: map[string]int{string(a): 2, string(b): 3}, failAt: map[string]int{string(b): 2}}
	progress, onProgress := collect()

	data, err := Rasterize(context.Background(), f, r, []Source{
		{URL: "a", Name: "x/a.pdf"},
		{URL: "missing", Name: "x/missing.pdf"},
		{URL: "txt", Name: "x/notes.pdf"},
		{URL: "b", Name: "x/b.pdf"},
	}, onProgress)
	require.NoError(t, err)

	assert.Equal(t, []string{"x/a/page-001.png", "x/a/page-002.png", "x/b/page-001.png"}, zipNames(t, data))
	require.NotEmpty(t, *progress)
	assert.Equal(t, Progress{Total: 5, Completed: 0}, (*progress)[0])
	assert.Equal(t, Progress{Total: 5, Completed: 3}, (*progress)[len(*progress)-1])
}

func TestRasterizeRendersAtScaleTwo(t *testing.T) {
	a := pdfNamed("a")
	f := &fakeFetcher{files: map[string][]byte{"a": a}}
	r := &fakeRasterizer{pages: map[string]int{string(a): 1}}

	data, err := Rasterize(context.Background(), f, r, []Source{{URL: "a", Name: "a.pdf"}}, nil)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "png:1:2", string(body))
}

func TestRasterizeCancelledReturnsNothing(t *testing.T) {
	a := pdfNamed("a")
	f := &fakeFetcher{files: map[string][]byte{"a": a}}
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeRasterizer{pages: map[string]int{string(a): 4}}

	onProgress := func(p Progress) {
		if p.Completed == 1 {
			cancel()
		}
	}
	data, err := Rasterize(ctx, f, r, []Source{{URL: "a", Name: "a.pdf"}}, onProgress)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, data)
	assert.Equal(t, int32(1), r.renders.Load())
}

func TestConverterResolveRelativeDownloadURL(t *testing.T) {
	c, err := NewConverter("https://conv.test/api/", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://conv.test/api/tasks/t1/download", c.Resolve("/tasks/t1/download"))
	assert.Equal(t, "https://other.test/x.zip", c.Resolve("https://other.test/x.zip"))

	_, err = NewConverter("ftp://conv.test", nil)
	assert.Error(t, err)
	assert.False(t, ValidBaseURL(""))
}

type fakeConverter struct {
	t         *testing.T
	statuses  []string
	polls     atomic.Int32
	cancelled atomic.Bool
	immediate bool
	failStart bool
}

func (fc *fakeConverter) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /convert/pdf-to-images", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(fc.t, string(body), `"output_format":"png"`)
		assert.Contains(fc.t, string(body), `"zip":true`)
		if fc.failStart {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if fc.immediate {
			_, _ = io.WriteString(w, `{"download_url":"/files/ready.zip"}`)
			return
		}
		_, _ = io.WriteString(w, `{"task_id":"t1"}`)
	})
	mux.HandleFunc("GET /tasks/t1", func(w http.ResponseWriter, r *http.Request) {
		n := int(fc.polls.Add(1)) - 1
		status := fc.statuses[min(n, len(fc.statuses)-1)]
		switch status {
		case TaskCompleted:
			_, _ = io.WriteString(w, `{"status":"completed","total_pages":4,"completed_pages":4,"download_url":"/tasks/t1/download"}`)
		default:
			fmt.Fprintf(w, `{"status":%q,"total":4,"completed":%d}`, status, n)
		}
	})
	mux.HandleFunc("POST /tasks/t1/cancel", func(w http.ResponseWriter, r *http.Request) {
		fc.cancelled.Store(true)
		_, _ = io.WriteString(w, `{}`)
	})
	return mux
}

func newTestExporter(t *testing.T, f Fetcher, r PdfRasterizer) *Exporter {
	return NewExporter(f, r, WithLogger(slogx.NewTestLogger(t)), WithPollInterval(5*time.Millisecond))
}

func TestExporterServerPollsUntilCompleted(t *testing.T) {
	fc := &fakeConverter{t: t, statuses: []string{TaskRunning, TaskRunning, TaskCompleted}}
	srv := httptest.NewServer(fc.handler())
	defer srv.Close()

	progress, onProgress := collect()
	res, err := newTestExporter(t, &fakeFetcher{}, nil).Run(context.Background(), Request{
		Mode:          ModeImages,
		Sources:       []Source{{URL: "https://files.test/a.pdf", Name: "a.pdf"}},
		ConverterBase: srv.URL,
		OnProgress:    onProgress,
	})
	require.NoError(t, err)
	assert.Equal(t, UsedServer, res.UsedMode)
	assert.Equal(t, srv.URL+"/tasks/t1/download", res.DownloadURL)
	assert.Equal(t, "t1", res.TaskID)
	assert.Nil(t, res.Archive)
	assert.Equal(t, Progress{Total: 4, Completed: 4}, (*progress)[len(*progress)-1])
}

func TestExporterServerImmediateDownload(t *testing.T) {
	fc := &fakeConverter{t: t, immediate: true}
	srv := httptest.NewServer(fc.handler())
	defer srv.Close()

	res, err := newTestExporter(t, &fakeFetcher{}, nil).Run(context.Background(), Request{
		Mode: ModeImages, Sources: []Source{{URL: "u", Name: "a.pdf"}}, ConverterBase: srv.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/files/ready.zip", res.DownloadURL)
	assert.Zero(t, fc.polls.Load())
}

func TestExporterFallsBackToLocal(t *testing.T) {
	a := pdfNamed("a")
	f := &fakeFetcher{files: map[string][]byte{"a": a}}
	r := &fakeRasterizer{pages: map[string]int{string(a): 2}}

	cases := map[string]func() (string, func()){
		"no converter": func() (string, func()) { return "", func() {} },
		"start fails": func() (string, func()) {
			srv := httptest.NewServer((&fakeConverter{t: t, failStart: true}).handler())
			return srv.URL, srv.Close
		},
		"task failed": func() (string, func()) {
			srv := httptest.NewServer((&fakeConverter{t: t, statuses: []string{TaskRunning, TaskFailed}}).handler())
			return srv.URL, srv.Close
		},
		"task error": func() (string, func()) {
			srv := httptest.NewServer((&fakeConverter{t: t, statuses: []string{TaskError}}).handler())
			return srv.URL, srv.Close
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			base, done := setup()
			defer done()
			res, err := newTestExporter(t, f, r).Run(context.Background(), Request{
				Mode: ModeImages, Sources: []Source{{URL: "a", Name: "a.pdf"}}, ConverterBase: base,
			})
			require.NoError(t, err)
			assert.Equal(t, UsedLocal, res.UsedMode)
			assert.Equal(t, []string{"a/page-001.png", "a/page-002.png"}, zipNames(t, res.Archive))
		})
	}
}

func TestExporterCancelDuringServerPollingNotifiesConverter(t *testing.T) {
	fc := &fakeConverter{t: t, statuses: []string{TaskRunning}}
	srv := httptest.NewServer(fc.handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	onProgress := func(Progress) { cancel() }
	_, err := newTestExporter(t, &fakeFetcher{}, &fakeRasterizer{}).Run(ctx, Request{
		Mode: ModeImages, Sources: []Source{{URL: "u", Name: "a.pdf"}}, ConverterBase: srv.URL, OnProgress: onProgress,
	})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.True(t, fc.cancelled.Load())
}

func TestExporterNoSources(t *testing.T) {
	_, err := newTestExporter(t, &fakeFetcher{}, nil).Run(context.Background(), Request{Mode: ModeBundle})
	assert.ErrorIs(t, err, ErrNoSources)
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []string
}

func (o *recordingObserver) ObserveExport(mode, outcome string) {
	o.mu.Lock()
	o.seen = append(o.seen, mode+"/"+outcome)
	o.mu.Unlock()
}

func TestTaskTracksProgressAndResult(t *testing.T) {
	obs := &recordingObserver{}
	f := &fakeFetcher{files: map[string][]byte{"u1": fakePDF, "u2": fakePDF}}
	e := NewExporter(f, nil, WithObserver(obs))

	task := e.Start(context.Background(), Request{Mode: ModeBundle, Sources: []Source{
		{URL: "u1", Name: "one.pdf"}, {URL: "u2", Name: "two.pdf"},
	}})
	require.NotEmpty(t, task.ID)

	res, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, UsedBundle, res.UsedMode)
	assert.Equal(t, Progress{Total: 2, Completed: 2}, task.Progress())
	assert.Equal(t, 100, task.Progress().Percent())
	assert.Equal(t, []string{"bundle/ok"}, obs.seen)
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	got, err := FileSink{Dir: dir}.Put(context.Background(), "executions-pdf-1.zip", []byte("zip"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, "executions-pdf-1.zip"))

	explicit := dir + "/nested/out.zip"
	got, err = FileSink{Dir: dir, Path: explicit}.Put(context.Background(), "ignored.zip", []byte("zip"))
	require.NoError(t, err)
	assert.Equal(t, explicit, got)
}

func TestLineProgressStopPrintsFinal(t *testing.T) {
	var buf bytes.Buffer
	p := NewLineProgress(&buf, true, "export")
	p.Update(Progress{Total: 2, Completed: 1})
	assert.Equal(t, "export: 1/2 (50%)", p.render())
	p.Stop("done")
	p.Stop("again")
	assert.Equal(t, "\r\033[2Kdone\n", buf.String())
}
