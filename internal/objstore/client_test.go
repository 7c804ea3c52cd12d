package objstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeline-monitor/internal/config"
	"pipeline-monitor/internal/export"
)

var _ export.Sink = (*Client)(nil)

type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string

	requests []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Bucket requests come as "/bucket/" with the trailing slash.
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	switch {
	case key == "" && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case key == "" && r.Method == http.MethodPut:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case key != "" && r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		if strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") {
			body = decodeChunked(body)
		}
		f.objects[bucket+"/"+key] = body
		f.types[bucket+"/"+key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

// decodeChunked strips aws-chunked framing: "size[;ext]\r\ndata\r\n"
// repeated until a zero-size chunk.
func decodeChunked(raw []byte) []byte {
	var out []byte
	rest := string(raw)
	for {
		line, after, ok := strings.Cut(rest, "\r\n")
		if !ok {
			return out
		}
		sizeHex, _, _ := strings.Cut(line, ";")
		size, err := strconv.ParseInt(strings.TrimSpace(sizeHex), 16, 64)
		if err != nil || size == 0 || int(size) > len(after) {
			return out
		}
		out = append(out, after[:size]...)
		rest = strings.TrimPrefix(after[size:], "\r\n")
	}
}

func TestSplitEndpoint(t *testing.T) {
	host, secure := splitEndpoint("https://minio.test:9000/", false)
	assert.Equal(t, "minio.test:9000", host)
	assert.True(t, secure)

	host, secure = splitEndpoint("http://minio.test", true)
	assert.Equal(t, "minio.test", host)
	assert.False(t, secure)

	host, secure = splitEndpoint("minio.test:9000", true)
	assert.Equal(t, "minio.test:9000", host)
	assert.True(t, secure)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(config.S3{Endpoint: "minio.test"})
	assert.Error(t, err)
	_, err = New(config.S3{AccessKey: "a", SecretKey: "b"})
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	c, err := New(config.S3{Endpoint: "minio.test", AccessKey: "a", SecretKey: "b", Prefix: "/exports/"})
	require.NoError(t, err)
	assert.Equal(t, "exports/executions-pdf-1.zip", c.Key("/tmp/executions-pdf-1.zip"))

	c, err = New(config.S3{Endpoint: "minio.test", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.Equal(t, "a.zip", c.Key("a.zip"))
}

func TestPutCreatesBucketAndUploads(t *testing.T) {
	fake := newFakeS3()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, err := New(config.S3{
		Endpoint:  srv.URL,
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "exports-test",
		Prefix:    "runs/",
		Region:    "us-east-1",
	})
	require.NoError(t, err)

	loc, err := c.Put(context.Background(), "executions-images-42.zip", []byte("PK\x03\x04zip"))
	require.NoError(t, err)
	assert.Equal(t, "s3://exports-test/runs/executions-images-42.zip", loc)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.buckets["exports-test"])
	assert.Equal(t, []byte("PK\x03\x04zip"), fake.objects["exports-test/runs/executions-images-42.zip"])
	assert.Equal(t, "application/zip", fake.types["exports-test/runs/executions-images-42.zip"])
	assert.Contains(t, fake.requests, "HEAD /exports-test/")
}

func TestPutReusesExistingBucket(t *testing.T) {
	fake := newFakeS3()
	fake.buckets["exports-test"] = true
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, err := New(config.S3{Endpoint: srv.URL, AccessKey: "access", SecretKey: "secret", Bucket: "exports-test", Region: "us-east-1"})
	require.NoError(t, err)

	_, err = c.Put(context.Background(), "executions-pdf-7.zip", []byte("PK"))
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.NotContains(t, fake.requests, "PUT /exports-test/")
	assert.Equal(t, []byte("PK"), fake.objects["exports-test/executions-pdf-7.zip"])
}
