package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

// FileRef is a resolved file: either a URL usable without credentials, or
// the fetched bytes when the host requires custom headers.
type FileRef struct {
	URL         string
	Data        []byte
	ContentType string
}

func (f FileRef) Fetched() bool {
	return f.Data != nil
}

// FileURL is the raw download URL of key on this host.
func (c *Client) FileURL(key string) string {
	base := strings.TrimRight(c.host.EffectiveFileBase(), "/")
	return base + c.host.EffectiveFilePath() + "/download/" + escapeKey(key) + "?raw=true"
}

// ResolveFile returns a direct URL when the host needs no custom headers,
// and otherwise fetches the file with them.
func (c *Client) ResolveFile(ctx context.Context, key string) (FileRef, error) {
	if !c.host.HasHeaders() {
		return FileRef{URL: c.FileURL(key)}, nil
	}
	return c.FetchFile(ctx, key)
}

func (c *Client) FetchFile(ctx context.Context, key string) (FileRef, error) {
	if strings.TrimSpace(key) == "" {
		return FileRef{}, errors.New("file key is required")
	}
	rawURL := c.FileURL(key)
	data, err := c.get(ctx, EndpointFile, rawURL, "")
	if err != nil {
		return FileRef{}, err
	}
	return FileRef{
		URL:         rawURL,
		Data:        data,
		ContentType: mimetype.Detect(data).String(),
	}, nil
}

// Fetch downloads an absolute URL with the host headers applied. Export
// sources carry such URLs.
func (c *Client) Fetch(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return Download(c.http, req)
}

func escapeKey(key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
