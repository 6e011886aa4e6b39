package circuit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vocdoni/zkvote/log"
)

// DefaultDownloadTimeout bounds a single artifact download.
const DefaultDownloadTimeout = 10 * time.Minute

// HTTPSource downloads artifacts from baseURL/name.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource returns a source for baseURL. A nil client uses a client with
// DefaultDownloadTimeout.
func NewHTTPSource(baseURL string, client *http.Client) (*HTTPSource, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("error parsing the artifacts URL provided: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultDownloadTimeout}
	}
	return &HTTPSource{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}, nil
}

func (s *HTTPSource) Name() string { return s.baseURL }

// progressReader counts the bytes read so far.
type progressReader struct {
	reader io.Reader
	total  atomic.Int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.total.Add(int64(n))
	return n, err
}

// Fetch downloads the artifact, logging progress every ten seconds.
func (s *HTTPSource) Fetch(ctx context.Context, file File) ([]byte, error) {
	fileURL := s.baseURL + "/" + file.Name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating the file request: %w", err)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error performing the request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error downloading file %s: http status: %d", fileURL, res.StatusCode)
	}

	pr := &progressReader{reader: res.Body}
	type result struct {
		content []byte
		err     error
	}
	done := make(chan result, 1)
	go func() {
		content, err := io.ReadAll(pr)
		done <- result{content, err}
	}()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case r := <-done:
			if r.err != nil {
				return nil, fmt.Errorf("error reading %s: %w", fileURL, r.err)
			}
			return r.content, nil
		case <-ticker.C:
			total := pr.total.Load()
			var percentage float64
			if res.ContentLength > 0 {
				percentage = float64(total) / float64(res.ContentLength) * 100
			}
			log.Debugw("downloading artifact", "url", fileURL,
				"downloaded", fmt.Sprintf("%.2fMiB", float64(total)/(1024*1024)),
				"progress", fmt.Sprintf("%.2f%%", percentage))
		}
	}
}
