package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lewtec/scriptorium/internal/domain"
)

const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 10 * time.Second

	// maxErrorBody caps how much of an error response ends up in a StatusError.
	maxErrorBody = 512
)

// Options configure an HTTPClient. Zero values pick defaults.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond of zero or less disables throttling.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

// HTTPClient is a Client over the annotation REST endpoints.
type HTTPClient struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient creates a client for the service rooted at opts.BaseURL.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("while parsing backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q: scheme must be http or https", opts.BaseURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &HTTPClient{base: base, http: hc, limiter: limiter}, nil
}

func (c *HTTPClient) List(ctx context.Context, imageID string, classification *int64) ([]domain.Record, error) {
	q := url.Values{}
	q.Set("image", imageID)
	if classification != nil {
		q.Set("classification", strconv.FormatInt(*classification, 10))
	}
	var out []domain.Record
	if err := c.do(ctx, http.MethodGet, "/annotations?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("while listing annotations of %s: %w", imageID, err)
	}
	if out == nil {
		out = []domain.Record{}
	}
	return out, nil
}

func (c *HTTPClient) Create(ctx context.Context, rec domain.Record) (domain.Record, error) {
	var out domain.Record
	if err := c.do(ctx, http.MethodPost, "/annotations", rec, &out); err != nil {
		return domain.Record{}, fmt.Errorf("while creating annotation: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) Update(ctx context.Context, id int64, patch domain.RecordPatch) (domain.Record, error) {
	var out domain.Record
	if err := c.do(ctx, http.MethodPatch, "/annotations/"+strconv.FormatInt(id, 10), patch, &out); err != nil {
		return domain.Record{}, fmt.Errorf("while updating annotation %d: %w", id, err)
	}
	return out, nil
}

func (c *HTTPClient) Delete(ctx context.Context, id int64) error {
	if err := c.do(ctx, http.MethodDelete, "/annotations/"+strconv.FormatInt(id, 10), nil, nil); err != nil {
		return fmt.Errorf("while deleting annotation %d: %w", id, err)
	}
	return nil
}

// FetchImageInfo reads width and height from a IIIF info.json document.
func (c *HTTPClient) FetchImageInfo(ctx context.Context, infoURL string) (ImageInfo, error) {
	var info ImageInfo
	if err := c.doURL(ctx, http.MethodGet, infoURL, nil, &info); err != nil {
		return ImageInfo{}, fmt.Errorf("while fetching image info: %w", err)
	}
	if info.Height <= 0 {
		return ImageInfo{}, fmt.Errorf("image info %s: invalid height %d", infoURL, info.Height)
	}
	return info, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	return c.doURL(ctx, method, c.base.String()+path, in, out)
}

func (c *HTTPClient) doURL(ctx context.Context, method, target string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	log.Printf("backend: time:%dms %d %s %s", time.Since(started)/time.Millisecond, resp.StatusCode, method, target)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, URL: target, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("while decoding %s %s: %w", method, target, err)
	}
	return nil
}

var _ Client = (*HTTPClient)(nil)
