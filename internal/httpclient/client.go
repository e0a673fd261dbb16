// Package httpclient is the JSON-over-HTTP client shared by the vendor
// adapters. Transient failures are retried a fixed number of times with a
// fixed delay.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/testit-tms/migrators-sub001/internal/config"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Header     http.Header // sent to the BaseURL host only, typically authorization
	RetryCount int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// OptionsFromConfig fills the retry settings from the HTTP configuration.
func OptionsFromConfig(cfg config.HTTPConfig, baseURL string, header http.Header) Options {
	return Options{
		BaseURL:    baseURL,
		Header:     header,
		RetryCount: cfg.RetryCount,
		RetryDelay: cfg.RetryDelay,
		Timeout:    cfg.Timeout,
	}
}

// StatusError is returned for non-2xx responses that are not retried, or
// that were still failing after the last retry.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client sends JSON requests relative to a base URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
	baseHost   string
	header     http.Header
	retryCount int
	retryDelay time.Duration
	log        *logrus.Logger
}

// New creates a Client.
func New(opts Options, log *logrus.Logger) *Client {
	var host string
	if u, err := url.Parse(opts.BaseURL); err == nil {
		host = u.Host
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		baseHost:   host,
		header:     opts.Header,
		retryCount: opts.RetryCount,
		retryDelay: opts.RetryDelay,
		log:        log,
	}
}

// GetJSON decodes the response of a GET request into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON sends body as JSON and decodes the response into out, if non-nil.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

// PutJSON sends body as JSON and decodes the response into out, if non-nil.
func (c *Client) PutJSON(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, body, out)
}

// Upload sends r as a multipart form file and decodes the response into out.
func (c *Client) Upload(ctx context.Context, path, field, filename string, r io.Reader, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return fmt.Errorf("read upload %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.resolve(path), mw.FormDataContentType(), buf.Bytes())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

// Download returns the body of a GET request. rawURL may be absolute or
// relative to the base URL. The caller closes the body.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, c.resolve(rawURL), "", nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	contentType := ""
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, c.resolve(path), contentType, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

// do sends the request, retrying transport errors, 429 and 5xx responses.
// The returned response has a 2xx status.
func (c *Client) do(ctx context.Context, method, target, contentType string, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			c.log.Warnf("Retrying %s %s (%d/%d) after: %v", method, target, attempt, c.retryCount, lastErr)
			if err := sleep(ctx, c.retryDelay); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if req.URL.Host == c.baseHost {
			for k, vs := range c.header {
				for _, v := range vs {
					req.Header.Add(k, v)
				}
			}
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.log.Debugf("%s %s: %d", method, target, resp.StatusCode)
			return resp, nil
		}

		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		lastErr = &StatusError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		if !retryable(resp.StatusCode) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func decode(resp *http.Response, out any) error {
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
