// Package fetch retrieves manifests over HTTP.
// Gzip-encoded responses are decompressed and bodies must be valid UTF-8.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

// DefaultUserAgent is the user agent string for manifest requests.
const DefaultUserAgent = "IIIF Validation Service"

// Result holds the decoded body and response metadata of a fetch.
type Result struct {
	URL         string
	Text        string
	Header      http.Header
	ContentType string
	StatusCode  int
}

// Error represents an error during URL fetching.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// StatusError is the cause of an Error when the server answers with a non-success status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP status %s", e.Status)
}

// Options configures the fetch behavior.
type Options struct {
	// Timeout of zero keeps the client default.
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() *Options {
	return &Options{
		UserAgent: DefaultUserAgent,
	}
}

// URL retrieves the resource at urlStr and returns its body as text.
func URL(ctx context.Context, urlStr string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{
			URL:     urlStr,
			Message: "invalid URL",
			Cause:   err,
		}
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "failed to create request",
			Cause:   err,
		}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	// Setting this explicitly turns off the transport's transparent decompression.
	req.Header.Set("Accept-Encoding", "gzip")
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "HTTP request failed",
			Cause:   err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "failed to read response body",
			Cause:   err,
		}
	}

	result := &Result{
		URL:         urlStr,
		Header:      resp.Header,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Text = string(body)
		return result, &Error{
			URL:     urlStr,
			Message: "unexpected response",
			Cause:   &StatusError{StatusCode: resp.StatusCode, Status: resp.Status},
		}
	}

	if resp.Header.Get("Content-Encoding") == "gzip" {
		body, err = gunzip(body)
		if err != nil {
			return nil, &Error{
				URL:     urlStr,
				Message: "failed to decompress gzip body",
				Cause:   err,
			}
		}
	}

	if !utf8.Valid(body) {
		return nil, &Error{
			URL:     urlStr,
			Message: "response body is not valid UTF-8",
		}
	}

	result.Text = string(body)
	return result, nil
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()
	return io.ReadAll(zr)
}
