package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/charset"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; shortlist/1.0; +https://github.com/kalambet/shortlist)"
	defaultMaxBytes  = 10 << 20 // 10MB
)

// ErrEmptyContent reports a fetch that produced no usable text.
var ErrEmptyContent = errors.New("empty content")

// Page is the extracted text of one URL.
type Page struct {
	Title       string
	Markdown    string
	ContentType string
}

// Fetcher turns a URL into extracted text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.Code)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// HTTPFetcher downloads pages over HTTP and converts HTML and PDF responses
// to markdown text.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	converter *md.Converter
	policy    *bluemonday.Policy
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient sets the HTTP client. Request deadlines come from the context
// passed to Fetch.
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBytes caps how much of a response body is read.
func WithMaxBytes(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// NewHTTPFetcher creates an HTTPFetcher with defaults applied.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    &http.Client{Timeout: 0},
		userAgent: defaultUserAgent,
		maxBytes:  defaultMaxBytes,
		converter: md.NewConverter("", true, nil),
		policy:    bluemonday.UGCPolicy(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads rawURL and extracts its text. An empty Markdown field is
// not an error here; callers decide how to treat it.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("invalid url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,text/plain;q=0.8,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	body := io.LimitReader(resp.Body, f.maxBytes)

	var page Page
	switch {
	case isPDF(mediaType, pageURL):
		text, err := pdfText(body)
		if err != nil {
			return Page{}, err
		}
		page = Page{Title: pdfTitle(pageURL), Markdown: text}
	case mediaType == "text/plain" || mediaType == "text/markdown":
		text, err := decodeText(body, contentType)
		if err != nil {
			return Page{}, err
		}
		page = Page{Markdown: text}
	default:
		raw, err := decodeText(body, contentType)
		if err != nil {
			return Page{}, err
		}
		page, err = f.convertHTML(raw, pageURL)
		if err != nil {
			return Page{}, err
		}
	}

	page.ContentType = mediaType
	page.Markdown = strings.TrimSpace(page.Markdown)
	return page, nil
}

func decodeText(r io.Reader, contentType string) (string, error) {
	decoded, err := charset.NewReader(r, contentType)
	if err != nil {
		return "", fmt.Errorf("decoding charset: %w", err)
	}
	data, err := io.ReadAll(decoded)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(data), nil
}

func isPDF(mediaType string, u *url.URL) bool {
	if mediaType == "application/pdf" {
		return true
	}
	if mediaType == "" || mediaType == "application/octet-stream" {
		return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
	}
	return false
}

func pdfTitle(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return u.Host
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
