package iptrace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultTimeout bounds each request made by a web resolver.
const DefaultTimeout = 10 * time.Second

// DefaultSource is used when no sources are configured.
const DefaultSource = "checkip.dyndns.org"

// maxBody caps how much of a response is scanned for addresses.
const maxBody = 1 << 20

var (
	ErrNoSources = errors.New("no external IP lookup services were provided")
	// ErrNotText is returned for a response body that is not valid UTF-8.
	ErrNotText = errors.New("response body is not text")
	// ErrBodyTooLarge is returned instead of scanning a truncated body.
	ErrBodyTooLarge = fmt.Errorf("response body exceeds %d bytes", maxBody)
)

// FetchError reports a source that could not be read.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %s", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WebResolver constructs a resolver which scrapes external web services for the "public" IP address.
//
// Each source must speak http and return status "200 OK" with a UTF-8 body of at most 1 MiB.
// Anything else counts as a failed source.
// The body may be any text;
// every dotted-quad found in it is a candidate address (see [ExtractAddresses]).
// Sources without a scheme, such as "checkip.dyndns.org", are requested over plain http.
//
// Sources are requested one after another, in order.
// By default the first source that fails aborts the lookup and nothing is returned.
// Set AllowPartial to skip failed sources instead;
// the lookup still fails when every source fails.
func WebResolver(source ...string) (*WebLookup, error) {
	if len(source) == 0 {
		return nil, ErrNoSources
	}
	var URLs []*url.URL
	for _, s := range source {
		u, err := parseSource(s)
		if err != nil {
			return nil, err
		}
		URLs = append(URLs, u)
	}
	return &WebLookup{URLs: URLs, Timeout: DefaultTimeout, logger: discard}, nil
}

func parseSource(s string) (*url.URL, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty source")
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("error parsing URL: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("source %q has no host", s)
	}
	return u, nil
}

// WebLookup implements Resolver. Construct it with WebResolver.
type WebLookup struct {
	URLs         []*url.URL
	Timeout      time.Duration
	AllowPartial bool

	httpClient *http.Client
	logger     *log.Logger
}

func (wr *WebLookup) SetLogger(l *log.Logger) { wr.logger = l }

func (wr *WebLookup) SetHTTPClient(c *http.Client) { wr.httpClient = c }

// Resolve implements iptrace.Resolver.
func (wr *WebLookup) Resolve(ctx context.Context) (string, error) {
	if len(wr.URLs) == 0 {
		return "", ErrNoSources
	}
	logger := wr.logger
	if logger == nil {
		logger = discard
	}

	var texts []string
	var errs []error
	for _, u := range wr.URLs {
		body, err := wr.fetch(ctx, u)
		if err != nil {
			ferr := &FetchError{Source: u.String(), Err: err}
			if !wr.AllowPartial {
				return "", ferr
			}
			logger.Printf("skipping source: %s", ferr)
			errs = append(errs, ferr)
			continue
		}
		texts = append(texts, body)
	}
	if len(texts) == 0 {
		return "", fmt.Errorf("no source responded without errors: %w", errors.Join(errs...))
	}

	addr := ExtractAddresses(texts...)
	logger.Printf("discovered address: %q", addr)
	return addr, nil
}

func (wr *WebLookup) fetch(ctx context.Context, u *url.URL) (string, error) {
	timeout := wr.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	httpclient := wr.httpClient
	if httpclient == nil {
		httpclient = http.DefaultClient
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http request returned %s", resp.Status)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}
	if len(b) > maxBody {
		return "", ErrBodyTooLarge
	}
	if !utf8.Valid(b) {
		return "", ErrNotText
	}
	return string(b), nil
}
