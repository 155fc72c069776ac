package iptrace

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cloudflare/cloudflare-go"
)

var discard = log.New(io.Discard, "", log.LstdFlags)

// New returns a Tracker that files records under host.
//
// Without options the tracker scrapes DefaultSource and keeps logs under the current directory.
func New(host string, options ...Option) (Tracker, error) {
	if err := ValidHost(host); err != nil {
		return nil, fmt.Errorf("iptrace.New: %w", err)
	}
	c := &client{
		host:  host,
		clock: time.Now,
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("iptrace.New: option %d returned an error: %s", i, err)
		}
	}

	if c.Resolver == nil {
		r, err := WebResolver(DefaultSource)
		if err != nil {
			return nil, fmt.Errorf("iptrace.New: %w", err)
		}
		c.Resolver = r
	}
	if c.History == nil {
		c.History = NewFileHistory(".")
	}
	if c.index != nil {
		fh, ok := c.History.(*FileHistory)
		if !ok {
			return nil, fmt.Errorf("iptrace.New: UsingIndex requires a file history; got %T", c.History)
		}
		c.History = NewIndexedHistory(fh, c.index)
	}
	if c.Provider != nil && c.domain == "" {
		return nil, fmt.Errorf("iptrace.New: a DNS provider needs a domain")
	}

	// propagate the logger and http client to dependencies registered before or after them
	withLogger(c.logger)(c)
	if c.httpClient != nil {
		if err := UsingHTTPClient(c.httpClient)(c); err != nil {
			return nil, fmt.Errorf("iptrace.New: %w", err)
		}
	}
	return c, nil
}

// Option configures a Tracker built by New.
type Option func(*client) error

// UsingResolver replaces the default web resolver.
func UsingResolver(resolver Resolver) Option {
	return func(c *client) error {
		c.Resolver = resolver
		return nil
	}
}

// UsingWebResolver scrapes the given sources. See [WebResolver].
func UsingWebResolver(source ...string) Option {
	return func(c *client) (err error) {
		if c.Resolver, err = WebResolver(source...); err != nil {
			return fmt.Errorf("iptrace.UsingWebResolver: %w", err)
		}
		return nil
	}
}

// UsingDir keeps logs under dir/trace.
func UsingDir(dir string) Option {
	return func(c *client) error {
		c.History = NewFileHistory(dir)
		return nil
	}
}

func UsingHistory(h History) Option {
	return func(c *client) error {
		c.History = h
		return nil
	}
}

// UsingIndex caches the last record of each log in index.
// It only applies to file histories (the default, or UsingDir).
func UsingIndex(index Index) Option {
	return func(c *client) error {
		c.index = index
		return nil
	}
}

// UsingCloudflare publishes every new address to the A/AAAA records of domain.
func UsingCloudflare(token, domain string) Option {
	return func(c *client) (err error) {
		if c.Provider, err = newCloudflareProvider(token); err != nil {
			return fmt.Errorf("iptrace.UsingCloudflare: error creating cloudflare DNS provider: %w", err)
		}
		c.domain = domain
		return nil
	}
}

func UsingProvider(p Provider, domain string) Option {
	return func(c *client) error {
		c.Provider, c.domain = p, domain
		return nil
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(c *client) error {
		c.logger = logger
		return nil
	}
}

// WithClock sets the time source for new records.
func WithClock(now func() time.Time) Option {
	return func(c *client) error {
		if now == nil {
			now = time.Now
		}
		c.clock = now
		return nil
	}
}

func withLogger(logger *log.Logger) Option {
	return func(c *client) error {
		if logger == nil {
			logger = discard
		}
		c.logger = logger
		type setLogger interface {
			SetLogger(*log.Logger)
		}
		if r, ok := c.Resolver.(setLogger); ok {
			r.SetLogger(logger)
		}
		if h, ok := c.History.(setLogger); ok {
			h.SetLogger(logger)
		}
		if p, ok := c.Provider.(setLogger); ok {
			p.SetLogger(logger)
		}
		return nil
	}
}

func UsingHTTPClient(httpclient *http.Client) Option {
	return func(c *client) error {
		if httpclient == nil {
			httpclient = http.DefaultClient
		}
		c.httpClient = httpclient
		type setHTTPClient interface {
			SetHTTPClient(*http.Client)
		}
		if r, ok := c.Resolver.(setHTTPClient); ok {
			r.SetHTTPClient(httpclient)
		}
		if p, ok := c.Provider.(*cloudflareProvider); ok {
			if err := cloudflare.HTTPClient(httpclient)(p.api); err != nil {
				return fmt.Errorf("error setting cloudflare http client: %w", err)
			}
		}
		return nil
	}
}

// Tracker runs one resolve, compare and append cycle per call to Track.
type Tracker interface {
	Track(ctx context.Context) (Result, error)
}

type client struct {
	Resolver
	History
	Provider
	index      Index
	httpClient *http.Client
	logger     *log.Logger
	clock      func() time.Time
	host       string
	domain     string
}

func (c *client) Track(ctx context.Context) (Result, error) {
	addr, err := c.Resolve(ctx)
	if err != nil {
		return Result{Host: c.host}, fmt.Errorf("error resolving address: %w", err)
	}

	res, err := AppendIfChanged(ctx, c.History, c.host, addr, c.clock())
	if err != nil {
		return res, err
	}
	if !res.Changed {
		c.logger.Printf("address for %s unchanged: %q", c.host, addr)
		return res, nil
	}
	c.logger.Printf("recorded new address for %s: %q (was %q)", c.host, addr, res.Previous.Address)

	if c.Provider == nil {
		return res, nil
	}
	addrs := PublishableAddrs(addr)
	if len(addrs) == 0 {
		c.logger.Printf("no valid IP in %q; leaving %s alone", addr, c.domain)
		return res, nil
	}
	if err := c.SetDNSRecords(ctx, c.domain, addrs); err != nil {
		return res, fmt.Errorf("error updating %s with new IPs: %w", c.domain, err)
	}
	return res, nil
}
