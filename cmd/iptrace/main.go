package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Travis-Britz/iptrace"
	"github.com/Travis-Britz/iptrace/internal/config"
	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
)

var logger = log.New(io.Discard, "", log.LstdFlags)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], nil)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if cfg.Verbose {
		logger = log.Default()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	logger.Printf("config is valid: %+v", *cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := iptrace.EnsureCloned(ctx, cfg.Git, cfg.Dir)
	if err != nil {
		// the checkout may still be usable, e.g. a plain directory without the remote
		log.Printf("storage directory: %s", err)
	}
	logger.Printf("storage directory %s: %s", cfg.Dir, outcome)

	host, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("error reading host name: %w", err)
	}

	options, closeFn, err := trackerOptions(cfg)
	defer closeFn()
	if err != nil {
		return err
	}

	tracker, err := iptrace.New(host, options...)
	if err != nil {
		return fmt.Errorf("error creating tracker: %w", err)
	}
	res, err := tracker.Track(ctx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	switch {
	case res.Changed && res.HadPrevious:
		color.Green("%s: %q -> %q", res.Host, res.Previous.Address, res.Current.Address)
	case res.Changed:
		color.Green("%s: first record %q", res.Host, res.Current.Address)
	case cfg.Verbose:
		color.Cyan("%s: unchanged %q", res.Host, res.Current.Address)
	}
	return nil
}

// trackerOptions turns cfg into tracker options.
// The returned func releases anything opened on the way.
func trackerOptions(cfg *config.Config) (options []iptrace.Option, closeFn func(), err error) {
	closeFn = func() {}
	options = append(options,
		iptrace.UsingDir(cfg.Dir),
		iptrace.WithLogger(logger),
	)

	switch {
	case cfg.IP != "":
		r, err := iptrace.FromString(cfg.IP)
		if err != nil {
			return nil, closeFn, fmt.Errorf("-ip: %w", err)
		}
		options = append(options, iptrace.UsingResolver(r))
	case cfg.Iface != "":
		options = append(options, iptrace.UsingResolver(iptrace.InterfaceResolver(cfg.Interfaces()...)))
	default:
		r, err := iptrace.WebResolver(cfg.Sources()...)
		if err != nil {
			return nil, closeFn, fmt.Errorf("-ip_sources: %w", err)
		}
		r.Timeout = cfg.Timeout
		r.AllowPartial = cfg.Partial
		options = append(options, iptrace.UsingResolver(r))
	}

	switch cfg.Index {
	case config.IndexFile:
		options = append(options, iptrace.UsingIndex(iptrace.NewFileIndex(cfg.Dir)))
	case config.IndexRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closeFn = func() { _ = rdb.Close() }
		options = append(options, iptrace.UsingIndex(iptrace.NewRedisIndex(rdb, "iptrace")))
	}

	if cfg.Domain != "" {
		if err := validateKeyFile(cfg.KeyFile); err != nil {
			return nil, closeFn, err
		}
		key, err := readKey(cfg.KeyFile)
		if err != nil {
			return nil, closeFn, fmt.Errorf("error reading key: %w", err)
		}
		logger.Println("successfully read key from key file")
		options = append(options, iptrace.UsingCloudflare(key, cfg.Domain))
	}
	return options, closeFn, nil
}
