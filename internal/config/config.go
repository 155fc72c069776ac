package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

// Index backends accepted by -index.
const (
	IndexFile  = "file"
	IndexRedis = "redis"
	IndexNone  = "none"
)

// Config holds everything cmd/iptrace needs for one run.
// Environment variables provide the defaults and flags override them.
type Config struct {
	IPSources string        `env:"IPTRACE_IP_SOURCES" envDefault:"checkip.dyndns.org"`
	Git       string        `env:"IPTRACE_GIT"`
	Dir       string        `env:"IPTRACE_DIR" envDefault:"."`
	Timeout   time.Duration `env:"IPTRACE_TIMEOUT" envDefault:"10s"`
	Partial   bool          `env:"IPTRACE_PARTIAL" envDefault:"false"`
	Iface     string        `env:"IPTRACE_IFACE"`
	IP        string        `env:"IPTRACE_IP"`
	Index     string        `env:"IPTRACE_INDEX" envDefault:"file"`
	RedisAddr string        `env:"IPTRACE_REDIS_ADDR"`
	Domain    string        `env:"IPTRACE_CF_DOMAIN"`
	KeyFile   string        `env:"IPTRACE_KEY_FILE" envDefault:"${HOME}/.cloudflare" envExpand:"true"`
	Verbose   bool          `env:"IPTRACE_VERBOSE" envDefault:"false"`
}

// Load reads the environment (os.Environ when environ is nil) and then parses args.
func Load(args []string, environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	fs := flag.NewFlagSet("iptrace", flag.ContinueOnError)
	stringVar(fs, &cfg.IPSources, cfg.IPSources, "uris of resources returning your ip address somewhere in the body (comma separated)", "ip_sources", "i")
	stringVar(fs, &cfg.Git, cfg.Git, "uri of the git repository holding the traces", "git", "g")
	stringVar(fs, &cfg.Dir, cfg.Dir, "directory where tracking info is saved", "dir", "d")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "timeout for each ip source")
	fs.BoolVar(&cfg.Partial, "partial", cfg.Partial, "skip ip sources that fail instead of aborting")
	fs.StringVar(&cfg.Iface, "iface", cfg.Iface, "read addresses from these network interfaces instead of ip sources (comma separated, \"all\" for every interface)")
	fs.StringVar(&cfg.IP, "ip", cfg.IP, "record these addresses instead of looking them up (comma separated IPv4 or IPv6)")
	fs.StringVar(&cfg.Index, "index", cfg.Index, "where the last address of each log is cached: file, redis or none; file writes <dir>/.iptrace/index, so add .iptrace/ to the repository's .gitignore")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "redis address for -index=redis")
	fs.StringVar(&cfg.Domain, "cf-domain", cfg.Domain, "cloudflare DNS entry to update when the address changes")
	fs.StringVar(&cfg.KeyFile, "k", cfg.KeyFile, "path to cloudflare API credentials file")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "enable verbose logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func stringVar(fs *flag.FlagSet, p *string, value, usage string, names ...string) {
	for _, n := range names {
		fs.StringVar(p, n, value, usage)
	}
}

// Sources returns the configured ip sources without blanks.
func (c *Config) Sources() []string {
	return splitList(c.IPSources)
}

// Interfaces returns the interfaces named by -iface.
// It returns an empty, non-nil slice for "all".
func (c *Config) Interfaces() []string {
	if strings.TrimSpace(c.Iface) == "all" {
		return []string{}
	}
	return splitList(c.Iface)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.IP == "" && c.Iface == "" && len(c.Sources()) == 0 {
		return errors.New("at least one ip source is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive; got %s", c.Timeout)
	}
	if c.Dir == "" {
		return errors.New("dir cannot be empty")
	}
	switch c.Index {
	case IndexFile, IndexNone:
	case IndexRedis:
		if c.RedisAddr == "" {
			return errors.New("-index=redis requires -redis")
		}
	default:
		return fmt.Errorf("unknown index %q", c.Index)
	}
	if c.Domain != "" && !strings.Contains(c.Domain, ".") {
		return errors.New("cf-domain must have at least one dot")
	}
	return nil
}
