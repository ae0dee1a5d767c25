package config

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

type Source struct {
	Name    string  `yaml:"name"`
	Type    string  `yaml:"type"`
	URL     string  `yaml:"url"`
	Enabled bool    `yaml:"enabled"`
	Weight  float64 `yaml:"weight,omitempty"`
}

// RateLimit bounds requests per client IP. RPS 0 disables limiting.
// TrustProxy takes the client IP from X-Forwarded-For, which is only safe
// behind a reverse proxy that overwrites it.
type RateLimit struct {
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
	TrustProxy bool    `yaml:"trust_proxy,omitempty"`
}

type Config struct {
	Listen           string     `yaml:"listen"`
	RefreshInterval  string     `yaml:"refresh_interval"`
	Retention        string     `yaml:"retention"`
	MaxAge           string     `yaml:"max_age"`
	DescriptionLimit int        `yaml:"description_limit,omitempty"`
	FetchTimeout     string     `yaml:"fetch_timeout,omitempty"`
	FetchConcurrency int        `yaml:"fetch_concurrency,omitempty"`
	PageSize         int        `yaml:"page_size,omitempty"`
	RateLimit        *RateLimit `yaml:"rate_limit"`
	Sources          []Source   `yaml:"sources"`
}

// ListenAddr returns the HTTP listen address, defaulting to 127.0.0.1:8080.
func (c *Config) ListenAddr() string {
	if c.Listen == "" {
		return "127.0.0.1:8080"
	}
	return c.Listen
}

func (c *Config) RefreshDuration() time.Duration {
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

func (c *Config) RetentionDuration() time.Duration {
	if c.Retention == "" {
		return 30 * 24 * time.Hour
	}
	d, err := ParseDays(c.Retention)
	if err != nil {
		return 30 * 24 * time.Hour
	}
	return d
}

// MaxAgeDuration bounds how old a feed item may be when fetched.
// Zero means no bound.
func (c *Config) MaxAgeDuration() time.Duration {
	if c.MaxAge == "" {
		return 7 * 24 * time.Hour
	}
	d, err := ParseDays(c.MaxAge)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

func (c *Config) FetchTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.FetchTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// GetDescriptionLimit returns the description rune limit, defaulting to 200.
func (c *Config) GetDescriptionLimit() int {
	if c.DescriptionLimit <= 0 {
		return 200
	}
	return c.DescriptionLimit
}

func (c *Config) GetFetchConcurrency() int {
	if c.FetchConcurrency <= 0 {
		return 4
	}
	return c.FetchConcurrency
}

func (c *Config) GetPageSize() int {
	if c.PageSize <= 0 {
		return 500
	}
	return c.PageSize
}

// Limits returns the rate limit settings. A config without a rate_limit
// block has had the defaults filled in by Load.
func (c *Config) Limits() RateLimit {
	if c.RateLimit == nil {
		return RateLimit{}
	}
	return *c.RateLimit
}

func (c *Config) EnabledSources() []Source {
	var out []Source
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) SourceNames() []string {
	var names []string
	for _, s := range c.EnabledSources() {
		names = append(names, s.Name)
	}
	return names
}

// SourceWeights maps enabled source names to their configured weight.
// Sources without a weight are left out so the scorer falls back to its default.
func (c *Config) SourceWeights() map[string]float64 {
	weights := make(map[string]float64)
	for _, s := range c.EnabledSources() {
		if s.Weight > 0 {
			weights[s.Name] = s.Weight
		}
	}
	return weights
}

// ParseDays parses a Go duration, additionally accepting "Nd" for N days.
func ParseDays(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "cryptonews", "config.yaml")
}

func CachePath() string {
	return filepath.Join(xdg.CacheHome, "cryptonews", "cryptonews.db")
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

func Load(path string) (*Config, error) {
	defaults, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Non-fatal: embedded defaults still apply when the write fails.
			_ = writeDefaults(path)
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	mergeDefaultSources(&cfg, defaults)
	if cfg.RateLimit == nil && defaults.RateLimit != nil {
		rl := *defaults.RateLimit
		cfg.RateLimit = &rl
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeDefaultSources refreshes the type and URL of user sources that share a
// name with a default source, and appends defaults the user file lacks.
func mergeDefaultSources(cfg, defaults *Config) {
	index := make(map[string]int, len(cfg.Sources))
	for i, s := range cfg.Sources {
		index[s.Name] = i
	}
	for _, d := range defaults.Sources {
		if i, ok := index[d.Name]; ok {
			cfg.Sources[i].URL = d.URL
			cfg.Sources[i].Type = d.Type
			continue
		}
		cfg.Sources = append(cfg.Sources, d)
	}
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}

func validate(cfg *Config) error {
	validTypes := map[string]bool{"rss": true, "atom": true}
	seen := make(map[string]bool, len(cfg.Sources))
	for i, s := range cfg.Sources {
		if s.Name == "" {
			return fmt.Errorf("source %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("source %q: duplicate name", s.Name)
		}
		seen[s.Name] = true
		if s.URL == "" {
			return fmt.Errorf("source %q: url is required", s.Name)
		}
		u, err := url.Parse(s.URL)
		if err != nil {
			return fmt.Errorf("source %q: invalid url: %w", s.Name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("source %q: url scheme must be http or https, got %q", s.Name, u.Scheme)
		}
		if !validTypes[s.Type] {
			return fmt.Errorf("source %q: unknown type %q (valid: rss, atom)", s.Name, s.Type)
		}
		if s.Weight < 0 || s.Weight > 1 {
			return fmt.Errorf("source %q: weight must be between 0 and 1, got %v", s.Name, s.Weight)
		}
	}
	if cfg.RateLimit != nil && cfg.RateLimit.RPS < 0 {
		return fmt.Errorf("rate_limit.rps must not be negative")
	}
	return nil
}
