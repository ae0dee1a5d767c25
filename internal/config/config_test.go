package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadDefaults()
	if err != nil {
		t.Fatalf("loadDefaults: %v", err)
	}
	if len(cfg.Sources) != 3 {
		t.Errorf("expected 3 default sources, got %d", len(cfg.Sources))
	}
	if cfg.RefreshInterval == "" {
		t.Error("expected refresh_interval to be set")
	}
	if err := validate(cfg); err != nil {
		t.Errorf("embedded defaults should validate: %v", err)
	}
}

func TestDefaultSourcesAreCryptoFeeds(t *testing.T) {
	cfg, err := loadDefaults()
	if err != nil {
		t.Fatalf("loadDefaults: %v", err)
	}
	want := []string{"CoinDesk", "CryptoSlate", "Cointelegraph"}
	names := cfg.SourceNames()
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("source %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}

func TestRefreshDuration(t *testing.T) {
	cfg := &Config{RefreshInterval: "30m"}
	d := cfg.RefreshDuration()
	if d.Minutes() != 30 {
		t.Errorf("expected 30m, got %v", d)
	}

	cfg.RefreshInterval = "invalid"
	d = cfg.RefreshDuration()
	if d != 5*time.Minute {
		t.Errorf("expected 5m default for invalid interval, got %v", d)
	}

	cfg.RefreshInterval = "-1m"
	if d := cfg.RefreshDuration(); d != 5*time.Minute {
		t.Errorf("expected 5m default for negative interval, got %v", d)
	}
}

func TestRetentionDuration(t *testing.T) {
	tests := []struct {
		input    string
		wantDays int
	}{
		{"90d", 90},
		{"30d", 30},
		{"720h", 30},
		{"", 30},
		{"invalid", 30},
	}
	for _, tt := range tests {
		cfg := &Config{Retention: tt.input}
		got := cfg.RetentionDuration()
		wantHours := float64(tt.wantDays * 24)
		if got.Hours() != wantHours {
			t.Errorf("RetentionDuration(%q) = %v, want %dd", tt.input, got, tt.wantDays)
		}
	}
}

func TestMaxAgeDuration(t *testing.T) {
	if got := (&Config{}).MaxAgeDuration(); got != 7*24*time.Hour {
		t.Errorf("expected 7d default, got %v", got)
	}
	if got := (&Config{MaxAge: "0s"}).MaxAgeDuration(); got != 0 {
		t.Errorf("expected 0 to disable the bound, got %v", got)
	}
	if got := (&Config{MaxAge: "2d"}).MaxAgeDuration(); got != 48*time.Hour {
		t.Errorf("expected 48h, got %v", got)
	}
}

func TestParseDays(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
		err   bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"24h", 24 * time.Hour, false},
		{"2h30m", 2*time.Hour + 30*time.Minute, false},
		{"d", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDays(tt.input)
		if tt.err {
			if err == nil {
				t.Errorf("ParseDays(%q): expected error, got %v", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDays(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDays(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNumericDefaults(t *testing.T) {
	cfg := &Config{}
	if got := cfg.GetDescriptionLimit(); got != 200 {
		t.Errorf("expected description limit 200, got %d", got)
	}
	if got := cfg.GetFetchConcurrency(); got != 4 {
		t.Errorf("expected fetch concurrency 4, got %d", got)
	}
	if got := cfg.GetPageSize(); got != 500 {
		t.Errorf("expected page size 500, got %d", got)
	}
	if got := cfg.FetchTimeoutDuration(); got != 30*time.Second {
		t.Errorf("expected fetch timeout 30s, got %v", got)
	}
	if got := cfg.ListenAddr(); got != "127.0.0.1:8080" {
		t.Errorf("expected default listen address, got %s", got)
	}
}

func TestEnabledSources(t *testing.T) {
	cfg := &Config{
		Sources: []Source{
			{Name: "A", Enabled: true},
			{Name: "B", Enabled: false},
			{Name: "C", Enabled: true},
		},
	}
	enabled := cfg.EnabledSources()
	if len(enabled) != 2 {
		t.Fatalf("expected 2 enabled sources, got %d", len(enabled))
	}
	if enabled[0].Name != "A" || enabled[1].Name != "C" {
		t.Errorf("unexpected enabled sources: %v", enabled)
	}
}

func TestSourceWeights(t *testing.T) {
	cfg := &Config{
		Sources: []Source{
			{Name: "A", Enabled: true, Weight: 0.9},
			{Name: "B", Enabled: false, Weight: 0.4},
			{Name: "C", Enabled: true},
		},
	}
	w := cfg.SourceWeights()
	if len(w) != 1 || w["A"] != 0.9 {
		t.Errorf("unexpected weights: %v", w)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := `refresh_interval: 2m
listen: 0.0.0.0:9000
sources:
  - name: Decrypt
    type: rss
    url: https://decrypt.co/feed
    enabled: true
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RefreshInterval != "2m" {
		t.Errorf("expected 2m, got %s", cfg.RefreshInterval)
	}
	if cfg.ListenAddr() != "0.0.0.0:9000" {
		t.Errorf("expected custom listen address, got %s", cfg.ListenAddr())
	}
	if cfg.Sources[0].Name != "Decrypt" {
		t.Errorf("expected first source name Decrypt, got %s", cfg.Sources[0].Name)
	}
	if len(cfg.Sources) != 4 {
		t.Errorf("expected default sources to be merged, got %d total", len(cfg.Sources))
	}
}

func TestLoadFillsMissingRateLimit(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("listen: 127.0.0.1:9000\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Limits(); got.RPS != 5 || got.Burst != 10 || got.TrustProxy {
		t.Errorf("expected default rate limit 5/10, got %+v", got)
	}
}

func TestLoadKeepsExplicitRateLimit(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := `rate_limit:
  rps: 0
  trust_proxy: true
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Limits(); got.RPS != 0 || !got.TrustProxy {
		t.Errorf("expected explicit rps 0 with trusted proxy, got %+v", got)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("sources: [\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadNonexistentFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sub", "config.yaml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Sources) == 0 {
		t.Error("expected default sources when config doesn't exist")
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Errorf("expected defaults written to %s: %v", cfgPath, err)
	}
}

func TestMergeDefaultSources(t *testing.T) {
	cfg := &Config{
		Sources: []Source{
			{Name: "Existing", Type: "rss", URL: "https://example.com/feed", Enabled: true},
			{Name: "Shared", Type: "rss", URL: "https://old.com/feed", Enabled: false},
		},
	}
	defaults := &Config{
		Sources: []Source{
			{Name: "Shared", Type: "atom", URL: "https://new.com/feed", Enabled: true},
			{Name: "NewSource", Type: "rss", URL: "https://new-source.com/feed", Enabled: true},
		},
	}
	mergeDefaultSources(cfg, defaults)

	if len(cfg.Sources) != 3 {
		t.Fatalf("expected 3 sources after merge, got %d", len(cfg.Sources))
	}
	if cfg.Sources[0].Name != "Existing" {
		t.Errorf("expected first source Existing, got %s", cfg.Sources[0].Name)
	}
	if cfg.Sources[1].URL != "https://new.com/feed" {
		t.Errorf("expected Shared URL updated, got %s", cfg.Sources[1].URL)
	}
	if cfg.Sources[1].Type != "atom" {
		t.Errorf("expected Shared type updated to atom, got %s", cfg.Sources[1].Type)
	}
	if cfg.Sources[1].Enabled {
		t.Error("expected user's enabled flag to survive the merge")
	}
	if cfg.Sources[2].Name != "NewSource" {
		t.Errorf("expected NewSource appended, got %s", cfg.Sources[2].Name)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		sources []Source
		wantErr bool
	}{
		{"missing name", []Source{{Type: "rss", URL: "https://example.com"}}, true},
		{"missing url", []Source{{Name: "Test", Type: "rss"}}, true},
		{"invalid type", []Source{{Name: "Test", Type: "json", URL: "https://example.com"}}, true},
		{"file scheme", []Source{{Name: "Test", Type: "rss", URL: "file:///etc/passwd"}}, true},
		{"weight above one", []Source{{Name: "Test", Type: "rss", URL: "https://example.com", Weight: 1.5}}, true},
		{"duplicate name", []Source{
			{Name: "Test", Type: "rss", URL: "https://a.com"},
			{Name: "Test", Type: "rss", URL: "https://b.com"},
		}, true},
		{"https", []Source{{Name: "Test", Type: "rss", URL: "https://example.com/feed"}}, false},
		{"http atom", []Source{{Name: "Test", Type: "atom", URL: "http://example.com/feed"}}, false},
	}
	for _, tt := range tests {
		err := validate(&Config{Sources: tt.sources})
		if tt.wantErr && err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
		}
	}
}

func TestValidateNegativeRateLimit(t *testing.T) {
	if err := validate(&Config{RateLimit: &RateLimit{RPS: -1}}); err == nil {
		t.Error("expected error for negative rps")
	}
}
