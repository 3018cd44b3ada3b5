// Package config manages jobscout configuration via Viper.
package config

import "time"

// Config represents the core jobscout configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Filter   FilterConfig   `mapstructure:"filter"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// PipelineConfig configures the queue driver and spawn guard
type PipelineConfig struct {
	Workers                int `mapstructure:"workers"`                  // Concurrent queue workers (default: 2)
	PollIntervalSeconds    int `mapstructure:"poll_interval_seconds"`   // How often each worker polls for claimable items (default: 1)
	MaxSpawnDepth          int `mapstructure:"max_spawn_depth"`         // Hard ceiling on derived-item recursion (default: 10)
	MaxRetries             int `mapstructure:"max_retries"`             // Retries per stage before an item fails (default: 2)
	RetryBackoffSeconds    int `mapstructure:"retry_backoff_seconds"`   // Base delay before a transient retry (default: 30)
	ClaimTimeoutSeconds    int `mapstructure:"claim_timeout_seconds"`   // Processing items older than this are reclaimable (default: 300)
	ReclaimIntervalSeconds int `mapstructure:"reclaim_interval_seconds"` // How often the driver sweeps for abandoned claims (default: 60)
}

// ScraperConfig configures outbound fetching
type ScraperConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`     // Per-request timeout (default: 30)
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // Outbound rate limit (default: 2)
	Burst             int     `mapstructure:"burst"`               // Rate limiter burst (default: 4)
	UserAgent         string  `mapstructure:"user_agent"`
}

// ScoringConfig configures the external match scorer boundary
type ScoringConfig struct {
	TimeoutSeconds int      `mapstructure:"timeout_seconds"` // Per-score timeout (default: 60)
	MinScore       float64  `mapstructure:"min_score"`       // Matches below this are still saved, just flagged
	Keywords       []string `mapstructure:"keywords"`        // Fed to the built-in keyword scorer
}

// FilterConfig configures the exclusion rules applied at the filter stage
type FilterConfig struct {
	ExcludeKeywords []string `mapstructure:"exclude_keywords"`
	ExcludeDomains  []string `mapstructure:"exclude_domains"`
}

// MonitorConfig configures the read-only monitoring server
type MonitorConfig struct {
	Addr string `mapstructure:"addr"` // Listen address, empty disables the server
}

// PollInterval returns the worker poll interval as a duration.
func (p PipelineConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSeconds) * time.Second
}

// RetryBackoff returns the base transient-retry delay as a duration.
func (p PipelineConfig) RetryBackoff() time.Duration {
	return time.Duration(p.RetryBackoffSeconds) * time.Second
}

// ClaimTimeout returns the abandoned-claim threshold as a duration.
func (p PipelineConfig) ClaimTimeout() time.Duration {
	return time.Duration(p.ClaimTimeoutSeconds) * time.Second
}

// ReclaimInterval returns the abandoned-claim sweep interval as a duration.
func (p PipelineConfig) ReclaimInterval() time.Duration {
	return time.Duration(p.ReclaimIntervalSeconds) * time.Second
}

// ScrapeTimeout returns the per-request fetch timeout as a duration.
func (s ScraperConfig) ScrapeTimeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ScoreTimeout returns the per-score timeout as a duration.
func (s ScoringConfig) ScoreTimeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}
