package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "jobscout.db")

	// Pipeline defaults
	v.SetDefault("pipeline.workers", 2)
	v.SetDefault("pipeline.poll_interval_seconds", 1)
	v.SetDefault("pipeline.max_spawn_depth", 10)
	v.SetDefault("pipeline.max_retries", 2)
	v.SetDefault("pipeline.retry_backoff_seconds", 30)
	v.SetDefault("pipeline.claim_timeout_seconds", 300) // 5 minutes before a crashed worker's claim is reclaimable
	v.SetDefault("pipeline.reclaim_interval_seconds", 60)

	// Scraper defaults
	v.SetDefault("scraper.timeout_seconds", 30)
	v.SetDefault("scraper.requests_per_second", 2.0) // Polite crawl rate
	v.SetDefault("scraper.burst", 4)
	v.SetDefault("scraper.user_agent", "jobscout/1.0")

	// Scoring defaults
	v.SetDefault("scoring.timeout_seconds", 60)
	v.SetDefault("scoring.min_score", 0.5)

	// Filter defaults
	v.SetDefault("filter.exclude_keywords", []string{})
	v.SetDefault("filter.exclude_domains", []string{})

	// Monitor defaults
	v.SetDefault("monitor.addr", "127.0.0.1:8727")
}
