package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teliris/jobscout/config"
)

func TestRulesExcludeKeywords(t *testing.T) {
	rules := NewRules(config.FilterConfig{
		ExcludeKeywords: []string{"Senior Staff", "clearance required", " "},
	})

	reason, excluded := rules.Evaluate("https://acme.example/jobs/1", &JobPayload{
		Title: "Senior Staff Engineer",
	})
	assert.True(t, excluded)
	assert.Equal(t, "keyword excluded: senior staff", reason)

	_, excluded = rules.Evaluate("https://acme.example/jobs/2", &JobPayload{
		Title:       "Backend Engineer",
		Description: "Active Clearance Required for this role",
	})
	assert.True(t, excluded, "keywords match the description too")

	_, excluded = rules.Evaluate("https://acme.example/jobs/3", &JobPayload{
		Title: "Backend Engineer",
	})
	assert.False(t, excluded)
}

func TestRulesExcludeDomains(t *testing.T) {
	rules := NewRules(config.FilterConfig{
		ExcludeDomains: []string{"spamboard.example"},
	})

	reason, excluded := rules.Evaluate("https://spamboard.example/jobs/1", &JobPayload{})
	assert.True(t, excluded)
	assert.Equal(t, "source domain excluded: spamboard.example", reason)

	_, excluded = rules.Evaluate("https://jobs.spamboard.example/listing/1", &JobPayload{})
	assert.True(t, excluded, "subdomains are excluded too")

	_, excluded = rules.Evaluate("https://notspamboard.example/jobs/1", &JobPayload{})
	assert.False(t, excluded, "suffix match requires a dot boundary")
}

func TestRulesEmptyConfigExcludesNothing(t *testing.T) {
	rules := NewRules(config.FilterConfig{})
	_, excluded := rules.Evaluate("https://anything.example", &JobPayload{Title: "Anything"})
	assert.False(t, excluded)
}
