package pipeline

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/teliris/jobscout/config"
)

// Rules holds the exclusion rules applied at the filter stage. A posting
// matching any rule is terminated with status filtered rather than
// failed: exclusion is a normal outcome, not an error.
type Rules struct {
	keywords []string
	domains  []string
}

// NewRules compiles filter configuration. Keywords match
// case-insensitively against title and description; domains match the
// source URL's host and its subdomains.
func NewRules(cfg config.FilterConfig) *Rules {
	r := &Rules{}
	for _, kw := range cfg.ExcludeKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			r.keywords = append(r.keywords, kw)
		}
	}
	for _, d := range cfg.ExcludeDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			r.domains = append(r.domains, d)
		}
	}
	return r
}

// Evaluate reports whether the posting is excluded and why.
func (r *Rules) Evaluate(sourceKey string, payload *JobPayload) (reason string, excluded bool) {
	if parsed, err := url.Parse(sourceKey); err == nil {
		host := strings.ToLower(parsed.Host)
		for _, domain := range r.domains {
			if host == domain || strings.HasSuffix(host, "."+domain) {
				return fmt.Sprintf("source domain excluded: %s", domain), true
			}
		}
	}

	haystack := strings.ToLower(payload.Title + "\n" + payload.Description)
	for _, kw := range r.keywords {
		if strings.Contains(haystack, kw) {
			return fmt.Sprintf("keyword excluded: %s", kw), true
		}
	}
	return "", false
}
