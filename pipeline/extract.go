package pipeline

import (
	"net/url"
	"regexp"
	"strings"
)

// LinkKind classifies an extracted link by what kind of queue item it
// could spawn.
type LinkKind string

const (
	LinkKindJob     LinkKind = "job"     // A single job posting
	LinkKindCompany LinkKind = "company" // A company profile or careers page
	LinkKindBoard   LinkKind = "board"   // A listing page hosting many postings
	LinkKindOther   LinkKind = "other"
)

// Link is one href discovered on a fetched page.
type Link struct {
	URL  string   `json:"url"`
	Kind LinkKind `json:"kind"`
}

var (
	hrefPattern  = regexp.MustCompile(`(?i)href\s*=\s*["']([^"'#][^"']*)["']`)
	titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	tagPattern   = regexp.MustCompile(`(?s)<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// PageTitle returns the document title, or "" if none is present.
func PageTitle(page *Page) string {
	if m := titlePattern.FindStringSubmatch(page.Body); m != nil {
		return strings.TrimSpace(spacePattern.ReplaceAllString(m[1], " "))
	}
	return ""
}

// PageText strips markup and collapses whitespace, truncating to limit
// runes. Crude, but enough for keyword filtering and scoring.
func PageText(page *Page, limit int) string {
	text := tagPattern.ReplaceAllString(page.Body, " ")
	text = strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
	runes := []rune(text)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return text
}

// jobPathHints and boardPathHints are matched against the URL path;
// companyHostHints against the host. Checked in order: job beats board
// beats company, so /careers/jobs/123 classifies as a posting, not a
// board.
var (
	jobPathHints     = []string{"/job/", "/jobs/", "/posting/", "/positions/", "/opening/", "/vacancy/"}
	boardPathHints   = []string{"/careers", "/jobs", "/join-us", "/work-with-us", "/vacancies", "/openings"}
	companyHostHints = []string{"linkedin.com/company", "crunchbase.com", "glassdoor.com/overview"}
	boardHostHints   = []string{"greenhouse.io", "lever.co", "ashbyhq.com", "workable.com", "bamboohr.com"}
)

// ExtractLinks pulls absolute, classified links out of a page body.
// Relative hrefs are resolved against the page URL; links that resolve
// outside http(s) or fail to parse are dropped. Duplicate URLs are
// collapsed, first occurrence wins.
func ExtractLinks(page *Page) []Link {
	base, err := url.Parse(page.URL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []Link
	for _, match := range hrefPattern.FindAllStringSubmatch(page.Body, -1) {
		ref, err := url.Parse(strings.TrimSpace(match[1]))
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		resolved.Fragment = ""

		normalized, err := NormalizeURL(resolved.String())
		if err != nil || seen[normalized] {
			continue
		}
		seen[normalized] = true

		links = append(links, Link{URL: normalized, Kind: ClassifyLink(resolved)})
	}
	return links
}

// ClassifyLink guesses what a URL points at from its host and path.
func ClassifyLink(u *url.URL) LinkKind {
	host := strings.ToLower(u.Host)
	path := strings.ToLower(u.Path)
	hostAndPath := host + path

	for _, hint := range companyHostHints {
		if strings.Contains(hostAndPath, hint) {
			return LinkKindCompany
		}
	}
	for _, hint := range boardHostHints {
		if strings.Contains(host, hint) {
			// ATS-hosted URLs with a posting path segment are individual
			// jobs; bare company boards list many
			for _, jobHint := range jobPathHints {
				if strings.Contains(path, jobHint) {
					return LinkKindJob
				}
			}
			return LinkKindBoard
		}
	}
	for _, hint := range jobPathHints {
		if strings.Contains(path, hint) {
			return LinkKindJob
		}
	}
	for _, hint := range boardPathHints {
		if strings.HasPrefix(path, hint) || strings.HasSuffix(strings.TrimSuffix(path, "/"), hint) {
			return LinkKindBoard
		}
	}
	if path == "/about" || strings.HasPrefix(path, "/company") {
		return LinkKindCompany
	}
	return LinkKindOther
}

// FilterLinks returns the links of the requested kinds, capped at max.
func FilterLinks(links []Link, max int, kinds ...LinkKind) []Link {
	if max <= 0 {
		return nil
	}
	wanted := make(map[LinkKind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}
	var out []Link
	for _, l := range links {
		if !wanted[l.Kind] {
			continue
		}
		out = append(out, l)
		if len(out) >= max {
			break
		}
	}
	return out
}
