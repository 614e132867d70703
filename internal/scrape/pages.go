package scrape

import (
	"net/url"
	"strings"
)

var (
	aboutKeywords   = []string{"about", "about-us", "our-story", "company"}
	productKeywords = []string{"products", "collections", "shop"}
)

const maxProductPages = 3

// SelectImportantPages picks the root page, one about-like page and up to
// three product-like pages from links, deduplicated and capped at maxPages.
// The root URL is always first.
func SelectImportantPages(root string, links []string, maxPages int) []string {
	if maxPages <= 0 {
		maxPages = 1
	}
	selected := []string{root}
	seen := map[string]bool{normalizeLink(root): true}
	add := func(link string) bool {
		key := normalizeLink(link)
		if seen[key] || len(selected) >= maxPages {
			return false
		}
		seen[key] = true
		selected = append(selected, link)
		return true
	}

	for _, keyword := range aboutKeywords {
		if link, ok := firstWithSegment(links, keyword, false); ok && add(link) {
			break
		}
	}

	products := 0
	for _, link := range links {
		if products >= maxProductPages {
			break
		}
		if hasAnySegment(link, productKeywords, true) && add(link) {
			products++
		}
	}
	return selected
}

func firstWithSegment(links []string, keyword string, cleanOnly bool) (string, bool) {
	for _, link := range links {
		if hasAnySegment(link, []string{keyword}, cleanOnly) {
			return link, true
		}
	}
	return "", false
}

// hasAnySegment reports whether a path segment of link equals one of keywords.
// cleanOnly rejects links carrying a query string or fragment.
func hasAnySegment(link string, keywords []string, cleanOnly bool) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if cleanOnly && (u.RawQuery != "" || u.Fragment != "" || strings.ContainsAny(link, "?#")) {
		return false
	}
	for _, segment := range strings.Split(strings.ToLower(u.Path), "/") {
		for _, keyword := range keywords {
			if segment == keyword {
				return true
			}
		}
	}
	return false
}

func normalizeLink(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return strings.TrimRight(link, "/")
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}
