// Package scrape turns a URL into clean markdown.
//
// The Engine tries a direct single-page scrape with bounded retry first. When
// the scraping service answers but returns no markdown (common for script-heavy
// storefronts), it falls back to discovering the site's link map, picking a
// handful of important pages and scraping them as one batch job.
package scrape
