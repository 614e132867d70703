package local

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/sitereport/internal/scrape"
)

const (
	alwaysDropped   = "script,style,noscript,iframe,svg,template"
	boilerplateTags = "nav,footer,header,aside"
	blockSelector   = "h1,h2,h3,h4,h5,h6,p,li,blockquote,pre"
)

var defaultMainTags = []string{"main", "article"}

// ToMarkdown extracts the page title and a markdown rendering of its main
// content. Only headings, paragraphs, list items, quotes and preformatted
// blocks are kept.
func ToMarkdown(body []byte, opts scrape.Options) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}
	title := collapseSpace(doc.Find("title").First().Text())

	doc.Find(alwaysDropped).Remove()
	for _, tag := range opts.ExcludeTags {
		doc.Find(tag).Remove()
	}
	if opts.OnlyMainContent {
		doc.Find(boilerplateTags).Remove()
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	includes := opts.IncludeTags
	if len(includes) == 0 && opts.OnlyMainContent {
		includes = defaultMainTags
	}
	for _, tag := range includes {
		if sel := doc.Find(tag); sel.Length() > 0 {
			root = sel
			break
		}
	}

	var blocks []string
	root.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		if name != "li" && s.ParentsFiltered("li,blockquote").Length() > 0 {
			return
		}
		text := collapseSpace(s.Text())
		if text == "" {
			return
		}
		switch name {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(name[1] - '0')
			blocks = append(blocks, strings.Repeat("#", level)+" "+text)
		case "li":
			blocks = append(blocks, "- "+text)
		case "blockquote":
			blocks = append(blocks, "> "+text)
		case "pre":
			blocks = append(blocks, "```\n"+strings.TrimSpace(s.Text())+"\n```")
		default:
			blocks = append(blocks, text)
		}
	})
	return title, strings.Join(blocks, "\n\n"), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
