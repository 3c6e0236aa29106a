// Package article extracts readable content from non-Slack pages so the
// assistant can summarize them the same way it summarizes threads.
package article

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Data is the extracted article. Content is markdown; Excerpt, SiteName,
// and Byline are empty when the page does not declare them.
type Data struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Excerpt  string `json:"excerpt"`
	SiteName string `json:"site_name"`
	Byline   string `json:"byline"`
	URL      string `json:"url"`
}

// Elements that never carry article prose.
var boilerplateSelector = "script, style, noscript, nav, header, footer, aside, form, iframe"

var newlineRuns = regexp.MustCompile(`\n{3,}`)

// Extractor converts HTML documents into article data.
type Extractor struct {
	converter *md.Converter
}

// NewExtractor creates an extractor with a markdown converter.
func NewExtractor() *Extractor {
	return &Extractor{
		converter: md.NewConverter("", true, nil),
	}
}

// Extract parses the document and pulls out the readable article. When no
// article-like region is found, it degrades to the document title plus
// flattened body text rather than failing.
func (e *Extractor) Extract(r io.Reader, pageURL string) (Data, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Data{}, fmt.Errorf("parse document: %w", err)
	}

	data := Data{
		Title:    pageTitle(doc),
		Excerpt:  firstMetaContent(doc, `meta[property="og:description"]`, `meta[name="description"]`),
		SiteName: firstMetaContent(doc, `meta[property="og:site_name"]`),
		Byline:   firstMetaContent(doc, `meta[name="author"]`, `meta[property="article:author"]`),
		URL:      pageURL,
	}

	doc.Find(boilerplateSelector).Remove()

	region := articleRegion(doc)
	content := strings.TrimSpace(e.converter.Convert(region))
	if content == "" {
		content = strings.TrimSpace(doc.Find("body").Text())
	}
	data.Content = strings.TrimSpace(newlineRuns.ReplaceAllString(content, "\n\n"))

	return data, nil
}

// articleRegion picks the most article-like region of the page.
func articleRegion(doc *goquery.Document) *goquery.Selection {
	for _, selector := range []string{"article", "main", `[role="main"]`} {
		if sel := doc.Find(selector); sel.Length() > 0 {
			return sel.First()
		}
	}
	return doc.Find("body")
}

func pageTitle(doc *goquery.Document) string {
	if title := firstMetaContent(doc, `meta[property="og:title"]`); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func firstMetaContent(doc *goquery.Document, selectors ...string) string {
	for _, selector := range selectors {
		if content, ok := doc.Find(selector).First().Attr("content"); ok {
			if trimmed := strings.TrimSpace(content); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
