package fetch

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
)

// minArticleChars is the shortest readability text accepted as the main
// content; anything shorter usually means only metadata was found.
const minArticleChars = 200

const noise = "script, style, noscript, iframe, svg, canvas, form, template"

func (f *HTTPFetcher) convertHTML(raw string, pageURL *url.URL) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return Page{}, fmt.Errorf("parsing html: %w", err)
	}
	title := extractTitle(doc)

	doc.Find(noise).Remove()
	cleaned, err := doc.Html()
	if err != nil {
		return Page{}, fmt.Errorf("rendering cleaned html: %w", err)
	}

	body := articleHTML(cleaned, pageURL)
	if body == "" {
		body = fallbackHTML(doc)
	}

	markdown, err := f.converter.ConvertString(f.policy.Sanitize(body))
	if err != nil {
		return Page{}, fmt.Errorf("converting to markdown: %w", err)
	}
	return Page{Title: title, Markdown: markdown}, nil
}

// articleHTML returns the main content found by readability, or "" when
// the extracted text is too short to trust.
func articleHTML(cleaned string, pageURL *url.URL) string {
	article, err := readability.FromReader(strings.NewReader(cleaned), pageURL)
	if err != nil {
		return ""
	}
	var text strings.Builder
	if err := article.RenderText(&text); err != nil {
		return ""
	}
	if utf8.RuneCountInString(strings.TrimSpace(text.String())) < minArticleChars {
		return ""
	}
	var html strings.Builder
	if err := article.RenderHTML(&html); err != nil {
		return ""
	}
	return strings.TrimSpace(html.String())
}

func fallbackHTML(doc *goquery.Document) string {
	for _, sel := range []string{"article", "main", "body"} {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		node.Find("nav, header, footer, aside").Remove()
		if h, err := node.Html(); err == nil && strings.TrimSpace(h) != "" {
			return h
		}
	}
	h, _ := doc.Html()
	return h
}

func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return collapse(og)
	}
	if t := collapse(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return collapse(doc.Find("h1").First().Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
