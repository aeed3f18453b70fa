package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hyperjump/matome/internal/models"
	"github.com/mmcdole/gofeed"
)

// Normalize converts parsed feed entries into items. Each field is taken from the first
// non-empty candidate in a fixed order:
//
//	id:        guid, link, "<source>-<index>"
//	link:      link, first of links
//	summary:   description, content (HTML reduced to text)
//	published: published, updated (RFC 3339, UTC)
//	image:     image, first image enclosure, media:content, first enclosure
//	source:    feed title, feed URL
func Normalize(sourceURL string, feed *gofeed.Feed) []*models.Item {
	if feed == nil {
		return []*models.Item{}
	}
	source := firstNonEmpty(strings.TrimSpace(feed.Title), sourceURL)
	items := make([]*models.Item, 0, len(feed.Items))
	for idx, it := range feed.Items {
		if it == nil {
			continue
		}
		link := firstNonEmpty(it.Link, firstString(it.Links))
		items = append(items, &models.Item{
			ID:          firstNonEmpty(it.GUID, link, fmt.Sprintf("%s-%d", source, idx)),
			Title:       strings.TrimSpace(it.Title),
			Link:        link,
			Summary:     StripHTML(firstNonEmpty(it.Description, it.Content)),
			PublishedAt: formatTime(it.PublishedParsed, it.UpdatedParsed),
			Source:      source,
			Image:       imageURL(it),
		})
	}
	return items
}

func imageURL(it *gofeed.Item) string {
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	for _, enc := range it.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	if media, ok := it.Extensions["media"]; ok {
		for _, ext := range media["content"] {
			if u := ext.Attrs["url"]; u != "" {
				return u
			}
		}
		for _, ext := range media["thumbnail"] {
			if u := ext.Attrs["url"]; u != "" {
				return u
			}
		}
	}
	for _, enc := range it.Enclosures {
		if enc != nil && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}

func formatTime(candidates ...*time.Time) string {
	for _, t := range candidates {
		if t != nil && !t.IsZero() {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstString(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// StripHTML returns the text content of an HTML fragment with whitespace collapsed.
// Plain text passes through unchanged apart from whitespace.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
