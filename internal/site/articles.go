package site

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

//go:embed articles.json
var articlesJSON []byte

// Article is a blog post listed in the sitemap and feed.
type Article struct {
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"published_at"`
	Published   bool      `json:"published"`
	Tags        []string  `json:"tags,omitempty"`
}

// LoadArticles decodes the embedded article index.
func LoadArticles() ([]Article, error) {
	var articles []Article
	if err := json.Unmarshal(articlesJSON, &articles); err != nil {
		return nil, fmt.Errorf("site: decode articles: %w", err)
	}
	return articles, nil
}

// PublishedArticles returns published articles dated no later than now,
// newest first.
func PublishedArticles(articles []Article, now time.Time) []Article {
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if a.Published && !a.PublishedAt.After(now) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out
}
