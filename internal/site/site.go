// Package site renders the static artifacts served next to the API:
// web app manifest, robots.txt, sitemap.xml and an RSS feed of articles.
package site

import (
	"encoding/json"
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"formguard/internal/config"
)

// Paths crawlers must not index. /handler/ hosts the auth callbacks.
var disallowedPaths = []string{"/dashboard", "/api/", "/v1/", "/handler/"}

// staticRoutes are the marketing pages listed in the sitemap.
var staticRoutes = []struct {
	path       string
	changeFreq string
	priority   string
}{
	{"/", "weekly", "1.0"},
	{"/pricing", "monthly", "0.8"},
	{"/docs", "weekly", "0.8"},
	{"/blog", "weekly", "0.7"},
}

// Site renders artifacts for one deployment.
type Site struct {
	baseURL     string
	name        string
	description string
	articles    []Article
	now         func() time.Time
}

// New creates a Site. articles is the full index; unpublished entries are
// filtered at render time.
func New(cfg config.SiteConfig, articles []Article) *Site {
	return &Site{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		name:        cfg.Name,
		description: cfg.Description,
		articles:    articles,
		now:         time.Now,
	}
}

// RegisterRoutes mounts the artifacts at the root.
func (s *Site) RegisterRoutes(r chi.Router) {
	r.Get("/manifest.webmanifest", s.serve("application/manifest+json", s.Manifest))
	r.Get("/robots.txt", s.serve("text/plain; charset=utf-8", func() ([]byte, error) { return s.Robots(), nil }))
	r.Get("/sitemap.xml", s.serve("application/xml; charset=utf-8", s.Sitemap))
	r.Get("/feed.xml", s.serve("application/rss+xml; charset=utf-8", s.Feed))
}

func (s *Site) serve(contentType string, render func() ([]byte, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := render()
		if err != nil {
			http.Error(w, "failed to render", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = w.Write(body)
	}
}

type manifestIcon struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes"`
	Type  string `json:"type"`
}

type manifest struct {
	Name            string         `json:"name"`
	ShortName       string         `json:"short_name"`
	Description     string         `json:"description"`
	StartURL        string         `json:"start_url"`
	Display         string         `json:"display"`
	BackgroundColor string         `json:"background_color"`
	ThemeColor      string         `json:"theme_color"`
	Icons           []manifestIcon `json:"icons"`
}

// Manifest renders the web app manifest.
func (s *Site) Manifest() ([]byte, error) {
	return json.Marshal(manifest{
		Name:            s.name,
		ShortName:       s.name,
		Description:     s.description,
		StartURL:        "/",
		Display:         "standalone",
		BackgroundColor: "#ffffff",
		ThemeColor:      "#0f172a",
		Icons: []manifestIcon{
			{Src: "/icon-192.png", Sizes: "192x192", Type: "image/png"},
			{Src: "/icon-512.png", Sizes: "512x512", Type: "image/png"},
		},
	})
}

// Robots renders robots.txt.
func (s *Site) Robots() []byte {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Allow: /\n")
	for _, p := range disallowedPaths {
		b.WriteString("Disallow: " + p + "\n")
	}
	b.WriteString("\nSitemap: " + s.baseURL + "/sitemap.xml\n")
	return []byte(b.String())
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// Sitemap renders sitemap.xml: static routes plus one entry per published article.
func (s *Site) Sitemap() ([]byte, error) {
	now := s.now().UTC()
	set := urlSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, route := range staticRoutes {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        s.baseURL + route.path,
			LastMod:    now.Format("2006-01-02"),
			ChangeFreq: route.changeFreq,
			Priority:   route.priority,
		})
	}
	for _, a := range PublishedArticles(s.articles, now) {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        s.articleURL(a),
			LastMod:    a.PublishedAt.UTC().Format("2006-01-02"),
			ChangeFreq: "monthly",
			Priority:   "0.6",
		})
	}
	return marshalXML(set)
}

type rss struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Atom    string     `xml:"xmlns:atom,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language"`
	LastBuildDate string    `xml:"lastBuildDate"`
	AtomLink      atomLink  `xml:"atom:link"`
	Items         []rssItem `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        string   `xml:"guid"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	Categories  []string `xml:"category,omitempty"`
}

// Feed renders an RSS 2.0 feed of published articles.
func (s *Site) Feed() ([]byte, error) {
	now := s.now().UTC()
	published := PublishedArticles(s.articles, now)

	ch := rssChannel{
		Title:         s.name + " Blog",
		Link:          s.baseURL + "/blog",
		Description:   s.description,
		Language:      "en-us",
		LastBuildDate: now.Format(time.RFC1123Z),
		AtomLink:      atomLink{Href: s.baseURL + "/feed.xml", Rel: "self", Type: "application/rss+xml"},
	}
	for _, a := range published {
		link := s.articleURL(a)
		ch.Items = append(ch.Items, rssItem{
			Title:       a.Title,
			Link:        link,
			GUID:        link,
			Description: a.Description,
			PubDate:     a.PublishedAt.UTC().Format(time.RFC1123Z),
			Categories:  a.Tags,
		})
	}
	return marshalXML(rss{Version: "2.0", Atom: "http://www.w3.org/2005/Atom", Channel: ch})
}

func (s *Site) articleURL(a Article) string {
	return s.baseURL + "/blog/" + a.Slug
}

func marshalXML(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
