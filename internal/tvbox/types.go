// Package tvbox fetches and normalises upstream TVBox subscriptions and assembles
// the client-facing config document.
package tvbox

import "encoding/json"

// Site is one TVBox source entry.
type Site struct {
	Key         string          `json:"key"`
	Name        string          `json:"name"`
	Type        int             `json:"type"`
	API         string          `json:"api"`
	Jar         string          `json:"jar,omitempty"`
	Ext         json.RawMessage `json:"ext,omitempty"`
	IsAdult     *bool           `json:"is_adult,omitempty"`
	Searchable  *int            `json:"searchable,omitempty"`
	QuickSearch *int            `json:"quickSearch,omitempty"`
	Filterable  *int            `json:"filterable,omitempty"`
	Changeable  *int            `json:"changeable,omitempty"`
}

// Adult reports the site's is_adult flag.
func (s Site) Adult() bool { return s.IsAdult != nil && *s.IsAdult }

// Parse is a playback parser entry.
type Parse struct {
	Name string `json:"name"`
	Type int    `json:"type"`
	URL  string `json:"url"`
}

// Subscription is the standard TVBox document as fetched upstream.
type Subscription struct {
	Spider string            `json:"spider,omitempty"`
	Sites  []Site            `json:"sites,omitempty"`
	Parses []Parse           `json:"parses,omitempty"`
	Lives  []json.RawMessage `json:"lives,omitempty"`
}

// Clone copies the slices so callers can edit the result without touching a cached value.
func (s Subscription) Clone() Subscription {
	s.Sites = append([]Site(nil), s.Sites...)
	s.Parses = append([]Parse(nil), s.Parses...)
	s.Lives = append([]json.RawMessage(nil), s.Lives...)
	return s
}

// Config is the document served on /api/tvbox. Slices are never null.
type Config struct {
	Spider string            `json:"spider"`
	Sites  []Site            `json:"sites"`
	Parses []Parse           `json:"parses"`
	Lives  []json.RawMessage `json:"lives"`
}

const (
	// DefaultSpider is advertised by converted and built-in subscriptions.
	DefaultSpider = "https://cdn.jsdelivr.net/gh/FongMi/CatVodSpider@main/jar/spider.jar"
	// AdFilterParseName labels the injected playlist-cleaning parser.
	AdFilterParseName = "🚫 广告过滤"
)

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func defaultParses() []Parse {
	return []Parse{
		{Name: "默认解析", Type: 0, URL: "https://jx.xmflv.com/?url="},
		{Name: "并发解析", Type: 2, URL: "Parallel"},
	}
}

// DefaultSubscription is used when the upstream subscription cannot be fetched.
func DefaultSubscription() Subscription {
	return Subscription{
		Spider: DefaultSpider,
		Sites: []Site{{
			Key:         "demo",
			Name:        "演示站点",
			Type:        3,
			API:         "https://example.com/api",
			IsAdult:     boolPtr(false),
			Searchable:  intPtr(1),
			QuickSearch: intPtr(1),
			Filterable:  intPtr(1),
		}},
		Parses: defaultParses(),
	}
}
