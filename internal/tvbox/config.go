package tvbox

import (
	"encoding/json"
	"strings"
)

// BuildOptions controls how a subscription is turned into the served Config.
type BuildOptions struct {
	Spider      string // "<url>;md5;<checksum>"
	AdFilterURL string // playlist proxy base, injected as the first parser
	FilterAdult bool
}

// Build assembles the served document: spider replaced, adult sites optionally
// removed, the ad-filter parser placed first, and nil slices turned into [].
func Build(sub Subscription, opts BuildOptions) Config {
	sites := make([]Site, 0, len(sub.Sites))
	for _, s := range sub.Sites {
		if opts.FilterAdult && s.Adult() {
			continue
		}
		sites = append(sites, s)
	}
	parses := make([]Parse, 0, len(sub.Parses)+1)
	parses = append(parses, Parse{Name: AdFilterParseName, Type: 0, URL: opts.AdFilterURL})
	parses = append(parses, sub.Parses...)
	lives := sub.Lives
	if lives == nil {
		lives = []json.RawMessage{}
	}
	return Config{
		Spider: opts.Spider,
		Sites:  sites,
		Parses: parses,
		Lives:  lives,
	}
}

// FilterAdult reports whether adult sites should be hidden for the given query
// values: on unless filter is off/disable or adult is 1/true.
func FilterAdult(filter, adult string) bool {
	switch strings.ToLower(filter) {
	case "off", "disable":
		return false
	}
	switch strings.ToLower(adult) {
	case "1", "true":
		return false
	}
	return true
}

// SpiderField formats the advertised spider string.
func SpiderField(url, checksum string) string {
	return url + ";md5;" + checksum
}
