package tvbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned for bodies that are not JSON at all.
var ErrInvalidJSON = errors.New("tvbox: subscription is not valid JSON")

var adultKeywords = []string{"adult", "18+", "nsfw", "成人", "情色", "🔞"}

// IsAdultName reports whether a source name or URL contains an adult keyword.
func IsAdultName(s string) bool {
	lower := strings.ToLower(s)
	for _, k := range adultKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// ParseSubscription accepts either the standard TVBox document or the
// {"api_site": {"<domain>": {"name":..., "api":...}}} form, which is converted.
func ParseSubscription(body []byte) (Subscription, error) {
	if !gjson.ValidBytes(body) {
		return Subscription{}, ErrInvalidJSON
	}
	if apiSite := gjson.GetBytes(body, "api_site"); apiSite.IsObject() {
		return convertAPISite(apiSite), nil
	}
	var sub Subscription
	if err := json.Unmarshal(body, &sub); err != nil {
		return Subscription{}, fmt.Errorf("tvbox: parse subscription: %w", err)
	}
	return sub, nil
}

// convertAPISite keeps document order. Keys are the domain with '.', '-' and ':'
// replaced by '_'; MacCMS endpoints become type 1, anything else type 3.
func convertAPISite(apiSite gjson.Result) Subscription {
	keyer := strings.NewReplacer(".", "_", "-", "_", ":", "_")
	var sites []Site
	apiSite.ForEach(func(domain, info gjson.Result) bool {
		name := info.Get("name").String()
		api := info.Get("api").String()
		if api == "" {
			return true
		}
		typ := 3
		if strings.Contains(api, "/api.php/provide/") || strings.Contains(api, "maccms") {
			typ = 1
		}
		sites = append(sites, Site{
			Key:         keyer.Replace(domain.String()),
			Name:        name,
			Type:        typ,
			API:         api,
			IsAdult:     boolPtr(IsAdultName(name) || IsAdultName(api) || info.Get("is_adult").Bool()),
			Searchable:  intPtr(1),
			QuickSearch: intPtr(1),
			Filterable:  intPtr(1),
		})
		return true
	})
	return Subscription{
		Spider: DefaultSpider,
		Sites:  sites,
		Parses: defaultParses(),
	}
}
