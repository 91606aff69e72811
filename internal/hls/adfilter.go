// Package hls cleans and re-points live HLS playlists: ad removal, URI rewriting
// onto the local proxy, and a segment cache with background warm-up.
package hls

import "strings"

// adURLMarkers are matched case-insensitively against segment URIs and PART tags.
var adURLMarkers = []string{"/ad/", "_ad_", "-ad-", "promo", "doubleclick"}

// FilterStats counts what Filter removed.
type FilterStats struct {
	SegmentsRemoved int // EXTINF+URI groups dropped (ad URI, or inside a cue block)
	TagsRemoved     int // cue, daterange and part tags dropped on their own
}

// Filter removes advertising from a media playlist. Segments inside
// CUE-OUT…CUE-IN spans, segments whose URI looks like an ad, ad-classified
// DATERANGE tags and ad PART tags are dropped; everything else is kept verbatim.
// Lines are joined with "\n" and trailing blank lines are dropped. Filter is
// idempotent.
func Filter(text string) string {
	out, _ := FilterWithStats(text)
	return out
}

// FilterWithStats is Filter plus counts of what was removed.
func FilterWithStats(text string) (string, FilterStats) {
	var (
		st         FilterStats
		out        []string
		pending    []string
		insideCue  bool
		collecting bool
	)
	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		upper := strings.ToUpper(t)

		if insideCue {
			switch {
			case isCueIn(upper):
				insideCue = false
				st.TagsRemoved++
			case t != "" && !strings.HasPrefix(t, "#"):
				st.SegmentsRemoved++
			}
			continue
		}

		switch {
		case isCueOut(upper):
			insideCue = true
			if collecting {
				st.SegmentsRemoved++
			}
			collecting, pending = false, nil
			st.TagsRemoved++
			continue
		case isCueIn(upper):
			st.TagsRemoved++
			continue
		case strings.HasPrefix(upper, "#EXT-X-DATERANGE") && isAdDateRange(upper):
			st.TagsRemoved++
			continue
		case strings.HasPrefix(upper, "#EXT-X-PART:") && IsAdURL(t):
			st.TagsRemoved++
			continue
		case strings.HasPrefix(upper, "#EXTINF"):
			collecting = true
			pending = []string{line}
			continue
		}

		if !collecting {
			out = append(out, line)
			continue
		}
		if t == "" || strings.HasPrefix(t, "#") {
			pending = append(pending, line)
			continue
		}
		// URI closes the segment.
		if IsAdURL(t) {
			st.SegmentsRemoved++
		} else {
			out = append(out, pending...)
			out = append(out, line)
		}
		collecting, pending = false, nil
	}

	for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n"), st
}

// IsAdURL reports whether s contains one of the ad URL markers.
func IsAdURL(s string) bool {
	lower := strings.ToLower(s)
	for _, m := range adURLMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func isCueOut(upper string) bool {
	return strings.HasPrefix(upper, "#EXT-X-CUE-OUT") || strings.HasPrefix(upper, "#EXT-OATCLS-SCTE35")
}

func isCueIn(upper string) bool {
	return strings.HasPrefix(upper, "#EXT-X-CUE-IN")
}

func isAdDateRange(upper string) bool {
	return strings.Contains(upper, `CLASS="AD"`) ||
		strings.Contains(upper, "CLASS=AD") ||
		strings.Contains(upper, "INTERSTITIAL") ||
		strings.Contains(upper, "X-AD-") ||
		strings.Contains(upper, "SCTE35")
}
