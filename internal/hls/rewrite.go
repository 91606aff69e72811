package hls

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	segmentExts  = []string{".ts", ".m4s", ".aac", ".mp4"}
	playlistExts = []string{".m3u8"}

	uriAttr = regexp.MustCompile(`URI="([^"]*)"`)
)

// Rewriter points playlist URIs at the local proxy. Segment URIs get SegmentBase,
// nested playlists get PlaylistBase so variant playlists are filtered as well.
// Both bases end in "url=" and receive the query-escaped absolute upstream URL.
type Rewriter struct {
	SegmentBase  string
	PlaylistBase string
}

// Rewrite uses proxyBase for both segments and nested playlists.
func Rewrite(text, baseURL, proxyBase string) string {
	return Rewriter{SegmentBase: proxyBase, PlaylistBase: proxyBase}.Rewrite(text, baseURL)
}

// Rewrite resolves every segment or playlist URI in text against baseURL
// (the playlist's own fetch URL) and replaces it with a proxy URL. URI="..."
// attributes of MAP, KEY, PART, PRELOAD-HINT, MEDIA and I-FRAME-STREAM-INF tags
// are rewritten too.
// Other lines are kept verbatim, including a trailing newline.
func (rw Rewriter) Rewrite(text, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trim := strings.TrimSpace(line)
		if trim == "" {
			continue
		}
		if strings.HasPrefix(trim, "#") {
			lines[i] = rw.rewriteTag(line, base)
			continue
		}
		if p := rw.proxyFor(trim, base); p != "" {
			lines[i] = p
		}
	}
	return strings.Join(lines, "\n")
}

func (rw Rewriter) rewriteTag(line string, base *url.URL) string {
	upper := strings.ToUpper(strings.TrimSpace(line))
	var proxyBase string
	switch {
	case strings.HasPrefix(upper, "#EXT-X-MAP"), strings.HasPrefix(upper, "#EXT-X-KEY"),
		strings.HasPrefix(upper, "#EXT-X-SESSION-KEY"), strings.HasPrefix(upper, "#EXT-X-PART:"),
		strings.HasPrefix(upper, "#EXT-X-PRELOAD-HINT"):
		proxyBase = rw.SegmentBase
	case strings.HasPrefix(upper, "#EXT-X-MEDIA:"), strings.HasPrefix(upper, "#EXT-X-I-FRAME-STREAM-INF"):
		proxyBase = rw.PlaylistBase
	default:
		return line
	}
	return uriAttr.ReplaceAllStringFunc(line, func(m string) string {
		ref := uriAttr.FindStringSubmatch(m)[1]
		abs := resolveRef(base, ref)
		if !isHTTP(abs) {
			return m
		}
		return `URI="` + proxyBase + url.QueryEscape(abs) + `"`
	})
}

// proxyFor returns the proxy URL for a URI line, or "" when the line is not a
// segment or playlist reference.
func (rw Rewriter) proxyFor(ref string, base *url.URL) string {
	var proxyBase string
	switch {
	case hasExt(ref, playlistExts):
		proxyBase = rw.PlaylistBase
	case hasExt(ref, segmentExts):
		proxyBase = rw.SegmentBase
	default:
		return ""
	}
	return proxyBase + url.QueryEscape(resolveRef(base, ref))
}

// resolveRef makes ref absolute: absolute URLs pass through, "//host/..." takes
// the base scheme, anything else is resolved against base.
func resolveRef(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	if strings.HasPrefix(ref, "//") {
		return base.Scheme + ":" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if u.IsAbs() {
		return ref
	}
	return base.ResolveReference(u).String()
}

// hasExt matches the extension of the path part of ref, ignoring query and fragment.
func hasExt(ref string, exts []string) bool {
	p := ref
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.ToLower(path.Ext(p))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// IsSegmentURL reports whether u names a media segment by extension.
func IsSegmentURL(u string) bool { return hasExt(u, segmentExts) }

func isHTTP(u string) bool {
	l := strings.ToLower(u)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
