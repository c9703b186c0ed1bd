package crawler

import (
	"strings"
)

var videoIndicators = []string{".m3u8", ".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm", ".m4v", "/video"}

var nonImageExtensions = []string{".html", ".htm", ".json", ".xml", ".txt", ".css", ".js"}

// MediaChoice is the primary media of a record.
type MediaChoice struct {
	URL     string
	Skipped bool // best media is a video or another non-image resource
}

// IsVideoURL reports whether u points at a video resource.
func IsVideoURL(u string) bool {
	l := strings.ToLower(u)
	for _, ind := range videoIndicators {
		if strings.Contains(l, ind) {
			return true
		}
	}
	return false
}

// IsImageURL reports whether u may be fed to the image encoder.
func IsImageURL(u string) bool {
	if u == "" || strings.HasPrefix(u, "data:") || IsVideoURL(u) {
		return false
	}
	l := strings.ToLower(u)
	if i := strings.IndexAny(l, "?#"); i >= 0 {
		l = l[:i]
	}
	for _, ext := range nonImageExtensions {
		if strings.HasSuffix(l, ext) {
			return false
		}
	}
	return true
}

// FixMediaURL makes provider-relative media URLs absolute.
func FixMediaURL(u, staticHost string) string {
	u = strings.TrimSpace(u)
	staticHost = strings.TrimRight(staticHost, "/")
	switch {
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	case staticHost != "" && strings.HasPrefix(u, "/"):
		return staticHost + u
	case staticHost != "" && strings.HasPrefix(u, "assets/"):
		return staticHost + "/" + u
	}
	return u
}

// SelectMedia picks the primary media from the flattened media list. The
// product-only shot ("s1") is preferred, then the first entry. fallback is the
// color image used when no media entry carries a URL.
func SelectMedia(medias []any, fallback, staticHost string) MediaChoice {
	var first, preferred map[string]any
	for _, m := range medias {
		media, ok := m.(map[string]any)
		if !ok || mediaURL(media) == "" {
			continue
		}
		if first == nil {
			first = media
		}
		if s, _ := AsString(lookup(media, "extraInfo", "originalName")); s == "s1" {
			preferred = media
			break
		}
	}
	if preferred == nil {
		preferred = first
	}

	if preferred != nil {
		u := FixMediaURL(mediaURL(preferred), staticHost)
		if isVideoMedia(preferred) || !IsImageURL(u) {
			return MediaChoice{URL: u, Skipped: true}
		}
		return MediaChoice{URL: u}
	}

	if fallback == "" || strings.HasPrefix(fallback, "data:") {
		return MediaChoice{}
	}
	u := FixMediaURL(fallback, staticHost)
	if !IsImageURL(u) {
		return MediaChoice{URL: u, Skipped: true}
	}
	return MediaChoice{URL: u}
}

func mediaURL(media map[string]any) string {
	for _, path := range [][]string{{"extraInfo", "deliveryUrl"}, {"url"}} {
		if s, ok := AsString(lookup(media, path...)); ok && s != "" && !strings.HasPrefix(s, "data:") {
			return s
		}
	}
	return ""
}

func isVideoMedia(media map[string]any) bool {
	for _, path := range [][]string{{"type"}, {"mediaType"}, {"extraInfo", "mediaType"}} {
		if s, ok := AsString(lookup(media, path...)); ok && strings.Contains(strings.ToLower(s), "video") {
			return true
		}
	}
	return IsVideoURL(mediaURL(media))
}

func lookup(doc any, path ...string) any {
	cur := doc
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}
