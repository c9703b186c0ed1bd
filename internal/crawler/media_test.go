package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsImageURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://static.example.net/assets/public/a.jpg", true},
		{"https://static.example.net/assets/public/a.jpg?ts=1", true},
		{"https://static.example.net/video/a.m3u8", false},
		{"https://static.example.net/a.MP4", false},
		{"https://static.example.net/page.html", false},
		{"https://static.example.net/data.json?x=1", false},
		{"data:image/gif;base64,R0lGOD", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, IsImageURL(tt.url))
		})
	}
}

func TestFixMediaURL(t *testing.T) {
	host := "https://static.example.net/"
	assert.Equal(t, "https://cdn.test/a.jpg", FixMediaURL("//cdn.test/a.jpg", host))
	assert.Equal(t, "https://static.example.net/2025/a.jpg", FixMediaURL("/2025/a.jpg", host))
	assert.Equal(t, "https://static.example.net/assets/a.jpg", FixMediaURL("assets/a.jpg", host))
	assert.Equal(t, "https://x.test/a.jpg", FixMediaURL("https://x.test/a.jpg", host))
}

func TestSelectMedia(t *testing.T) {
	host := "https://static.example.net"
	media := func(name, u, delivery string) map[string]any {
		m := map[string]any{"url": u, "extraInfo": map[string]any{"originalName": name}}
		if delivery != "" {
			m["extraInfo"].(map[string]any)["deliveryUrl"] = delivery
		}
		return m
	}

	tests := []struct {
		name     string
		medias   []any
		fallback string
		want     MediaChoice
	}{
		{
			name:   "s1 preferred with delivery url",
			medias: []any{media("p1", "/p1.jpg", ""), media("s1", "/s1.jpg", "//cdn.test/s1.jpg")},
			want:   MediaChoice{URL: "https://cdn.test/s1.jpg"},
		},
		{
			name:   "first media when no s1",
			medias: []any{media("p1", "/p1.jpg", ""), media("p2", "/p2.jpg", "")},
			want:   MediaChoice{URL: "https://static.example.net/p1.jpg"},
		},
		{
			name:   "explicit video type",
			medias: []any{map[string]any{"url": "/clip", "type": "VIDEO"}},
			want:   MediaChoice{URL: "https://static.example.net/clip", Skipped: true},
		},
		{
			name:     "fallback color image",
			fallback: "/color.jpg",
			want:     MediaChoice{URL: "https://static.example.net/color.jpg"},
		},
		{
			name:     "data url placeholder ignored",
			medias:   []any{media("s1", "data:image/png;base64,AAA", "")},
			fallback: "data:image/png;base64,BBB",
			want:     MediaChoice{},
		},
		{
			name: "no media at all",
			want: MediaChoice{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectMedia(tt.medias, tt.fallback, host))
		})
	}
}
