package extractors

import "testing"

func TestResolveUtkarshLeaf(t *testing.T) {
	tests := []struct {
		name string
		leaf utkLeaf
		want string
	}{
		{
			"720p bitrate wins",
			utkLeaf{BitrateURLs: []struct {
				Title string `json:"title"`
				Name  string `json:"name"`
				URL   string `json:"url"`
				Link  string `json:"link"`
			}{
				{Title: "720p", URL: "https://cdn.example.com/v/720.m3u8"},
				{Title: "480p", URL: "https://cdn.example.com/v/480.m3u8"},
			}},
			"https://cdn.example.com/v/720.m3u8",
		},
		{
			"named rendition rebuilds plain mp4",
			utkLeaf{BitrateURLs: []struct {
				Title string `json:"title"`
				Name  string `json:"name"`
				URL   string `json:"url"`
				Link  string `json:"link"`
			}{
				{Name: "720x1280.mp4", Link: "https://cdn.example.com/enc/v123/720x1280"},
			}},
			"https://cdn.example.com/plain/v123/720x1280.mp4",
		},
		{
			"file url fallback",
			utkLeaf{FileURL: "https://cdn.example.com/files/lecture.mp4"},
			"https://cdn.example.com/files/lecture.mp4",
		},
		{
			"ws links are dropped",
			utkLeaf{FileURL: "https://cdn.example.com/live/stream.ws"},
			"",
		},
		{
			"stub id rebuilds s3 location",
			utkLeaf{FileURL: "abc123_0"},
			"https://apps-s3-jw-prod.utkarshapp.com/admin_v1/file_library/videos/enc_plain_mp4/abc123/plain/720x1280.mp4",
		},
		{
			"double stub id rebuilds s3 location",
			utkLeaf{FileURL: "abc123_0_0"},
			"https://apps-s3-jw-prod.utkarshapp.com/admin_v1/file_library/videos/enc_plain_mp4/abc123/plain/720x1280.mp4",
		},
		{
			"bare id becomes youtube link",
			utkLeaf{FileURL: "dQw4w9WgXcQ"},
			"https://youtu.be/dQw4w9WgXcQ",
		},
		{
			"empty leaf",
			utkLeaf{},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveUtkarshLeaf(tt.leaf); got != tt.want {
				t.Errorf("resolveUtkarshLeaf() = %q, want %q", got, tt.want)
			}
		})
	}
}
