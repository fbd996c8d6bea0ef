package urlutil

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		urlStr  string
		baseURL string
		want    string
	}{
		{
			name:    "absolute URL unchanged",
			urlStr:  "http://full/seg1.ts",
			baseURL: "https://origin.example/path/mono.m3u8",
			want:    "http://full/seg1.ts",
		},
		{
			name:    "path-relative segment",
			urlStr:  "seg1.ts",
			baseURL: "https://origin.example/path/mono.m3u8",
			want:    "https://origin.example/path/seg1.ts",
		},
		{
			name:    "root-relative segment",
			urlStr:  "/abs/seg1.ts",
			baseURL: "https://origin.example/path/mono.m3u8",
			want:    "https://origin.example/abs/seg1.ts",
		},
		{
			name:    "parent directory reference",
			urlStr:  "../audio/seg1.ts",
			baseURL: "https://cdn.example.com/stream/video/mono.m3u8",
			want:    "https://cdn.example.com/stream/audio/seg1.ts",
		},
		{
			name:    "multiple parent references",
			urlStr:  "../../other/seg.ts",
			baseURL: "https://cdn.example.com/a/b/c/mono.m3u8",
			want:    "https://cdn.example.com/a/other/seg.ts",
		},
		{
			name:    "preserves special characters in base",
			urlStr:  "seg.ts",
			baseURL: "https://cdn.example.com/stream(1)/mono.m3u8",
			want:    "https://cdn.example.com/stream(1)/seg.ts",
		},
		{
			name:    "base with query string",
			urlStr:  "seg.ts",
			baseURL: "https://cdn.example.com/stream/mono.m3u8?token=abc",
			want:    "https://cdn.example.com/stream/seg.ts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.urlStr, tt.baseURL)
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBaseDirectory(t *testing.T) {
	tests := []struct {
		name   string
		urlStr string
		want   string
	}{
		{
			name:   "simple path",
			urlStr: "https://cdn.example.com/stream/mono.m3u8",
			want:   "https://cdn.example.com/stream/",
		},
		{
			name:   "with query string",
			urlStr: "https://cdn.example.com/stream/mono.m3u8?token=abc",
			want:   "https://cdn.example.com/stream/",
		},
		{
			name:   "root path",
			urlStr: "https://cdn.example.com/mono.m3u8",
			want:   "https://cdn.example.com/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BaseDirectory(tt.urlStr)
			if got != tt.want {
				t.Errorf("BaseDirectory() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSchemeHost(t *testing.T) {
	tests := []struct {
		name   string
		urlStr string
		want   string
	}{
		{
			name:   "https URL",
			urlStr: "https://cdn.example.com/stream/mono.m3u8",
			want:   "https://cdn.example.com",
		},
		{
			name:   "http URL with port",
			urlStr: "http://cdn.example.com:8080/stream/mono.m3u8",
			want:   "http://cdn.example.com:8080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SchemeHost(tt.urlStr)
			if got != tt.want {
				t.Errorf("SchemeHost() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHostOf(t *testing.T) {
	if got := HostOf("https://CDN.Example.com:8443/a"); got != "cdn.example.com" {
		t.Errorf("HostOf() = %q, want %q", got, "cdn.example.com")
	}
	if got := HostOf("://bad"); got != "" {
		t.Errorf("HostOf() on invalid URL = %q, want empty", got)
	}
}
