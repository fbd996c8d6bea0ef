package services

import (
	"encoding/base64"
	"testing"
)

func TestDecodeURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain url passes through",
			input: "https://origin.example/path/mono.m3u8",
			want:  "https://origin.example/path/mono.m3u8",
		},
		{
			name:  "literal percent sequences in a plain url survive",
			input: "https://cdn.example/seg.ts?token=ab%20cd%2Fef",
			want:  "https://cdn.example/seg.ts?token=ab%20cd%2Fef",
		},
		{
			name:  "double-encoded url is unwrapped once",
			input: "https%3A%2F%2Forigin.example%2Fpath%2Fmono.m3u8",
			want:  "https://origin.example/path/mono.m3u8",
		},
		{
			name:  "standard base64",
			input: base64.StdEncoding.EncodeToString([]byte("https://origin.example/a.m3u8")),
			want:  "https://origin.example/a.m3u8",
		},
		{
			name:  "url-safe base64 without padding",
			input: base64.RawURLEncoding.EncodeToString([]byte("http://origin.example/b.ts")),
			want:  "http://origin.example/b.ts",
		},
		{
			name:  "empty stays empty",
			input: "",
			want:  "",
		},
		{
			name:  "opaque value passes through",
			input: "not a url at all",
			want:  "not a url at all",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeURL(tt.input); got != tt.want {
				t.Errorf("DecodeURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
