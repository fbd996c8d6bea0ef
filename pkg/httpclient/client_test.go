package httpclient

import (
	"net/url"
	"testing"
	"time"

	"streamgate/pkg/config"
	"streamgate/pkg/logging"
)

func TestParseHeaderParams(t *testing.T) {
	tests := []struct {
		name     string
		query    url.Values
		expected map[string]string
	}{
		{
			name:     "empty query",
			query:    url.Values{},
			expected: map[string]string{},
		},
		{
			name: "simple header",
			query: url.Values{
				"h_Referer": []string{"https://player.example.com"},
			},
			expected: map[string]string{
				"Referer": "https://player.example.com",
			},
		},
		{
			name: "underscore to hyphen conversion",
			query: url.Values{
				"h_User_Agent": []string{"Mozilla/5.0"},
			},
			expected: map[string]string{
				"User-Agent": "Mozilla/5.0",
			},
		},
		{
			name: "multiple headers",
			query: url.Values{
				"h_Referer":    []string{"https://player.example.com"},
				"h_User_Agent": []string{"Mozilla/5.0"},
				"h_Origin":     []string{"https://player.example.com"},
			},
			expected: map[string]string{
				"Referer":    "https://player.example.com",
				"User-Agent": "Mozilla/5.0",
				"Origin":     "https://player.example.com",
			},
		},
		{
			name: "ignores non-header params",
			query: url.Values{
				"url":       []string{"https://origin.example/mono.m3u8"},
				"h_Referer": []string{"https://player.example.com"},
				"channel":   []string{"325"},
			},
			expected: map[string]string{
				"Referer": "https://player.example.com",
			},
		},
		{
			name: "only first value used",
			query: url.Values{
				"h_Multi": []string{"first", "second"},
			},
			expected: map[string]string{
				"Multi": "first",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseHeaderParams(tt.query)

			if len(result) != len(tt.expected) {
				t.Errorf("got %d headers, want %d", len(result), len(tt.expected))
			}

			for key, expectedValue := range tt.expected {
				if result[key] != expectedValue {
					t.Errorf("header %q = %q, want %q", key, result[key], expectedValue)
				}
			}
		})
	}
}

func TestGetClientForURL(t *testing.T) {
	log := logging.New("error", false, nil)

	tests := []struct {
		name          string
		cfg           *config.Config
		targetURL     string
		expectDefault bool
	}{
		{
			name: "global proxy when no routes match",
			cfg: &config.Config{
				FetchTimeout:  15 * time.Second,
				GlobalProxies: []string{"socks5://proxy.example.com:1080"},
			},
			targetURL:     "https://cdn.example.com/mono.m3u8",
			expectDefault: false,
		},
		{
			name: "transport route takes precedence over global proxy",
			cfg: &config.Config{
				FetchTimeout:  15 * time.Second,
				GlobalProxies: []string{"socks5://global.example.com:1080"},
				TransportRoutes: []config.TransportRoute{
					{URLPattern: "cdn.specific.com", Proxy: "socks5://specific.example.com:1080"},
				},
			},
			targetURL:     "https://cdn.specific.com/mono.m3u8",
			expectDefault: false,
		},
		{
			name: "direct route bypasses global proxy",
			cfg: &config.Config{
				FetchTimeout:  15 * time.Second,
				GlobalProxies: []string{"socks5://global.example.com:1080"},
				TransportRoutes: []config.TransportRoute{
					{URLPattern: "direct-cdn.com", Direct: true},
				},
			},
			targetURL:     "https://direct-cdn.com/mono.m3u8",
			expectDefault: true,
		},
		{
			name: "default client when nothing configured",
			cfg: &config.Config{
				FetchTimeout: 15 * time.Second,
			},
			targetURL:     "https://cdn.example.com/mono.m3u8",
			expectDefault: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(tt.cfg, log)
			httpClient := client.getClientForURL(tt.targetURL)

			isDefault := httpClient == client.defaultClient
			if isDefault != tt.expectDefault {
				t.Errorf("default client = %v, want %v", isDefault, tt.expectDefault)
			}
		})
	}
}

func TestNeedsUTLS(t *testing.T) {
	client := New(&config.Config{FetchTimeout: 15 * time.Second}, logging.New("error", false, nil))

	if !client.needsUTLS("https://top1.newkso.ru/top1/cdn/premium325/mono.m3u8") {
		t.Error("newkso.ru should use utls client")
	}
	if client.needsUTLS("https://plain.example.com/mono.m3u8") {
		t.Error("plain domain should not use utls client")
	}
}
