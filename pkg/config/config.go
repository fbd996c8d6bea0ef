// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"streamgate/pkg/types"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Access control
	AllowedOrigins []string

	// TrustedProxies lists peers (IPs or CIDRs) whose X-Forwarded-For is
	// believed when resolving the client address for token binding.
	TrustedProxies []string

	// Fallback fetch chain
	RelayTargets []types.ProxyTarget
	FetchTimeout time.Duration
	PaidRelayRPS int

	// Outbound transport
	GlobalProxies   []string
	TransportRoutes []TransportRoute

	// Token store
	RedisURL string
	TokenTTL time.Duration

	// Server/key resolver
	ServerKeyTTL  time.Duration
	MirrorDomains []string

	// Sticky sessions
	SessionRotation time.Duration

	// Provider: tv
	TVPlayerOrigin string

	// Provider: vex
	VexServers []string
	VexTimeURL string

	// Foreign auth bridge
	AuthModulePath string

	// Logging
	LogLevel string
	LogJSON  bool
}

// TransportRoute defines URL-specific proxy routing for direct fetches.
type TransportRoute struct {
	URLPattern string
	Proxy      string
	DisableSSL bool
	Direct     bool // If true, bypass global proxy and connect directly
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	port := getEnvInt("PORT", 8888)
	cfg := &Config{
		Port:            port,
		BaseURL:         getEnvString("BASE_URL", fmt.Sprintf("http://localhost:%d", port)),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		AllowedOrigins:  getEnvStringSlice("ALLOWED_ORIGINS", nil),
		TrustedProxies:  getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1", "::1"}),
		FetchTimeout:    getEnvDuration("FETCH_TIMEOUT", 15*time.Second),
		PaidRelayRPS:    getEnvInt("PAID_RELAY_RPS", 5),
		GlobalProxies:   getEnvStringSlice("GLOBAL_PROXIES", nil),
		RedisURL:        getEnvString("REDIS_URL", ""),
		TokenTTL:        getEnvDuration("TOKEN_TTL", 60*time.Second),
		ServerKeyTTL:    getEnvDuration("SERVER_KEY_TTL", 30*time.Minute),
		MirrorDomains:   getEnvStringSlice("MIRROR_DOMAINS", nil),
		SessionRotation: getEnvDuration("SESSION_ROTATION", 10*time.Minute),
		TVPlayerOrigin:  getEnvString("TV_PLAYER_ORIGIN", "https://epicplayplay.cfd"),
		VexServers:      getEnvStringSlice("VEX_SERVERS", nil),
		VexTimeURL:      getEnvString("VEX_TIME_URL", ""),
		AuthModulePath:  getEnvString("AUTH_MODULE_PATH", ""),
		LogLevel:        getEnvString("LOG_LEVEL", "info"),
		LogJSON:         getEnvBool("LOG_JSON", false),
	}

	cfg.RelayTargets = parseRelayTargets(os.Getenv("RELAY_TARGETS"))
	cfg.TransportRoutes = parseTransportRoutes(os.Getenv("TRANSPORT_ROUTES"))

	// Legacy single proxy support
	if globalProxy := os.Getenv("GLOBAL_PROXY"); globalProxy != "" && len(cfg.GlobalProxies) == 0 {
		cfg.GlobalProxies = []string{globalProxy}
	}

	return cfg
}

// parseRelayTargets parses the RELAY_TARGETS env var into a priority-ordered
// relay list.
// Format: {NAME=residential, URL=https://relay1.example, SECRET=s1, PRIORITY=1}, {NAME=paid, ...}
func parseRelayTargets(s string) []types.ProxyTarget {
	var targets []types.ProxyTarget
	for _, fields := range splitBraceGroups(s) {
		target := types.ProxyTarget{}
		for key, value := range fields {
			switch key {
			case "NAME":
				target.Name = value
			case "URL":
				target.BaseURL = value
			case "SECRET":
				target.AuthSecret = value
			case "PRIORITY":
				if p, err := strconv.Atoi(value); err == nil {
					target.Priority = p
				}
			}
		}
		if target.Name != "" && target.BaseURL != "" {
			targets = append(targets, target)
		}
	}

	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].Priority < targets[j].Priority
	})
	return targets
}

// parseTransportRoutes parses the TRANSPORT_ROUTES env var.
// Format: {URL=pattern, PROXY=url, DISABLE_SSL=true}, {URL=pattern2}
func parseTransportRoutes(s string) []TransportRoute {
	var routes []TransportRoute
	for _, fields := range splitBraceGroups(s) {
		route := TransportRoute{}
		for key, value := range fields {
			switch key {
			case "URL":
				route.URLPattern = value
			case "PROXY":
				route.Proxy = value
			case "DISABLE_SSL":
				route.DisableSSL = strings.ToLower(value) == "true"
			case "DIRECT":
				route.Direct = strings.ToLower(value) == "true"
			}
		}
		if route.URLPattern != "" {
			routes = append(routes, route)
		}
	}
	return routes
}

// splitBraceGroups parses the shared "{K=V, K=V}, {K=V}" env var grammar
// into one key/value map per group. Keys are upper-cased.
func splitBraceGroups(s string) []map[string]string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var groups []map[string]string
	parts := strings.Split(s, "}, {")
	for _, part := range parts {
		part = strings.Trim(part, "{} ")
		if part == "" {
			continue
		}

		fields := make(map[string]string)
		for _, field := range strings.Split(part, ", ") {
			kv := strings.SplitN(field, "=", 2)
			if len(kv) != 2 {
				continue
			}
			fields[strings.ToUpper(strings.TrimSpace(kv[0]))] = strings.TrimSpace(kv[1])
		}
		if len(fields) > 0 {
			groups = append(groups, fields)
		}
	}
	return groups
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return strings.ToLower(val) == "true" || val == "1"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		// Try parsing as seconds first
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		// Try parsing as duration string
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultVal
}
