package config

import "testing"

func TestParseRelayTargets(t *testing.T) {
	in := "{NAME=datacenter, URL=https://dc.relay.example, SECRET=s2, PRIORITY=2}, " +
		"{NAME=residential, URL=https://res.relay.example, SECRET=s1, PRIORITY=1}, " +
		"{NAME=paid, URL=https://api.paid.example, SECRET=s3, PRIORITY=3}"

	targets := parseRelayTargets(in)
	if len(targets) != 3 {
		t.Fatalf("expected 3 targets, got %d", len(targets))
	}

	// Sorted by priority regardless of declaration order.
	wantOrder := []string{"residential", "datacenter", "paid"}
	for i, want := range wantOrder {
		if targets[i].Name != want {
			t.Errorf("targets[%d].Name = %q, want %q", i, targets[i].Name, want)
		}
	}

	if targets[0].BaseURL != "https://res.relay.example" {
		t.Errorf("BaseURL = %q", targets[0].BaseURL)
	}
	if targets[0].AuthSecret != "s1" {
		t.Errorf("AuthSecret = %q", targets[0].AuthSecret)
	}
}

func TestParseRelayTargetsIncomplete(t *testing.T) {
	// Groups missing NAME or URL are dropped, not half-built.
	targets := parseRelayTargets("{NAME=only-name}, {URL=https://only.url}")
	if len(targets) != 0 {
		t.Fatalf("expected 0 targets, got %d", len(targets))
	}

	if got := parseRelayTargets(""); got != nil {
		t.Fatalf("empty input should yield nil, got %v", got)
	}
}

func TestParseTransportRoutes(t *testing.T) {
	routes := parseTransportRoutes("{URL=newkso.ru, DIRECT=true}, {URL=cdn.example, PROXY=socks5://127.0.0.1:1080, DISABLE_SSL=true}")
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
	if !routes[0].Direct || routes[0].URLPattern != "newkso.ru" {
		t.Errorf("routes[0] = %+v", routes[0])
	}
	if routes[1].Proxy != "socks5://127.0.0.1:1080" || !routes[1].DisableSSL {
		t.Errorf("routes[1] = %+v", routes[1])
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port == 0 {
		t.Error("Port should default to a non-zero value")
	}
	if cfg.TokenTTL.Seconds() != 60 {
		t.Errorf("TokenTTL default = %v, want 60s", cfg.TokenTTL)
	}
	if cfg.ServerKeyTTL.Minutes() != 30 {
		t.Errorf("ServerKeyTTL default = %v, want 30m", cfg.ServerKeyTTL)
	}
	if cfg.SessionRotation.Minutes() != 10 {
		t.Errorf("SessionRotation default = %v, want 10m", cfg.SessionRotation)
	}
	if len(cfg.TrustedProxies) != 2 {
		t.Errorf("TrustedProxies default = %v, want loopback addresses", cfg.TrustedProxies)
	}
}
