// Package app provides the main application setup and dependency injection.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"streamgate/pkg/authbridge"
	"streamgate/pkg/config"
	"streamgate/pkg/fetch"
	"streamgate/pkg/gate"
	"streamgate/pkg/handlers"
	"streamgate/pkg/httpclient"
	"streamgate/pkg/logging"
	"streamgate/pkg/playlist"
	"streamgate/pkg/providers"
	"streamgate/pkg/resolver"
	"streamgate/pkg/server"
	"streamgate/pkg/services"
	"streamgate/pkg/session"
	"streamgate/pkg/token"
)

// App is the main application container.
type App struct {
	Cfg    *config.Config
	Log    *logging.Logger
	Server *server.Server

	bridge      *authbridge.Bridge
	memoryStore *token.MemoryStore
	redisStore  *token.RedisStore
}

// New creates and initializes the application.
func New() (*App, error) {
	cfg := config.Load()

	log := logging.New(cfg.LogLevel, cfg.LogJSON, nil)
	log.Info("initializing streamgate",
		"port", cfg.Port,
		"log_level", cfg.LogLevel,
		"relays", len(cfg.RelayTargets))

	a := &App{Cfg: cfg, Log: log}

	client := httpclient.New(cfg, log)

	store, err := a.buildTokenStore(cfg, log)
	if err != nil {
		return nil, err
	}
	tokens := token.NewService(store, cfg.TokenTTL, log)
	sessions := session.NewManager(cfg.SessionRotation)

	// Fallback fetch chain: direct first, then relays in priority order.
	direct := fetch.NewDirect(client, cfg.FetchTimeout, log)
	relays := make([]fetch.Fetcher, 0, len(cfg.RelayTargets))
	for _, target := range cfg.RelayTargets {
		var limiter *rate.Limiter
		if strings.Contains(strings.ToLower(target.Name), "paid") && cfg.PaidRelayRPS > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.PaidRelayRPS), cfg.PaidRelayRPS)
		}
		relays = append(relays, fetch.NewRelay(target, cfg.FetchTimeout, limiter, log))
	}
	chain := fetch.NewChain(direct, relays, log)
	if len(relays) == 0 {
		log.Warn("no relay backends configured, direct fetch failures will surface immediately")
	}

	registry, err := a.buildProviders(cfg, client, log)
	if err != nil {
		return nil, err
	}

	gateway := services.NewGateway(
		registry,
		chain,
		fetch.DefaultClassifier(),
		playlist.New(cfg.BaseURL),
		tokens,
		sessions,
		log,
	)

	srv := server.New(cfg, gate.New(cfg.AllowedOrigins, log), log)
	handlers.New(gateway, registry.Names(), cfg.TrustedProxies, log).RegisterRoutes(srv.Router())
	a.Server = srv

	return a, nil
}

// buildTokenStore picks the token backend. A configured Redis that cannot
// be reached is a startup failure; tokens issued on one instance must be
// resolvable on another.
func (a *App) buildTokenStore(cfg *config.Config, log *logging.Logger) (token.Store, error) {
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		rs, err := token.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connecting token store: %w", err)
		}
		log.Info("token store backed by redis")
		a.redisStore = rs
		return rs, nil
	}

	log.Warn("token store is in-memory, tokens do not survive restarts or scale-out")
	a.memoryStore = token.NewMemoryStore()
	return a.memoryStore, nil
}

// buildProviders registers the provider routes enabled by configuration.
func (a *App) buildProviders(cfg *config.Config, client *httpclient.Client, log *logging.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry()

	channelResolver, err := resolver.New(client, cfg.MirrorDomains, cfg.ServerKeyTTL, log)
	if err != nil {
		return nil, fmt.Errorf("building channel resolver: %w", err)
	}
	registry.Register(providers.NewTV(channelResolver, cfg.TVPlayerOrigin, log))

	if cfg.AuthModulePath != "" && len(cfg.VexServers) > 0 {
		timeURL := cfg.VexTimeURL
		if timeURL == "" {
			timeURL = cfg.VexServers[0]
		}
		a.bridge = authbridge.New(
			authbridge.NewWasmLoader(cfg.AuthModulePath, log),
			authbridge.NewHTTPTimeProbe(client, timeURL),
			log,
		)
		registry.Register(providers.NewVex(a.bridge, client, cfg.VexServers, log))
		log.Info("vex provider enabled", "servers", len(cfg.VexServers))
	}

	registry.Register(providers.NewGeneric("proxy"))
	return registry, nil
}

// Run starts the application.
func (a *App) Run() error {
	a.Log.Info("starting streamgate server", "port", a.Cfg.Port)
	return a.Server.Start()
}

// Shutdown releases application resources.
func (a *App) Shutdown() {
	a.Log.Info("shutting down application")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.bridge != nil {
		if err := a.bridge.Close(ctx); err != nil {
			a.Log.Error("closing auth bridge", "error", err)
		}
	}
	if a.memoryStore != nil {
		a.memoryStore.Close()
	}
	if a.redisStore != nil {
		if err := a.redisStore.Close(); err != nil {
			a.Log.Error("closing redis store", "error", err)
		}
	}
}
