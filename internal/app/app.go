// Package app bootstraps the gateway: it loads configuration, wires the
// components together and runs the HTTP server until shutdown.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	ctrl "sigs.k8s.io/controller-runtime"

	"tregate/internal/authz"
	"tregate/internal/config"
	"tregate/internal/desktop"
	"tregate/internal/graph"
	"tregate/internal/idp"
	"tregate/internal/server"
	"tregate/internal/session"
	"tregate/internal/token"
	"tregate/pkg/logging"
)

// shutdownGrace is how long in-flight requests get to finish on shutdown.
const shutdownGrace = 15 * time.Second

// Config controls the bootstrap.
type Config struct {
	// ConfigPath is the configuration file to load.
	ConfigPath string
	// Debug enables verbose logging.
	Debug bool
	// Silent suppresses all log output. Used by tests.
	Silent bool
}

// Application is the bootstrapped gateway, ready to run.
type Application struct {
	cfg       config.Config
	allowlist *config.Allowlist
	srv       *server.Server
}

// NewApplication performs the bootstrap sequence: logging, configuration,
// the session store, the identity provider and cluster clients, and finally
// the HTTP server wiring.
func NewApplication(appCfg *Config) (*Application, error) {
	logLevel := logging.LevelInfo
	if appCfg.Debug {
		logLevel = logging.LevelDebug
	}
	var logOutput io.Writer = os.Stdout
	if appCfg.Silent {
		logOutput = io.Discard
	}
	logging.Init(logLevel, logOutput)

	cfg, err := config.LoadConfig(appCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	allowlist, err := config.NewAllowlist(cfg.Static)
	if err != nil {
		return nil, fmt.Errorf("invalid static allowlist: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Session.RedisAddr,
		Password: cfg.Session.RedisPassword,
		DB:       cfg.Session.RedisDB,
	})
	store := session.NewRedisStore(rdb, cfg.Session.TTL())

	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load Kubernetes configuration: %w", err)
	}
	graphClient, err := graph.NewClient(restConfig, cfg.Kubernetes.Namespace)
	if err != nil {
		return nil, err
	}

	validator, err := token.NewValidator(
		context.Background(),
		cfg.IdentityProvider.JWKSURL(),
		cfg.IdentityProvider.Issuer(),
		cfg.IdentityProvider.ClientID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up token validator: %w", err)
	}

	idpClient := idp.NewClient(cfg.IdentityProvider)

	srv := server.New(server.Deps{
		Config:     cfg,
		Allowlist:  allowlist,
		Validator:  validator,
		Lifecycle:  token.NewLifecycle(idpClient, store),
		Authorizer: authz.New(graphClient),
		Graph:      graphClient,
		Guard:      desktop.NewGuard(graphClient, cfg.Kubernetes.DesktopNamespace),
		IdP:        idpClient,
		Store:      store,
		Registry:   session.NewRegistry(),
	})

	return &Application{
		cfg:       cfg,
		allowlist: allowlist,
		srv:       srv,
	}, nil
}

// Run serves until the context is cancelled, then drains and stops.
func (a *Application) Run(ctx context.Context) error {
	if err := a.allowlist.Watch(); err != nil {
		logging.Warn("Bootstrap", "Static allowlist not watched: %v", err)
	}
	defer a.allowlist.Stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		logging.Info("Bootstrap", "Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return a.srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
