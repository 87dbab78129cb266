// Package app wires the application together: configuration, database pool,
// migrations, the chat store, and the clients for the collaborating services.
// Commands call Setup once and get back everything the server needs.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fahadahaf/chat-ui/db"
	"github.com/fahadahaf/chat-ui/internal/agentrun"
	"github.com/fahadahaf/chat-ui/internal/auth"
	"github.com/fahadahaf/chat-ui/internal/config"
	"github.com/fahadahaf/chat-ui/internal/log"
	"github.com/fahadahaf/chat-ui/internal/ragsvc"
	"github.com/fahadahaf/chat-ui/internal/store"
)

// App holds the initialized application components.
type App struct {
	Config *config.Config
	Logger log.Logger
	Pool   *pgxpool.Pool
	Store  *store.Store
	Auth   *auth.Client
	Runner *agentrun.Client
	RAG    *ragsvc.Client
}

// Setup initializes all components: runs migrations, opens the connection
// pool, and constructs the service clients. The caller owns Close.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	pool, err := openPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	authClient, err := auth.New(cfg.AuthServiceURL, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating auth client: %w", err)
	}

	runner, err := agentrun.New(cfg.AgentRuntimeURL, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating agent runtime client: %w", err)
	}

	rag, err := ragsvc.New(cfg.RAGServiceURL, ragsvc.ProviderConfig{
		BaseURL: cfg.OllamaHost,
		Model:   cfg.OllamaModel,
		Region:  cfg.AmazonRegion,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating RAG client: %w", err)
	}

	return &App{
		Config: cfg,
		Logger: logger,
		Pool:   pool,
		Store:  store.NewFromPool(pool, logger),
		Auth:   authClient,
		Runner: runner,
		RAG:    rag,
	}, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// openPool runs migrations and creates a PostgreSQL connection pool with
// sensible defaults for connection management.
func openPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
