package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pipewarden/internal/action"
	"github.com/sells-group/pipewarden/internal/anomaly"
	"github.com/sells-group/pipewarden/internal/decision"
	"github.com/sells-group/pipewarden/internal/history"
	"github.com/sells-group/pipewarden/internal/metrics"
	"github.com/sells-group/pipewarden/internal/model"
	"github.com/sells-group/pipewarden/internal/notify"
	"github.com/sells-group/pipewarden/internal/orchestrator"
	"github.com/sells-group/pipewarden/internal/schema"
	"github.com/sells-group/pipewarden/internal/warehouse"
	"github.com/sells-group/pipewarden/pkg/anthropic"
	"github.com/sells-group/pipewarden/pkg/fivetran"
	"github.com/sells-group/pipewarden/pkg/notion"
)

// watchdogEnv wires the full collaborator graph for the monitoring
// commands.
type watchdogEnv struct {
	Orchestrator *orchestrator.Orchestrator
	Guardian     *schema.Guardian
	Store        history.Store
	pool         *pgxpool.Pool
}

func (e *watchdogEnv) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close history store", zap.Error(err))
		}
	}
}

// initStore opens the configured history backend.
func initStore(ctx context.Context) (history.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return history.NewMemoryStore(), nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "pipewarden.db"
		}
		return history.NewSQLite(dsn)
	case "postgres":
		return history.NewPostgres(ctx, cfg.Store.DatabaseURL, &history.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initWarehousePool connects to the monitored warehouse.
func initWarehousePool(ctx context.Context) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Warehouse.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "parse warehouse database url")
	}
	if cfg.Warehouse.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Warehouse.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "connect to warehouse")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping warehouse")
	}
	return pool, nil
}

// initConnector builds the Fivetran control client.
func initConnector() fivetran.Client {
	return fivetran.New(cfg.Fivetran.APIKey, cfg.Fivetran.APISecret, cfg.Fivetran.ConnectorID,
		fivetran.WithBaseURL(cfg.Fivetran.BaseURL),
		fivetran.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Fivetran.TimeoutSecs) * time.Second,
		}),
	)
}

// initNotifier assembles the alert fanout from whatever channels are
// configured. The console channel is always present.
func initNotifier() notify.Notifier {
	channels := []notify.Notifier{notify.NewConsole()}

	if cfg.Notify.WebhookURL != "" {
		channels = append(channels, notify.NewWebhook(cfg.Notify.WebhookURL))
	}
	if cfg.Notify.NotionToken != "" && cfg.Notify.NotionReviewDB != "" {
		nc := notion.NewClient(cfg.Notify.NotionToken)
		channels = append(channels, notify.NewNotion(nc, cfg.Notify.NotionReviewDB))
	}
	return notify.NewFanout(channels...)
}

// initWatchdog wires the full orchestrator graph for monitor/serve modes.
func initWatchdog(ctx context.Context, mode string) (*watchdogEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	store, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}

	pool, err := initWarehousePool(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	wh := warehouse.New(pool, cfg.Warehouse)
	connector := initConnector()
	m := metrics.New(nil)

	guardian := schema.NewGuardian(wh, store, cfg.Warehouse)
	detective := anomaly.NewDetective(
		anthropic.NewClient(cfg.Anthropic.Key),
		wh,
		cfg.Anomaly,
		cfg.Anthropic,
		cfg.Warehouse.TimestampColumn,
	)

	engine := decision.NewEngine(history.NewMemoryLog[model.Decision]())
	executor := action.NewExecutor(connector, wh, initNotifier(),
		history.NewMemoryLog[model.ActionResult](), cfg.Warehouse,
		action.WithMetrics(m),
	)

	orch := orchestrator.New(guardian, detective, engine, executor, connector,
		history.NewMemoryLog[model.OrchestrationRun](),
		orchestrator.WithArchiver(store),
		orchestrator.WithMetrics(m),
	)

	return &watchdogEnv{
		Orchestrator: orch,
		Guardian:     guardian,
		Store:        store,
		pool:         pool,
	}, nil
}
