package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"envwatch/internal/alerting"
	"envwatch/internal/api"
	"envwatch/internal/config"
	"envwatch/internal/ratelimit"
	"envwatch/internal/scheduler"
	"envwatch/internal/service"
	"envwatch/internal/storage"
	"envwatch/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newNotifier builds the configured alert channels. The returned closer is
// never nil.
func (a *App) newNotifier() (alerting.Notifier, func(), error) {
	closer := func() {}
	if !a.Config.Alerting.Enabled {
		return nil, closer, nil
	}

	var fan alerting.Fanout
	for _, name := range a.Config.Alerting.Channels {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "telegram":
			cfg := a.Config.Alerting.Telegram
			if !cfg.Enabled {
				continue
			}
			fan = append(fan, alerting.Channel{
				Name:     "telegram",
				Notifier: alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger),
			})
		case "amqp":
			cfg := a.Config.Alerting.AMQP
			if !cfg.Enabled {
				continue
			}
			pub, err := alerting.NewAMQPNotifier(cfg.URL, cfg.Exchange, cfg.RoutingKey, a.Logger)
			if err != nil {
				closer()
				return nil, nil, err
			}
			prev := closer
			closer = func() {
				if err := pub.Close(); err != nil {
					a.Logger.Warn().Err(err).Msg("close amqp publisher")
				}
				prev()
			}
			fan = append(fan, alerting.Channel{Name: "amqp", Notifier: pub})
		default:
			a.Logger.Warn().Str("channel", name).Msg("unknown alert channel ignored")
		}
	}

	if len(fan) == 0 {
		return nil, closer, nil
	}
	return fan, closer, nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// analysisStore opens PostgreSQL when configured and falls back to an
// in-process store otherwise.
func (a *App) analysisStore(ctx context.Context) (storage.AnalysisStore, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; analyses are kept in memory only")
		return storage.NewMemoryStore(), func() {}, nil
	}
	return store, closeStore, nil
}

func (a *App) requireStore(ctx context.Context, action string) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("database not configured; cannot %s", action)
	}
	return store, closeStore, nil
}

// Serve runs the HTTP API until SIGINT or SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.analysisStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, closeNotifier, err := a.newNotifier()
	if err != nil {
		return err
	}
	defer closeNotifier()

	svc := service.New(a.Config, store, notifier, a.Logger)

	opts := api.RouterOptions{
		RequestTimeout: a.Config.Server.RequestTimeout,
		MaxBodyBytes:   a.Config.Server.MaxBodyBytes,
	}
	if a.Config.RateLimit.Enabled {
		client, err := ratelimit.NewRedisClient(ctx, a.Config.Redis.Addr, a.Config.Redis.Password, a.Config.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		opts.RateLimit = ratelimit.Middleware(ratelimit.NewRedisCounter(client), ratelimit.Options{
			Limit:     a.Config.RateLimit.Limit,
			Window:    a.Config.RateLimit.Window,
			KeyPrefix: a.Config.RateLimit.KeyPrefix,
		}, a.Logger)
	}

	if a.Config.Retention.Enabled {
		sweeper := scheduler.New(scheduler.Options{
			Name:         "retention",
			Interval:     a.Config.Retention.Interval,
			AlignToStart: true,
			RunAtStart:   true,
		}, a.Logger)
		go func() {
			if err := sweeper.Run(ctx, svc.PurgeExpired); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("retention sweeper stopped")
			}
		}()
	}

	server := api.NewServer(a.Config.Server, api.NewRouter(svc, opts, a.Logger), a.Logger)

	a.Logger.Info().Str("version", version.String()).Str("addr", a.Config.Server.Addr).Msg("starting anomaly detection api")
	if err := server.Run(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("api terminated with error")
		return err
	}

	a.Logger.Info().Msg("anomaly detection api stopped")
	return nil
}

// Migrate creates the PostgreSQL schema.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx, "migrate")
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	a.Logger.Info().Msg("schema migrated")
	return nil
}

// AnalyzeOptions configure a one-off detection run.
type AnalyzeOptions struct {
	// Path is a JSON payload file, or "-" for stdin.
	Path                string
	WindowSize          int
	ThresholdMultiplier float64
	MinEventDuration    int
	Save                bool
}

// ExportOptions hold parameters for exporting a stored analysis.
type ExportOptions struct {
	ID        string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit     int
	Pollutant string
	StationID string
}
