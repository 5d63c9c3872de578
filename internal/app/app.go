package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"crypto-market-pulse/internal/alerting"
	"crypto-market-pulse/internal/collector"
	"crypto-market-pulse/internal/config"
	"crypto-market-pulse/internal/entropy"
	"crypto-market-pulse/internal/forecast"
	"crypto-market-pulse/internal/scheduler"
	"crypto-market-pulse/internal/service"
	"crypto-market-pulse/internal/storage"
	"crypto-market-pulse/internal/trend"
	"crypto-market-pulse/internal/version"
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

func (a *App) newCollector() *collector.Collector {
	client := collector.NewClient(collector.ClientOptions{
		BaseURL:    a.Config.Market.BaseURL,
		Timeout:    a.Config.Market.RequestTimeout,
		UserAgent:  a.Config.Market.UserAgent,
		RetryCount: a.Config.Market.RetryCount,
	}, a.Logger)

	return collector.New(client, a.Config.Market.CacheTTL, a.Logger)
}

func (a *App) newReporter(market collector.MarketData) *service.Reporter {
	return service.NewReporter(
		market,
		forecast.New(a.Logger),
		trend.NewAnalyzer(a.Logger),
		entropy.NewAnalyzer(a.Logger),
		a.Config.Analysis.HistoryDays,
		a.Config.Market.TopN,
		a.Config.Analysis.ForecastHorizons,
		a.Logger,
	)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
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

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	market := a.newCollector()
	notifier := a.newNotifier()

	var sampleStore storage.MetricSampleStore
	var alertStore storage.AlertStore
	if store != nil {
		sampleStore = store
		alertStore = store
	}

	svc := service.New(a.Config, sched, market, entropy.NewAnalyzer(a.Logger), sampleStore, alertStore, notifier, a.Logger)

	a.Logger.Info().Str("build", version.String()).Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	Days   int
	DryRun bool
}
