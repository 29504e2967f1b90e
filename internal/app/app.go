package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gmx-trade-agent/internal/alerts"
	"gmx-trade-agent/internal/config"
	"gmx-trade-agent/internal/intent"
	"gmx-trade-agent/internal/notify"
	"gmx-trade-agent/internal/pricing"
	"gmx-trade-agent/internal/quote"
	"gmx-trade-agent/internal/scheduler"
	"gmx-trade-agent/internal/storage"
	"gmx-trade-agent/internal/trade"
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

func (a *App) newRegistry() (*pricing.Registry, error) {
	specs := make([]pricing.TokenSpec, 0, len(a.Config.GMX.Tokens))
	for _, token := range a.Config.GMX.Tokens {
		specs = append(specs, pricing.TokenSpec{
			Symbol:   token.Symbol,
			Address:  token.Address,
			Decimals: token.Decimals,
			MinPrice: token.MinPrice,
			MaxPrice: token.MaxPrice,
		})
	}
	return pricing.NewRegistry(specs)
}

func (a *App) newOracle(registry *pricing.Registry) *pricing.VaultOracle {
	return pricing.NewVaultOracle(pricing.OracleOptions{
		RPCURL:       a.Config.Arbitrum.RPCURL,
		VaultAddress: a.Config.GMX.VaultAddress,
		Timeout:      a.Config.Arbitrum.RequestTimeout,
	}, registry, a.Logger)
}

func (a *App) newNotifier() notify.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}

	var notifiers []notify.Notifier
	for _, channel := range a.Config.Alerting.Channels {
		switch channel {
		case "discord":
			if a.Config.Alerting.Discord.Enabled {
				cfg := a.Config.Alerting.Discord
				notifiers = append(notifiers, notify.NewDiscordNotifier(cfg.WebhookURL, cfg.Username, 10*time.Second, a.Logger))
			}
		case "telegram":
			if a.Config.Alerting.Telegram.Enabled {
				cfg := a.Config.Alerting.Telegram
				notifiers = append(notifiers, notify.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
			}
		}
	}

	multi := notify.NewMulti(notifiers...)
	if multi.Empty() {
		return nil
	}
	return multi
}

func (a *App) newParser(registry *pricing.Registry) (intent.Parser, error) {
	cfg := a.Config.Intent
	return intent.NewChatParser(intent.ChatOptions{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Temperature: cfg.Temperature,
		Timeout:     cfg.RequestTimeout,
		Symbols:     registry.Symbols(),
	}, a.Logger)
}

func (a *App) newExecutor() (*trade.Executor, error) {
	if !a.Config.Trade.Enabled {
		return nil, errors.New("trade.enabled is false; refusing to build executor")
	}
	return trade.NewExecutor(trade.Options{
		RPCURL:        a.Config.Arbitrum.RPCURL,
		ChainID:       a.Config.Arbitrum.ChainID,
		RouterAddress: a.Config.GMX.RouterAddress,
		PrivateKey:    a.Config.Trade.PrivateKey,
		Receiver:      a.Config.Trade.Receiver,
		Timeout:       a.Config.Trade.RequestTimeout,
	}, a.Logger)
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

func (a *App) defaultSlippage() decimal.Decimal {
	return decimal.NewFromFloat(a.Config.Trade.DefaultSlippage)
}

// RunOptions hold parameters for the monitoring loop.
type RunOptions struct {
	Alerts []alerts.Spec
}

// Run executes the long-running alert monitor.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; signal auditing disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	registry, err := a.newRegistry()
	if err != nil {
		return err
	}
	oracle := a.newOracle(registry)

	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("no notification channel configured; signals will only be logged")
	}

	monitorOpts := alerts.Options{
		Notifier: notifier,
		LockKey:  a.Config.Monitor.AdvisoryLockKey,
	}
	if store != nil {
		monitorOpts.Signals = store
		monitorOpts.Registrations = store
		monitorOpts.Locker = store
	}

	monitor := alerts.NewMonitor(oracle, monitorOpts, a.Logger)

	for _, spec := range opts.Alerts {
		if err := monitor.Register(ctx, spec); err != nil {
			return err
		}
	}
	if monitor.Len() == 0 {
		a.Logger.Warn().Msg("no alerts registered at startup; monitor will sweep an empty registry")
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Monitor.Interval,
		AlignToStart: a.Config.Monitor.AlignToStart,
		StartupDelay: a.Config.Monitor.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Int("alerts", monitor.Len()).Dur("interval", a.Config.Monitor.Interval).Msg("starting alert monitor")
	err = monitor.Run(ctx, sched)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitor terminated with error")
		return err
	}

	a.Logger.Info().Msg("alert monitor stopped")
	return nil
}

// ExportOptions hold parameters for exporting signal history.
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

// QuoteOptions configure the quote command.
type QuoteOptions struct {
	TokenIn  string
	TokenOut string
	AmountIn decimal.Decimal
	Slippage *decimal.Decimal
}

// ParseOptions configure the parse command.
type ParseOptions struct {
	Text    string
	OwnerID string
	Execute bool
	Watch   bool
}

// PruneOptions configure the prune command.
type PruneOptions struct {
	OlderThan time.Duration
}

// newCalculator builds the output calculator over the vault oracle.
func (a *App) newCalculator() (*quote.Calculator, *pricing.Registry, error) {
	registry, err := a.newRegistry()
	if err != nil {
		return nil, nil, err
	}
	return quote.NewCalculator(a.newOracle(registry)), registry, nil
}
