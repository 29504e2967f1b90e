package alerts

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gmx-trade-agent/internal/notify"
	"gmx-trade-agent/internal/pricing"
	"gmx-trade-agent/internal/scheduler"
	"gmx-trade-agent/internal/storage"
)

// Options wire optional collaborators into the monitor.
type Options struct {
	Notifier      notify.Notifier
	Signals       storage.SignalStore
	Registrations storage.RegistrationStore
	Locker        storage.AdvisoryLocker
	LockKey       int64
}

// Monitor owns the alert registry and drives the periodic sweep. Alerts live
// for the process lifetime; there is no removal or expiry.
type Monitor struct {
	source pricing.PriceSource
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	alerts  []*Alert
	running atomic.Bool
}

// NewMonitor constructs a monitor around a price source.
func NewMonitor(source pricing.PriceSource, opts Options, logger zerolog.Logger) *Monitor {
	return &Monitor{
		source: source,
		opts:   opts,
		logger: logger.With().Str("component", "alert_monitor").Logger(),
	}
}

// Register reads the current price for the token and, on success, stores a
// new armed alert with that price as its baseline. A failed read propagates
// to the caller and stores nothing. Duplicate registrations are allowed and
// tracked independently; callers wanting dedupe should key on (token, owner)
// before calling.
func (m *Monitor) Register(ctx context.Context, spec Spec) error {
	if err := spec.validate(); err != nil {
		return err
	}

	token := strings.ToUpper(strings.TrimSpace(spec.Token))
	baseline, err := m.source.GetPrice(ctx, token)
	if err != nil {
		return err
	}

	alert := &Alert{
		Token:     token,
		Threshold: spec.Threshold,
		Slippage:  spec.Slippage,
		OwnerID:   spec.OwnerID,
		Baseline:  baseline,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.alerts = append(m.alerts, alert)
	m.mu.Unlock()

	m.logger.Info().Str("token", token).
		Str("threshold", spec.Threshold.String()).
		Str("baseline_usd", baseline.String()).
		Str("owner", spec.OwnerID).
		Msg("alert registered")

	if m.opts.Registrations != nil {
		record := storage.RegistrationRecord{
			Token:     token,
			Threshold: spec.Threshold,
			Slippage:  spec.Slippage,
			OwnerID:   spec.OwnerID,
			Baseline:  baseline,
		}
		if _, err := m.opts.Registrations.InsertRegistration(ctx, record); err != nil {
			m.logger.Error().Err(err).Str("token", token).Msg("failed to persist registration record")
		}
	}

	return nil
}

// Len reports the number of stored alerts.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

// Sweep evaluates every stored alert once, in registration order. A failed
// price read skips that alert for this cycle only. The sweep never raises
// past its own boundary.
func (m *Monitor) Sweep(ctx context.Context) {
	unlock, proceed, err := m.acquireLock(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("advisory lock check failed; skipping sweep")
		return
	}
	if !proceed {
		m.logger.Debug().Msg("skip sweep because advisory lock held elsewhere")
		return
	}
	if unlock != nil {
		defer unlock()
	}

	for _, alert := range m.snapshot() {
		m.evaluate(ctx, alert)
	}
}

// evaluate applies one alert's state machine: ARMED→FIRED emits exactly one
// signal on the crossing, FIRED→ARMED re-arms silently.
func (m *Monitor) evaluate(ctx context.Context, alert *Alert) {
	price, err := m.source.GetPrice(ctx, alert.Token)
	if err != nil {
		m.logger.Warn().Err(err).Str("token", alert.Token).Msg("price read failed; alert skipped this sweep")
		return
	}

	drop := alert.Baseline.Sub(price).Div(alert.Baseline)

	switch {
	case drop.GreaterThanOrEqual(alert.Threshold) && !alert.triggered:
		m.emit(ctx, alert, price, drop)
		alert.triggered = true
	case drop.LessThan(alert.Threshold) && alert.triggered:
		alert.triggered = false
		m.logger.Debug().Str("token", alert.Token).Str("drop", drop.String()).Msg("alert re-armed")
	}
}

func (m *Monitor) emit(ctx context.Context, alert *Alert, price, drop decimal.Decimal) {
	signal := notify.Signal{
		Token:     alert.Token,
		Price:     price,
		Baseline:  alert.Baseline,
		Drop:      drop,
		Threshold: alert.Threshold,
		Action:    ActionBuy,
		OwnerID:   alert.OwnerID,
		At:        time.Now().UTC(),
	}

	m.logger.Info().Str("token", alert.Token).
		Str("price_usd", price.String()).
		Str("baseline_usd", alert.Baseline.String()).
		Str("drop", drop.String()).
		Msg("alert fired")

	if m.opts.Signals != nil {
		record := storage.SignalRecord{
			Token:        signal.Token,
			Price:        signal.Price,
			Baseline:     signal.Baseline,
			DropFraction: signal.Drop,
			Threshold:    signal.Threshold,
			Action:       signal.Action,
			OwnerID:      signal.OwnerID,
			EmittedAt:    signal.At,
		}
		if _, err := m.opts.Signals.InsertSignal(ctx, record); err != nil {
			m.logger.Error().Err(err).Str("token", alert.Token).Msg("failed to persist signal record")
		}
	}

	if m.opts.Notifier != nil {
		if err := m.opts.Notifier.Notify(ctx, signal); err != nil {
			m.logger.Error().Err(err).Str("token", alert.Token).Msg("failed to dispatch signal")
		}
	}
}

// Run drives the sweep on the scheduler until ctx is cancelled. Ticks are
// serialized by the scheduler, so sweeps never overlap. A second concurrent
// Run refuses rather than installing a duplicate loop.
func (m *Monitor) Run(ctx context.Context, sched *scheduler.Scheduler) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	return sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		m.Sweep(ctx)
		return nil
	})
}

// snapshot copies the alert slice so the sweep can iterate without holding
// the registry lock across network reads. Register only appends, so entries
// themselves are stable.
func (m *Monitor) snapshot() []*Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]*Alert, len(m.alerts))
	copy(copied, m.alerts)
	return copied
}

func (m *Monitor) acquireLock(ctx context.Context) (func(), bool, error) {
	if m.opts.LockKey == 0 || m.opts.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := m.opts.Locker.TryAdvisoryLock(ctx, m.opts.LockKey)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
