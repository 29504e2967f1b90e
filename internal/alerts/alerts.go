package alerts

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ActionBuy is the fixed suggested action carried by every fired signal.
const ActionBuy = "BUY"

var (
	// ErrInvalidThreshold rejects non-positive drop thresholds.
	ErrInvalidThreshold = errors.New("alerts: threshold must be positive")
	// ErrInvalidSlippage rejects slippage overrides outside [0, 1).
	ErrInvalidSlippage = errors.New("alerts: slippage must be in [0, 1)")
	// ErrAlreadyRunning is returned by Run when the monitor loop is live.
	ErrAlreadyRunning = errors.New("alerts: monitor already running")
)

// Spec is one alert registration request.
type Spec struct {
	// Token is the symbol to watch; compared case-insensitively.
	Token string
	// Threshold is the drop fraction that fires the alert (0.001 = 0.1%).
	Threshold decimal.Decimal
	// Slippage optionally overrides the downstream trade slippage. The
	// monitor itself never reads it.
	Slippage *decimal.Decimal
	// OwnerID addresses the notification; opaque to the monitor.
	OwnerID string
}

// Alert is one stored watch. Baseline is set exactly once at registration
// and never mutated afterwards; triggered is written only by the sweep.
type Alert struct {
	Token     string
	Threshold decimal.Decimal
	Slippage  *decimal.Decimal
	OwnerID   string
	Baseline  decimal.Decimal
	CreatedAt time.Time

	triggered bool
}

// Triggered reports whether the alert is currently in the FIRED state.
func (a *Alert) Triggered() bool {
	return a.triggered
}

func (s Spec) validate() error {
	if s.Threshold.Sign() <= 0 {
		return ErrInvalidThreshold
	}
	if s.Slippage != nil {
		if s.Slippage.Sign() < 0 || s.Slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return ErrInvalidSlippage
		}
	}
	return nil
}
