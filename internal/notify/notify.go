package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Signal 封装一次触发的告警上下文。
type Signal struct {
	Token     string
	Price     decimal.Decimal
	Baseline  decimal.Decimal
	Drop      decimal.Decimal
	Threshold decimal.Decimal
	Action    string
	OwnerID   string
	At        time.Time
}

// Notifier delivers a fired signal to a channel. Delivery is best effort;
// the monitor logs failures and never retries.
type Notifier interface {
	Notify(ctx context.Context, signal Signal) error
}

// Multi fans a signal out to every configured notifier, collecting errors.
type Multi struct {
	notifiers []Notifier
}

// NewMulti aggregates notifiers. Nil entries are skipped.
func NewMulti(notifiers ...Notifier) *Multi {
	kept := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}
	return &Multi{notifiers: kept}
}

// Empty reports whether no delivery channel is configured.
func (m *Multi) Empty() bool {
	return len(m.notifiers) == 0
}

// Notify delivers to every channel and joins the failures.
func (m *Multi) Notify(ctx context.Context, signal Signal) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, signal); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func renderMessage(signal Signal) string {
	builder := strings.Builder{}
	builder.WriteString("[GMX Price Alert]\n")
	builder.WriteString(fmt.Sprintf("Token: %s\n", signal.Token))
	builder.WriteString(fmt.Sprintf("Price: %s USD\n", signal.Price.StringFixed(6)))
	builder.WriteString(fmt.Sprintf("Baseline: %s USD\n", signal.Baseline.StringFixed(6)))
	builder.WriteString(fmt.Sprintf("Drop: %s%% (threshold %s%%)\n",
		signal.Drop.Mul(decimal.NewFromInt(100)).StringFixed(3),
		signal.Threshold.Mul(decimal.NewFromInt(100)).StringFixed(3)))
	builder.WriteString(fmt.Sprintf("Action: %s\n", signal.Action))
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", signal.At.UTC().Format(time.RFC3339)))
	if signal.OwnerID != "" {
		builder.WriteString(fmt.Sprintf("Owner: %s\n", signal.OwnerID))
	}
	return builder.String()
}

var _ Notifier = (*Multi)(nil)
