package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"gmx-trade-agent/internal/alerts"
	"gmx-trade-agent/internal/notify"
)

// SimulateSignal 通过给定的价格/基准价模拟一次告警投递。
func (a *App) SimulateSignal(ctx context.Context, token string, price, baseline decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	if baseline.Sign() <= 0 {
		return errors.New("baseline must be positive")
	}
	drop := baseline.Sub(price).Div(baseline)

	signal := notify.Signal{
		Token:    token,
		Price:    price,
		Baseline: baseline,
		Drop:     drop,
		Action:   alerts.ActionBuy,
		OwnerID:  "simulated",
		At:       time.Now().UTC(),
	}

	return notifier.Notify(ctx, signal)
}
