package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gmx-trade-agent/internal/alerts"
	"gmx-trade-agent/internal/intent"
	"gmx-trade-agent/internal/quote"
	"gmx-trade-agent/internal/trade"
)

// Parse runs the intent parser over a sentence and optionally acts on the
// result: --watch registers an alert intent and starts the monitor, and
// --execute submits a trade intent to the executor.
func (a *App) Parse(ctx context.Context, opts ParseOptions) error {
	registry, err := a.newRegistry()
	if err != nil {
		return err
	}

	parser, err := a.newParser(registry)
	if err != nil {
		return err
	}

	parsed, err := parser.Parse(ctx, opts.Text)
	if err != nil {
		return err
	}

	if err := printIntent(parsed); err != nil {
		return err
	}

	switch parsed.Kind {
	case intent.KindAlert:
		if !opts.Watch {
			return nil
		}
		spec := alerts.Spec{
			Token:     parsed.Alert.Token,
			Threshold: parsed.Alert.Threshold,
			Slippage:  parsed.Alert.Slippage,
			OwnerID:   opts.OwnerID,
		}
		return a.Run(ctx, RunOptions{Alerts: []alerts.Spec{spec}})

	case intent.KindTrade:
		if !opts.Execute {
			return nil
		}
		return a.executeTrade(ctx, *parsed.Trade)

	default:
		return nil
	}
}

func (a *App) executeTrade(ctx context.Context, order intent.TradeIntent) error {
	executor, err := a.newExecutor()
	if err != nil {
		return err
	}

	calculator, registry, err := a.newCalculator()
	if err != nil {
		return err
	}

	tokenIn, err := registry.Lookup(order.TokenIn)
	if err != nil {
		return err
	}
	tokenOut, err := registry.Lookup(order.TokenOut)
	if err != nil {
		return err
	}

	slippage := a.defaultSlippage()
	if order.Slippage != nil {
		slippage = *order.Slippage
	}

	minOut, err := calculator.MinOut(ctx, order.TokenIn, order.TokenOut, order.AmountIn, slippage)
	if err != nil {
		if errors.Is(err, quote.ErrNonPositiveOutput) {
			return fmt.Errorf("refusing trade: %w", err)
		}
		return err
	}

	receipt, err := executor.Swap(ctx, trade.Order{
		TokenIn:  tokenIn,
		TokenOut: tokenOut,
		AmountIn: order.AmountIn,
		MinOut:   minOut,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "approve tx: %s\nswap tx: %s\n", receipt.ApproveTx.Hex(), receipt.SwapTx.Hex())
	return nil
}

func printIntent(parsed intent.Intent) error {
	view := map[string]any{"kind": parsed.Kind}
	switch parsed.Kind {
	case intent.KindTrade:
		view["token_in"] = parsed.Trade.TokenIn
		view["token_out"] = parsed.Trade.TokenOut
		view["amount_in"] = parsed.Trade.AmountIn.String()
		if parsed.Trade.Slippage != nil {
			view["slippage"] = parsed.Trade.Slippage.String()
		}
	case intent.KindAlert:
		view["token"] = parsed.Alert.Token
		view["threshold"] = parsed.Alert.Threshold.String()
		if parsed.Alert.Slippage != nil {
			view["slippage"] = parsed.Alert.Slippage.String()
		}
	}

	encoded, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(encoded))
	return nil
}
