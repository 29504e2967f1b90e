package intent

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind discriminates parsed intents.
type Kind string

const (
	// KindTrade is a structured swap request.
	KindTrade Kind = "trade"
	// KindAlert is a price-drop watch request.
	KindAlert Kind = "alert"
)

var (
	// ErrUnparseable indicates the model reply carried no usable intent.
	ErrUnparseable = errors.New("intent: could not parse message")
)

// TradeIntent is a validated swap request.
type TradeIntent struct {
	TokenIn  string
	TokenOut string
	AmountIn decimal.Decimal
	Slippage *decimal.Decimal
}

// AlertIntent is a validated price-drop watch request.
type AlertIntent struct {
	Token     string
	Threshold decimal.Decimal
	Slippage  *decimal.Decimal
}

// Intent is the tagged union returned by a Parser. Exactly one of Trade or
// Alert is set, matching Kind.
type Intent struct {
	Kind  Kind
	Trade *TradeIntent
	Alert *AlertIntent
}

// Parser turns a natural-language sentence into a structured intent. The
// implementation is always an external language model behind this interface;
// the agent never parses sentences itself.
type Parser interface {
	Parse(ctx context.Context, text string) (Intent, error)
}

func (t TradeIntent) validate() error {
	if t.TokenIn == "" || t.TokenOut == "" {
		return fmt.Errorf("%w: trade needs token_in and token_out", ErrUnparseable)
	}
	if t.AmountIn.Sign() <= 0 {
		return fmt.Errorf("%w: trade amount must be positive", ErrUnparseable)
	}
	if err := validateSlippage(t.Slippage); err != nil {
		return err
	}
	return nil
}

func (a AlertIntent) validate() error {
	if a.Token == "" {
		return fmt.Errorf("%w: alert needs a token", ErrUnparseable)
	}
	if a.Threshold.Sign() <= 0 {
		return fmt.Errorf("%w: alert threshold must be positive", ErrUnparseable)
	}
	if err := validateSlippage(a.Slippage); err != nil {
		return err
	}
	return nil
}

func validateSlippage(s *decimal.Decimal) error {
	if s == nil {
		return nil
	}
	if s.Sign() < 0 || s.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: slippage must be in [0, 1)", ErrUnparseable)
	}
	return nil
}
