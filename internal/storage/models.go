package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalRecord captures one emitted buy signal for auditing.
type SignalRecord struct {
	ID           int64
	Token        string
	Price        decimal.Decimal
	Baseline     decimal.Decimal
	DropFraction decimal.Decimal
	Threshold    decimal.Decimal
	Action       string
	OwnerID      string
	EmittedAt    time.Time
	CreatedAt    time.Time
}

// RegistrationRecord captures one accepted alert registration.
type RegistrationRecord struct {
	ID        int64
	Token     string
	Threshold decimal.Decimal
	Slippage  *decimal.Decimal
	OwnerID   string
	Baseline  decimal.Decimal
	CreatedAt time.Time
}
