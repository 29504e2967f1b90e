package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertSignalSQL = `INSERT INTO signals (
        token,
        price_usd,
        baseline_usd,
        drop_fraction,
        threshold_fraction,
        action,
        owner_id,
        emitted_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id, created_at;`

	listRecentSignalsSQL = `SELECT
        id,
        token,
        price_usd,
        baseline_usd,
        drop_fraction,
        threshold_fraction,
        action,
        owner_id,
        emitted_at,
        created_at
    FROM signals
    ORDER BY emitted_at DESC
    LIMIT $1;`

	listSignalsBetweenSQL = `SELECT
        id,
        token,
        price_usd,
        baseline_usd,
        drop_fraction,
        threshold_fraction,
        action,
        owner_id,
        emitted_at,
        created_at
    FROM signals
    WHERE emitted_at >= $1
      AND emitted_at < $2
    ORDER BY emitted_at;`

	deleteSignalsBeforeSQL = `DELETE FROM signals WHERE emitted_at < $1;`

	countSignalsSQL = `SELECT COUNT(*) FROM signals;`

	insertRegistrationSQL = `INSERT INTO registrations (
        token,
        threshold_fraction,
        slippage_fraction,
        owner_id,
        baseline_usd
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id, created_at;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SignalStore defines operations for signal auditing.
type SignalStore interface {
	InsertSignal(ctx context.Context, signal SignalRecord) (SignalRecord, error)
	ListRecentSignals(ctx context.Context, limit int) ([]SignalRecord, error)
	ListSignalsBetween(ctx context.Context, from, to time.Time) ([]SignalRecord, error)
	DeleteSignalsBefore(ctx context.Context, olderThan time.Time) (int64, error)
	CountSignals(ctx context.Context) (int64, error)
}

// RegistrationStore defines operations for registration auditing.
type RegistrationStore interface {
	InsertRegistration(ctx context.Context, reg RegistrationRecord) (RegistrationRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to signals and registrations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// unlock is best effort; the lock dies with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertSignal persists a signal emission.
func (s *Store) InsertSignal(ctx context.Context, signal SignalRecord) (SignalRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return SignalRecord{}, err
	}

	row := pool.QueryRow(ctx, insertSignalSQL,
		signal.Token,
		signal.Price.String(),
		signal.Baseline.String(),
		signal.DropFraction.String(),
		signal.Threshold.String(),
		signal.Action,
		signal.OwnerID,
		signal.EmittedAt,
	)

	rec := signal
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return SignalRecord{}, fmt.Errorf("insert signal: %w", scanErr)
	}
	return rec, nil
}

// ListRecentSignals lists most recent signals.
func (s *Store) ListRecentSignals(ctx context.Context, limit int) ([]SignalRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSignalsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent signals: %w", queryErr)
	}
	defer rows.Close()

	return collectSignals(rows, limit)
}

// ListSignalsBetween lists signals within a time window.
func (s *Store) ListSignalsBetween(ctx context.Context, from, to time.Time) ([]SignalRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSignalsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list signals between: %w", queryErr)
	}
	defer rows.Close()

	return collectSignals(rows, 0)
}

// DeleteSignalsBefore deletes historical signals and reports how many went away.
func (s *Store) DeleteSignalsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteSignalsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete signals before: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// CountSignals counts stored signals.
func (s *Store) CountSignals(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSignalsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count signals: %w", scanErr)
	}
	return count, nil
}

// InsertRegistration persists an accepted alert registration.
func (s *Store) InsertRegistration(ctx context.Context, reg RegistrationRecord) (RegistrationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return RegistrationRecord{}, err
	}

	var slippage interface{}
	if reg.Slippage != nil {
		slippage = reg.Slippage.String()
	}

	row := pool.QueryRow(ctx, insertRegistrationSQL,
		reg.Token,
		reg.Threshold.String(),
		slippage,
		reg.OwnerID,
		reg.Baseline.String(),
	)

	rec := reg
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return RegistrationRecord{}, fmt.Errorf("insert registration: %w", scanErr)
	}
	return rec, nil
}

func collectSignals(rows pgx.Rows, sizeHint int) ([]SignalRecord, error) {
	signals := make([]SignalRecord, 0, sizeHint)
	for rows.Next() {
		rec, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return signals, nil
}

func scanSignal(rows pgx.Rows) (SignalRecord, error) {
	var (
		rec          SignalRecord
		priceStr     string
		baselineStr  string
		dropStr      string
		thresholdStr string
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.Token,
		&priceStr,
		&baselineStr,
		&dropStr,
		&thresholdStr,
		&rec.Action,
		&rec.OwnerID,
		&rec.EmittedAt,
		&rec.CreatedAt,
	); err != nil {
		return SignalRecord{}, err
	}

	var err error
	if rec.Price, err = decimal.NewFromString(priceStr); err != nil {
		return SignalRecord{}, fmt.Errorf("parse price: %w", err)
	}
	if rec.Baseline, err = decimal.NewFromString(baselineStr); err != nil {
		return SignalRecord{}, fmt.Errorf("parse baseline: %w", err)
	}
	if rec.DropFraction, err = decimal.NewFromString(dropStr); err != nil {
		return SignalRecord{}, fmt.Errorf("parse drop fraction: %w", err)
	}
	if rec.Threshold, err = decimal.NewFromString(thresholdStr); err != nil {
		return SignalRecord{}, fmt.Errorf("parse threshold fraction: %w", err)
	}

	return rec, nil
}
