package app

import (
	"context"
	"errors"
	"time"
)

// Prune deletes audit signals older than the configured window.
func (a *App) Prune(ctx context.Context, opts PruneOptions) error {
	if opts.OlderThan <= 0 {
		return errors.New("--older-than must be positive")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; nothing to prune")
	}
	if closeStore != nil {
		defer closeStore()
	}

	cutoff := time.Now().UTC().Add(-opts.OlderThan)
	deleted, err := store.DeleteSignalsBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	remaining, err := store.CountSignals(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().Int64("deleted", deleted).Int64("remaining", remaining).Time("cutoff", cutoff).Msg("prune complete")
	return nil
}
