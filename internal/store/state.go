package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soimon/notion-todoist/internal/snapshot"
)

const timeLayout = time.RFC3339Nano

// LastSyncInfo returns the boundary of the last completed pass, or the zero
// boundary when no pass has completed yet.
func (s *Store) LastSyncInfo(ctx context.Context) (snapshot.Boundary, error) {
	var token, at string
	err := s.db.QueryRowContext(ctx, `
		SELECT token, synced_at FROM last_sync WHERE id = 1
	`).Scan(&token, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Boundary{}, nil
	}
	if err != nil {
		return snapshot.Boundary{}, fmt.Errorf("read last sync: %w", err)
	}

	date, err := time.Parse(timeLayout, at)
	if err != nil {
		return snapshot.Boundary{}, fmt.Errorf("read last sync: parse %q: %w", at, err)
	}
	return snapshot.Boundary{Token: token, Date: date}, nil
}

// SetLastSyncInfo replaces the stored boundary.
func (s *Store) SetLastSyncInfo(ctx context.Context, token string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_sync (id, token, synced_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET token = excluded.token, synced_at = excluded.synced_at
	`, token, at.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("write last sync: %w", err)
	}
	return nil
}

// ResetLastSyncInfo forgets the boundary, so the next pass resolves without
// one.
func (s *Store) ResetLastSyncInfo(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM last_sync`); err != nil {
		return fmt.Errorf("reset last sync: %w", err)
	}
	return nil
}

// IsPaused reports whether passes are paused. Unset means not paused.
func (s *Store) IsPaused(ctx context.Context) (bool, error) {
	var paused bool
	err := s.db.QueryRowContext(ctx, `SELECT paused FROM pause WHERE id = 1`).Scan(&paused)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read pause flag: %w", err)
	}
	return paused, nil
}

// SetPaused sets the pause flag.
func (s *Store) SetPaused(ctx context.Context, paused bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pause (id, paused, set_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET paused = excluded.paused, set_at = excluded.set_at
	`, paused, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("write pause flag: %w", err)
	}
	return nil
}
