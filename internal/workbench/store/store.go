package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alcoveio/alcove/internal/logging"
)

// ViewState is one persisted state blob, keyed by view type. Title is the
// last title the view carried so listings stay readable without parsing the
// blob.
type ViewState struct {
	ViewType  string
	Title     string
	State     json.RawMessage
	UpdatedAt time.Time
}

// Store reads and writes view states. It is safe for concurrent use; the
// underlying pool serializes writers.
type Store struct {
	db *sql.DB
}

// New wraps an open view-state database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save inserts or replaces the state for state.ViewType.
func (s *Store) Save(ctx context.Context, state ViewState) error {
	log := logging.FromContext(ctx)
	if state.ViewType == "" {
		return errors.New("view type cannot be empty")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	stateJSON := string(state.State)
	if stateJSON == "" {
		stateJSON = "null"
	}

	log.Debug().
		Str("view_type", state.ViewType).
		Int("state_bytes", len(stateJSON)).
		Msg("saving view state")

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO view_states (view_type, title, state_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(view_type) DO UPDATE SET
			title      = excluded.title,
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`,
		state.ViewType, state.Title, stateJSON, state.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save view state %q: %w", state.ViewType, err)
	}
	return nil
}

// Get returns the persisted state for viewType, or nil if none exists.
func (s *Store) Get(ctx context.Context, viewType string) (*ViewState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT view_type, title, state_json, updated_at
		FROM view_states
		WHERE view_type = ?`, viewType)

	state, err := scanViewState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get view state %q: %w", viewType, err)
	}
	return state, nil
}

// Delete removes the persisted state for viewType. Deleting an absent type is
// a no-op.
func (s *Store) Delete(ctx context.Context, viewType string) error {
	logging.FromContext(ctx).Debug().Str("view_type", viewType).Msg("deleting view state")

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM view_states WHERE view_type = ?`, viewType); err != nil {
		return fmt.Errorf("delete view state %q: %w", viewType, err)
	}
	return nil
}

// List returns all persisted states ordered by view type.
func (s *Store) List(ctx context.Context) ([]ViewState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT view_type, title, state_json, updated_at
		FROM view_states
		ORDER BY view_type`)
	if err != nil {
		return nil, fmt.Errorf("list view states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	states := make([]ViewState, 0)
	for rows.Next() {
		state, err := scanViewState(rows)
		if err != nil {
			return nil, fmt.Errorf("list view states: %w", err)
		}
		states = append(states, *state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list view states: %w", err)
	}
	return states, nil
}

// PurgeOlderThan deletes states not updated since cutoff and returns how many
// rows went away.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	log := logging.FromContext(ctx)

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM view_states WHERE updated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge view states: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge view states: %w", err)
	}

	if deleted > 0 {
		log.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("purged stale view states")
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanViewState(row rowScanner) (*ViewState, error) {
	var state ViewState
	var stateJSON string
	if err := row.Scan(&state.ViewType, &state.Title, &stateJSON, &state.UpdatedAt); err != nil {
		return nil, err
	}
	if stateJSON != "" && stateJSON != "null" {
		state.State = json.RawMessage(stateJSON)
	}
	return &state, nil
}
