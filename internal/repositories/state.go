package repositories

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/sqlite"
)

// StateRepository stores survey key/value records scoped by browser profile.
type StateRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func NewStateRepository(db *sqlite.Database, logger *slog.Logger) *StateRepository {
	return &StateRepository{
		db:     db,
		logger: logger.With("source", "StateRepository"),
	}
}

func (r *StateRepository) Get(ctx context.Context, profileID, key string) (string, bool, error) {
	var value string
	stmt := `SELECT value FROM survey_state WHERE profile_id = ? AND key = ?`
	err := r.db.ReadOnly.QueryRowContext(ctx, stmt, profileID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "query state", slog.String("key", key))
	}
	return value, true, nil
}

func (r *StateRepository) Set(ctx context.Context, profileID, key, value string) error {
	stmt := `INSERT INTO survey_state (profile_id, key, value) VALUES (?, ?, ?)
ON CONFLICT (profile_id, key) DO UPDATE SET value = excluded.value,
                                            updated = STRFTIME('%Y-%m-%dT%H:%M:%fZ')`
	if _, err := r.db.ReadWrite.ExecContext(ctx, stmt, profileID, key, value); err != nil {
		return errors.Wrap(err, "upsert state", slog.String("key", key))
	}
	return nil
}

// ForProfile returns the key/value view of one browser profile.
func (r *StateRepository) ForProfile(profileID string) *ProfileState {
	return &ProfileState{repo: r, profileID: profileID}
}

// ProfileState is the persistence of one browser profile.
type ProfileState struct {
	repo      *StateRepository
	profileID string
}

func (p *ProfileState) Get(ctx context.Context, key string) (string, bool, error) {
	return p.repo.Get(ctx, p.profileID, key)
}

func (p *ProfileState) Set(ctx context.Context, key, value string) error {
	return p.repo.Set(ctx, p.profileID, key, value)
}
