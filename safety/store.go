package safety

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists the safety settings singleton. Load is called once at
// the start of every cycle; the loaded value is cached for that
// invocation and never re-read mid-cycle.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
	AddDNC(ctx context.Context, emails, leadIDs []string) (Settings, error)
}

// PGStore keeps the settings as a single jsonb row.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Load returns the stored settings, or DefaultSettings when nothing has
// been saved yet.
func (s *PGStore) Load(ctx context.Context) (Settings, error) {
	const query = `SELECT payload FROM safety_settings WHERE id = 1`
	var payload []byte
	if err := s.pool.QueryRow(ctx, query).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultSettings(), nil
		}
		return Settings{}, fmt.Errorf("safety: load settings: %w", err)
	}
	var settings Settings
	if err := json.Unmarshal(payload, &settings); err != nil {
		return Settings{}, fmt.Errorf("safety: decode settings: %w", err)
	}
	return settings, nil
}

func (s *PGStore) Save(ctx context.Context, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("safety: encode settings: %w", err)
	}
	const query = `
		INSERT INTO safety_settings (id, payload) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, query, payload); err != nil {
		return fmt.Errorf("safety: save settings: %w", err)
	}
	return nil
}

// AddDNC appends addresses and lead ids to the do-not-contact lists,
// deduplicating case-insensitively, and returns the updated settings.
// The read and write run in one transaction so concurrent opt-outs do
// not drop each other's entries.
func (s *PGStore) AddDNC(ctx context.Context, emails, leadIDs []string) (Settings, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("safety: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const lockQuery = `SELECT payload FROM safety_settings WHERE id = 1 FOR UPDATE`
	settings := DefaultSettings()
	var payload []byte
	err = tx.QueryRow(ctx, lockQuery).Scan(&payload)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// First opt-out before any admin save; start from defaults.
	case err != nil:
		return Settings{}, fmt.Errorf("safety: load settings for update: %w", err)
	default:
		if err := json.Unmarshal(payload, &settings); err != nil {
			return Settings{}, fmt.Errorf("safety: decode settings: %w", err)
		}
	}

	settings.DNCEmails = appendMissing(settings.DNCEmails, emails)
	settings.DNCLeadIDs = appendMissing(settings.DNCLeadIDs, leadIDs)

	encoded, err := json.Marshal(settings)
	if err != nil {
		return Settings{}, fmt.Errorf("safety: encode settings: %w", err)
	}
	const upsert = `
		INSERT INTO safety_settings (id, payload) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
	`
	if _, err := tx.Exec(ctx, upsert, encoded); err != nil {
		return Settings{}, fmt.Errorf("safety: update settings: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Settings{}, fmt.Errorf("safety: commit settings: %w", err)
	}
	return settings, nil
}

func appendMissing(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[strings.ToLower(v)] = struct{}{}
	}
	for _, v := range incoming {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		existing = append(existing, v)
	}
	return existing
}
