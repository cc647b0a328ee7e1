package sharelink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const linkColumns = `
	id, credential_id, created_by, share_id, link, expires_at, active,
	view_count, last_viewed_at, settings, created_at, updated_at`

// PostgresStore persists share links to PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create implements Store. Sets ID, CreatedAt, UpdatedAt.
func (s *PostgresStore) Create(ctx context.Context, link *ShareLink) error {
	settings, err := json.Marshal(struct {
		Settings
		PasswordHash string `json:"password_hash,omitempty"`
	}{link.Settings, link.Settings.PasswordHash})
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	link.ID = uuid.New()
	now := time.Now().UTC()
	link.CreatedAt = now
	link.UpdatedAt = now

	q := `
		INSERT INTO share_links (
			id, credential_id, created_by, share_id, link, expires_at,
			active, view_count, last_viewed_at, settings, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = s.db.Exec(ctx, q,
		link.ID, link.CredentialID, link.CreatedBy, link.ShareID, link.Link,
		link.ExpiresAt, link.Active, link.ViewCount, link.LastViewedAt,
		settings, link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create share link: %w", err)
	}
	return nil
}

// GetByShareID implements Store.
func (s *PostgresStore) GetByShareID(ctx context.Context, shareID string) (*ShareLink, error) {
	rows, err := s.db.Query(ctx,
		`SELECT`+linkColumns+` FROM share_links WHERE share_id = $1`, shareID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanLink(rows)
}

// ListByCredential implements Store.
func (s *PostgresStore) ListByCredential(ctx context.Context, credentialID string) ([]*ShareLink, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+linkColumns+`
		FROM share_links
		WHERE credential_id = $1
		ORDER BY created_at DESC`,
		credentialID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*ShareLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// IncrementViews implements Store. The WHERE clause guards against lost
// updates across processes: the row changes only if view_count still
// equals the count the caller read.
func (s *PostgresStore) IncrementViews(ctx context.Context, shareID string, expected int, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE share_links
		SET view_count = view_count + 1, last_viewed_at = $1, updated_at = $1
		WHERE share_id = $2 AND view_count = $3 AND active`,
		now, shareID, expected,
	)
	if err != nil {
		return false, fmt.Errorf("increment share link views: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Deactivate implements Store.
func (s *PostgresStore) Deactivate(ctx context.Context, shareID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE share_links
		SET active = FALSE, updated_at = $1
		WHERE share_id = $2`,
		time.Now().UTC(), shareID,
	)
	if err != nil {
		return fmt.Errorf("deactivate share link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateExpired implements Store.
func (s *PostgresStore) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE share_links
		SET active = FALSE, updated_at = $1
		WHERE active AND expires_at IS NOT NULL AND expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired share links: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanLink(rows pgx.Rows) (*ShareLink, error) {
	link := &ShareLink{}
	var settings []byte
	if err := rows.Scan(
		&link.ID, &link.CredentialID, &link.CreatedBy, &link.ShareID,
		&link.Link, &link.ExpiresAt, &link.Active, &link.ViewCount,
		&link.LastViewedAt, &settings, &link.CreatedAt, &link.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan share link: %w", err)
	}

	var stored struct {
		Settings
		PasswordHash string `json:"password_hash,omitempty"`
	}
	if err := json.Unmarshal(settings, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal share link settings: %w", err)
	}
	link.Settings = stored.Settings
	link.Settings.PasswordHash = stored.PasswordHash
	return link, nil
}
