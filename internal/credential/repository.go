package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a credential lookup finds no matching record.
var ErrNotFound = errors.New("credential not found")

// ErrAnchored is returned when a mutation would alter an anchored
// credential's immutable fields.
var ErrAnchored = errors.New("credential is anchored; content address and issuer are immutable")

const credentialColumns = `
	id, owner_id, issuer_id, title, doc_type, institution, description,
	content_address, tx_ref, block_height, metadata, status, public,
	issued_at, created_at, updated_at`

// Repository provides credential persistence against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository backed by the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new credential. Sets ID, CreatedAt, UpdatedAt.
func (r *Repository) Create(ctx context.Context, c *Credential) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	c.ID = uuid.New()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.IssuedAt.IsZero() {
		c.IssuedAt = now
	}
	if c.Status == "" {
		c.Status = StatusIssued
	}

	q := `
		INSERT INTO credentials (
			id, owner_id, issuer_id, title, doc_type, institution, description,
			content_address, tx_ref, block_height, metadata, status, public,
			issued_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16
		)`
	_, err = r.db.Exec(ctx, q,
		c.ID, c.OwnerID, c.IssuerID, c.Title, c.DocType, c.Institution,
		c.Description, c.ContentAddress, c.TxRef, c.BlockHeight, meta,
		c.Status, c.Public, c.IssuedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// GetByID retrieves a credential by its UUID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Credential, error) {
	q := `SELECT` + credentialColumns + ` FROM credentials WHERE id = $1`
	return r.scanOne(ctx, q, id)
}

// GetByContentAddress retrieves the credential whose stored payload hashes
// to address. Re-issuance can produce multiple rows for one address; the
// most recently issued non-revoked credential wins.
func (r *Repository) GetByContentAddress(ctx context.Context, address string) (*Credential, error) {
	q := `
		SELECT` + credentialColumns + `
		FROM credentials
		WHERE content_address = $1
		ORDER BY (status = 'revoked') ASC, issued_at DESC
		LIMIT 1`
	return r.scanOne(ctx, q, address)
}

// GetByTxRef retrieves the credential anchored by the given transaction.
func (r *Repository) GetByTxRef(ctx context.Context, txRef string) (*Credential, error) {
	q := `SELECT` + credentialColumns + ` FROM credentials WHERE tx_ref = $1`
	return r.scanOne(ctx, q, txRef)
}

// ListByOwner returns an owner's credentials, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Credential, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
		SELECT` + credentialColumns + `
		FROM credentials
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, q, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*Credential
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// UpdateStatus transitions a credential's status. This is the only
// mutation permitted after anchoring.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE credentials SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update credential status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) scanOne(ctx context.Context, query string, args ...any) (*Credential, error) {
	rows, err := r.db.Query(ctx, query, args...)
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
	return scan(rows)
}

func scan(rows pgx.Rows) (*Credential, error) {
	c := &Credential{}
	var meta []byte
	if err := rows.Scan(
		&c.ID, &c.OwnerID, &c.IssuerID, &c.Title, &c.DocType, &c.Institution,
		&c.Description, &c.ContentAddress, &c.TxRef, &c.BlockHeight, &meta,
		&c.Status, &c.Public, &c.IssuedAt, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return c, nil
}
