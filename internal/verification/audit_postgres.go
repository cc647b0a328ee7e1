package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRecordNotFound is returned when no audit record matches the lookup.
var ErrRecordNotFound = errors.New("verification record not found")

const recordColumns = `
	id, credential_id, verifier_id, method, result, reason,
	tx_ref, block_height, confirmations, verified_at`

// PostgresAuditLog persists verification records to PostgreSQL.
// The verifications table has no UPDATE or DELETE path in this codebase;
// storage hygiene for the table is an operational concern, not an API.
type PostgresAuditLog struct {
	db *pgxpool.Pool
}

// NewPostgresAuditLog creates a PostgresAuditLog backed by the given pool.
func NewPostgresAuditLog(db *pgxpool.Pool) *PostgresAuditLog {
	return &PostgresAuditLog{db: db}
}

// Append implements AuditLog.
func (l *PostgresAuditLog) Append(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.VerifiedAt.IsZero() {
		rec.VerifiedAt = time.Now().UTC()
	}

	q := `
		INSERT INTO verifications (
			id, credential_id, verifier_id, method, result, reason,
			tx_ref, block_height, confirmations, verified_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := l.db.Exec(ctx, q,
		rec.ID, rec.CredentialID, rec.VerifierID, rec.Method, rec.Result,
		rec.Reason, rec.TxRef, rec.BlockHeight, rec.Confirmations, rec.VerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("append verification record: %w", err)
	}
	return nil
}

// Get implements AuditLog.
func (l *PostgresAuditLog) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	rows, err := l.db.Query(ctx,
		`SELECT`+recordColumns+` FROM verifications WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrRecordNotFound
	}
	return scanRecord(rows)
}

// ListByVerifier implements AuditLog.
func (l *PostgresAuditLog) ListByVerifier(ctx context.Context, verifierID uuid.UUID, page, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	rows, err := l.db.Query(ctx, `
		SELECT`+recordColumns+`
		FROM verifications
		WHERE verifier_id = $1
		ORDER BY verified_at DESC
		LIMIT $2 OFFSET $3`,
		verifierID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var total int
	if err := l.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM verifications WHERE verifier_id = $1`, verifierID,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("count verification records: %w", err)
	}

	return newPage(records, total, page, limit), nil
}

func scanRecord(rows pgx.Rows) (*Record, error) {
	rec := &Record{}
	if err := rows.Scan(
		&rec.ID, &rec.CredentialID, &rec.VerifierID, &rec.Method,
		&rec.Result, &rec.Reason, &rec.TxRef, &rec.BlockHeight,
		&rec.Confirmations, &rec.VerifiedAt,
	); err != nil {
		return nil, fmt.Errorf("scan verification record: %w", err)
	}
	return rec, nil
}

// newPage assembles pagination metadata shared by both audit log
// implementations.
func newPage(records []*Record, total, page, limit int) *Page {
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return &Page{
		Records: records,
		Total:   total,
		PageNum: page,
		Limit:   limit,
		Pages:   pages,
	}
}
