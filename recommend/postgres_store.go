package recommend

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recColumns = `id, tenant_id, entity_type, entity_id, action_type,
	target_user_id, target_role, title, rationale, confidence, priority,
	status, expires_at, acted_by, acted_at, created_at`

func (s *PostgresStore) Add(rec Recommendation) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO recommendations (`+recColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, rec.ID, rec.TenantID, rec.EntityType, rec.EntityID, rec.ActionType,
		rec.TargetUserID, rec.TargetRole, rec.Title, rec.Rationale,
		rec.Confidence, rec.Priority, rec.Status, rec.ExpiresAt,
		rec.ActedBy, rec.ActedAt, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert recommendation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(id string) (*Recommendation, error) {
	row := s.db.QueryRow(`
		SELECT `+recColumns+`
		FROM recommendations
		WHERE id = $1
	`, id)

	rec, err := scanRecommendation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("recommendation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListPending(tenantID *string, entityType, entityID string, now time.Time) ([]Recommendation, error) {
	rows, err := s.db.Query(`
		SELECT `+recColumns+`
		FROM recommendations
		WHERE entity_type = $1
		  AND entity_id = $2
		  AND ($3::text IS NULL OR tenant_id = $3)
		  AND status = $4
		  AND (expires_at IS NULL OR expires_at >= $5)
		ORDER BY priority ASC, confidence DESC, created_at ASC
	`, entityType, entityID, tenantID, StatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	defer rows.Close()

	var out []Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateStatus(id string, to Status, actedBy string, now time.Time) (*Recommendation, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
		SELECT `+recColumns+`
		FROM recommendations
		WHERE id = $1
		FOR UPDATE
	`, id)

	rec, err := scanRecommendation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("recommendation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}

	if err := Transition(rec, to, actedBy, now); err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		UPDATE recommendations
		SET status = $2, acted_by = $3, acted_at = $4
		WHERE id = $1
	`, rec.ID, rec.Status, rec.ActedBy, rec.ActedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update recommendation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Sweep(now time.Time) (int, error) {
	res, err := s.db.Exec(`
		UPDATE recommendations
		SET status = $1, acted_at = $2
		WHERE status = $3 AND expires_at IS NOT NULL AND expires_at < $2
	`, StatusExpired, now, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep recommendations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept rows: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecommendation(row rowScanner) (*Recommendation, error) {
	var rec Recommendation
	var tenantID, targetUserID, targetRole, actedBy sql.NullString
	var expiresAt, actedAt sql.NullTime

	err := row.Scan(&rec.ID, &tenantID, &rec.EntityType, &rec.EntityID,
		&rec.ActionType, &targetUserID, &targetRole, &rec.Title,
		&rec.Rationale, &rec.Confidence, &rec.Priority, &rec.Status,
		&expiresAt, &actedBy, &actedAt, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	if tenantID.Valid {
		rec.TenantID = &tenantID.String
	}
	rec.TargetUserID = targetUserID.String
	rec.TargetRole = targetRole.String
	rec.ActedBy = actedBy.String
	if expiresAt.Valid {
		rec.ExpiresAt = &expiresAt.Time
	}
	if actedAt.Valid {
		rec.ActedAt = &actedAt.Time
	}
	return &rec, nil
}
