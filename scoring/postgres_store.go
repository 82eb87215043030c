package scoring

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresScoreStore implements ScoreStore backed by PostgreSQL.
type PostgresScoreStore struct {
	db *sql.DB
}

func NewPostgresScoreStore(db *sql.DB) *PostgresScoreStore {
	return &PostgresScoreStore{db: db}
}

func (s *PostgresScoreStore) Append(rec *ScoreRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO score_records
			(id, tenant_id, entity_type, entity_id, score_type, score,
			 band, breakdown_json, previous_score, score_change,
			 calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.ID, rec.TenantID, rec.EntityType, rec.EntityID,
		string(rec.ScoreType), rec.Score, rec.Band, rec.BreakdownJSON,
		rec.PreviousScore, rec.ScoreChange, rec.CalculatedAt)
	if err != nil {
		return fmt.Errorf("failed to append score record: %w", err)
	}
	return nil
}

func (s *PostgresScoreStore) Latest(entityType, entityID string, scoreType ScoreType) (*ScoreRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, tenant_id, entity_type, entity_id, score_type, score,
			band, breakdown_json, previous_score, score_change,
			calculated_at
		FROM score_records
		WHERE entity_type = $1 AND entity_id = $2 AND score_type = $3
		ORDER BY calculated_at DESC
		LIMIT 1
	`, entityType, entityID, string(scoreType))

	rec, err := scanScore(row)
	if err == sql.ErrNoRows {
		return nil, ErrNoScore
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest score: %w", err)
	}
	return rec, nil
}

func (s *PostgresScoreStore) History(entityType, entityID string, scoreType ScoreType, since time.Time) ([]*ScoreRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, tenant_id, entity_type, entity_id, score_type, score,
			band, breakdown_json, previous_score, score_change,
			calculated_at
		FROM score_records
		WHERE entity_type = $1 AND entity_id = $2 AND score_type = $3
			AND calculated_at >= $4
		ORDER BY calculated_at DESC
	`, entityType, entityID, string(scoreType), since)
	if err != nil {
		return nil, fmt.Errorf("failed to list score history: %w", err)
	}
	defer rows.Close()

	var out []*ScoreRecord
	for rows.Next() {
		rec, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score record: %w", err)
		}
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating score records: %w", err)
	}

	return out, nil
}

func scanScore(row interface{ Scan(dest ...any) error }) (*ScoreRecord, error) {
	var (
		rec       ScoreRecord
		tenantID  sql.NullString
		previous  sql.NullInt64
		change    sql.NullInt64
		scoreType string
	)

	err := row.Scan(&rec.ID, &tenantID, &rec.EntityType, &rec.EntityID,
		&scoreType, &rec.Score, &rec.Band, &rec.BreakdownJSON,
		&previous, &change, &rec.CalculatedAt)
	if err != nil {
		return nil, err
	}

	rec.ScoreType = ScoreType(scoreType)
	if tenantID.Valid {
		rec.TenantID = &tenantID.String
	}
	if previous.Valid {
		v := int(previous.Int64)
		rec.PreviousScore = &v
	}
	if change.Valid {
		v := int(change.Int64)
		rec.ScoreChange = &v
	}

	return &rec, nil
}
