package trigger

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/complyflow/engine/condition"
)

// PostgresTriggerStore implements TriggerStore backed by PostgreSQL.
type PostgresTriggerStore struct {
	db *sql.DB
}

func NewPostgresTriggerStore(db *sql.DB) *PostgresTriggerStore {
	return &PostgresTriggerStore{db: db}
}

const triggerColumns = `id, tenant_id, code, name, description, event_type,
	agent_name, agent_action, condition_json, cooldown_seconds,
	max_daily_executions, delay_seconds, active, created_at, updated_at`

func (s *PostgresTriggerStore) Add(t *EventTrigger) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM event_triggers WHERE id = $1)
	`, t.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check trigger existence: %w", err)
	}
	if exists {
		return fmt.Errorf("trigger with ID %s already exists", t.ID)
	}

	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO event_triggers (`+triggerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, t.ID, t.TenantID, t.Code, t.Name, t.Description, t.EventType,
		t.AgentName, t.AgentAction, t.ConditionJSON, t.CooldownSeconds,
		t.MaxDailyExecutions, t.DelaySeconds, t.Active, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert trigger: %w", err)
	}

	return nil
}

func (s *PostgresTriggerStore) Get(id string) (*EventTrigger, error) {
	row := s.db.QueryRow(`
		SELECT `+triggerColumns+`
		FROM event_triggers
		WHERE id = $1
	`, id)

	t, err := scanTrigger(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trigger %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trigger: %w", err)
	}
	return t, nil
}

func (s *PostgresTriggerStore) ListActiveForEvent(eventType string, tenantID *string) ([]*EventTrigger, error) {
	rows, err := s.db.Query(`
		SELECT `+triggerColumns+`
		FROM event_triggers
		WHERE active = true
			AND event_type = $1
			AND (tenant_id IS NULL OR tenant_id = $2)
		ORDER BY code ASC
	`, eventType, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	defer rows.Close()

	var out []*EventTrigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}

	return out, nil
}

func (s *PostgresTriggerStore) List() ([]*EventTrigger, error) {
	rows, err := s.db.Query(`
		SELECT ` + triggerColumns + `
		FROM event_triggers
		ORDER BY code ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	defer rows.Close()

	var out []*EventTrigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}

	return out, nil
}

func (s *PostgresTriggerStore) Update(t *EventTrigger) error {
	t.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE event_triggers
		SET tenant_id = $1, code = $2, name = $3, description = $4,
			event_type = $5, agent_name = $6, agent_action = $7,
			condition_json = $8, cooldown_seconds = $9,
			max_daily_executions = $10, delay_seconds = $11,
			active = $12, updated_at = $13
		WHERE id = $14
	`, t.TenantID, t.Code, t.Name, t.Description, t.EventType,
		t.AgentName, t.AgentAction, t.ConditionJSON, t.CooldownSeconds,
		t.MaxDailyExecutions, t.DelaySeconds, t.Active, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update trigger: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trigger %s: %w", t.ID, ErrNotFound)
	}

	return nil
}

func (s *PostgresTriggerStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM event_triggers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trigger %s: %w", id, ErrNotFound)
	}

	return nil
}

func scanTrigger(row interface{ Scan(dest ...any) error }) (*EventTrigger, error) {
	var (
		t        EventTrigger
		tenantID sql.NullString
	)

	err := row.Scan(&t.ID, &tenantID, &t.Code, &t.Name, &t.Description,
		&t.EventType, &t.AgentName, &t.AgentAction, &t.ConditionJSON,
		&t.CooldownSeconds, &t.MaxDailyExecutions, &t.DelaySeconds,
		&t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if tenantID.Valid {
		t.TenantID = &tenantID.String
	}

	if t.ConditionJSON != "" {
		t.Condition, err = condition.Parse([]byte(t.ConditionJSON))
		if err != nil {
			return nil, fmt.Errorf("trigger %s: %w", t.ID, err)
		}
	}

	return &t, nil
}

// PostgresExecutionLog implements ExecutionLog backed by PostgreSQL.
type PostgresExecutionLog struct {
	db *sql.DB
}

func NewPostgresExecutionLog(db *sql.DB) *PostgresExecutionLog {
	return &PostgresExecutionLog{db: db}
}

func (l *PostgresExecutionLog) Append(exec *TriggerExecution) error {
	_, err := l.db.Exec(`
		INSERT INTO trigger_executions
			(id, trigger_id, trigger_code, tenant_id, entity_type,
			 entity_id, event_type, payload_json, status, detail,
			 error, scheduled_for, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, exec.ID, exec.TriggerID, exec.TriggerCode, exec.TenantID,
		exec.EntityType, exec.EntityID, exec.EventType, exec.PayloadJSON,
		string(exec.Status), exec.Detail, exec.Error, exec.ScheduledFor,
		exec.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to append trigger execution: %w", err)
	}

	return nil
}

func (l *PostgresExecutionLog) Recent(triggerID string, limit int) ([]*TriggerExecution, error) {
	query := `
		SELECT id, trigger_id, trigger_code, tenant_id, entity_type,
			entity_id, event_type, payload_json, status, detail,
			error, scheduled_for, executed_at
		FROM trigger_executions`
	args := []any{}
	if triggerID != "" {
		query += ` WHERE trigger_id = $1 ORDER BY executed_at DESC LIMIT $2`
		args = append(args, triggerID, limit)
	} else {
		query += ` ORDER BY executed_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trigger executions: %w", err)
	}
	defer rows.Close()

	var out []*TriggerExecution
	for rows.Next() {
		var (
			e            TriggerExecution
			tenantID     sql.NullString
			scheduledFor sql.NullTime
			status       string
		)
		if err := rows.Scan(&e.ID, &e.TriggerID, &e.TriggerCode,
			&tenantID, &e.EntityType, &e.EntityID, &e.EventType,
			&e.PayloadJSON, &status, &e.Detail, &e.Error,
			&scheduledFor, &e.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trigger execution: %w", err)
		}
		if tenantID.Valid {
			e.TenantID = &tenantID.String
		}
		if scheduledFor.Valid {
			t := scheduledFor.Time
			e.ScheduledFor = &t
		}
		e.Status = ExecutionStatus(status)
		out = append(out, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trigger executions: %w", err)
	}

	return out, nil
}
