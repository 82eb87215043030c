package rules

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/complyflow/engine/condition"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL. It
// holds rules for every tenant plus the platform-wide set; scoping is
// applied later by the selector.
type PostgresRuleStore struct {
	db *sql.DB
}

func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

const ruleColumns = `id, tenant_id, code, name, description, category,
	trigger_event, condition_json, expression, actions, priority,
	stop_on_match, effective_from, effective_to, version, active,
	created_at, updated_at`

// Add inserts a new rule.
func (s *PostgresRuleStore) Add(rule *Rule) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM rules WHERE id = $1)
	`, rule.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	actions, err := EncodeActions(rule.Actions)
	if err != nil {
		return err
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if rule.Version == 0 {
		rule.Version = 1
	}

	_, err = s.db.Exec(`
		INSERT INTO rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, rule.ID, rule.TenantID, rule.Code, rule.Name, rule.Description,
		rule.Category, rule.TriggerEvent, rule.ConditionJSON,
		rule.Expression, actions, rule.Priority, rule.StopOnMatch,
		rule.EffectiveFrom, rule.EffectiveTo, rule.Version, rule.Active,
		rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// Get retrieves a rule by ID.
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	row := s.db.QueryRow(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1
	`, id)

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListActive returns every active rule across all scopes.
func (s *PostgresRuleStore) ListActive() ([]*Rule, error) {
	rows, err := s.db.Query(`
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE active = true
		ORDER BY priority ASC, code ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// Update modifies an existing rule and bumps its version.
func (s *PostgresRuleStore) Update(rule *Rule) error {
	existing, err := s.Get(rule.ID)
	if err != nil {
		return err
	}

	actions, err := EncodeActions(rule.Actions)
	if err != nil {
		return err
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	rule.Version = existing.Version + 1

	result, err := s.db.Exec(`
		UPDATE rules
		SET tenant_id = $1, code = $2, name = $3, description = $4,
			category = $5, trigger_event = $6, condition_json = $7,
			expression = $8, actions = $9, priority = $10,
			stop_on_match = $11, effective_from = $12, effective_to = $13,
			version = $14, active = $15, updated_at = $16
		WHERE id = $17
	`, rule.TenantID, rule.Code, rule.Name, rule.Description,
		rule.Category, rule.TriggerEvent, rule.ConditionJSON,
		rule.Expression, actions, rule.Priority, rule.StopOnMatch,
		rule.EffectiveFrom, rule.EffectiveTo, rule.Version, rule.Active,
		rule.UpdatedAt, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}

	return nil
}

// Delete removes a rule.
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		r             Rule
		tenantID      sql.NullString
		effectiveFrom sql.NullTime
		effectiveTo   sql.NullTime
		actions       string
	)

	err := row.Scan(&r.ID, &tenantID, &r.Code, &r.Name, &r.Description,
		&r.Category, &r.TriggerEvent, &r.ConditionJSON, &r.Expression,
		&actions, &r.Priority, &r.StopOnMatch, &effectiveFrom,
		&effectiveTo, &r.Version, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if tenantID.Valid {
		r.TenantID = &tenantID.String
	}
	if effectiveFrom.Valid {
		t := effectiveFrom.Time
		r.EffectiveFrom = &t
	}
	if effectiveTo.Valid {
		t := effectiveTo.Time
		r.EffectiveTo = &t
	}

	r.Actions, err = ParseActions([]byte(actions))
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}

	if r.ConditionJSON != "" {
		r.Condition, err = condition.Parse([]byte(r.ConditionJSON))
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}

	return &r, nil
}

// PostgresExecutionLog implements ExecutionLog backed by PostgreSQL.
// Rows are insert-only; there is no update or delete path.
type PostgresExecutionLog struct {
	db *sql.DB
}

func NewPostgresExecutionLog(db *sql.DB) *PostgresExecutionLog {
	return &PostgresExecutionLog{db: db}
}

func (l *PostgresExecutionLog) Append(exec *RuleExecution) error {
	results, err := json.Marshal(exec.ActionResults)
	if err != nil {
		return fmt.Errorf("failed to encode action results: %w", err)
	}

	_, err = l.db.Exec(`
		INSERT INTO rule_executions
			(id, tenant_id, rule_id, rule_code, trigger_event,
			 correlation_id, context_json, matched, action_results,
			 status, error, duration_ms, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, exec.ID, exec.TenantID, exec.RuleID, exec.RuleCode,
		exec.TriggerEvent, exec.CorrelationID, exec.ContextJSON,
		exec.Matched, results, string(exec.Status), exec.Error,
		exec.Duration.Milliseconds(), exec.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to append execution: %w", err)
	}

	return nil
}

func (l *PostgresExecutionLog) Recent(tenantID *string, limit int) ([]*RuleExecution, error) {
	query := `
		SELECT id, tenant_id, rule_id, rule_code, trigger_event,
			correlation_id, context_json, matched, action_results,
			status, error, duration_ms, executed_at
		FROM rule_executions`
	args := []any{}
	if tenantID != nil {
		query += ` WHERE tenant_id = $1 ORDER BY executed_at DESC LIMIT $2`
		args = append(args, *tenantID, limit)
	} else {
		query += ` ORDER BY executed_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var out []*RuleExecution
	for rows.Next() {
		var (
			e          RuleExecution
			tid        sql.NullString
			results    []byte
			status     string
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &tid, &e.RuleID, &e.RuleCode,
			&e.TriggerEvent, &e.CorrelationID, &e.ContextJSON,
			&e.Matched, &results, &status, &e.Error, &durationMS,
			&e.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		if tid.Valid {
			e.TenantID = &tid.String
		}
		e.Status = ExecutionStatus(status)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if len(results) > 0 {
			if err := json.Unmarshal(results, &e.ActionResults); err != nil {
				return nil, fmt.Errorf("failed to decode action results: %w", err)
			}
		}
		out = append(out, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return out, nil
}
