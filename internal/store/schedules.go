package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/shared"
)

// ScheduleStore persists recurring transfer rules.
type ScheduleStore struct {
	db *sql.DB
}

// NewScheduleStore creates a new ScheduleStore with the given database connection
func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

// Create inserts a new schedule rule with a generated ID.
func (s *ScheduleStore) Create(rule *models.ScheduleRule) error {
	if rule.Cron == "" {
		return fmt.Errorf("%w: cron expression required", shared.ErrValidation)
	}
	if rule.LookbackDays <= 0 {
		return fmt.Errorf("%w: lookback days must be positive", shared.ErrValidation)
	}

	filters, err := marshalFilters(rule.Filters)
	if err != nil {
		return err
	}

	rule.ID = shared.GenerateID()
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := `
		INSERT INTO schedule_rules (id, cron_expression, lookback_days, filters, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query, rule.ID, rule.Cron, rule.LookbackDays, filters, rule.Enabled, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert schedule rule: %w", err)
	}

	return nil
}

// Get retrieves a schedule rule by ID.
func (s *ScheduleStore) Get(id string) (*models.ScheduleRule, error) {
	query := `
		SELECT id, cron_expression, lookback_days, filters, enabled, last_run, created_at, updated_at
		FROM schedule_rules
		WHERE id = ?
	`

	rule, err := scanRule(s.db.QueryRow(query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan schedule rule: %w", err)
	}

	return rule, nil
}

// List retrieves schedule rules, optionally only enabled ones.
func (s *ScheduleStore) List(enabledOnly bool) ([]*models.ScheduleRule, error) {
	query := `
		SELECT id, cron_expression, lookback_days, filters, enabled, last_run, created_at, updated_at
		FROM schedule_rules
	`
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.ScheduleRule
	for rows.Next() {
		rule, err := scanRule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return rules, nil
}

// SetEnabled flips a rule on or off.
func (s *ScheduleStore) SetEnabled(id string, enabled bool) error {
	result, err := s.db.Exec(`
		UPDATE schedule_rules SET enabled = ?, updated_at = ? WHERE id = ?
	`, enabled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update schedule rule: %w", err)
	}
	return s.requireRule(result, id)
}

// TouchLastRun stamps the time a rule last produced a job.
func (s *ScheduleStore) TouchLastRun(id string, at time.Time) error {
	result, err := s.db.Exec(`
		UPDATE schedule_rules SET last_run = ?, updated_at = ? WHERE id = ?
	`, at.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update schedule rule: %w", err)
	}
	return s.requireRule(result, id)
}

// Delete removes a schedule rule.
func (s *ScheduleStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM schedule_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule rule: %w", err)
	}
	return s.requireRule(result, id)
}

func (s *ScheduleStore) requireRule(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRuleNotFound, id)
	}
	return nil
}

func scanRule(scan func(...any) error) (*models.ScheduleRule, error) {
	var (
		rule    models.ScheduleRule
		filters sql.NullString
		lastRun sql.NullTime
	)

	err := scan(
		&rule.ID, &rule.Cron, &rule.LookbackDays, &filters,
		&rule.Enabled, &lastRun, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if filters.Valid && filters.String != "" {
		if err := json.Unmarshal([]byte(filters.String), &rule.Filters); err != nil {
			return nil, fmt.Errorf("stored filters invalid: %w", err)
		}
	}
	if lastRun.Valid {
		rule.LastRun = &lastRun.Time
	}

	return &rule, nil
}
