package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ SchedulerConfigRepository = (*SQLSchedulerConfigRepository)(nil)

type SQLSchedulerConfigRepository struct {
	db *DB
}

func NewSchedulerConfigRepository(db *DB) *SQLSchedulerConfigRepository {
	return &SQLSchedulerConfigRepository{db: db}
}

const schedulerColumns = `id, collect_type, cron_expression, is_active, last_run_time, created_at, updated_at`

func (r *SQLSchedulerConfigRepository) GetAll() ([]SchedulerConfig, error) {
	rows, err := r.db.Query(`
		SELECT ` + schedulerColumns + `
		FROM scheduler_configs
		ORDER BY collect_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduler configs: %w", err)
	}
	defer rows.Close()

	var configs []SchedulerConfig
	for rows.Next() {
		config, err := scanSchedulerConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduler config row: %w", err)
		}
		configs = append(configs, *config)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduler config rows: %w", err)
	}
	return configs, nil
}

func (r *SQLSchedulerConfigRepository) GetByType(collectType string) (*SchedulerConfig, error) {
	row := r.db.QueryRow(`
		SELECT `+schedulerColumns+`
		FROM scheduler_configs
		WHERE collect_type = ?
	`, collectType)

	config, err := scanSchedulerConfig(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduler config: %w", err)
	}
	return config, nil
}

func (r *SQLSchedulerConfigRepository) SeedIfAbsent(collectType, cronExpression string, isActive bool) (bool, error) {
	now := time.Now().UTC()
	res, err := r.db.Exec(`
		INSERT INTO scheduler_configs (collect_type, cron_expression, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collect_type) DO NOTHING
	`, collectType, cronExpression, isActive, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to seed scheduler config: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *SQLSchedulerConfigRepository) UpdateCron(collectType, cronExpression string, isActive bool) error {
	_, err := r.db.Exec(`
		UPDATE scheduler_configs
		SET cron_expression = ?, is_active = ?, updated_at = ?
		WHERE collect_type = ?
	`, cronExpression, isActive, time.Now().UTC(), collectType)
	if err != nil {
		return fmt.Errorf("failed to update scheduler config: %w", err)
	}
	return nil
}

func (r *SQLSchedulerConfigRepository) SetLastRunTime(collectType string, runTime time.Time) error {
	_, err := r.db.Exec(`
		UPDATE scheduler_configs
		SET last_run_time = ?, updated_at = ?
		WHERE collect_type = ?
	`, runTime, time.Now().UTC(), collectType)
	if err != nil {
		return fmt.Errorf("failed to set last run time: %w", err)
	}
	return nil
}

func scanSchedulerConfig(row rowScanner) (*SchedulerConfig, error) {
	var c SchedulerConfig
	var lastRun sql.NullTime

	err := row.Scan(&c.ID, &c.CollectType, &c.CronExpression, &c.IsActive, &lastRun, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if lastRun.Valid {
		c.LastRunTime = &lastRun.Time
	}
	return &c, nil
}
