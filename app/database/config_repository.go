package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ SystemConfigRepository = (*SQLSystemConfigRepository)(nil)

type SQLSystemConfigRepository struct {
	db *DB
}

func NewSystemConfigRepository(db *DB) *SQLSystemConfigRepository {
	return &SQLSystemConfigRepository{db: db}
}

func (r *SQLSystemConfigRepository) GetAll() ([]SystemConfig, error) {
	rows, err := r.db.Query(`
		SELECT id, config_key, COALESCE(config_value, ''), value_type,
		       COALESCE(description, ''), created_at, updated_at
		FROM system_config
		ORDER BY config_key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query system config: %w", err)
	}
	defer rows.Close()

	var configs []SystemConfig
	for rows.Next() {
		var c SystemConfig
		err := rows.Scan(&c.ID, &c.ConfigKey, &c.ConfigValue, &c.ValueType, &c.Description, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan system config row: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating system config rows: %w", err)
	}
	return configs, nil
}

func (r *SQLSystemConfigRepository) Get(key string) (*SystemConfig, error) {
	row := r.db.QueryRow(`
		SELECT id, config_key, COALESCE(config_value, ''), value_type,
		       COALESCE(description, ''), created_at, updated_at
		FROM system_config
		WHERE config_key = ?
	`, key)

	var c SystemConfig
	err := row.Scan(&c.ID, &c.ConfigKey, &c.ConfigValue, &c.ValueType, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get system config: %w", err)
	}
	return &c, nil
}

func (r *SQLSystemConfigRepository) Set(key, value, valueType string) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO system_config (config_key, config_value, value_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (config_key) DO UPDATE SET
			config_value = excluded.config_value,
			value_type = excluded.value_type,
			updated_at = excluded.updated_at
	`, key, value, valueType, now, now)
	if err != nil {
		return fmt.Errorf("failed to set system config: %w", err)
	}
	return nil
}
