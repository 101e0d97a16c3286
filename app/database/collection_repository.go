package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ CollectionLogRepository = (*SQLCollectionLogRepository)(nil)

type SQLCollectionLogRepository struct {
	db *DB
}

func NewCollectionLogRepository(db *DB) *SQLCollectionLogRepository {
	return &SQLCollectionLogRepository{db: db}
}

func (r *SQLCollectionLogRepository) Create(logType, message string) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO collection_logs (log_type, status, message, artworks_count, created_at)
		VALUES (?, ?, ?, 0, ?)
	`, logType, LogStatusRunning, message, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to create collection log: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read collection log id: %w", err)
	}
	return id, nil
}

func (r *SQLCollectionLogRepository) FinalizeSuccess(id int64, message string, artworksCount int) error {
	_, err := r.db.Exec(`
		UPDATE collection_logs
		SET status = ?, message = ?, artworks_count = ?
		WHERE id = ?
	`, LogStatusSuccess, message, artworksCount, id)
	if err != nil {
		return fmt.Errorf("failed to finalize collection log: %w", err)
	}
	return nil
}

func (r *SQLCollectionLogRepository) FinalizeFailure(id int64, message string) error {
	_, err := r.db.Exec(`
		UPDATE collection_logs
		SET status = ?, message = ?
		WHERE id = ?
	`, LogStatusFailed, message, id)
	if err != nil {
		return fmt.Errorf("failed to finalize collection log: %w", err)
	}
	return nil
}

func (r *SQLCollectionLogRepository) GetByID(id int64) (*CollectionLog, error) {
	row := r.db.QueryRow(`
		SELECT id, log_type, status, COALESCE(message, ''), artworks_count, created_at
		FROM collection_logs
		WHERE id = ?
	`, id)

	var log CollectionLog
	err := row.Scan(&log.ID, &log.LogType, &log.Status, &log.Message, &log.ArtworksCount, &log.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection log: %w", err)
	}
	return &log, nil
}

func (r *SQLCollectionLogRepository) List(limit, offset int) ([]CollectionLog, error) {
	rows, err := r.db.Query(`
		SELECT id, log_type, status, COALESCE(message, ''), artworks_count, created_at
		FROM collection_logs
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection logs: %w", err)
	}
	defer rows.Close()

	var logs []CollectionLog
	for rows.Next() {
		var log CollectionLog
		err := rows.Scan(&log.ID, &log.LogType, &log.Status, &log.Message, &log.ArtworksCount, &log.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collection log row: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collection log rows: %w", err)
	}
	return logs, nil
}

// DeleteOlderThan removes finished log entries created before cutoff.
// Running entries are kept so a cleanup run cannot delete its own record.
func (r *SQLCollectionLogRepository) DeleteOlderThan(cutoff time.Time) (int, error) {
	res, err := r.db.Exec(`
		DELETE FROM collection_logs WHERE created_at < ? AND status != ?
	`, cutoff, LogStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old collection logs: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(affected), nil
}
