package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ FollowRepository = (*SQLFollowRepository)(nil)

type SQLFollowRepository struct {
	db *DB
}

func NewFollowRepository(db *DB) *SQLFollowRepository {
	return &SQLFollowRepository{db: db}
}

const followColumns = `id, user_id, COALESCE(user_name, ''), COALESCE(avatar_url, ''),
	first_collect_date, last_collect_date, last_artwork_date, created_at, updated_at`

func (r *SQLFollowRepository) GetByUserID(userID int64) (*Follow, error) {
	row := r.db.QueryRow(`
		SELECT `+followColumns+`
		FROM follows
		WHERE user_id = ?
	`, userID)

	follow, err := scanFollow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get follow: %w", err)
	}
	return follow, nil
}

func (r *SQLFollowRepository) Insert(follow Follow) (int64, error) {
	createdAt := follow.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := follow.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	res, err := r.db.Exec(`
		INSERT INTO follows (
			user_id, user_name, avatar_url,
			first_collect_date, last_collect_date, last_artwork_date,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, follow.UserID, follow.UserName, follow.AvatarURL,
		nullTime(follow.FirstCollectDate), nullTime(follow.LastCollectDate),
		nullTime(follow.LastArtworkDate), createdAt, updatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert follow: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read follow id: %w", err)
	}
	return id, nil
}

func (r *SQLFollowRepository) UpdateProfile(userID int64, userName, avatarURL string) error {
	_, err := r.db.Exec(`
		UPDATE follows
		SET user_name = ?, avatar_url = ?, updated_at = ?
		WHERE user_id = ?
	`, userName, avatarURL, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update follow profile: %w", err)
	}
	return nil
}

// RaiseLastArtworkDate never lowers the stored value, regardless of the
// order strategies observe works in.
func (r *SQLFollowRepository) RaiseLastArtworkDate(userID int64, artworkDate time.Time) error {
	_, err := r.db.Exec(`
		UPDATE follows
		SET last_artwork_date = ?, updated_at = ?
		WHERE user_id = ?
		  AND (last_artwork_date IS NULL OR last_artwork_date < ?)
	`, artworkDate, time.Now().UTC(), userID, artworkDate)
	if err != nil {
		return fmt.Errorf("failed to raise last artwork date: %w", err)
	}
	return nil
}

func (r *SQLFollowRepository) TouchCollected(userID int64, collectedAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE follows
		SET last_collect_date = ?,
		    first_collect_date = COALESCE(first_collect_date, ?),
		    updated_at = ?
		WHERE user_id = ?
	`, collectedAt, collectedAt, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to touch follow collect date: %w", err)
	}
	return nil
}

func (r *SQLFollowRepository) List(limit, offset int) ([]Follow, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := r.db.Query(`
		SELECT `+followColumns+`
		FROM follows
		ORDER BY COALESCE(last_artwork_date, created_at) DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list follows: %w", err)
	}
	defer rows.Close()

	var follows []Follow
	for rows.Next() {
		follow, err := scanFollow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan follow row: %w", err)
		}
		follows = append(follows, *follow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating follow rows: %w", err)
	}
	return follows, nil
}

func (r *SQLFollowRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM follows`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count follows: %w", err)
	}
	return count, nil
}

func scanFollow(row rowScanner) (*Follow, error) {
	var f Follow
	var firstCollect, lastCollect, lastArtwork sql.NullTime

	err := row.Scan(
		&f.ID, &f.UserID, &f.UserName, &f.AvatarURL,
		&firstCollect, &lastCollect, &lastArtwork,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if firstCollect.Valid {
		f.FirstCollectDate = &firstCollect.Time
	}
	if lastCollect.Valid {
		f.LastCollectDate = &lastCollect.Time
	}
	if lastArtwork.Valid {
		f.LastArtworkDate = &lastArtwork.Time
	}
	return &f, nil
}
