package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

var _ ArtworkRepository = (*SQLArtworkRepository)(nil)

type SQLArtworkRepository struct {
	db *DB
}

func NewArtworkRepository(db *DB) *SQLArtworkRepository {
	return &SQLArtworkRepository{db: db}
}

const artworkColumns = `id, illust_id, page_index, page_count, author_id,
	COALESCE(author_name, ''), COALESCE(title, ''), COALESCE(url, ''),
	COALESCE(share_url, ''), COALESCE(tags, ''), is_r18, type, collect_type,
	is_valid, COALESCE(error_message, ''), post_date, rank, rank_date,
	total_bookmarks, total_view, last_updated_at, created_at`

func (r *SQLArtworkRepository) GetByKey(illustID int64, pageIndex int) (*Artwork, error) {
	row := r.db.QueryRow(`
		SELECT `+artworkColumns+`
		FROM artworks
		WHERE illust_id = ? AND page_index = ?
	`, illustID, pageIndex)

	artwork, err := scanArtwork(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artwork: %w", err)
	}
	return artwork, nil
}

func (r *SQLArtworkRepository) InsertPages(pages []Artwork) (int, error) {
	if len(pages) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, page := range pages {
		createdAt := page.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		res, err := tx.Exec(`
			INSERT INTO artworks (
				illust_id, page_index, page_count, author_id, author_name,
				title, url, share_url, tags, is_r18, type, collect_type,
				is_valid, error_message, post_date, rank, rank_date,
				total_bookmarks, total_view, last_updated_at, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (illust_id, page_index) DO NOTHING
		`, page.IllustID, page.PageIndex, page.PageCount, page.AuthorID,
			page.AuthorName, page.Title, page.URL, page.ShareURL,
			strings.Join(page.Tags, ","), page.IsR18, page.Type,
			page.CollectType, page.IsValid, nullString(page.ErrorMessage),
			nullTime(page.PostDate), nullInt(page.Rank), nullTime(page.RankDate),
			page.TotalBookmarks, page.TotalView, nullTime(page.LastUpdatedAt),
			createdAt)
		if err != nil {
			return 0, fmt.Errorf("failed to insert artwork %d/%d: %w", page.IllustID, page.PageIndex, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit artwork pages: %w", err)
	}
	return inserted, nil
}

func (r *SQLArtworkRepository) UpdateCollectType(id int64, collectType string) error {
	_, err := r.db.Exec(`
		UPDATE artworks SET collect_type = ? WHERE id = ?
	`, collectType, id)
	if err != nil {
		return fmt.Errorf("failed to update collect type: %w", err)
	}
	return nil
}

func (r *SQLArtworkRepository) GetForUpdate(cutoff time.Time, limit int) ([]Artwork, error) {
	rows, err := r.db.Query(`
		SELECT `+artworkColumns+`
		FROM artworks
		WHERE is_valid = 1
		  AND page_index = 0
		  AND (last_updated_at IS NULL OR last_updated_at < ?)
		ORDER BY last_updated_at ASC, id ASC
		LIMIT ?
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query artworks for update: %w", err)
	}
	defer rows.Close()

	return scanArtworks(rows)
}

func (r *SQLArtworkRepository) PagesByIllustID(illustID int64) ([]Artwork, error) {
	rows, err := r.db.Query(`
		SELECT `+artworkColumns+`
		FROM artworks
		WHERE illust_id = ?
		ORDER BY page_index ASC
	`, illustID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artwork pages: %w", err)
	}
	defer rows.Close()

	return scanArtworks(rows)
}

func (r *SQLArtworkRepository) UpdateWorkPages(pages []Artwork) error {
	if len(pages) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, page := range pages {
		_, err := tx.Exec(`
			UPDATE artworks
			SET title = ?, author_id = ?, author_name = ?, page_count = ?,
			    url = ?, share_url = ?, tags = ?, is_r18 = ?,
			    total_bookmarks = ?, total_view = ?,
			    is_valid = ?, error_message = ?, last_updated_at = ?
			WHERE id = ?
		`, page.Title, page.AuthorID, page.AuthorName, page.PageCount,
			page.URL, page.ShareURL, strings.Join(page.Tags, ","), page.IsR18,
			page.TotalBookmarks, page.TotalView,
			page.IsValid, nullString(page.ErrorMessage), nullTime(page.LastUpdatedAt),
			page.ID)
		if err != nil {
			return fmt.Errorf("failed to update artwork page %d: %w", page.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit page updates: %w", err)
	}
	return nil
}

func (r *SQLArtworkRepository) MarkInvalidAllPages(illustID int64, reason string, action InvalidAction) error {
	switch action {
	case InvalidActionDelete:
		_, err := r.db.Exec(`DELETE FROM artworks WHERE illust_id = ?`, illustID)
		if err != nil {
			return fmt.Errorf("failed to delete artwork pages: %w", err)
		}
	case InvalidActionKeep:
		_, err := r.db.Exec(`
			UPDATE artworks SET error_message = ? WHERE illust_id = ?
		`, reason, illustID)
		if err != nil {
			return fmt.Errorf("failed to flag artwork pages: %w", err)
		}
	default: // mark
		_, err := r.db.Exec(`
			UPDATE artworks SET is_valid = 0, error_message = ? WHERE illust_id = ?
		`, reason, illustID)
		if err != nil {
			return fmt.Errorf("failed to mark artwork pages invalid: %w", err)
		}
	}
	return nil
}

func (r *SQLArtworkRepository) SetValid(id int64, valid bool, reason string) error {
	_, err := r.db.Exec(`
		UPDATE artworks SET is_valid = ?, error_message = ? WHERE id = ?
	`, valid, nullString(reason), id)
	if err != nil {
		return fmt.Errorf("failed to set artwork validity: %w", err)
	}
	return nil
}

func (r *SQLArtworkRepository) List(limit, offset int) ([]Artwork, error) {
	rows, err := r.db.Query(`
		SELECT `+artworkColumns+`
		FROM artworks
		ORDER BY COALESCE(post_date, created_at) DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list artworks: %w", err)
	}
	defer rows.Close()

	return scanArtworks(rows)
}

func (r *SQLArtworkRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM artworks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count artworks: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArtwork(row rowScanner) (*Artwork, error) {
	var a Artwork
	var tags string
	var postDate, rankDate, lastUpdatedAt sql.NullTime
	var rank sql.NullInt64

	err := row.Scan(
		&a.ID, &a.IllustID, &a.PageIndex, &a.PageCount, &a.AuthorID,
		&a.AuthorName, &a.Title, &a.URL, &a.ShareURL, &tags, &a.IsR18,
		&a.Type, &a.CollectType, &a.IsValid, &a.ErrorMessage,
		&postDate, &rank, &rankDate,
		&a.TotalBookmarks, &a.TotalView, &lastUpdatedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tags != "" {
		a.Tags = strings.Split(tags, ",")
	}
	if postDate.Valid {
		a.PostDate = &postDate.Time
	}
	if rankDate.Valid {
		a.RankDate = &rankDate.Time
	}
	if lastUpdatedAt.Valid {
		a.LastUpdatedAt = &lastUpdatedAt.Time
	}
	if rank.Valid {
		v := int(rank.Int64)
		a.Rank = &v
	}
	return &a, nil
}

func scanArtworks(rows *sql.Rows) ([]Artwork, error) {
	var artworks []Artwork
	for rows.Next() {
		artwork, err := scanArtwork(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artwork row: %w", err)
		}
		artworks = append(artworks, *artwork)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artwork rows: %w", err)
	}
	return artworks, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
