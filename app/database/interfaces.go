package database

import (
	"time"
)

// InvalidAction controls what happens to pages of a work that the refresh
// strategy found dead or unusable.
type InvalidAction string

const (
	InvalidActionMark   InvalidAction = "mark"   // is_valid=false + reason
	InvalidActionKeep   InvalidAction = "keep"   // keep serving, but flag
	InvalidActionDelete InvalidAction = "delete" // remove every page
)

type ArtworkRepository interface {
	GetByKey(illustID int64, pageIndex int) (*Artwork, error)
	// InsertPages stores the given pages in one transaction, skipping any
	// page whose (illust_id, page_index) already exists. Returns the number
	// of rows actually inserted.
	InsertPages(pages []Artwork) (int, error)
	UpdateCollectType(id int64, collectType string) error

	// GetForUpdate returns valid page-0 rows whose last_updated_at is older
	// than cutoff, oldest first, up to limit.
	GetForUpdate(cutoff time.Time, limit int) ([]Artwork, error)
	PagesByIllustID(illustID int64) ([]Artwork, error)
	// UpdateWorkPages overwrites the mutable metadata fields of every given
	// page in one transaction.
	UpdateWorkPages(pages []Artwork) error
	MarkInvalidAllPages(illustID int64, reason string, action InvalidAction) error
	SetValid(id int64, valid bool, reason string) error

	List(limit, offset int) ([]Artwork, error)
	Count() (int, error)
}

type FollowRepository interface {
	GetByUserID(userID int64) (*Follow, error)
	Insert(follow Follow) (int64, error)
	UpdateProfile(userID int64, userName, avatarURL string) error
	// RaiseLastArtworkDate updates last_artwork_date only if the given value
	// exceeds the stored one.
	RaiseLastArtworkDate(userID int64, artworkDate time.Time) error
	TouchCollected(userID int64, collectedAt time.Time) error

	// List returns follows by recent activity; limit <= 0 means all.
	List(limit, offset int) ([]Follow, error)
	Count() (int, error)
}

type CollectionLogRepository interface {
	Create(logType, message string) (int64, error)
	FinalizeSuccess(id int64, message string, artworksCount int) error
	FinalizeFailure(id int64, message string) error
	GetByID(id int64) (*CollectionLog, error)
	List(limit, offset int) ([]CollectionLog, error)
	DeleteOlderThan(cutoff time.Time) (int, error)
}

type SchedulerConfigRepository interface {
	GetAll() ([]SchedulerConfig, error)
	GetByType(collectType string) (*SchedulerConfig, error)
	// SeedIfAbsent inserts the config only when no row for its collect_type
	// exists yet. Returns whether a row was inserted.
	SeedIfAbsent(collectType, cronExpression string, isActive bool) (bool, error)
	UpdateCron(collectType, cronExpression string, isActive bool) error
	SetLastRunTime(collectType string, runTime time.Time) error
}

type SystemConfigRepository interface {
	GetAll() ([]SystemConfig, error)
	Get(key string) (*SystemConfig, error)
	Set(key, value, valueType string) error
}
