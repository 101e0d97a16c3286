package database

import (
	"time"
)

// Provenance values recorded on artworks. The pair (illust_id, page_index)
// stays unique across all of them; provenance only records which traversal
// attributed the row most recently.
const (
	CollectTypeRanking        = "ranking_works"
	CollectTypeFollowSync     = "follow_new_follow"
	CollectTypeFollowWorks    = "follow_new_works"
	CollectTypeUserArtworks   = "follow_user_artworks"
	CollectTypeUpdateArtworks = "update_artworks"
	CollectTypeCleanupLogs    = "clean_up_logs"
)

// Run statuses recorded on collection logs.
const (
	LogStatusRunning = "running"
	LogStatusSuccess = "success"
	LogStatusFailed  = "failed"
)

// Artwork is one page of a remote work. Multi-page works produce one row per
// page, all sharing illust_id.
type Artwork struct {
	ID             int64
	IllustID       int64
	PageIndex      int
	PageCount      int
	AuthorID       int64
	AuthorName     string
	Title          string
	URL            string // image URL for this page
	ShareURL       string
	Tags           []string
	IsR18          bool
	Type           string // illust, manga, ugoira
	CollectType    string
	IsValid        bool
	ErrorMessage   string
	PostDate       *time.Time // UTC
	Rank           *int       // ranking provenance only
	RankDate       *time.Time
	TotalBookmarks int
	TotalView      int
	LastUpdatedAt  *time.Time
	CreatedAt      time.Time
}

// Follow is a tracked creator.
type Follow struct {
	ID               int64
	UserID           int64
	UserName         string
	AvatarURL        string
	FirstCollectDate *time.Time
	LastCollectDate  *time.Time
	LastArtworkDate  *time.Time // monotonically non-decreasing
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CollectionLog is the append-only audit record of one strategy run.
type CollectionLog struct {
	ID            int64
	LogType       string
	Status        string
	Message       string
	ArtworksCount int
	CreatedAt     time.Time
}

// SchedulerConfig is one schedulable job type with its cron expression.
type SchedulerConfig struct {
	ID             int64
	CollectType    string
	CronExpression string
	IsActive       bool
	LastRunTime    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SystemConfig is a typed key/value tunable.
type SystemConfig struct {
	ID          int64
	ConfigKey   string
	ConfigValue string
	ValueType   string // string, integer, float, boolean, datetime
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
