package pixiv

import (
	"time"
)

// Work types reported by the platform.
const (
	WorkTypeIllust = "illust"
	WorkTypeManga  = "manga"
	WorkTypeUgoira = "ugoira"
)

// Ranking modes accepted by GetRanking.
const (
	RankingDay   = "day"
	RankingWeek  = "week"
	RankingMonth = "month"
)

// User is the creator reference embedded in works and follow entries.
type User struct {
	ID        int64
	Name      string
	AvatarURL string
}

// Work is one creative submission as returned by list endpoints. Multi-page
// works carry one image URL per page in PageImageURLs; single-page works
// leave it empty and use ImageURL.
type Work struct {
	ID             int64
	Title          string
	Type           string
	User           User
	CreateDate     time.Time // UTC
	PageCount      int
	Tags           []string
	ImageURL       string
	PageImageURLs  []string
	TotalBookmarks int
	TotalView      int
	Rank           int // 0 when the item did not come from a ranking
}

// WorkDetail is the per-work detail response.
type WorkDetail struct {
	Work Work
}

// WorksPage is one page of a work listing. NextOffset is an opaque cursor;
// empty means no further page.
type WorksPage struct {
	Works      []Work
	NextOffset string
}

// FollowingPage is one page of the follow list.
type FollowingPage struct {
	Users      []User
	NextOffset string
}

// Credentials is the token triple the engine operates with.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	UserID       int64
}
