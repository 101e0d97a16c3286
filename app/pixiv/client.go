package pixiv

import (
	"context"
)

// Client is the remote platform capability the collection engine consumes.
// Offsets are opaque cursor strings taken from a previous page's NextOffset;
// "" requests the first page. Implementations return *RemoteError for
// transient platform failures so callers can classify them.
type Client interface {
	// RefreshTokens exchanges the refresh token for a new credential pair.
	RefreshTokens(ctx context.Context) (Credentials, error)
	// VerifyToken performs one cheap authenticated call.
	VerifyToken(ctx context.Context) error

	GetRanking(ctx context.Context, mode string) (*WorksPage, error)
	GetFollowing(ctx context.Context, userID int64, offset string) (*FollowingPage, error)
	GetUserWorks(ctx context.Context, userID int64, offset string) (*WorksPage, error)
	GetFollowedWorks(ctx context.Context, offset string) (*WorksPage, error)
	GetWorkDetail(ctx context.Context, illustID int64) (*WorkDetail, error)
}
