package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knosm/pixisync/app/database"
	"github.com/knosm/pixisync/app/pixiv"
	"github.com/knosm/pixisync/app/settings"
)

// SyncFollowList walks the account's follow list newest-first and registers
// creators not seen before. The list is ordered newest-follow-first, so the
// first already-known user means everything after it is known too and the
// walk stops.
func (c *Collector) SyncFollowList(ctx context.Context) (Result, error) {
	return c.run(database.CollectTypeFollowSync, func(logID int64) (Result, string, error) {
		creds, err := c.tokens.EnsureValid(ctx)
		if err != nil {
			return Result{}, "", fmt.Errorf("token refresh failed: %w", err)
		}
		if creds.UserID == 0 {
			return Result{}, "", fmt.Errorf("no remote user id available")
		}

		var result Result
		offset := ""
		pages := 0
		for {
			page, err := remoteCall(ctx, c, func() (*pixiv.FollowingPage, error) {
				return c.client.GetFollowing(ctx, creds.UserID, offset)
			})
			if err != nil {
				if ctx.Err() != nil {
					return result, "", ctx.Err()
				}
				// Keep what was synced so far; the penalty is queued for
				// the next run.
				slog.Error("Follow list fetch failed, stopping early", "error", err)
				break
			}
			if len(page.Users) == 0 {
				break
			}

			stop := false
			for _, user := range page.Users {
				existing, err := c.follows.GetByUserID(user.ID)
				if err != nil {
					return result, "", fmt.Errorf("follow lookup failed: %w", err)
				}
				if existing != nil {
					slog.Debug("Known creator reached, stopping follow sync", "user_id", user.ID)
					stop = true
					break
				}

				now := c.now().UTC()
				if _, err := c.follows.Insert(database.Follow{
					UserID:           user.ID,
					UserName:         user.Name,
					AvatarURL:        user.AvatarURL,
					FirstCollectDate: &now,
				}); err != nil {
					return result, "", fmt.Errorf("failed to register creator %d: %w", user.ID, err)
				}
				result.NewUsers++
				slog.Info("New creator registered", "user_id", user.ID, "user_name", user.Name)
			}

			if stop || page.NextOffset == "" {
				break
			}
			offset = page.NextOffset
			pages++
			if err := c.limiter.BatchWait(ctx, pages); err != nil {
				return result, "", err
			}
		}

		return result, fmt.Sprintf("Synced %d new follows", result.NewUsers), nil
	})
}

// BackfillCreator collects one creator's works back to a cutoff. Fresh
// creators (no LastCollectDate) get a window of backtrackYears before now;
// when their newest work already predates that window the cutoff re-anchors
// to backtrackYears before the newest work, so inactive creators still yield
// history. Creators collected before resume from LastCollectDate and stop at
// the first work already stored.
func (c *Collector) BackfillCreator(ctx context.Context, follow database.Follow, backtrackYears int) (Result, error) {
	return c.run(database.CollectTypeUserArtworks, func(logID int64) (Result, string, error) {
		if err := c.ensureToken(ctx); err != nil {
			return Result{}, "", err
		}
		result, err := c.backfillCreator(ctx, follow, backtrackYears)
		if err != nil {
			return result, "", err
		}
		return result, fmt.Sprintf("Collected %d artworks from %s", result.Collected, follow.UserName), nil
	})
}

func (c *Collector) backfillCreator(ctx context.Context, follow database.Follow, backtrackYears int) (Result, error) {
	window := time.Duration(backtrackYears) * 365 * 24 * time.Hour
	refreshMode := follow.LastCollectDate != nil

	cutoff := c.now().UTC().Add(-window)
	if refreshMode {
		cutoff = follow.LastCollectDate.UTC()
	}

	var result Result
	var maxPostDate *time.Time
	firstSeen := false
	offset := ""
	pages := 0

traversal:
	for {
		page, err := remoteCall(ctx, c, func() (*pixiv.WorksPage, error) {
			return c.client.GetUserWorks(ctx, follow.UserID, offset)
		})
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			slog.Error("Works fetch failed, stopping early",
				"user_id", follow.UserID, "error", err)
			break
		}
		if len(page.Works) == 0 {
			break
		}

		for _, work := range page.Works {
			postDate := work.CreateDate

			// The listing is newest-first, so the first item anchors
			// the window for creators with no recent activity.
			if !firstSeen {
				firstSeen = true
				if !refreshMode && postDate.Before(cutoff) {
					cutoff = postDate.Add(-window)
					slog.Info("Cutoff re-anchored to newest work",
						"user_id", follow.UserID, "cutoff", cutoff)
				}
			}

			if postDate.Before(cutoff) {
				break traversal
			}

			if refreshMode {
				existing, err := c.artworks.GetByKey(work.ID, 0)
				if err != nil {
					return result, fmt.Errorf("artwork lookup failed: %w", err)
				}
				if existing != nil {
					break traversal
				}
			}

			if maxPostDate == nil || postDate.After(*maxPostDate) {
				maxPostDate = &postDate
			}

			inserted, err := c.artworks.InsertPages(workPages(work, database.CollectTypeUserArtworks, nil, nil))
			if err != nil {
				return result, fmt.Errorf("failed to store work %d: %w", work.ID, err)
			}
			result.Collected += inserted
		}

		if page.NextOffset == "" {
			break
		}
		offset = page.NextOffset
		pages++
		if err := c.limiter.BatchWait(ctx, pages); err != nil {
			return result, err
		}
	}

	now := c.now().UTC()
	if maxPostDate != nil {
		if err := c.follows.RaiseLastArtworkDate(follow.UserID, *maxPostDate); err != nil {
			return result, fmt.Errorf("failed to update last artwork date: %w", err)
		}
	}
	if err := c.follows.TouchCollected(follow.UserID, now); err != nil {
		return result, fmt.Errorf("failed to update collect dates: %w", err)
	}

	slog.Info("Creator backfill finished",
		"user_id", follow.UserID, "user_name", follow.UserName, "pages", result.Collected)
	return result, nil
}

// BackfillAllFollows runs BackfillCreator over every registered creator.
// Failures are collected per creator instead of aborting the batch.
func (c *Collector) BackfillAllFollows(ctx context.Context) (Result, error) {
	return c.run(database.CollectTypeUserArtworks, func(logID int64) (Result, string, error) {
		backtrackYears := c.settings.GetInt(settings.KeyBacktrackYears, 2)

		follows, err := c.follows.List(0, 0)
		if err != nil {
			return Result{}, "", fmt.Errorf("failed to list follows: %w", err)
		}

		var result Result
		var failedUsers []string
		for _, follow := range follows {
			if ctx.Err() != nil {
				return result, "", ctx.Err()
			}
			sub, err := c.BackfillCreator(ctx, follow, backtrackYears)
			result.Collected += sub.Collected
			if err != nil {
				slog.Error("Creator backfill failed", "user_name", follow.UserName, "error", err)
				failedUsers = append(failedUsers, follow.UserName)
			}
		}

		message := fmt.Sprintf("Collected %d artworks from %d/%d creators",
			result.Collected, len(follows)-len(failedUsers), len(follows))
		if len(failedUsers) > 0 {
			message += ", failed: " + strings.Join(failedUsers, ", ")
		}
		return result, message, nil
	})
}
