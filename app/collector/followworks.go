package collector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knosm/pixisync/app/database"
	"github.com/knosm/pixisync/app/pixiv"
	"github.com/knosm/pixisync/app/settings"
)

// SyncFollowWorks walks the followed-creators feed newest-first and stores
// unseen works. The feed is cumulative, so reaching a work already collected
// from a follow traversal means the rest of the feed is collected too and
// the walk stops. Works first seen on a ranking board are reclassified to
// feed provenance and their creator is still refreshed, though the rows
// themselves are not re-inserted. Creators appearing in the feed for the
// first time are registered and their history backfilled in a nested run.
func (c *Collector) SyncFollowWorks(ctx context.Context) (Result, error) {
	return c.run(database.CollectTypeFollowWorks, func(logID int64) (Result, string, error) {
		if err := c.ensureToken(ctx); err != nil {
			return Result{}, "", err
		}

		backtrackYears := c.settings.GetInt(settings.KeyBacktrackYears, 2)

		var result Result
		offset := ""
		pages := 0

	traversal:
		for {
			page, err := remoteCall(ctx, c, func() (*pixiv.WorksPage, error) {
				return c.client.GetFollowedWorks(ctx, offset)
			})
			if err != nil {
				if ctx.Err() != nil {
					return result, "", ctx.Err()
				}
				slog.Error("Follow feed fetch failed, stopping early", "error", err)
				break
			}
			if len(page.Works) == 0 {
				break
			}

			for _, work := range page.Works {
				process, stop, err := c.classifyFeedWork(work.ID)
				if err != nil {
					return result, "", err
				}
				if stop {
					break traversal
				}
				if !process {
					continue
				}

				newUser, backlogged, err := c.registerFeedCreator(ctx, work, backtrackYears)
				if err != nil {
					return result, "", err
				}
				if newUser {
					result.NewUsers++
				}
				result.Backlogged += backlogged

				inserted, err := c.artworks.InsertPages(workPages(work, database.CollectTypeFollowWorks, nil, nil))
				if err != nil {
					return result, "", fmt.Errorf("failed to store work %d: %w", work.ID, err)
				}
				result.Collected += inserted
			}

			if page.NextOffset == "" {
				break
			}
			offset = page.NextOffset
			pages++
			if err := c.limiter.BatchWait(ctx, pages); err != nil {
				return result, "", err
			}
		}

		message := fmt.Sprintf("Collected %d new artworks from follows", result.Collected)
		if result.NewUsers > 0 {
			message += fmt.Sprintf(", found %d new users", result.NewUsers)
		}
		if result.Backlogged > 0 {
			message += fmt.Sprintf(", backlogged %d artworks", result.Backlogged)
		}
		return result, message, nil
	})
}

// classifyFeedWork decides what the feed walk does with a work based on the
// provenance of its stored page 0, if any.
func (c *Collector) classifyFeedWork(illustID int64) (process, stop bool, err error) {
	existing, err := c.artworks.GetByKey(illustID, 0)
	if err != nil {
		return false, false, fmt.Errorf("artwork lookup failed: %w", err)
	}
	if existing == nil {
		return true, false, nil
	}

	switch existing.CollectType {
	case database.CollectTypeFollowWorks, database.CollectTypeUserArtworks:
		// Already reached by a follow traversal: everything older is stored.
		slog.Debug("Known feed work reached, stopping", "illust_id", illustID)
		return false, true, nil
	case database.CollectTypeRanking:
		if err := c.artworks.UpdateCollectType(existing.ID, database.CollectTypeFollowWorks); err != nil {
			return false, false, fmt.Errorf("failed to reclassify work %d: %w", illustID, err)
		}
		slog.Debug("Ranking work reclassified to follow feed", "illust_id", illustID)
		// The creator still gets registered and refreshed; the page insert
		// dedups against the reclassified row.
		return true, false, nil
	default:
		return false, false, nil
	}
}

// registerFeedCreator updates the stored creator for a feed work, creating
// and backfilling creators seen for the first time. The nested backfill is
// failure-isolated: its error only logs, the feed walk goes on.
func (c *Collector) registerFeedCreator(ctx context.Context, work pixiv.Work, backtrackYears int) (newUser bool, backlogged int, err error) {
	follow, err := c.follows.GetByUserID(work.User.ID)
	if err != nil {
		return false, 0, fmt.Errorf("follow lookup failed: %w", err)
	}

	if follow != nil {
		if err := c.follows.UpdateProfile(work.User.ID, work.User.Name, work.User.AvatarURL); err != nil {
			return false, 0, fmt.Errorf("failed to update creator profile: %w", err)
		}
		if err := c.follows.RaiseLastArtworkDate(work.User.ID, work.CreateDate); err != nil {
			return false, 0, fmt.Errorf("failed to update last artwork date: %w", err)
		}
		if err := c.follows.TouchCollected(work.User.ID, c.now().UTC()); err != nil {
			return false, 0, fmt.Errorf("failed to update collect dates: %w", err)
		}
		return false, 0, nil
	}

	now := c.now().UTC()
	created := database.Follow{
		UserID:           work.User.ID,
		UserName:         work.User.Name,
		AvatarURL:        work.User.AvatarURL,
		FirstCollectDate: &now,
	}
	if _, err := c.follows.Insert(created); err != nil {
		return false, 0, fmt.Errorf("failed to register creator %d: %w", work.User.ID, err)
	}
	slog.Info("New creator found in feed", "user_id", work.User.ID, "user_name", work.User.Name)

	sub, err := c.BackfillCreator(ctx, created, backtrackYears)
	if err != nil {
		slog.Error("History backfill failed", "user_name", work.User.Name, "error", err)
		if ctx.Err() != nil {
			return true, sub.Collected, ctx.Err()
		}
	}
	return true, sub.Collected, nil
}
