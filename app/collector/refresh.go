package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/knosm/pixisync/app/database"
	"github.com/knosm/pixisync/app/pixiv"
	"github.com/knosm/pixisync/app/settings"
)

// Extra limiter pause after this many refreshed items.
const refreshPaceEvery = 20

// RefreshArtworks re-fetches detail for the stalest stored works and
// overwrites their mutable metadata. Works the remote no longer serves, or
// that come back without a usable image URL, fall under the configured
// invalid policy.
func (c *Collector) RefreshArtworks(ctx context.Context) (Result, error) {
	return c.run(database.CollectTypeUpdateArtworks, func(logID int64) (Result, string, error) {
		if err := c.ensureToken(ctx); err != nil {
			return Result{}, "", err
		}

		intervalDays := c.settings.GetInt(settings.KeyUpdateIntervalDays, 30)
		maxPerRun := c.settings.GetInt(settings.KeyUpdateMaxPerRun, 200)
		action := database.InvalidAction(c.settings.GetString(settings.KeyInvalidAction, string(database.InvalidActionMark)))

		cutoff := c.now().UTC().AddDate(0, 0, -intervalDays)
		stale, err := c.artworks.GetForUpdate(cutoff, maxPerRun)
		if err != nil {
			return Result{}, "", fmt.Errorf("failed to select stale artworks: %w", err)
		}
		if len(stale) == 0 {
			return Result{}, "No artwork metadata needs updating", nil
		}

		var result Result
		seen := make(map[int64]bool, len(stale))
		for i, artwork := range stale {
			if ctx.Err() != nil {
				return result, "", ctx.Err()
			}
			if seen[artwork.IllustID] {
				result.Updated++
				continue
			}
			seen[artwork.IllustID] = true

			switch err := c.refreshWork(ctx, artwork.IllustID, action); {
			case err == nil:
				result.Updated++
			case pixiv.IsNotFound(err):
				if merr := c.artworks.MarkInvalidAllPages(artwork.IllustID, "Artwork not found", action); merr != nil {
					return result, "", merr
				}
				result.Invalid++
			case isInvalidWork(err):
				if merr := c.artworks.MarkInvalidAllPages(artwork.IllustID, err.Error(), action); merr != nil {
					return result, "", merr
				}
				result.Invalid++
			default:
				slog.Error("Failed to refresh artwork", "illust_id", artwork.IllustID, "error", err)
				result.Failed++
			}

			if (i+1)%refreshPaceEvery == 0 {
				if err := c.limiter.Wait(ctx); err != nil {
					return result, "", err
				}
				slog.Info("Refresh progress", "processed", i+1, "total", len(stale))
			}
		}

		message := fmt.Sprintf("Updated %d artworks, failed %d, marked %d as invalid. Processed %d total.",
			result.Updated, result.Failed, result.Invalid, len(stale))
		return result, message, nil
	})
}

// errInvalidWork marks works whose detail came back unusable.
type errInvalidWork struct{ reason string }

func (e *errInvalidWork) Error() string { return e.reason }

func isInvalidWork(err error) bool {
	var target *errInvalidWork
	return errors.As(err, &target)
}

func (c *Collector) refreshWork(ctx context.Context, illustID int64, action database.InvalidAction) error {
	detail, err := remoteCall(ctx, c, func() (*pixiv.WorkDetail, error) {
		return c.client.GetWorkDetail(ctx, illustID)
	})
	if err != nil {
		return err
	}

	work := detail.Work
	if work.ImageURL == "" && len(work.PageImageURLs) == 0 {
		return &errInvalidWork{reason: "No valid image URL"}
	}

	stored, err := c.artworks.PagesByIllustID(illustID)
	if err != nil {
		return fmt.Errorf("failed to load stored pages: %w", err)
	}
	if len(stored) == 0 {
		return nil
	}

	now := c.now().UTC()
	for i := range stored {
		page := &stored[i]
		page.Title = work.Title
		page.AuthorID = work.User.ID
		page.AuthorName = work.User.Name
		page.PageCount = work.PageCount
		page.TotalBookmarks = work.TotalBookmarks
		page.TotalView = work.TotalView
		page.ShareURL = shareURL(illustID)
		page.Tags = work.Tags
		page.IsR18 = isR18(work.Tags)
		page.URL = pageImageURL(work, page.PageIndex)
		page.IsValid = true
		page.ErrorMessage = ""
		page.LastUpdatedAt = &now
	}

	if err := c.artworks.UpdateWorkPages(stored); err != nil {
		return fmt.Errorf("failed to update pages: %w", err)
	}
	return nil
}

// pageImageURL picks the stored page's fresh URL: per-page for multi-page
// works, the work-level URL otherwise.
func pageImageURL(work pixiv.Work, pageIndex int) string {
	if pageIndex < len(work.PageImageURLs) {
		return work.PageImageURLs[pageIndex]
	}
	return work.ImageURL
}

// CleanupLogs deletes collection log entries past the retention window.
// Runs without touching the remote API.
func (c *Collector) CleanupLogs(ctx context.Context) (Result, error) {
	return c.run(database.CollectTypeCleanupLogs, func(logID int64) (Result, string, error) {
		retentionDays := c.settings.GetInt(settings.KeyLogRetentionDays, 90)
		cutoff := c.now().UTC().AddDate(0, 0, -retentionDays)

		deleted, err := c.logs.DeleteOlderThan(cutoff)
		if err != nil {
			return Result{}, "", fmt.Errorf("failed to delete old logs: %w", err)
		}

		return Result{Updated: deleted}, fmt.Sprintf("Deleted %d old logs", deleted), nil
	})
}
