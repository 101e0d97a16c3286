package collector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knosm/pixisync/app/database"
	"github.com/knosm/pixisync/app/pixiv"
)

// CollectRanking fetches one ranking board and stores its works with ranking
// provenance. An empty board is treated as a failed run.
func (c *Collector) CollectRanking(ctx context.Context, mode string) (Result, error) {
	return c.run(database.CollectTypeRanking, func(logID int64) (Result, string, error) {
		if err := c.ensureToken(ctx); err != nil {
			return Result{}, "", err
		}

		page, err := remoteCall(ctx, c, func() (*pixiv.WorksPage, error) {
			return c.client.GetRanking(ctx, mode)
		})
		if err != nil {
			return Result{}, "", fmt.Errorf("ranking fetch (%s) failed: %w", mode, err)
		}
		if len(page.Works) == 0 {
			return Result{}, "", fmt.Errorf("ranking (%s) returned no works", mode)
		}

		rankDate := c.now().UTC()
		seen := make(map[int64]bool, len(page.Works))
		var result Result
		for _, work := range page.Works {
			if seen[work.ID] {
				continue
			}
			seen[work.ID] = true

			rank := work.Rank
			inserted, err := c.artworks.InsertPages(workPages(work, database.CollectTypeRanking, &rank, &rankDate))
			if err != nil {
				return result, "", fmt.Errorf("failed to store ranking work %d: %w", work.ID, err)
			}
			result.Collected += inserted
		}

		slog.Info("Ranking collected", "mode", mode, "works", len(seen), "pages", result.Collected)
		return result, fmt.Sprintf("Collected %d artworks from %s ranking", result.Collected, mode), nil
	})
}

// RunRankingAll collects the day, week and month boards one after another.
// A failing board does not stop the remaining ones; each board gets its own
// log entry.
func (c *Collector) RunRankingAll(ctx context.Context) (Result, error) {
	var total Result
	var firstErr error
	for _, mode := range []string{pixiv.RankingDay, pixiv.RankingWeek, pixiv.RankingMonth} {
		result, err := c.CollectRanking(ctx, mode)
		total.Collected += result.Collected
		if err != nil {
			slog.Error("Ranking mode failed", "mode", mode, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
		}
	}
	return total, firstErr
}
