// Package collector implements the collection strategies. Each strategy
// walks one traversal of the remote API, converts works into per-page
// artwork rows and records its outcome in the collection log.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/knosm/pixisync/app/database"
	"github.com/knosm/pixisync/app/pixiv"
	"github.com/knosm/pixisync/app/ratelimit"
	"github.com/knosm/pixisync/app/settings"
)

type Collector struct {
	artworks database.ArtworkRepository
	follows  database.FollowRepository
	logs     database.CollectionLogRepository
	settings *settings.Store
	client   pixiv.Client
	tokens   *pixiv.TokenManager
	limiter  *ratelimit.Limiter
	now      func() time.Time
}

func NewCollector(
	artworks database.ArtworkRepository,
	follows database.FollowRepository,
	logs database.CollectionLogRepository,
	settingsStore *settings.Store,
	client pixiv.Client,
	tokens *pixiv.TokenManager,
	limiter *ratelimit.Limiter,
) *Collector {
	return &Collector{
		artworks: artworks,
		follows:  follows,
		logs:     logs,
		settings: settingsStore,
		client:   client,
		tokens:   tokens,
		limiter:  limiter,
		now:      time.Now,
	}
}

// Result is the outcome of one strategy run. Counts are at artwork-page
// granularity.
type Result struct {
	Collected  int
	Updated    int
	Failed     int
	Invalid    int
	NewUsers   int
	Backlogged int
}

// run wraps fn in a collection log entry: the entry is created as running
// before fn starts and finalized exactly once when fn returns. Failures are
// recorded and then propagated.
func (c *Collector) run(logType string, fn func(logID int64) (Result, string, error)) (Result, error) {
	logID, err := c.logs.Create(logType, "Started")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create collection log: %w", err)
	}

	result, message, err := fn(logID)
	if err != nil {
		if ferr := c.logs.FinalizeFailure(logID, err.Error()); ferr != nil {
			slog.Error("Failed to finalize collection log", "log_id", logID, "error", ferr)
		}
		return result, err
	}

	if ferr := c.logs.FinalizeSuccess(logID, message, result.Collected+result.Updated); ferr != nil {
		slog.Error("Failed to finalize collection log", "log_id", logID, "error", ferr)
	}
	return result, nil
}

// ensureToken refreshes the credential pair when needed. Strategies call it
// before any remote traversal.
func (c *Collector) ensureToken(ctx context.Context) error {
	if _, err := c.tokens.EnsureValid(ctx); err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}
	return nil
}

// remoteCall runs one API call under the limiter: waits out the current
// delay first and queues the error-class penalty when the call fails.
func remoteCall[T any](ctx context.Context, c *Collector, call func() (T, error)) (T, error) {
	var zero T
	if err := c.limiter.Wait(ctx); err != nil {
		return zero, err
	}
	value, err := call()
	if err != nil && !pixiv.IsNotFound(err) {
		c.limiter.HandleError(pixiv.ErrorStatus(err))
	}
	return value, err
}
