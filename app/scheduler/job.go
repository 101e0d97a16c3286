package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/knosm/pixisync/app/collector"
	"github.com/knosm/pixisync/app/database"
)

// Job is one unit of dispatchable work: a collect type bound to the strategy
// that serves it.
type Job struct {
	ID          string
	CollectType string
	StartedAt   *time.Time

	run func(ctx context.Context) (collector.Result, error)

	// set by the dispatcher for tick-enqueued jobs; cleared on completion
	// so the next tick can enqueue the type again
	tracked bool
}

func (j *Job) Start() {
	now := time.Now()
	j.StartedAt = &now
}

func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	return time.Since(*j.StartedAt)
}

func (j *Job) Execute(ctx context.Context) (collector.Result, error) {
	return j.run(ctx)
}

// NewJob binds a collect type to its strategy. Unknown types are rejected so
// a bad scheduler row cannot enqueue a no-op.
func NewJob(collectType string, c *collector.Collector) (*Job, error) {
	var run func(ctx context.Context) (collector.Result, error)
	switch collectType {
	case database.CollectTypeRanking:
		run = c.RunRankingAll
	case database.CollectTypeFollowSync:
		run = c.SyncFollowList
	case database.CollectTypeFollowWorks:
		run = c.SyncFollowWorks
	case database.CollectTypeUserArtworks:
		run = c.BackfillAllFollows
	case database.CollectTypeUpdateArtworks:
		run = c.RefreshArtworks
	case database.CollectTypeCleanupLogs:
		run = c.CleanupLogs
	default:
		return nil, fmt.Errorf("unknown collect type: %s", collectType)
	}

	return &Job{
		ID:          fmt.Sprintf("%d-%d", time.Now().UnixNano(), rand.Intn(10000)),
		CollectType: collectType,
		run:         run,
	}, nil
}
