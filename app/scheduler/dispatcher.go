// Package scheduler drives the collection strategies on cron schedules. A
// minute tick checks every active scheduler config against its expression
// and enqueues due jobs onto a fixed worker pool; manual triggers enqueue
// the same job objects.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/knosm/pixisync/app/cfg"
	"github.com/knosm/pixisync/app/collector"
	"github.com/knosm/pixisync/app/database"
)

type Dispatcher struct {
	collector *collector.Collector
	schedRepo database.SchedulerConfigRepository

	interval   time.Duration
	runTimeout time.Duration
	workers    int

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	jobQueue chan *Job

	mu        sync.Mutex
	typeLocks map[string]*sync.Mutex
	inFlight  map[string]bool // types queued or running via the tick path
}

func NewDispatcher(c *collector.Collector, schedRepo database.SchedulerConfigRepository) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	config := cfg.Get()

	return &Dispatcher{
		collector:  c,
		schedRepo:  schedRepo,
		interval:   time.Duration(config.TickInterval) * time.Second,
		runTimeout: time.Duration(config.RunTimeout) * time.Minute,
		workers:    config.WorkerCount,
		ctx:        ctx,
		cancel:     cancel,
		jobQueue:   make(chan *Job, 100),
		typeLocks:  make(map[string]*sync.Mutex),
		inFlight:   make(map[string]bool),
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				d.Tick(time.Now().UTC())
			}
		}
	}()

	slog.Info("Dispatcher started", "workers", d.workers, "tick_interval", d.interval.String())
}

// Stop cancels running jobs and waits for the workers to drain. The queue is
// never closed: late Trigger calls get an error instead of a send on a
// closed channel.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
	slog.Info("Dispatcher stopped")
}

// Tick enqueues every active job whose schedule has fired since its last
// run. A job that never ran is due immediately.
func (d *Dispatcher) Tick(now time.Time) {
	configs, err := d.schedRepo.GetAll()
	if err != nil {
		slog.Error("Failed to load scheduler configs", "error", err)
		return
	}

	for _, config := range configs {
		if !config.IsActive {
			continue
		}

		due, err := isDue(config, now)
		if err != nil {
			slog.Warn("Invalid cron expression, skipping",
				"collect_type", config.CollectType, "cron", config.CronExpression, "error", err)
			continue
		}
		if !due {
			continue
		}

		if !d.claim(config.CollectType) {
			slog.Debug("Job already queued or running, skipping", "collect_type", config.CollectType)
			continue
		}

		job, err := NewJob(config.CollectType, d.collector)
		if err != nil {
			d.release(config.CollectType)
			slog.Warn("Unschedulable collect type, skipping", "collect_type", config.CollectType, "error", err)
			continue
		}
		if err := d.enqueue(job, true); err != nil {
			d.release(config.CollectType)
			slog.Warn("Failed to enqueue job", "collect_type", config.CollectType, "error", err)
		}
	}
}

// isDue reports whether the schedule fired between the last run and now.
func isDue(config database.SchedulerConfig, now time.Time) (bool, error) {
	if config.LastRunTime == nil {
		return true, nil
	}
	schedule, err := cron.ParseStandard(config.CronExpression)
	if err != nil {
		return false, err
	}
	return !now.Before(schedule.Next(config.LastRunTime.UTC())), nil
}

// Refresh applies scheduler config edits immediately instead of waiting for
// the next tick.
func (d *Dispatcher) Refresh() {
	d.Tick(time.Now().UTC())
}

// Trigger enqueues a manual run for the given collect type. Manual runs skip
// the due check but still serialize against scheduled runs of the same type.
func (d *Dispatcher) Trigger(collectType string) (*Job, error) {
	job, err := NewJob(collectType, d.collector)
	if err != nil {
		return nil, err
	}
	if err := d.enqueue(job, false); err != nil {
		return nil, err
	}
	return job, nil
}

func (d *Dispatcher) enqueue(job *Job, tracked bool) error {
	job.tracked = tracked
	if d.ctx.Err() != nil {
		return fmt.Errorf("dispatcher stopped: %w", d.ctx.Err())
	}
	select {
	case d.jobQueue <- job:
		return nil
	default:
		return fmt.Errorf("job queue is full")
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case job := <-d.jobQueue:
			d.executeJob(id, job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) executeJob(workerID int, job *Job) {
	lock := d.typeLock(job.CollectType)
	lock.Lock()
	defer lock.Unlock()
	if job.tracked {
		defer d.release(job.CollectType)
	}

	job.Start()
	slog.Info("Job started", "worker_id", workerID, "collect_type", job.CollectType, "id", job.ID)

	jobCtx := d.ctx
	if d.runTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(d.ctx, d.runTimeout)
		defer cancel()
	}

	result, err := job.Execute(jobCtx)
	if err != nil {
		slog.Error("Job failed", "worker_id", workerID, "collect_type", job.CollectType,
			"id", job.ID, "duration", job.Duration().String(), "error", err)
	} else {
		slog.Info("Job completed", "worker_id", workerID, "collect_type", job.CollectType,
			"id", job.ID, "duration", job.Duration().String(),
			"collected", result.Collected, "updated", result.Updated)
	}

	// The run time marks the attempt, not its outcome: a failed run still
	// waits for the next cron fire instead of retrying every tick. Manual
	// triggers are not recorded at all, so they never move the schedule.
	if job.tracked {
		if err := d.schedRepo.SetLastRunTime(job.CollectType, time.Now().UTC()); err != nil {
			slog.Error("Failed to record job run time", "collect_type", job.CollectType, "error", err)
		}
	}
}

func (d *Dispatcher) typeLock(collectType string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.typeLocks[collectType]
	if !ok {
		lock = &sync.Mutex{}
		d.typeLocks[collectType] = lock
	}
	return lock
}

func (d *Dispatcher) claim(collectType string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFlight[collectType] {
		return false
	}
	d.inFlight[collectType] = true
	return true
}

func (d *Dispatcher) release(collectType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, collectType)
}
