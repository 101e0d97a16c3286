package scheduler

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/knosm/pixisync/app/database"
)

// Built-in schedules used when no jobs file overrides them.
var defaultJobs = []JobConfig{
	{CollectType: database.CollectTypeRanking, Cron: "0 13 * * *", Active: true},
	{CollectType: database.CollectTypeFollowSync, Cron: "0 */6 * * *", Active: true},
	{CollectType: database.CollectTypeFollowWorks, Cron: "0 */1 * * *", Active: true},
	{CollectType: database.CollectTypeUpdateArtworks, Cron: "0 */4 * * *", Active: true},
	{CollectType: database.CollectTypeCleanupLogs, Cron: "0 4 * * *", Active: true},
}

type JobConfig struct {
	CollectType string `yaml:"collect_type"`
	Cron        string `yaml:"cron"`
	Active      bool   `yaml:"active"`
}

type jobsFile struct {
	Jobs []JobConfig `yaml:"jobs"`
}

// SeedJobs inserts scheduler configs that do not exist yet. Existing rows
// are left alone so operator edits survive restarts. The jobs file extends
// or overrides the built-in defaults; a missing file is not an error.
func SeedJobs(repo database.SchedulerConfigRepository, path string) error {
	jobs := defaultJobs

	if path != "" {
		loaded, err := loadJobsFile(path)
		if err != nil {
			return err
		}
		if loaded != nil {
			jobs = mergeJobs(defaultJobs, loaded)
		}
	}

	for _, job := range jobs {
		inserted, err := repo.SeedIfAbsent(job.CollectType, job.Cron, job.Active)
		if err != nil {
			return fmt.Errorf("failed to seed scheduler config %s: %w", job.CollectType, err)
		}
		if inserted {
			slog.Info("Scheduler config seeded", "collect_type", job.CollectType, "cron", job.Cron, "active", job.Active)
		}
	}
	return nil
}

func loadJobsFile(path string) ([]JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("Jobs file not found, using defaults", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read jobs file: %w", err)
	}

	var parsed jobsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse jobs file: %w", err)
	}
	return parsed.Jobs, nil
}

// mergeJobs overlays file entries on the defaults, keyed by collect type.
func mergeJobs(defaults, overrides []JobConfig) []JobConfig {
	merged := make([]JobConfig, len(defaults))
	copy(merged, defaults)

	index := make(map[string]int, len(merged))
	for i, job := range merged {
		index[job.CollectType] = i
	}

	for _, job := range overrides {
		if i, ok := index[job.CollectType]; ok {
			merged[i] = job
		} else {
			merged = append(merged, job)
		}
	}
	return merged
}
