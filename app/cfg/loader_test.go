package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersion(t *testing.T) {
	assert.NotEmpty(t, GetVersion(), "GetVersion should never return empty string")
}

func TestConfigFields(t *testing.T) {
	cfg := &Cfg{
		DBPath:       "./test.db",
		Port:         "8080",
		WorkerCount:  2,
		TickInterval: 60,
		RunTimeout:   120,
		APIAccessKey: "test-key",
		JobsFile:     "./jobs.yml",
		UserAgent:    "Test Agent",
		Timezone:     "UTC",
		Debug:        true,
		Version:      "test-version",
	}

	assert.Equal(t, "./test.db", cfg.DBPath)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, 60, cfg.TickInterval)
	assert.Equal(t, 120, cfg.RunTimeout)
	assert.Equal(t, "test-key", cfg.APIAccessKey)
	assert.Equal(t, "./jobs.yml", cfg.JobsFile)
	assert.Equal(t, "Test Agent", cfg.UserAgent)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "test-version", cfg.Version)
}

func TestApplyTimezone(t *testing.T) {
	assert.NoError(t, applyTimezone("UTC"))
	assert.Error(t, applyTimezone("Not/AZone"))
}
