package config

import (
	"testing"
	"time"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TASK_QUEUE", "detection.tasks")
	t.Setenv("TASK_COMPLETED_QUEUE", "detection.completed")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "detection.tasks", cfg.TaskQueue)
	assert.Equal(t, 5, cfg.FrameBatch)
	assert.Equal(t, 20, cfg.FrameMax)
	assert.Equal(t, 600*time.Second, cfg.VisibilityTimeout)
	assert.Equal(t, 300*time.Second, cfg.RenewInterval())
	assert.Equal(t, "./tmp.mov", cfg.StagingFile)
	assert.Equal(t, "text", cfg.CompletionFormat)
	assert.Equal(t, 1.0, cfg.TraceSampleRatio)
	assert.Equal(t, "classic", cfg.QueueType)
}

func TestLoadMissingQueues(t *testing.T) {
	t.Setenv("TASK_QUEUE", "detection.tasks")
	t.Setenv("TASK_COMPLETED_QUEUE", "")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrConfig)
	assert.Contains(t, err.Error(), "TASK_COMPLETED_QUEUE")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			TaskQueue:          "a",
			TaskCompletedQueue: "b",
			FrameBatch:         5,
			FrameMax:           20,
			VisibilityTimeout:  time.Minute,
			CompletionFormat:   "json",
			QueueType:          "quorum",
		}
	}
	require.NoError(t, valid().Validate())

	for name, mutate := range map[string]func(*Config){
		"empty queue":    func(c *Config) { c.TaskQueue = "" },
		"zero batch":     func(c *Config) { c.FrameBatch = 0 },
		"negative max":   func(c *Config) { c.FrameMax = -1 },
		"no visibility":  func(c *Config) { c.VisibilityTimeout = 0 },
		"renew too long": func(c *Config) { c.LeaseRenewInterval = 2 * time.Minute },
		"unknown format": func(c *Config) { c.CompletionFormat = "xml" },
		"ratio over 1":   func(c *Config) { c.TraceSampleRatio = 1.5 },
		"queue type":     func(c *Config) { c.QueueType = "stream" },
	} {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.ErrorIs(t, c.Validate(), entity.ErrConfig)
		})
	}
}
