package app

import (
	"fmt"
	"strings"
	"time"

	"nutripush/internal/config"
	"nutripush/internal/dispatch"
	"nutripush/internal/push"
	"nutripush/internal/schedule"
	"nutripush/internal/storage"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.TrimSpace(sc.Driver)
	if driver == "" || strings.EqualFold(driver, "none") {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	dl := strings.ToLower(driver)
	switch dl {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 1*time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: dl, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", driver)
	}
}

func mapPushConfig(cfg *config.Config) (push.Config, error) {
	ttl, err := config.ParseDurationField("push.ttl", cfg.Push.TTL)
	if err != nil {
		return push.Config{}, err
	}
	return push.Config{TTL: ttl}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	if cfg.Dispatch.Workers < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.workers must be >= 0")
	}
	if cfg.Dispatch.RatePerSec < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.rate_per_sec must be >= 0")
	}
	bulk, err := config.ParseDurationField("dispatch.bulk_timeout", cfg.Dispatch.BulkTimeout)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		Workers:     cfg.Dispatch.Workers,
		RatePerSec:  cfg.Dispatch.RatePerSec,
		BulkTimeout: bulk,
	}, nil
}

func mapScheduleConfig(cfg *config.Config) (schedule.Config, error) {
	if cfg.Scheduler.Workers < 0 {
		return schedule.Config{}, fmt.Errorf("scheduler.workers must be >= 0")
	}
	if cfg.Scheduler.QueueSize < 0 {
		return schedule.Config{}, fmt.Errorf("scheduler.queue_size must be >= 0")
	}
	tick, err := config.ParseDurationOrDefault("scheduler.tick", cfg.Scheduler.Tick, time.Minute)
	if err != nil {
		return schedule.Config{}, err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return schedule.Config{}, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	return schedule.Config{
		Enabled:   cfg.Scheduler.Enabled,
		Tick:      tick,
		Timezone:  strings.TrimSpace(cfg.Scheduler.Timezone),
		Workers:   cfg.Scheduler.Workers,
		QueueSize: cfg.Scheduler.QueueSize,
		Overrides: cfg.Scheduler.Rules,
	}, nil
}
