package config

import (
	"reflect"
	"sort"
	"strings"

	logx "nutripush/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Paths are logged, secrets never are (the
// config carries none, credentials live in the environment).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Logging
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage (nil means disabled)
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oBusy = strings.TrimSpace(oldCfg.Storage.BusyTimeout)
		oPathSet = strings.TrimSpace(oldCfg.Storage.Path) != ""
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nBusy = strings.TrimSpace(newCfg.Storage.BusyTimeout)
		nPathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	// Push
	if strings.TrimSpace(oldCfg.Push.TTL) != strings.TrimSpace(newCfg.Push.TTL) {
		changed = append(changed, "push")
		attrs = append(attrs,
			logx.String("push.ttl", strings.TrimSpace(newCfg.Push.TTL)),
		)
	}

	// Dispatch
	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Int("dispatch.workers", newCfg.Dispatch.Workers),
			logx.Int("dispatch.rate_per_sec", newCfg.Dispatch.RatePerSec),
			logx.String("dispatch.bulk_timeout", strings.TrimSpace(newCfg.Dispatch.BulkTimeout)),
		)
	}

	// Scheduler (rule overrides included)
	if oldCfg.Scheduler.Enabled != newCfg.Scheduler.Enabled ||
		strings.TrimSpace(oldCfg.Scheduler.Tick) != strings.TrimSpace(newCfg.Scheduler.Tick) ||
		strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) ||
		oldCfg.Scheduler.Workers != newCfg.Scheduler.Workers ||
		oldCfg.Scheduler.QueueSize != newCfg.Scheduler.QueueSize ||
		!reflect.DeepEqual(oldCfg.Scheduler.Rules, newCfg.Scheduler.Rules) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.tick", strings.TrimSpace(newCfg.Scheduler.Tick)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Int("scheduler.rule_overrides", len(newCfg.Scheduler.Rules)),
		)
	}

	// Profiles / Metrics (path moves matter for reload)
	if strings.TrimSpace(oldCfg.Profiles.Path) != strings.TrimSpace(newCfg.Profiles.Path) {
		changed = append(changed, "profiles")
		attrs = append(attrs,
			logx.Bool("profiles.path_set", strings.TrimSpace(newCfg.Profiles.Path) != ""),
		)
	}
	if strings.TrimSpace(oldCfg.Metrics.Path) != strings.TrimSpace(newCfg.Metrics.Path) {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.path_set", strings.TrimSpace(newCfg.Metrics.Path) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
