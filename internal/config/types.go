package config

// Config is the full on-disk configuration. YAML and JSON are both accepted;
// YAML is coerced to JSON before strict decoding so unknown keys are rejected
// in either format.
//
// VAPID credentials deliberately live in the environment, not here, so config
// files stay safe to commit and to log.
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Storage controls the optional persistence layer. Nil means disabled:
	// subscriptions live only in memory and no delivery history is kept.
	Storage *StorageConfig `json:"storage,omitempty"`

	Push      PushConfig      `json:"push,omitempty"`
	Dispatch  DispatchConfig  `json:"dispatch,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Profiles  ProfilesConfig  `json:"profiles"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./nutripush_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PushConfig tunes the web push client. TTL is a Go duration string
// (e.g. "1h", "24h"); zero keeps the client default.
type PushConfig struct {
	TTL string `json:"ttl,omitempty"`
}

// DispatchConfig tunes the delivery engine.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - rate_per_sec: 20
//   - bulk_timeout: "0s" (disabled)
type DispatchConfig struct {
	Workers    int    `json:"workers,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	// BulkTimeout is a Go duration string bounding one bulk send.
	// Use "0s" to disable the deadline.
	BulkTimeout string `json:"bulk_timeout,omitempty"`
}

// SchedulerConfig controls the trigger loop.
//
// Rules remaps a built-in rule's firing time by name; the value is either
// "HH:MM" (fires daily at that wall-clock time) or a standard cron spec.
// An entry naming an unknown rule is a config error.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Tick is a Go duration string (e.g. "30s", "1m"). Default "1m".
	Tick      string            `json:"tick,omitempty"`
	Timezone  string            `json:"timezone,omitempty"`
	Workers   int               `json:"workers,omitempty"`
	QueueSize int               `json:"queue_size,omitempty"`
	Rules     map[string]string `json:"rules,omitempty"`
}

// ProfilesConfig points at the user profile file (preferences + quiet hours).
type ProfilesConfig struct {
	Path string `json:"path"`
}

// MetricsConfig points at the pre-aggregated food/exercise log used by the
// summary rules.
type MetricsConfig struct {
	Path string `json:"path"`
}
