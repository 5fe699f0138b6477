package config

// Config is the on-disk configuration of a flushq process. Files may be
// JSON or YAML; unknown keys are rejected.
type Config struct {
	Engine  EngineConfig   `json:"engine"`
	Handler HandlerConfig  `json:"handler"`
	Logging LoggingConfig  `json:"logging"`
	Storage *StorageConfig `json:"storage,omitempty"`
	HTTP    *HTTPConfig    `json:"http,omitempty"`
}

// EngineConfig controls the flush engine.
//
// Defaults (when fields are omitted):
//   - fire_and_forget: true
//   - flush_every: "30s"
//   - max_parallel: 0 (unbounded)
//
// FireAndForget is a pointer so we can distinguish "omitted" from an
// explicit false.
type EngineConfig struct {
	FireAndForget *bool `json:"fire_and_forget,omitempty"`

	// FlushEvery is a Go duration ("30s"), HH:MM ("00:05"), or a cron
	// expression ("*/5 * * * *", "@hourly"). "0s" disables periodic flushing.
	FlushEvery string `json:"flush_every,omitempty"`

	// Timezone applies to cron schedules. Empty means local time.
	Timezone string `json:"timezone,omitempty"`

	MaxParallel int `json:"max_parallel,omitempty"`
}

// HandlerConfig binds the engine to external commands.
//
// Each command is an argv list; the payload is written to its stdin and a
// non-zero exit counts as a failed attempt.
//
// Example:
//
//	"handler": { "mode": "broadcast", "commands": [["sh", "-c", "cat >> out.log"]] }
type HandlerConfig struct {
	Mode     string     `json:"mode,omitempty"` // single | multicast | broadcast
	Commands [][]string `json:"commands"`
	// Timeout bounds each command run. Empty means no limit.
	Timeout Duration `json:"timeout,omitempty"`
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

// StorageConfig controls the item journal.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./flushq_store" }
type StorageConfig struct {
	Driver      string   `json:"driver"`
	Path        string   `json:"path"`
	BusyTimeout Duration `json:"busy_timeout,omitempty"` // sqlite only
	Buffer      int      `json:"buffer,omitempty"`
}

// HTTPConfig controls the HTTP API. The server is off unless Addr is set.
type HTTPConfig struct {
	Addr        string   `json:"addr"`
	Metrics     bool     `json:"metrics,omitempty"`
	ReadTimeout Duration `json:"read_timeout,omitempty"`
	IdleTimeout Duration `json:"idle_timeout,omitempty"`
}
