package config

// Config is the full daemon configuration. JSON or YAML on disk; YAML is
// coerced to JSON so both formats share the strict decoder.
type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Session   SessionConfig   `json:"session"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Logging   LoggingConfig   `json:"logging"`
	Pprof     *PprofConfig    `json:"pprof,omitempty"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

// SessionConfig controls the transport session and reconnect policy.
//
// All durations are Go duration strings (e.g. "500ms", "3s", "1m").
type SessionConfig struct {
	// StorePath is the sqlite file holding device credentials.
	StorePath string `json:"store_path"`
	// DeviceName is shown on the paired phone.
	DeviceName string `json:"device_name,omitempty"`
	// ReconnectDelay is the fixed pause before re-dialing after a disconnect.
	ReconnectDelay string `json:"reconnect_delay,omitempty"`
	// Keepalive is a cron spec for presence pings ("" disables).
	Keepalive string `json:"keepalive,omitempty"`
}

type BroadcastConfig struct {
	RatePerSec    int `json:"rate_per_sec,omitempty"`
	MaxLogEntries int `json:"max_log_entries,omitempty"`
	// StopClearDelay is how long the outcome log stays readable after stop.
	StopClearDelay string `json:"stop_clear_delay,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security: prefer binding to localhost (default). If binding to a
// non-loopback address, set Token or enable AllowInsecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// Default returns the built-in configuration used when fields are omitted.
func Default() *Config {
	return &Config{
		HTTP:    HTTPConfig{Addr: "127.0.0.1:8080"},
		Session: SessionConfig{StorePath: "./wablast.db", ReconnectDelay: "3s"},
		Logging: LoggingConfig{Level: "INFO", Console: true},
	}
}
