package config

import "time"

// Config is the top-level adp configuration, corresponding to .adp.yml.
type Config struct {
	Database DatabaseConfig `yaml:"database" koanf:"database"`
	Server   ServerConfig   `yaml:"server" koanf:"server"`
	Trace    TraceConfig    `yaml:"trace" koanf:"trace"`
	Session  SessionConfig  `yaml:"session" koanf:"session"`
	Log      LogConfig      `yaml:"log" koanf:"log"`
	MCP      MCPConfig      `yaml:"mcp" koanf:"mcp"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path" koanf:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" koanf:"port"`
	AllowAllOrigins bool          `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
}

// TraceConfig tunes the audit chain.
type TraceConfig struct {
	AppendRetries int `yaml:"append_retries" koanf:"append_retries"`
	RecentLimit   int `yaml:"recent_limit" koanf:"recent_limit"`
	VerifyLimit   int `yaml:"verify_limit" koanf:"verify_limit"`
}

// SessionConfig controls user sessions issued from the CLI.
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl" koanf:"ttl"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}

// MCPConfig holds the credentials the MCP server falls back to when a call
// carries none. Prefer ADP_MCP__API_KEY over writing keys to disk.
type MCPConfig struct {
	APIKey       string `yaml:"api_key,omitempty" koanf:"api_key"`
	SessionToken string `yaml:"session_token,omitempty" koanf:"session_token"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: ".adp/adp.db"},
		Server: ServerConfig{
			Port:           8080,
			RequestTimeout: 60 * time.Second,
		},
		Trace: TraceConfig{
			AppendRetries: 8,
			RecentLimit:   50,
			VerifyLimit:   1000,
		},
		Session: SessionConfig{TTL: 24 * time.Hour},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}
