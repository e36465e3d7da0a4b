package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenPort      string        // ex: "127.0.0.1:8787"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// CouchDB
	CouchURL      string        // base endpoint including database, ex: http://host:5984/tabula
	CouchUser     string        // Basic-auth username
	CouchPassword string        // Basic-auth password
	ProbeInterval time.Duration // periodic connectivity probe interval (default: 30s)
	ProbeTimeout  time.Duration // hard timeout for a single probe (default: 8s)

	// Redis (local durable storage). Empty addr => in-memory storage,
	// nothing survives a restart.
	RedisAddr           string
	RedisUser           string
	RedisPassword       string
	RedisDB             int
	RedisDT             time.Duration // dial timeout
	RedisRT             time.Duration // read timeout
	RedisWT             time.Duration // write timeout
	RedisPoolSize       int
	RedisConnectTimeout time.Duration
	RedisRetryInterval  time.Duration
	RedisMaxWait        time.Duration
	RedisPingTimeout    time.Duration

	AllowedOrigins []string // extension origins allowed through CORS
	AllowedCIDRS   []string // IPs allowed to call the API (default: loopback)
}

// fileConfig mirrors the YAML overlay. Env vars still win over the file.
type fileConfig struct {
	ListenPort    string   `yaml:"listen_port"`
	LogLevel      string   `yaml:"log_level"`
	CouchURL      string   `yaml:"couch_url"`
	CouchUser     string   `yaml:"couch_user"`
	CouchPassword string   `yaml:"couch_password"`
	ProbeInterval string   `yaml:"probe_interval"`
	RedisAddr     string   `yaml:"redis_addr"`
	Origins       []string `yaml:"allowed_origins"`
}

func Load() *Config {
	file := loadFile(os.Getenv("TABULA_CONFIG_FILE"))

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("TABULA_LISTEN_PORT", fileOr(file.ListenPort, "127.0.0.1:8787")),
		ShutdownTimeout: mustDuration("TABULA_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("TABULA_LOG_LEVEL", fileOr(file.LogLevel, "info")),
		PrettyLog: mustBool("TABULA_PRETTY_LOG", true),

		// CouchDB
		CouchURL:      getenv("TABULA_COUCH_URL", file.CouchURL),
		CouchUser:     getenv("TABULA_COUCH_USER", file.CouchUser),
		CouchPassword: getenv("TABULA_COUCH_PASSWORD", file.CouchPassword),
		ProbeInterval: mustDuration("TABULA_PROBE_INTERVAL", fileDuration(file.ProbeInterval, 30*time.Second)),
		ProbeTimeout:  mustDuration("TABULA_PROBE_TIMEOUT", 8*time.Second),

		// Redis settings
		RedisAddr:           getenv("TABULA_REDIS_ADDR", file.RedisAddr),
		RedisUser:           getenv("TABULA_REDIS_USERNAME", "default"),
		RedisPassword:       getenv("TABULA_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("TABULA_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),

		// Access restrictions
		AllowedOrigins: splitOr(getenv("TABULA_ALLOWED_ORIGINS", ""), file.Origins),
		AllowedCIDRS:   splitAndTrim(getenv("TABULA_ALLOWED_CIDRS", "127.0.0.1/32,::1/128")),
	}

	if cfg.CouchURL == "" {
		panic("❌ FATAL: TABULA_COUCH_URL is not set (env or config file)")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.CouchPassword = "***REDACTED***"
		cfgCopy.RedisPassword = "***REDACTED***"
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// loadFile parses the optional YAML overlay. A missing path is fine; a
// present but unreadable file is fatal so a typo never silently falls back.
func loadFile(path string) fileConfig {
	var fc fileConfig
	if path == "" {
		return fc
	}
	data, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: cannot read config file %s: %v", path, err))
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		panic(fmt.Sprintf("❌ FATAL: cannot parse config file %s: %v", path, err))
	}
	return fc
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func fileOr(fileVal, def string) string {
	if fileVal != "" {
		return fileVal
	}
	return def
}

func fileDuration(fileVal string, def time.Duration) time.Duration {
	if fileVal != "" {
		if d, err := time.ParseDuration(fileVal); err == nil {
			return d
		}
	}
	return def
}

func splitOr(envVal string, fileVal []string) []string {
	if envVal != "" {
		return splitAndTrim(envVal)
	}
	return fileVal
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
