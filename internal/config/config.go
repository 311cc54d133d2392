// Package config holds the runtime configuration for the session relay,
// merged from CLI flags and environment variables via viper.
package config

import (
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the session relay.
type Config struct {
	Port string
	Host string

	DBHost              string
	DBPort              int
	DBName              string
	DBUser              string
	DBPassword          string
	DBMaxConnections    int
	DBIdleTimeout       int // seconds
	DBConnectionTimeout int // seconds

	BatchSize              int
	BatchInterval          int // seconds
	MaxEventsPerSession    int
	SessionCleanupInterval int // seconds
	HeartbeatInterval      int // seconds

	LogLevel string
}

// Load reads configuration from viper, which merges flag values, env
// vars, and defaults (set up by the cobra command in cmd/sessionrelay).
func Load() Config {
	return Config{
		Port: viper.GetString("port"),
		Host: viper.GetString("host"),

		DBHost:              viper.GetString("db_host"),
		DBPort:              viper.GetInt("db_port"),
		DBName:              viper.GetString("db_name"),
		DBUser:              viper.GetString("db_user"),
		DBPassword:          viper.GetString("db_password"),
		DBMaxConnections:    viper.GetInt("db_max_connections"),
		DBIdleTimeout:       viper.GetInt("db_idle_timeout"),
		DBConnectionTimeout: viper.GetInt("db_connection_timeout"),

		BatchSize:              viper.GetInt("batch_size"),
		BatchInterval:          viper.GetInt("batch_interval"),
		MaxEventsPerSession:    viper.GetInt("max_events_per_session"),
		SessionCleanupInterval: viper.GetInt("session_cleanup_interval"),
		HeartbeatInterval:      viper.GetInt("heartbeat_interval"),

		LogLevel: viper.GetString("log_level"),
	}
}

// Debug reports whether LOG_LEVEL requests verbose per-message logging.
func (c Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

// DSN returns a libpq-style connection string built from the DB_* fields.
func (c Config) DSN() string {
	return "host=" + c.DBHost +
		" port=" + strconv.Itoa(c.DBPort) +
		" dbname=" + c.DBName +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" sslmode=disable" +
		" connect_timeout=" + strconv.Itoa(c.DBConnectionTimeout)
}
