package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds configuration for the feed daemon and CLI tools
type Config struct {
	// Service name
	ServiceName string

	// DTC server endpoint
	DTCHost string
	DTCPort int

	// DTC credentials (empty strings attempt anonymous logon)
	DTCUsername string
	DTCPassword string

	// Client identifier sent in the logon request
	DTCClientName string

	// Preferred wire encoding: "json" or "binary"
	DTCEncoding string

	// Heartbeat interval proposed at logon, in seconds
	DTCHeartbeatSecs int

	// When true, only LogonResponse Result=1 is accepted;
	// Result=0 is treated as a failure instead of a success
	DTCStrictLogonResult bool

	// Symbols to subscribe at startup (comma-separated, SYMBOL or SYMBOL@EXCHANGE)
	Symbols []string

	// Kafka sink
	KafkaEnabled bool
	KafkaBrokers []string

	// Path to the sqlite quote store; empty disables persistence
	DBPath string

	// HTTP server port (healthz + metrics)
	HTTPPort int

	// gRPC server port (health service)
	GRPCPort int

	// Log level: debug, info, warn, error
	LogLevel string
}

// LoadConfig loads configuration from environment variables with defaults.
// A .env file in the working directory is loaded first if present.
func LoadConfig(serviceName string) *Config {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName:          serviceName,
		DTCHost:              getEnvAsString("DTC_HOST", "localhost"),
		DTCPort:              getEnvAsInt("DTC_PORT", 11099),
		DTCUsername:          getEnvAsString("DTC_USERNAME", ""),
		DTCPassword:          getEnvAsString("DTC_PASSWORD", ""),
		DTCClientName:        getEnvAsString("DTC_CLIENT_NAME", serviceName),
		DTCEncoding:          getEnvAsString("DTC_ENCODING", "json"),
		DTCHeartbeatSecs:     getEnvAsInt("DTC_HEARTBEAT_SECS", 30),
		DTCStrictLogonResult: getEnvAsBool("DTC_STRICT_LOGON_RESULT", false),
		Symbols:              splitList(getEnvAsString("DTC_SYMBOLS", "")),
		KafkaEnabled:         getEnvAsBool("KAFKA_ENABLED", false),
		KafkaBrokers:         splitList(getEnvAsString("KAFKA_BROKERS", "127.0.0.1:9092")),
		DBPath:               getEnvAsString("DB_PATH", ""),
		HTTPPort:             getEnvAsInt("PORT_HTTP", 8080),
		GRPCPort:             getEnvAsInt("PORT_GRPC", 50051),
		LogLevel:             getEnvAsString("LOG_LEVEL", "info"),
	}

	return cfg
}

// DTCAddr returns the DTC server address in host:port form
func (c *Config) DTCAddr() string {
	return fmt.Sprintf("%s:%d", c.DTCHost, c.DTCPort)
}

// HTTPAddr returns the HTTP server address
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GRPCAddr returns the gRPC server address
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
