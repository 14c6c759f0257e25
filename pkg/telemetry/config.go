package telemetry

import (
	"os"
	"strings"
)

// Protocol selects the OTLP transport.
type Protocol string

// Supported OTLP protocols.
const (
	ProtocolGRPC Protocol = "grpc"
	ProtocolHTTP Protocol = "http/protobuf"
)

// Config holds the telemetry configuration loaded from the environment.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Protocol       Protocol
	Insecure       bool
}

// LoadFromEnv reads the telemetry configuration from environment variables.
func LoadFromEnv() *Config {
	cfg := &Config{
		Enabled:        envBool("OTEL_ENABLED"),
		ServiceName:    envOr("OTEL_SERVICE_NAME", "ipd-simulator"),
		ServiceVersion: envOr("OTEL_SERVICE_VERSION", "unknown"),
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Protocol:       ProtocolGRPC,
		Insecure:       envBool("OTEL_EXPORTER_OTLP_INSECURE"),
	}

	switch strings.ToLower(os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL")) {
	case "http/protobuf", "http":
		cfg.Protocol = ProtocolHTTP
	case "grpc", "":
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
