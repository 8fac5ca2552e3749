// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envAPIKey                 = "REMOVE_BG_API_KEY"
	envUpstreamURL            = "REMOVE_BG_API_URL"
	envPort                   = "PORT"
	envRequestTimeout         = "RELAY_REQUEST_TIMEOUT"
	envMaxUploadMB            = "RELAY_MAX_UPLOAD_MB"
	envLogLevel               = "RELAY_LOG_LEVEL"
	envLogFormat              = "RELAY_LOG_FORMAT"
	envServerReadTimeout      = "RELAY_SERVER_READ_TIMEOUT"
	envServerIdleTimeout      = "RELAY_SERVER_IDLE_TIMEOUT"
	envGracefulShutdown       = "RELAY_GRACEFUL_SHUTDOWN"
	defaultUpstreamURL        = "https://api.remove.bg/v1.0/removebg"
	defaultPort               = "3000"
	defaultLogLevel           = "info"
	defaultServerReadTimeout  = 60 * time.Second
	defaultServerIdleTimeout  = 120 * time.Second
	defaultGracefulShutdown   = 10 * time.Second
	LogFormatJSON             = "json"
	LogFormatConsole          = "console"
)

// Config captures runtime settings for the relay.
type Config struct {
	// Port is the TCP port the relay listens on; ListenAddr is derived from it.
	Port       string
	ListenAddr string
	// Upstream is the background-removal endpoint every upload is posted to.
	Upstream *url.URL
	// APIKey is the upstream credential. It must never be logged or echoed.
	APIKey string
	// RequestTimeout bounds the outbound call; zero leaves it unbounded.
	RequestTimeout time.Duration
	// MaxUploadBytes caps the inbound body; zero leaves it unbounded.
	MaxUploadBytes          int64
	LogLevel                string
	LogFormat               string
	ServerReadTimeout       time.Duration
	ServerIdleTimeout       time.Duration
	GracefulShutdownTimeout time.Duration
}

// LoadEnvFile populates the process environment from a dotenv file. Variables
// already present in the environment win. An empty path loads ".env" from the
// working directory and tolerates its absence.
func LoadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables and validates required values.
func Load() (Config, error) {
	apiKey := strings.TrimSpace(os.Getenv(envAPIKey))
	if apiKey == "" {
		return Config{}, errors.New("REMOVE_BG_API_KEY is required")
	}

	upstream, err := url.Parse(getString(envUpstreamURL, defaultUpstreamURL))
	if err != nil {
		return Config{}, fmt.Errorf("invalid REMOVE_BG_API_URL: %w", err)
	}
	if !upstream.IsAbs() {
		return Config{}, errors.New("REMOVE_BG_API_URL must be absolute (scheme://host)")
	}

	port := getString(envPort, defaultPort)
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return Config{}, fmt.Errorf("invalid PORT %q", port)
	}

	maxUploadMB := getInt(envMaxUploadMB, 0)
	if maxUploadMB < 0 {
		return Config{}, fmt.Errorf("RELAY_MAX_UPLOAD_MB must not be negative (got %d)", maxUploadMB)
	}

	logFormat := strings.ToLower(getString(envLogFormat, LogFormatJSON))
	if logFormat != LogFormatJSON && logFormat != LogFormatConsole {
		return Config{}, fmt.Errorf("RELAY_LOG_FORMAT must be %q or %q (got %q)", LogFormatJSON, LogFormatConsole, logFormat)
	}

	cfg := Config{
		Port:                    port,
		ListenAddr:              ":" + port,
		Upstream:                upstream,
		APIKey:                  apiKey,
		RequestTimeout:          getDuration(envRequestTimeout, 0),
		MaxUploadBytes:          int64(maxUploadMB) << 20,
		LogLevel:                strings.ToLower(getString(envLogLevel, defaultLogLevel)),
		LogFormat:               logFormat,
		ServerReadTimeout:       getDuration(envServerReadTimeout, defaultServerReadTimeout),
		ServerIdleTimeout:       getDuration(envServerIdleTimeout, defaultServerIdleTimeout),
		GracefulShutdownTimeout: getDuration(envGracefulShutdown, defaultGracefulShutdown),
	}

	return cfg, nil
}

// PublicURL is the address announced in the startup log line.
func (c Config) PublicURL() string {
	return "http://localhost:" + c.Port
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
