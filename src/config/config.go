package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvPathEnvVar = "CIRCLE_THUMB_ENV"

	DefaultListenAddr    = "127.0.0.1:3000"
	DefaultThumbnailsDir = "thumbnails"
	DefaultHotkey        = "Ctrl+Alt+C"
)

// LoadOptions carries command-line overrides; they beat every other source.
type LoadOptions struct {
	EnvPathOverride       string
	ListenAddrOverride    string
	ThumbnailsDirOverride string
	EnableTrayOverride    bool
}

type Config struct {
	ListenAddr        string
	ThumbnailsDir     string
	OnConflict        string
	DefaultBackground string
	ResampleFilter    string
	MaxUploadMB       int
	MaxImageMegapix   int
	FetchTimeoutSec   int
	ExportDeadlineSec int
	SessionTTLSec     int
	ServerURL         string
	Hotkey            string
	EnableFileLogging bool
	EnableTray        bool
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) explicit overrides
	// 2) process environment
	// 3) .env in the application (executable) directory, or the file named
	//    by CIRCLE_THUMB_ENV
	envPath := strings.TrimSpace(opts.EnvPathOverride)
	if envPath == "" {
		envPath = resolveEnvPath()
	}
	if envPath != "" {
		// godotenv.Load never overrides variables already set.
		_ = godotenv.Load(envPath)
	}

	cfg := &Config{
		ListenAddr:        getEnvWithDefault("LISTEN_ADDR", DefaultListenAddr),
		ThumbnailsDir:     getEnvWithDefault("THUMBNAILS_DIR", DefaultThumbnailsDir),
		OnConflict:        strings.ToLower(getEnvWithDefault("ON_CONFLICT", "overwrite")),
		DefaultBackground: strings.ToLower(getEnvWithDefault("DEFAULT_BACKGROUND", "white")),
		ResampleFilter:    strings.ToLower(getEnvWithDefault("RESAMPLE_FILTER", "catmullrom")),
		MaxUploadMB:       getEnvInt("MAX_UPLOAD_MB", 20),
		MaxImageMegapix:   getEnvInt("MAX_IMAGE_MEGAPIXELS", 50),
		FetchTimeoutSec:   getEnvInt("FETCH_TIMEOUT_SEC", 15),
		ExportDeadlineSec: getEnvInt("EXPORT_DEADLINE_SEC", 20),
		SessionTTLSec:     getEnvInt("SESSION_TTL_SEC", 1800),
		ServerURL:         strings.TrimSpace(os.Getenv("SERVER_URL")),
		Hotkey:            getEnvWithDefault("HOTKEY", DefaultHotkey),
		EnableFileLogging: getEnvBool("ENABLE_FILE_LOGGING"),
		EnableTray:        getEnvBool("ENABLE_TRAY"),
	}

	if v := strings.TrimSpace(opts.ListenAddrOverride); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(opts.ThumbnailsDirOverride); v != "" {
		cfg.ThumbnailsDir = v
	}
	if opts.EnableTrayOverride {
		cfg.EnableTray = true
	}

	return cfg, nil
}

// MaxUploadBytes is the multipart and remote-fetch byte cap.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) * 1024 * 1024 }

// MaxImagePixels caps decoded source rasters.
func (c *Config) MaxImagePixels() int64 { return int64(c.MaxImageMegapix) * 1_000_000 }

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

func (c *Config) ExportDeadline() time.Duration {
	return time.Duration(c.ExportDeadlineSec) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSec) * time.Second
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses a positive integer; invalid values fall back to the
// default.
func getEnvInt(key string, defaultValue int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
