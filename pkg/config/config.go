// Package config handles application configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Chat boundary
	BotToken   string
	AdminIDs   []int64
	OwnerID    int64
	ChannelURL string
	BotText    string

	// Redis store
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// HTTP settings
	HTTPTimeout time.Duration
	ProxyURL    string

	// Extraction settings
	TraversalWorkers int
	ProgressInterval time.Duration
	InputTimeout     time.Duration

	// APPX API directory seed file
	AppxAPIsFile string

	// Publisher settings
	DownloadDir string
	YtdlpPath   string

	// Logging
	LogLevel string
	LogJSON  bool
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		BotToken:         os.Getenv("BOT_TOKEN"),
		AdminIDs:         getEnvInt64Slice("ADMIN_IDS", nil),
		OwnerID:          getEnvInt64("OWNER_ID", 0),
		ChannelURL:       getEnvString("CHANNEL_URL", ""),
		BotText:          getEnvString("BOT_TEXT", "Master Extractor"),
		RedisAddr:        getEnvString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		HTTPTimeout:      getEnvDuration("HTTP_TIMEOUT", 120*time.Second),
		ProxyURL:         getEnvString("PROXY_URL", ""),
		TraversalWorkers: getEnvInt("TRAVERSAL_WORKERS", 5),
		ProgressInterval: getEnvDuration("PROGRESS_INTERVAL", 15*time.Second),
		InputTimeout:     getEnvDuration("INPUT_TIMEOUT", 60*time.Second),
		AppxAPIsFile:     getEnvString("APPX_APIS_FILE", "appxapis.json"),
		DownloadDir:      getEnvString("DOWNLOAD_DIR", "downloads"),
		YtdlpPath:        getEnvString("YTDLP_PATH", "yt-dlp"),
		LogLevel:         getEnvString("LOG_LEVEL", "info"),
		LogJSON:          getEnvBool("LOG_JSON", false),
	}
}

// IsAdmin reports whether the given user ID is the owner or a listed admin.
func (c *Config) IsAdmin(id int64) bool {
	if id != 0 && id == c.OwnerID {
		return true
	}
	for _, a := range c.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return strings.ToLower(val) == "true" || val == "1"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		// Try parsing as seconds first
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		// Try parsing as duration string
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvInt64Slice(key string, defaultVal []int64) []int64 {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]int64, 0, len(parts))
		for _, p := range parts {
			if i, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64); err == nil {
				result = append(result, i)
			}
		}
		return result
	}
	return defaultVal
}
