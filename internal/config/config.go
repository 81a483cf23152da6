package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir string

	TelegramToken  string
	TelegramChatID int64
	chatIDStr      string

	HTTPAddr       string
	MetricsEnabled bool

	RemindInterval    time.Duration
	RemindIntervalStr string

	SyncDebounce    time.Duration
	SyncDebounceStr string

	DownloadInterval    time.Duration
	DownloadIntervalStr string

	UploadInterval    time.Duration
	UploadIntervalStr string

	// RemoteBackend is "s3", "postgres" or empty for local accounts only.
	RemoteBackend     string
	NetworkAccountID  string
	S3Region          string
	S3Endpoint        string
	S3Bucket          string
	S3AccessKey       string
	S3SecretKey       string
	RemoteDatabaseURI string

	Locale   string
	Timezone string
}

// Load reads an optional .env file and the environment. Durations are
// parsed by Validate.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}

	return &Config{
		DataDir:             getEnvOrDefault("CALENDARD_DATA_DIR", defaultDataDir()),
		TelegramToken:       os.Getenv("TELEGRAM_TOKEN"),
		chatIDStr:           os.Getenv("TELEGRAM_CHAT_ID"),
		HTTPAddr:            getEnvOrDefault("HTTP_ADDR", ":8080"),
		MetricsEnabled:      os.Getenv("METRICS_ENABLED") == "true",
		RemindIntervalStr:   getEnvOrDefault("REMIND_INTERVAL", "10m"),
		SyncDebounceStr:     getEnvOrDefault("SYNC_DEBOUNCE", "200ms"),
		DownloadIntervalStr: getEnvOrDefault("DOWNLOAD_INTERVAL", "15m"),
		UploadIntervalStr:   getEnvOrDefault("UPLOAD_INTERVAL", "5m"),
		RemoteBackend:       os.Getenv("REMOTE_BACKEND"),
		NetworkAccountID:    getEnvOrDefault("NETWORK_ACCOUNT_ID", "default"),
		S3Region:            getEnvOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:          os.Getenv("S3_ENDPOINT"),
		S3Bucket:            os.Getenv("S3_BUCKET"),
		S3AccessKey:         os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:         os.Getenv("S3_SECRET_KEY"),
		RemoteDatabaseURI:   os.Getenv("REMOTE_DATABASE_URI"),
		Locale:              getEnvOrDefault("LOCALE", "en_US"),
		Timezone:            getEnvOrDefault("TIMEZONE", "Local"),
	}, nil
}

// Location resolves Timezone, falling back to the system zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "calendard"
	}
	return filepath.Join(dir, "calendard")
}

func parseChatID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
