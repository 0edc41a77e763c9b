package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const defaultGeoLiteDownloadURL = "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-City&suffix=tar.gz&license_key={license_key}"

type Config struct {
	Port               string
	DatabaseURL        string
	AppEnv             string
	BaseURL            string
	LogLevel           string
	DisableTrackParam  string
	NotFoundRedirectTo string
	AnonymizeRemoteIP  bool

	GeoLite GeoLiteConfig
	Locator LocatorConfig
}

// GeoLiteConfig drives the geolocation database download and refresh.
type GeoLiteConfig struct {
	DBPath          string
	LicenseKey      string
	DownloadURL     string
	DownloadTimeout time.Duration
	MaxAge          time.Duration
	UpdateSchedule  string
}

// LocatorConfig sizes the asynchronous visit locator.
type LocatorConfig struct {
	Workers   int
	QueueSize int
}

func (c *Config) IsLocal() bool {
	return c.AppEnv == "local"
}

func Load() *Config {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", "file:db.sqlite"),
		AppEnv:             getEnv("APP_ENV", "local"),
		BaseURL:            getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DisableTrackParam:  getEnv("DISABLE_TRACK_PARAM", "no_stat"),
		NotFoundRedirectTo: getEnv("NOT_FOUND_REDIRECT_TO", ""),
		AnonymizeRemoteIP:  cast.ToBool(getEnv("ANONYMIZE_REMOTE_ADDR", "true")),
		GeoLite: GeoLiteConfig{
			DBPath:          getEnv("GEOLITE_DB_PATH", filepath.Join("data", "GeoLite2-City.mmdb")),
			LicenseKey:      getEnv("GEOLITE_LICENSE_KEY", ""),
			DownloadURL:     getEnv("GEOLITE_DOWNLOAD_URL", defaultGeoLiteDownloadURL),
			DownloadTimeout: getDuration("GEOLITE_DOWNLOAD_TIMEOUT", time.Minute),
			MaxAge:          getDuration("GEOLITE_MAX_AGE", 35*24*time.Hour),
			UpdateSchedule:  getEnv("GEOLITE_UPDATE_SCHEDULE", "@daily"),
		},
		Locator: LocatorConfig{
			Workers:   getInt("LOCATOR_WORKERS", 4),
			QueueSize: getInt("LOCATOR_QUEUE_SIZE", 1024),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := cast.ToDurationE(getEnv(key, ""))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	n, err := cast.ToIntE(getEnv(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
