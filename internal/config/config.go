package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"lotwatch/internal/geo"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	FeedURL          string
	FeedPollInterval time.Duration
	SpaceIDPrefix    string

	GarageAPIURL         string
	GarageAPIKey         string
	GarageCacheTTL       time.Duration
	GarageNameExceptions []string
	ProtectedLots        []string
	UnknownCountsAsOpen  bool

	LotsGeoJSONPath   string
	SpacesGeoJSONPath string
	OverpassURL       string
	OverpassBBox      geo.BoundingBox
	OverpassTimeout   time.Duration

	HistorySlotGranularity time.Duration
	HistoryMaxPerLot       int

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PostgresURL string

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitWhitelist []string
}

// Default bbox covers the main campus. Overridable for other deployments.
const defaultBBox = "39.985,-83.045,40.015,-83.000"

func Load() (*Config, error) {
	_ = godotenv.Load()

	feedURL := os.Getenv("FEED_URL")
	if feedURL == "" {
		return nil, fmt.Errorf("FEED_URL environment variable is required")
	}

	bbox, err := getBBoxEnv("OVERPASS_BBOX", defaultBBox)
	if err != nil {
		return nil, err
	}

	return &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		FeedURL:          feedURL,
		FeedPollInterval: getDurationEnv("FEED_POLL_INTERVAL", 15*time.Second),
		SpaceIDPrefix:    getEnv("SPACE_ID_PREFIX", "way/"),

		GarageAPIURL:         getEnv("GARAGE_API_URL", ""),
		GarageAPIKey:         getEnv("GARAGE_API_KEY", ""),
		GarageCacheTTL:       getDurationEnv("GARAGE_CACHE_TTL", time.Minute),
		GarageNameExceptions: getCSVEnv("GARAGE_NAME_EXCEPTIONS", "Carmack,Buckeye"),
		ProtectedLots:        getCSVEnv("PROTECTED_LOTS", ""),
		UnknownCountsAsOpen:  getBoolEnv("UNKNOWN_COUNTS_AS_OPEN", false),

		LotsGeoJSONPath:   getEnv("LOTS_GEOJSON_PATH", "data/lots.geojson"),
		SpacesGeoJSONPath: getEnv("SPACES_GEOJSON_PATH", "data/spaces.geojson"),
		OverpassURL:       getEnv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		OverpassBBox:      bbox,
		OverpassTimeout:   getDurationEnv("OVERPASS_TIMEOUT", 90*time.Second),

		HistorySlotGranularity: getDurationEnv("HISTORY_SLOT_GRANULARITY", 30*time.Minute),
		HistoryMaxPerLot:       getIntEnv("HISTORY_MAX_PER_LOT", 2016),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		PostgresURL: getEnv("POSTGRES_URL", ""),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST", ""),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key, defaultVal string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		v = defaultVal
	}
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}

// getBBoxEnv parses "minLat,minLon,maxLat,maxLon".
func getBBoxEnv(key, defaultVal string) (geo.BoundingBox, error) {
	v := getEnv(key, defaultVal)
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return geo.BoundingBox{}, fmt.Errorf("%s: expected minLat,minLon,maxLat,maxLon, got %q", key, v)
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.BoundingBox{}, fmt.Errorf("%s: parsing %q: %w", key, p, err)
		}
		vals[i] = f
	}

	return geo.BoundingBox{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}, nil
}
