package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Port                  string
	Environment           string
	APIKey                string
	BackendURL            string
	RealtimeURL           string
	UseRealtime           bool
	HTTPTimeout           time.Duration
	RealtimeMaxRetries    int
	RealtimeBackoff       time.Duration
	RealtimeReplyTimeout  time.Duration
	StateFile             string
	CatalogFile           string
	NodeID                int64
	AllowedOrigins        []string
	RecommendationsLimit  int
	TrendingOnStartup     bool
	DefaultSearchPageSize int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	backendURL := strings.TrimSuffix(getEnv("STOREFRONT_API_URL", "http://localhost:8000"), "/")
	return &Config{
		Port:                  getEnv("PORT", "8080"),
		Environment:           getEnv("ENVIRONMENT", "development"),
		APIKey:                getEnv("API_KEY", ""),
		BackendURL:            backendURL,
		RealtimeURL:           getEnv("STOREFRONT_WS_URL", realtimeURLFor(backendURL)),
		UseRealtime:           getEnvBool("STOREFRONT_USE_REALTIME", false),
		HTTPTimeout:           time.Duration(getEnvInt("STOREFRONT_HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		RealtimeMaxRetries:    getEnvInt("STOREFRONT_REALTIME_MAX_RETRIES", 5),
		RealtimeBackoff:       time.Duration(getEnvInt("STOREFRONT_REALTIME_BACKOFF_MS", 1000)) * time.Millisecond,
		RealtimeReplyTimeout:  time.Duration(getEnvInt("STOREFRONT_REALTIME_REPLY_TIMEOUT_SECONDS", 60)) * time.Second,
		StateFile:             getEnv("STOREFRONT_STATE_FILE", defaultStateFile()),
		CatalogFile:           getEnv("STOREFRONT_CATALOG_FILE", "configs/storefront.yaml"),
		NodeID:                int64(getEnvInt("STOREFRONT_NODE_ID", 1)),
		AllowedOrigins:        splitList(getEnv("STOREFRONT_ALLOWED_ORIGINS", "")),
		RecommendationsLimit:  getEnvInt("STOREFRONT_RECOMMENDATIONS_LIMIT", 4),
		TrendingOnStartup:     getEnvBool("STOREFRONT_TRENDING_ON_STARTUP", true),
		DefaultSearchPageSize: getEnvInt("STOREFRONT_SEARCH_LIMIT", 10),
	}
}

// realtimeURLFor はAPIのURLからWebSocketのURLを導出します（http→ws, https→wss）。
func realtimeURLFor(backendURL string) string {
	switch {
	case strings.HasPrefix(backendURL, "https://"):
		return "wss://" + strings.TrimPrefix(backendURL, "https://") + "/ws/chat"
	case strings.HasPrefix(backendURL, "http://"):
		return "ws://" + strings.TrimPrefix(backendURL, "http://") + "/ws/chat"
	default:
		return backendURL + "/ws/chat"
	}
}

func defaultStateFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".storefront/state.yaml"
	}
	return filepath.Join(home, ".storefront", "state.yaml")
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
