package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Pool      PoolConfig
	Scraper   ScraperConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Batch     BatchConfig
	Log       LogConfig
	Analysis  AnalysisConfig
	Rules     RulesConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls how Chrome processes are launched.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// DefaultProxy is the proxy URL for all browser traffic.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// AcceptLanguage is sent with every page request.
	// Empty means use the value from the rules table.
	AcceptLanguage string

	// ViewportWidth and ViewportHeight fix the window size of every session.
	ViewportWidth  int // default: 1920
	ViewportHeight int // default: 1080
}

// PoolConfig controls the bounded browser process pool.
type PoolConfig struct {
	// MinProcesses is the number of warm Chrome processes kept alive.
	MinProcesses int // default: 1

	// MaxProcesses is the hard cap on concurrent Chrome processes.
	MaxProcesses int // default: 4

	// MaxUses retires a process after this many sessions.
	MaxUses int // default: 50

	// MaxAge retires a process older than this.
	MaxAge time.Duration // default: 50m

	// MaxErrorScore retires a process after this many consecutive failed sessions.
	MaxErrorScore int // default: 3

	// AcquireTimeout bounds how long a request waits for a free process.
	AcquireTimeout time.Duration // default: 30s
}

// ScraperConfig controls the extraction pipeline's waits and bounds.
type ScraperConfig struct {
	// MapNavigationTimeout bounds the DOM-ready load of map-review pages.
	MapNavigationTimeout time.Duration // default: 30s

	// GenericNavigationTimeout bounds the network-idle load of generic pages.
	GenericNavigationTimeout time.Duration // default: 60s

	// SettleDelay is the fixed pause after a map-review page is DOM-ready.
	SettleDelay time.Duration // default: 3s

	ConsentTimeout    time.Duration // default: 3s
	ConsentPause      time.Duration // default: 1s
	ReviewsTabTimeout time.Duration // default: 5s
	ReviewsTabPause   time.Duration // default: 2s
	ExpandTimeout     time.Duration // default: 3s
	ExpandPause       time.Duration // default: 2s

	// ContainerMaxIterations caps container scrolling.
	ContainerMaxIterations int // default: 12

	// ScrollPause is the wait between container and wheel scrolls.
	ScrollPause time.Duration // default: 1.5s

	// WheelIterations and WheelDelta drive the map-review wheel fallback.
	WheelIterations int // default: 8
	WheelDelta      int // default: 3000

	// EndKeyIterations and EndKeyPause drive generic pagination.
	EndKeyIterations int           // default: 3
	EndKeyPause      time.Duration // default: 2s

	// PostScrollPause is the wait before the DOM is read.
	PostScrollPause time.Duration // default: 1s

	// RequestBudget bounds the whole pipeline of one request.
	RequestBudget time.Duration // default: 3m

	// ActionTimeout bounds each single browser call during interaction
	// and DOM capture.
	ActionTimeout time.Duration // default: 10s

	// ScreenshotPath enables the map-review debug screenshot when non-empty.
	ScreenshotPath string

	// MaxTextRunes bounds the sanitized output.
	MaxTextRunes int // default: 200000

	// ExpandShortlinks resolves shortlink redirects for diagnostics.
	ExpandShortlinks bool // default: true

	// ShortlinkTimeout bounds shortlink resolution.
	ShortlinkTimeout time.Duration // default: 5s

	// DedupeThreshold is the simhash Hamming distance under which two
	// structured reviews count as the same text. 0 disables dedupe.
	DedupeThreshold int // default: 0

	// BlockedResourceTypes lists request types failed before they load.
	// Supported: "Image", "Font", "Media".
	BlockedResourceTypes []string // default: ["Media", "Font"]

	// BlockTrackers fails requests to known analytics and ad hosts.
	BlockTrackers bool // default: true
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting of this API.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// CacheConfig controls the extraction result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached results.
	MaxEntries int // default: 1000

	// TTL is the horizon after which cached results are evicted.
	TTL time.Duration // default: 1h
}

// BatchConfig controls async batch jobs.
type BatchConfig struct {
	// Concurrency bounds in-flight extractions per job.
	Concurrency int // default: 2

	// JobTTL is how long finished jobs stay queryable.
	JobTTL time.Duration // default: 1h
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// AnalysisConfig controls the pass-through to the external analysis endpoint.
type AnalysisConfig struct {
	DefaultModel   string        // default: "gpt-4o-mini"
	DefaultBaseURL string        // default: "https://api.openai.com/v1"
	MaxInputRunes  int           // default: 15000
	Timeout        time.Duration // default: 60s
}

// RulesConfig locates the extraction rules table.
type RulesConfig struct {
	// File overrides the embedded rules table when non-empty.
	File string
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("INSIGHTX_HOST", "0.0.0.0"),
			Port: envIntOr("INSIGHTX_PORT", 8080),
			Mode: envOr("INSIGHTX_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("INSIGHTX_HEADLESS", true),
			DefaultProxy:   os.Getenv("INSIGHTX_PROXY"),
			NoSandbox:      envBoolOr("INSIGHTX_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("INSIGHTX_BROWSER_BIN"),
			AcceptLanguage: os.Getenv("INSIGHTX_ACCEPT_LANGUAGE"),
			ViewportWidth:  envIntOr("INSIGHTX_VIEWPORT_WIDTH", 1920),
			ViewportHeight: envIntOr("INSIGHTX_VIEWPORT_HEIGHT", 1080),
		},
		Pool: PoolConfig{
			MinProcesses:   envIntOr("INSIGHTX_POOL_MIN", 1),
			MaxProcesses:   envIntOr("INSIGHTX_POOL_MAX", 4),
			MaxUses:        envIntOr("INSIGHTX_POOL_MAX_USES", 50),
			MaxAge:         envDurationOr("INSIGHTX_POOL_MAX_AGE", 50*time.Minute),
			MaxErrorScore:  envIntOr("INSIGHTX_POOL_MAX_ERRORS", 3),
			AcquireTimeout: envDurationOr("INSIGHTX_POOL_ACQUIRE_TIMEOUT", 30*time.Second),
		},
		Scraper: ScraperConfig{
			MapNavigationTimeout:     envDurationOr("INSIGHTX_MAP_NAV_TIMEOUT", 30*time.Second),
			GenericNavigationTimeout: envDurationOr("INSIGHTX_GENERIC_NAV_TIMEOUT", 60*time.Second),
			SettleDelay:              envDurationOr("INSIGHTX_SETTLE_DELAY", 3*time.Second),
			ConsentTimeout:           envDurationOr("INSIGHTX_CONSENT_TIMEOUT", 3*time.Second),
			ConsentPause:             envDurationOr("INSIGHTX_CONSENT_PAUSE", time.Second),
			ReviewsTabTimeout:        envDurationOr("INSIGHTX_REVIEWS_TAB_TIMEOUT", 5*time.Second),
			ReviewsTabPause:          envDurationOr("INSIGHTX_REVIEWS_TAB_PAUSE", 2*time.Second),
			ExpandTimeout:            envDurationOr("INSIGHTX_EXPAND_TIMEOUT", 3*time.Second),
			ExpandPause:              envDurationOr("INSIGHTX_EXPAND_PAUSE", 2*time.Second),
			ContainerMaxIterations:   envIntOr("INSIGHTX_CONTAINER_MAX_ITERATIONS", 12),
			ScrollPause:              envDurationOr("INSIGHTX_SCROLL_PAUSE", 1500*time.Millisecond),
			WheelIterations:          envIntOr("INSIGHTX_WHEEL_ITERATIONS", 8),
			WheelDelta:               envIntOr("INSIGHTX_WHEEL_DELTA", 3000),
			EndKeyIterations:         envIntOr("INSIGHTX_END_KEY_ITERATIONS", 3),
			EndKeyPause:              envDurationOr("INSIGHTX_END_KEY_PAUSE", 2*time.Second),
			PostScrollPause:          envDurationOr("INSIGHTX_POST_SCROLL_PAUSE", time.Second),
			RequestBudget:            envDurationOr("INSIGHTX_REQUEST_BUDGET", 3*time.Minute),
			ActionTimeout:            envDurationOr("INSIGHTX_ACTION_TIMEOUT", 10*time.Second),
			ScreenshotPath:           os.Getenv("INSIGHTX_SCREENSHOT_PATH"),
			MaxTextRunes:             envIntOr("INSIGHTX_MAX_TEXT_RUNES", 200000),
			ExpandShortlinks:         envBoolOr("INSIGHTX_EXPAND_SHORTLINKS", true),
			ShortlinkTimeout:         envDurationOr("INSIGHTX_SHORTLINK_TIMEOUT", 5*time.Second),
			DedupeThreshold:          envIntOr("INSIGHTX_DEDUPE_THRESHOLD", 0),
			BlockedResourceTypes:     envSliceOr("INSIGHTX_BLOCKED_RESOURCES", []string{"Media", "Font"}),
			BlockTrackers:            envBoolOr("INSIGHTX_BLOCK_TRACKERS", true),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("INSIGHTX_AUTH_ENABLED", true),
			APIKeys: envSliceOr("INSIGHTX_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("INSIGHTX_RATE_RPS", 1.0),
			Burst:             envIntOr("INSIGHTX_RATE_BURST", 3),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("INSIGHTX_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("INSIGHTX_CACHE_TTL", time.Hour),
		},
		Batch: BatchConfig{
			Concurrency: envIntOr("INSIGHTX_BATCH_CONCURRENCY", 2),
			JobTTL:      envDurationOr("INSIGHTX_BATCH_JOB_TTL", time.Hour),
		},
		Log: LogConfig{
			Level:  envOr("INSIGHTX_LOG_LEVEL", "info"),
			Format: envOr("INSIGHTX_LOG_FORMAT", "json"),
		},
		Analysis: AnalysisConfig{
			DefaultModel:   envOr("INSIGHTX_LLM_MODEL", "gpt-4o-mini"),
			DefaultBaseURL: envOr("INSIGHTX_LLM_BASE_URL", "https://api.openai.com/v1"),
			MaxInputRunes:  envIntOr("INSIGHTX_LLM_MAX_INPUT_RUNES", 15000),
			Timeout:        envDurationOr("INSIGHTX_LLM_TIMEOUT", 60*time.Second),
		},
		Rules: RulesConfig{
			File: os.Getenv("INSIGHTX_RULES_FILE"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
