package app

import (
	"time"

	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/utils"
)

type Config struct {
	Environment string

	ValidationInterval  time.Duration
	ValidationBatchSize int
	ValidationTimeout   time.Duration

	CacheBackend       string
	CacheDefaultTTL    time.Duration
	CacheMaxEntries    int
	CacheSweepInterval time.Duration

	DeniedDomains  []string
	AllowedDomains []string

	ContentAPIBaseURL string
	ContentFileRoot   string
	FetchHTTPTimeout  time.Duration

	PatternFile         string
	DetectMinConfidence float64
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Environment: utils.GetEnv("ENVIRONMENT", "development", log),

		ValidationInterval:  time.Duration(utils.GetEnvAsInt("VALIDATION_INTERVAL_SECONDS", 300, log)) * time.Second,
		ValidationBatchSize: utils.GetEnvAsInt("VALIDATION_BATCH_SIZE", 10, log),
		ValidationTimeout:   time.Duration(utils.GetEnvAsInt("VALIDATION_TIMEOUT_SECONDS", 15, log)) * time.Second,

		CacheBackend:       utils.GetEnv("CACHE_BACKEND", "memory", log),
		CacheDefaultTTL:    time.Duration(utils.GetEnvAsInt("CACHE_DEFAULT_TTL_SECONDS", 300, log)) * time.Second,
		CacheMaxEntries:    utils.GetEnvAsInt("CACHE_MAX_ENTRIES", 1000, log),
		CacheSweepInterval: time.Duration(utils.GetEnvAsInt("CACHE_SWEEP_INTERVAL_SECONDS", 60, log)) * time.Second,

		DeniedDomains:  utils.GetEnvAsList("SECURITY_DENIED_DOMAINS", nil, log),
		AllowedDomains: utils.GetEnvAsList("SECURITY_ALLOWED_DOMAINS", nil, log),

		ContentAPIBaseURL: utils.GetEnv("CONTENT_API_BASE_URL", "", log),
		ContentFileRoot:   utils.GetEnv("CONTENT_FILE_ROOT", "./content", log),
		FetchHTTPTimeout:  time.Duration(utils.GetEnvAsInt("FETCH_HTTP_TIMEOUT_SECONDS", 10, log)) * time.Second,

		PatternFile:         utils.GetEnv("RELATIONSHIP_PATTERN_FILE", "", log),
		DetectMinConfidence: utils.GetEnvAsFloat("DETECT_MIN_CONFIDENCE", 0.3, log),
	}
}
