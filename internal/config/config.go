package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// MongoDB Configuration
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration

	// HTTP Server Configuration
	HTTPPort        string
	HTTPReadTimeout time.Duration
	// HTTPWriteTimeout must stay 0 (disabled): progress streams are
	// long-lived responses and a server write timeout would cut them off.
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Logging Configuration
	LogLevel  string
	LogFormat string

	// CORS Configuration
	CORSAllowedOrigins   string
	CORSAllowedMethods   string
	CORSAllowedHeaders   string
	CORSAllowCredentials bool
	CORSMaxAge           int

	// Scan Pipeline Configuration
	MaxImageBytes      int64
	MaxBatchPhotos     int
	JobTTL             time.Duration
	ReadyPollInterval  time.Duration
	ReadyTimeout       time.Duration
	MaxConcurrentScans int
	EstimateMinSeconds int
	EstimateMaxSeconds int

	// Detection Configuration
	DetectionAPIURL  string
	DetectionTimeout time.Duration

	// Enrichment Configuration
	EnrichMinConfidence float64
	ProviderTimeout     time.Duration
	GoogleBooksURL      string
	OpenLibraryURL      string

	// Janitor Configuration
	JanitorInterval   time.Duration
	TerminalRetention time.Duration
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	return &Config{
		// MongoDB
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017/shelfscan?authSource=admin"),
		MongoDatabase: getEnv("MONGO_DATABASE", "shelfscan"),
		MongoTimeout:  getDurationEnv("MONGO_TIMEOUT_SEC", 10) * time.Second,

		// HTTP Server
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		HTTPReadTimeout:  getDurationEnv("HTTP_READ_TIMEOUT_SEC", 30) * time.Second,
		HTTPWriteTimeout: getDurationEnv("HTTP_WRITE_TIMEOUT_SEC", 0) * time.Second,
		HTTPIdleTimeout:  getDurationEnv("HTTP_IDLE_TIMEOUT_SEC", 120) * time.Second,

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// CORS
		CORSAllowedOrigins:   getEnv("CORS_ALLOWED_ORIGINS", "*"),
		CORSAllowedMethods:   getEnv("CORS_ALLOWED_METHODS", "GET, POST, OPTIONS"),
		CORSAllowedHeaders:   getEnv("CORS_ALLOWED_HEADERS", "*"),
		CORSAllowCredentials: getBoolEnv("CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAge:           getIntEnv("CORS_MAX_AGE", 3600),

		// Scan Pipeline
		MaxImageBytes:      int64(getIntEnv("MAX_IMAGE_BYTES", 10*1024*1024)),
		MaxBatchPhotos:     getIntEnv("MAX_BATCH_PHOTOS", 5),
		JobTTL:             getDurationEnv("JOB_TTL_SEC", 300) * time.Second,
		ReadyPollInterval:  getDurationEnv("READY_POLL_INTERVAL_MS", 100) * time.Millisecond,
		ReadyTimeout:       getDurationEnv("READY_TIMEOUT_SEC", 5) * time.Second,
		MaxConcurrentScans: getIntEnv("MAX_CONCURRENT_SCANS", 32),
		EstimateMinSeconds: getIntEnv("ESTIMATE_MIN_SEC", 5),
		EstimateMaxSeconds: getIntEnv("ESTIMATE_MAX_SEC", 30),

		// Detection
		DetectionAPIURL:  getEnv("DETECTION_API_URL", "http://localhost:8090/v1/detect"),
		DetectionTimeout: getDurationEnv("DETECTION_TIMEOUT_SEC", 30) * time.Second,

		// Enrichment
		EnrichMinConfidence: getFloatEnv("ENRICH_MIN_CONFIDENCE", 0.5),
		ProviderTimeout:     getDurationEnv("PROVIDER_TIMEOUT_SEC", 10) * time.Second,
		GoogleBooksURL:      getEnv("GOOGLE_BOOKS_URL", "https://www.googleapis.com/books/v1/volumes"),
		OpenLibraryURL:      getEnv("OPEN_LIBRARY_URL", "https://openlibrary.org/search.json"),

		// Janitor
		JanitorInterval:   getDurationEnv("JANITOR_INTERVAL_SEC", 30) * time.Second,
		TerminalRetention: getDurationEnv("TERMINAL_RETENTION_SEC", 60) * time.Second,
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return time.Duration(intVal)
		}
		log.Printf("Warning: Invalid duration value for %s, using default %d", key, defaultValue)
	}
	return time.Duration(defaultValue)
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: Invalid boolean value for %s, using default %t", key, defaultValue)
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
		log.Printf("Warning: Invalid float value for %s, using default %g", key, defaultValue)
	}
	return defaultValue
}
