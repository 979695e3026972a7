package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Dify workflow service
	DifyBaseURL       string
	DifyAPIKey        string
	DifyUser          string
	DifyInputVariable string
	DifyAppMode       string
	DifyTimeout       time.Duration

	MaxUploadBytes      int64
	AllowSampleFallback bool
	ExtractionRulesPath string

	CORSAllowedOrigins []string
	AdminJWTSecret     string
	RateLimitRPS       float64
	RateLimitBurst     int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	ArchiveBucket   string
	ReportJobsTable string
	ReportQueueURL  string
	UseMemoryQueue  bool
	WorkerCount     int

	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	ReportCacheTTL time.Duration

	// LLM repair of incomplete extractions
	RepairProvider string
	BedrockModelID string
	GeminiAPIKey   string
	GeminiModelID  string

	// Email notifications for async jobs
	EmailProvider  string
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DifyBaseURL:       strings.TrimRight(getEnv("DIFY_BASE_URL", "https://api.dify.ai/v1"), "/"),
		DifyAPIKey:        getEnv("DIFY_API_KEY", ""),
		DifyUser:          getEnv("DIFY_USER", "dental-app-user"),
		DifyInputVariable: getEnv("DIFY_INPUT_VARIABLE", "orig_mail"),
		DifyAppMode:       strings.ToLower(strings.TrimSpace(getEnv("DIFY_APP_MODE", "workflow"))),
		DifyTimeout:       getEnvAsDuration("DIFY_TIMEOUT", 90*time.Second),

		MaxUploadBytes:      int64(getEnvAsInt("MAX_UPLOAD_BYTES", 15*1024*1024)),
		AllowSampleFallback: getEnvAsBool("ALLOW_SAMPLE_FALLBACK", false),
		ExtractionRulesPath: getEnv("EXTRACTION_RULES_PATH", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),

		AWSRegion:           getEnv("AWS_REGION", "ap-northeast-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ArchiveBucket:   getEnv("ARCHIVE_BUCKET", ""),
		ReportJobsTable: getEnv("REPORT_JOBS_TABLE", "report_jobs"),
		ReportQueueURL:  getEnv("REPORT_QUEUE_URL", ""),
		UseMemoryQueue:  getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 2),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		ReportCacheTTL: getEnvAsDuration("REPORT_CACHE_TTL", 24*time.Hour),

		RepairProvider: strings.ToLower(strings.TrimSpace(getEnv("REPAIR_PROVIDER", ""))),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		EmailProvider:  strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", ""))),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "Dental Report AI"),
	}
}

// APIKeyPrefix returns the first 8 characters of the Dify key for diagnostics.
func (c *Config) APIKeyPrefix() string {
	if c == nil || c.DifyAPIKey == "" {
		return ""
	}
	if len(c.DifyAPIKey) <= 8 {
		return c.DifyAPIKey[:len(c.DifyAPIKey)/2] + "..."
	}
	return c.DifyAPIKey[:8] + "..."
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
