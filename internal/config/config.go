package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	UseMemoryStore  bool
	UseMemoryQueue  bool
	WorkerCount     int
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	RedisPrefix   string

	// Scoring policy
	ScoringPolicyPath string
	ScoringScheme     string
	CommitAttempts    int

	// Persistence gateway
	StoreTimeout        time.Duration
	StoreRetryAttempts  int
	StoreRetryBaseDelay time.Duration

	// HTTP surface
	AdminJWTSecret string
	RateLimitRPS   float64
	RateLimitBurst int

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	EventQueueURL       string

	// Interventions
	InterventionLevelStore  string
	InterventionLevelsTable string
	InterventionQueueURL    string
	InterventionChannel     string
	NotifyTimeout           time.Duration

	// Operator email
	EmailProvider       string
	EmailFromEmail      string
	EmailFromName       string
	SendGridAPIKey      string
	OperatorAlertEmails []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		UseMemoryStore:  getEnvAsBool("USE_MEMORY_STORE", false),
		UseMemoryQueue:  getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 2),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		CORSOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		RedisPrefix:   getEnv("REDIS_PREFIX", "trust"),

		ScoringPolicyPath: getEnv("SCORING_POLICY_PATH", ""),
		ScoringScheme:     strings.ToLower(strings.TrimSpace(getEnv("SCORING_SCHEME", ""))),
		CommitAttempts:    getEnvAsInt("COMMIT_ATTEMPTS", 3),

		StoreTimeout:        getEnvAsDuration("STORE_TIMEOUT", 2*time.Second),
		StoreRetryAttempts:  getEnvAsInt("STORE_RETRY_ATTEMPTS", 3),
		StoreRetryBaseDelay: getEnvAsDuration("STORE_RETRY_BASE_DELAY", 50*time.Millisecond),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 40),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		EventQueueURL:       getEnv("EVENT_QUEUE_URL", ""),

		InterventionLevelStore:  strings.ToLower(strings.TrimSpace(getEnv("INTERVENTION_LEVEL_STORE", "auto"))),
		InterventionLevelsTable: getEnv("INTERVENTION_LEVELS_TABLE", "trust_intervention_levels"),
		InterventionQueueURL:    getEnv("INTERVENTION_QUEUE_URL", ""),
		InterventionChannel:     getEnv("INTERVENTION_CHANNEL", "trust.interventions"),
		NotifyTimeout:           getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),

		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		EmailFromEmail:      getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Trust Engine"),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		OperatorAlertEmails: getEnvAsList("OPERATOR_ALERT_EMAILS"),
	}
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

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
