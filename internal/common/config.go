package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Bedrock BedrockConfig
	Retry   RetryConfig
}

// BedrockConfig holds Bedrock runtime configuration
type BedrockConfig struct {
	Region         string
	RequestTimeout time.Duration
}

// RetryConfig holds the retry budgets shared by every invocation.
// MaxRetries and InitialBackoff bound the throttling retries around a
// single network call; RetryForIncompleteJSON bounds the schema-correction
// reprompts per invocation. Worst case an invocation performs
// (RetryForIncompleteJSON+1) × (MaxRetries+1) network calls, so callers
// cap total wall-clock time through these values.
type RetryConfig struct {
	MaxRetries             int
	InitialBackoff         time.Duration
	RetryForIncompleteJSON int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Bedrock: BedrockConfig{
			Region:         getEnv("AWS_REGION", "us-east-1"),
			RequestTimeout: getEnvAsDuration("BEDROCK_REQUEST_TIMEOUT", 2*time.Minute),
		},
		Retry: RetryConfig{
			MaxRetries:             getEnvAsInt("BEDROCK_MAX_RETRIES", 5),
			InitialBackoff:         getEnvAsDuration("BEDROCK_INITIAL_BACKOFF", 1*time.Second),
			RetryForIncompleteJSON: getEnvAsInt("RETRY_FOR_INCOMPLETE_JSON", 2),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Bedrock.Region == "" {
		return NewAppError("CONFIG_ERROR", "AWS_REGION is required", ErrInvalidInput)
	}
	if c.Retry.MaxRetries < 0 {
		return NewAppError("CONFIG_ERROR", "BEDROCK_MAX_RETRIES must be >= 0", ErrInvalidInput)
	}
	if c.Retry.InitialBackoff <= 0 {
		return NewAppError("CONFIG_ERROR", "BEDROCK_INITIAL_BACKOFF must be positive", ErrInvalidInput)
	}
	if c.Retry.RetryForIncompleteJSON < 0 {
		return NewAppError("CONFIG_ERROR", "RETRY_FOR_INCOMPLETE_JSON must be >= 0", ErrInvalidInput)
	}
	return nil
}
