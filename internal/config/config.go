package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Worker   WorkerConfig
	Raster   RasterConfig
	OpenAI   OpenAIConfig
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	DSN string
}

// RedisConfig points at the queue broker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ServerConfig holds the HTTP API configuration.
type ServerConfig struct {
	Addr      string
	UploadDir string
}

// WorkerConfig controls the job orchestrator.
type WorkerConfig struct {
	Concurrency     int           // worker pool size
	StartsPerMinute int           // job-start rate limit; 0 disables
	ProcessTimeout  time.Duration // per-job deadline
}

// RasterConfig controls PDF rendering.
type RasterConfig struct {
	Pdftoppm   string
	DPI        int
	Width      int
	Height     int
	ScratchDir string
}

// OpenAIConfig holds capability-client configuration.
type OpenAIConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN: getEnv("DB_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Addr:      getEnv("HTTP_ADDR", ":8080"),
			UploadDir: getEnv("UPLOAD_DIR", "./uploads"),
		},
		Worker: WorkerConfig{
			Concurrency:     getEnvAsInt("WORKER_CONCURRENCY", 4),
			StartsPerMinute: getEnvAsInt("WORKER_STARTS_PER_MINUTE", 10),
			ProcessTimeout:  getEnvAsDuration("WORKER_PROCESS_TIMEOUT", 3*time.Minute),
		},
		Raster: RasterConfig{
			Pdftoppm:   getEnv("PDFTOPPM", "pdftoppm"),
			DPI:        getEnvAsInt("RASTER_DPI", 150),
			Width:      getEnvAsInt("RASTER_WIDTH", 1240),
			Height:     getEnvAsInt("RASTER_HEIGHT", 1754),
			ScratchDir: getEnv("RASTER_SCRATCH_DIR", ""),
		},
		OpenAI: OpenAIConfig{
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
		},
	}
}

// Validate checks the fields both binaries need to run.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	return nil
}

// Helper functions for environment variable parsing.
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

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
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
