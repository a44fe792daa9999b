package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Redis
	RedisURL string

	// Projects
	ProjectsDir string // Root directory for project manifests and render workdirs

	// Blob store (object-store HTTP endpoint used to mirror outputs)
	BlobStoreURL    string
	BlobStoreKey    string
	BlobStoreBucket string

	// Rendering
	RenderMaxWorkers int    // Bounded worker pool size
	RenderResolution string // Base format for the default profile, e.g. "16x9"
	VoicesFile       string // YAML voice catalog path

	// ElevenLabs (preferred TTS provider)
	ElevenLabsKey string

	// OpenAI (alternative TTS provider)
	OpenAIKey string

	// Shotstack (remote renderer)
	ShotstackKey  string
	ShotstackHost string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		ProjectsDir:        getEnv("PROJECTS_DIR", "projects"),
		BlobStoreURL:       getEnv("BLOB_STORE_URL", ""),
		BlobStoreKey:       getEnv("BLOB_STORE_KEY", ""),
		BlobStoreBucket:    getEnv("BLOB_STORE_BUCKET", "newsreel-videos"),
		RenderMaxWorkers:   getEnvInt("RENDER_MAX_WORKERS", 2),
		RenderResolution:   getEnv("RENDER_RESOLUTION", "16x9"),
		VoicesFile:         getEnv("VOICES_FILE", "assets/voices.yaml"),
		ElevenLabsKey:      getEnv("ELEVENLABS_API_KEY", ""),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		ShotstackKey:       getEnv("SHOTSTACK_API_KEY", ""),
		ShotstackHost:      getEnv("SHOTSTACK_HOST", "https://api.shotstack.io/v1"),
	}

	if cfg.ProjectsDir == "" {
		return nil, fmt.Errorf("PROJECTS_DIR is required")
	}

	// At least one TTS provider must be configured; without one every
	// segment would degrade to estimated silence.
	if cfg.ElevenLabsKey == "" && cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("either ELEVENLABS_API_KEY or OPENAI_API_KEY is required for TTS")
	}

	if cfg.RenderMaxWorkers < 1 {
		cfg.RenderMaxWorkers = 1
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
