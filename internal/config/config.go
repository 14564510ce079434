package config

import (
	"fmt"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config carries all environment-driven settings for both the interactive
// client and the detections backend. Credentials are never hardcoded; they
// are read from the environment (optionally seeded from a local .env file).
type Config struct {
	// Backend server.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	DBPath     string `env:"DB_PATH" envDefault:"/data/plantdoc.db"`

	// AI capability.
	AIBackend         string `env:"AI_BACKEND" envDefault:"gemini"`
	GeminiAPIKey      string `env:"GEMINI_API_KEY"`
	GeminiVisionModel string `env:"GEMINI_VISION_MODEL" envDefault:"gemini-2.5-flash-image"`
	GeminiChatModel   string `env:"GEMINI_CHAT_MODEL" envDefault:"gemini-2.5-flash"`
	ClaudeAPIKey      string `env:"CLAUDE_API_KEY"`
	ClaudeModel       string `env:"CLAUDE_MODEL" envDefault:"claude-sonnet-4-20250514"`
	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`
	OpenAIModel       string `env:"OPENAI_MODEL" envDefault:"gpt-4o"`

	// Persistence collaborator, as seen from the client.
	BackendURL string `env:"BACKEND_URL" envDefault:"http://localhost:8080"`

	// Logging.
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile   string `env:"LOG_FILE"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
