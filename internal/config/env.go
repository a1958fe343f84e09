package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	LLMProviderGemini = "gemini"
	LLMProviderOpenAI = "openai"
)

type Config struct {
	Port     string `env:"PORT" env-default:"8080"`
	Env      string `env:"APP_ENV" env-default:"development"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	DatabaseURL string `env:"DATABASE_URL" env-required:"true"`
	SslCertPath string `env:"SSL_CERT_PATH"`

	JWTSecret    string        `env:"JWT_SECRET" env-required:"true"`
	JWTExpiresIn time.Duration `env:"JWT_EXPIRES_IN" env-default:"24h"`
	CookieSecure bool          `env:"COOKIE_SECURE" env-default:"false"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000,http://localhost:5173"`

	AwsAccessKey string `env:"AWS_ACCESS_KEY"`
	AwsSecretKey string `env:"AWS_SECRET_KEY"`
	AwsRegion    string `env:"AWS_REGION" env-default:"us-east-2"`
	BucketName   string `env:"BUCKET_NAME" env-default:"agrointelx-soil-reports"`
	// S3Endpoint points the client at an S3-compatible store (MinIO) when set.
	S3Endpoint string `env:"S3_ENDPOINT"`

	AnalysisBaseURL       string        `env:"FASTAPI_URL" env-default:"http://localhost:8000"`
	ReportAnalysisTimeout time.Duration `env:"REPORT_ANALYSIS_TIMEOUT" env-default:"120s"`
	PredictTimeout        time.Duration `env:"PREDICT_TIMEOUT" env-default:"60s"`
	MaxUploadBytes        int64         `env:"MAX_UPLOAD_BYTES" env-default:"5242880"`

	LLMProvider   string `env:"LLM_PROVIDER" env-default:"gemini"`
	AIAPIKey      string `env:"GEMINI_API_KEY"`
	GenModel      string `env:"GEN_MODEL" env-default:"gemini-2.5-flash"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	OpenAIModel   string `env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`
}

// LoadConfig reads an optional .env file, then fills Config from the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET not set")
	}
	switch c.LLMProvider {
	case LLMProviderGemini, LLMProviderOpenAI:
	default:
		return fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", LLMProviderGemini, LLMProviderOpenAI, c.LLMProvider)
	}
	if c.ReportAnalysisTimeout <= 0 || c.PredictTimeout <= 0 {
		return fmt.Errorf("analysis timeouts must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.JWTExpiresIn <= 0 {
		return fmt.Errorf("JWT_EXPIRES_IN must be positive")
	}
	return nil
}

// IsDevelopment reports whether the process runs with developer defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "local"
}
