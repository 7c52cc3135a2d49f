package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is shared by the api and worker processes. Values come from
// defaults, then an optional YAML file (CONFIG_FILE), then the environment.
type Config struct {
	AppEnv   string `yaml:"app_env"`
	LogLevel string `yaml:"log_level"`

	HTTP     HTTPConfig     `yaml:"http"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Relay    RelayConfig    `yaml:"relay"`
	Workers  WorkersConfig  `yaml:"workers"`
	LLM      LLMConfig      `yaml:"llm"`
	Render   RenderConfig   `yaml:"render"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
}

type HTTPConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	PublicURL    string        `yaml:"public_url"`
	ShutdownWait time.Duration `yaml:"shutdown_wait"`
}

type RedisConfig struct {
	Addr          string `yaml:"addr"`
	URL           string `yaml:"url"`
	Password      string `yaml:"password"`
	QueueKey      string `yaml:"queue_key"`
	ProcessingKey string `yaml:"processing_key"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type JobsConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	ResultTTL   time.Duration `yaml:"result_ttl"`
	ProgressTTL time.Duration `yaml:"progress_ttl"`
}

type RelayConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PollBudget   time.Duration `yaml:"poll_budget"`
}

type WorkersConfig struct {
	Count          int           `yaml:"count"`
	Embedded       int           `yaml:"embedded"`
	ClaimWait      time.Duration `yaml:"claim_wait"`
	LeaseTTL       time.Duration `yaml:"lease_ttl"`
	Heartbeat      time.Duration `yaml:"heartbeat"`
	ReaperInterval time.Duration `yaml:"reaper_interval"`
}

type LLMConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type RenderConfig struct {
	Python    string        `yaml:"python"`
	OutputDir string        `yaml:"output_dir"`
	ScriptDir string        `yaml:"script_dir"`
	Timeout   time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	Bucket    string        `yaml:"bucket"`
	Region    string        `yaml:"region"`
	Prefix    string        `yaml:"prefix"`
	URLExpiry time.Duration `yaml:"url_expiry"`
}

type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	WebhookSecret string `yaml:"webhook_secret"`
}

func defaults() *Config {
	return &Config{
		AppEnv:   "development",
		LogLevel: "info",
		HTTP: HTTPConfig{
			Port:         "8000",
			ReadTimeout:  15 * time.Second,
			IdleTimeout:  60 * time.Second,
			PublicURL:    "http://localhost:8000",
			ShutdownWait: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			QueueKey:      "jobs:queue",
			ProcessingKey: "jobs:processing",
		},
		Jobs: JobsConfig{
			Timeout:     10 * time.Minute,
			ResultTTL:   24 * time.Hour,
			ProgressTTL: time.Hour,
		},
		Relay: RelayConfig{
			PollInterval: 500 * time.Millisecond,
			PollBudget:   10 * time.Minute,
		},
		Workers: WorkersConfig{
			Count:          4,
			ClaimWait:      5 * time.Second,
			LeaseTTL:       15 * time.Second,
			Heartbeat:      5 * time.Second,
			ReaperInterval: 30 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "moonshotai/kimi-k2-instruct-0905",
			Timeout: 2 * time.Minute,
		},
		Render: RenderConfig{
			Python:    "python3",
			OutputDir: "generated_animations",
			ScriptDir: "temp",
			Timeout:   8 * time.Minute,
		},
		Storage: StorageConfig{
			Region:    "ap-south-1",
			Prefix:    "videos/",
			URLExpiry: 24 * time.Hour,
		},
	}
}

// Load reads .env (if present), the optional CONFIG_FILE and the process
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.AppEnv = envOr("APP_ENV", c.AppEnv)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)

	c.HTTP.Port = envOr("PORT", c.HTTP.Port)
	c.HTTP.PublicURL = envOr("PUBLIC_BASE_URL", c.HTTP.PublicURL)
	c.HTTP.ReadTimeout = envDurationOr("HTTP_READ_TIMEOUT", c.HTTP.ReadTimeout)
	c.HTTP.IdleTimeout = envDurationOr("HTTP_IDLE_TIMEOUT", c.HTTP.IdleTimeout)

	c.Redis.URL = envOr("REDIS_URL", c.Redis.URL)
	c.Redis.Addr = envOr("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envOr("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.QueueKey = envOr("REDIS_QUEUE_KEY", c.Redis.QueueKey)
	c.Redis.ProcessingKey = envOr("REDIS_PROCESSING_KEY", c.Redis.ProcessingKey)

	c.Postgres.DSN = envOr("POSTGRES_DSN", c.Postgres.DSN)

	c.Jobs.Timeout = envDurationOr("JOB_TIMEOUT", c.Jobs.Timeout)
	c.Jobs.ResultTTL = envDurationOr("RESULT_TTL", c.Jobs.ResultTTL)
	c.Jobs.ProgressTTL = envDurationOr("PROGRESS_TTL", c.Jobs.ProgressTTL)

	c.Relay.PollInterval = envDurationOr("RELAY_POLL_INTERVAL", c.Relay.PollInterval)
	c.Relay.PollBudget = envDurationOr("RELAY_POLL_BUDGET", c.Relay.PollBudget)

	c.Workers.Count = envIntOr("WORKERS", c.Workers.Count)
	c.Workers.Embedded = envIntOr("EMBEDDED_WORKERS", c.Workers.Embedded)
	c.Workers.ClaimWait = envDurationOr("WORKER_CLAIM_WAIT", c.Workers.ClaimWait)
	c.Workers.LeaseTTL = envDurationOr("WORKER_LEASE_TTL", c.Workers.LeaseTTL)
	c.Workers.Heartbeat = envDurationOr("WORKER_HEARTBEAT", c.Workers.Heartbeat)
	c.Workers.ReaperInterval = envDurationOr("REAPER_INTERVAL", c.Workers.ReaperInterval)

	c.LLM.APIKey = envOr("GROQ_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = envOr("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = envOr("LLM_MODEL", c.LLM.Model)
	c.LLM.Timeout = envDurationOr("LLM_TIMEOUT", c.LLM.Timeout)

	c.Render.Python = envOr("MANIM_PYTHON", c.Render.Python)
	c.Render.OutputDir = envOr("RENDER_OUTPUT_DIR", c.Render.OutputDir)
	c.Render.ScriptDir = envOr("RENDER_SCRIPT_DIR", c.Render.ScriptDir)
	c.Render.Timeout = envDurationOr("RENDER_TIMEOUT", c.Render.Timeout)

	c.Storage.Bucket = envOr("S3_BUCKET_NAME", c.Storage.Bucket)
	c.Storage.Region = envOr("AWS_REGION", c.Storage.Region)
	c.Storage.Prefix = envOr("S3_KEY_PREFIX", c.Storage.Prefix)
	c.Storage.URLExpiry = envDurationOr("SIGNED_URL_EXPIRY", c.Storage.URLExpiry)

	c.Auth.JWTSecret = envOr("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.WebhookSecret = envOr("WEBHOOK_SECRET", c.Auth.WebhookSecret)
}

func (c *Config) Validate() error {
	if c.HTTP.Port == "" {
		return fmt.Errorf("http port is required")
	}
	if c.Redis.URL == "" && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_URL or REDIS_ADDR is required")
	}
	if c.Jobs.Timeout <= 0 {
		return fmt.Errorf("job timeout must be positive")
	}
	if c.Jobs.ProgressTTL <= 0 || c.Jobs.ResultTTL <= 0 {
		return fmt.Errorf("progress and result ttl must be positive")
	}
	if c.Relay.PollInterval <= 0 {
		return fmt.Errorf("relay poll interval must be positive")
	}
	if c.Relay.PollBudget < c.Relay.PollInterval {
		return fmt.Errorf("relay poll budget must be at least one poll interval")
	}
	if c.Workers.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.Workers.Embedded < 0 {
		return fmt.Errorf("embedded workers must be non-negative")
	}
	if c.Workers.Heartbeat <= 0 || c.Workers.Heartbeat >= c.Workers.LeaseTTL {
		return fmt.Errorf("worker heartbeat must be positive and shorter than the lease ttl")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// envDurationOr accepts Go durations ("90s") or plain seconds ("90").
func envDurationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

var dsnPassword = regexp.MustCompile(`://([^:/?#]+):([^@/]+)@`)

// RedactDSN masks the password part of a connection URL: user:pass@ -> user:****@
func RedactDSN(dsn string) string {
	return dsnPassword.ReplaceAllString(dsn, `://$1:****@`)
}
