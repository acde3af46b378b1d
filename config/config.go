package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	ServerPort int              `toml:"server_port"`
	JWTSecret  string           `toml:"jwt_secret"`
	Database   DatabaseConfig   `toml:"database"`
	Engine     EngineConfig     `toml:"engine"`
	Evaluation EvaluationConfig `toml:"evaluation"`
	Storage    StorageConfig    `toml:"storage"`
	Cache      CacheConfig      `toml:"cache"`
	MQ         MQConfig         `toml:"mq"`
	Analysis   AnalysisConfig   `toml:"analysis"`
}

type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DBName   string `toml:"dbname"`
	UseSSL   bool   `toml:"use_ssl"`
}

// EngineConfig describes how to reach the remote execution engine.
type EngineConfig struct {
	BaseURL          string `toml:"base_url"`
	APIKey           string `toml:"api_key"`
	PollIntervalMs   int    `toml:"poll_interval_ms"`
	MaxPollAttempts  int    `toml:"max_poll_attempts"`
	RequestTimeoutMs int    `toml:"request_timeout_ms"`
}

// PollInterval returns the spacing between status polls.
func (c EngineConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// RequestTimeout returns the per-request HTTP timeout.
func (c EngineConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// EvaluationConfig bounds how a submission is driven through the engine.
type EvaluationConfig struct {
	MaxConcurrentTestCases int     `toml:"max_concurrent_testcases"`
	CPUTimeLimitSeconds    float64 `toml:"cpu_time_limit_seconds"`
	MemoryLimitKB          int     `toml:"memory_limit_kb"`
	TestCaseRetries        int     `toml:"testcase_retries"`
}

type StorageConfig struct {
	Backend  string      `toml:"backend"`
	LocalDir string      `toml:"local_dir"`
	Minio    MinioConfig `toml:"minio"`
	GCS      GCSConfig   `toml:"gcs"`
}

type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

type GCSConfig struct {
	Bucket          string `toml:"bucket"`
	ProjectID       string `toml:"project_id"`
	CredentialsFile string `toml:"credentials_file"`
}

type CacheConfig struct {
	RedisURL      string `toml:"redis_url"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTLSeconds    int    `toml:"ttl_seconds"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type MQConfig struct {
	Backend  string         `toml:"backend"`
	Channel  string         `toml:"channel"`
	RabbitMQ RabbitMQConfig `toml:"rabbitmq"`
	PubSub   PubSubConfig   `toml:"pubsub"`
	NATS     NATSConfig     `toml:"nats"`
}

type RabbitMQConfig struct {
	URL             string `toml:"url"`
	PrefetchCount   int    `toml:"prefetch_count"`
	QueueDurable    bool   `toml:"queue_durable"`
	QueueAutoDelete bool   `toml:"queue_auto_delete"`
}

type PubSubConfig struct {
	ProjectID          string `toml:"project_id"`
	CredentialsFile    string `toml:"credentials_file"`
	SubscriptionSuffix string `toml:"subscription_suffix"`
}

type NATSConfig struct {
	URL string `toml:"url"`
}

type AnalysisConfig struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ServerPort: 8080,
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "judge",
			Password: "password",
			DBName:   "judge_db",
		},
		Engine: EngineConfig{
			BaseURL:          "http://127.0.0.1:2358",
			PollIntervalMs:   2000,
			MaxPollAttempts:  15,
			RequestTimeoutMs: 10000,
		},
		Evaluation: EvaluationConfig{
			MaxConcurrentTestCases: 4,
			CPUTimeLimitSeconds:    5,
			MemoryLimitKB:          128000,
		},
		Storage: StorageConfig{
			Backend:  "local",
			LocalDir: "testcases",
		},
		Cache: CacheConfig{
			TTLSeconds: 300,
		},
		MQ: MQConfig{
			Backend: "none",
			Channel: "submission.recorded",
		},
		Analysis: AnalysisConfig{
			BaseURL:   "https://api.groq.com/openai/v1",
			Model:     "llama-3.3-70b-versatile",
			MaxTokens: 1000,
		},
	}
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}
	cfg := Default()
	applyEnv(&cfg)
	return cfg
}

// LoadFile decodes a TOML file over the defaults; environment variables
// still take precedence.
func LoadFile(path string) (Config, error) {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ServerPort = getEnvInt("SERVER_PORT", cfg.ServerPort)
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", cfg.JWTSecret))

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.UseSSL = getEnvBool("DB_USE_SSL", cfg.Database.UseSSL)

	cfg.Engine.BaseURL = strings.TrimRight(getEnv("ENGINE_BASE_URL", cfg.Engine.BaseURL), "/")
	cfg.Engine.APIKey = getEnv("ENGINE_API_KEY", cfg.Engine.APIKey)
	cfg.Engine.PollIntervalMs = getEnvInt("ENGINE_POLL_INTERVAL_MS", cfg.Engine.PollIntervalMs)
	cfg.Engine.MaxPollAttempts = getEnvInt("ENGINE_MAX_POLL_ATTEMPTS", cfg.Engine.MaxPollAttempts)
	cfg.Engine.RequestTimeoutMs = getEnvInt("ENGINE_REQUEST_TIMEOUT_MS", cfg.Engine.RequestTimeoutMs)

	cfg.Evaluation.MaxConcurrentTestCases = getEnvInt("EVAL_MAX_CONCURRENCY", cfg.Evaluation.MaxConcurrentTestCases)
	cfg.Evaluation.CPUTimeLimitSeconds = getEnvFloat("EVAL_CPU_TIME_LIMIT", cfg.Evaluation.CPUTimeLimitSeconds)
	cfg.Evaluation.MemoryLimitKB = getEnvInt("EVAL_MEMORY_LIMIT_KB", cfg.Evaluation.MemoryLimitKB)
	cfg.Evaluation.TestCaseRetries = getEnvInt("EVAL_TESTCASE_RETRIES", cfg.Evaluation.TestCaseRetries)

	cfg.Storage.Backend = strings.ToLower(getEnv("STORAGE_BACKEND", cfg.Storage.Backend))
	cfg.Storage.LocalDir = getEnv("STORAGE_LOCAL_DIR", cfg.Storage.LocalDir)
	cfg.Storage.Minio.Endpoint = getEnv("MINIO_ENDPOINT", cfg.Storage.Minio.Endpoint)
	cfg.Storage.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", cfg.Storage.Minio.AccessKey)
	cfg.Storage.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", cfg.Storage.Minio.SecretKey)
	cfg.Storage.Minio.Bucket = getEnv("MINIO_BUCKET", cfg.Storage.Minio.Bucket)
	cfg.Storage.Minio.UseSSL = getEnvBool("MINIO_USE_SSL", cfg.Storage.Minio.UseSSL)
	cfg.Storage.GCS.Bucket = getEnv("GCS_BUCKET", cfg.Storage.GCS.Bucket)
	cfg.Storage.GCS.ProjectID = getEnv("GCS_PROJECT_ID", cfg.Storage.GCS.ProjectID)
	cfg.Storage.GCS.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", cfg.Storage.GCS.CredentialsFile)

	cfg.Cache.RedisURL = getEnv("REDIS_URL", cfg.Cache.RedisURL)
	cfg.Cache.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = getEnvInt("REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.TTLSeconds = getEnvInt("TESTCASE_CACHE_TTL_SEC", cfg.Cache.TTLSeconds)

	cfg.MQ.Backend = strings.ToLower(getEnv("MQ_BACKEND", cfg.MQ.Backend))
	cfg.MQ.Channel = getEnv("MQ_CHANNEL", cfg.MQ.Channel)
	cfg.MQ.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.MQ.RabbitMQ.URL)
	cfg.MQ.RabbitMQ.PrefetchCount = getEnvInt("RABBITMQ_PREFETCH", cfg.MQ.RabbitMQ.PrefetchCount)
	cfg.MQ.RabbitMQ.QueueDurable = getEnvBool("RABBITMQ_QUEUE_DURABLE", cfg.MQ.RabbitMQ.QueueDurable)
	cfg.MQ.RabbitMQ.QueueAutoDelete = getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", cfg.MQ.RabbitMQ.QueueAutoDelete)
	cfg.MQ.PubSub.ProjectID = getEnv("PUBSUB_PROJECT_ID", cfg.MQ.PubSub.ProjectID)
	cfg.MQ.PubSub.CredentialsFile = getEnv("PUBSUB_CREDENTIALS_FILE", cfg.MQ.PubSub.CredentialsFile)
	cfg.MQ.PubSub.SubscriptionSuffix = getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", cfg.MQ.PubSub.SubscriptionSuffix)
	cfg.MQ.NATS.URL = getEnv("NATS_URL", cfg.MQ.NATS.URL)

	cfg.Analysis.APIKey = getEnv("ANALYSIS_API_KEY", cfg.Analysis.APIKey)
	cfg.Analysis.BaseURL = getEnv("ANALYSIS_BASE_URL", cfg.Analysis.BaseURL)
	cfg.Analysis.Model = getEnv("ANALYSIS_MODEL", cfg.Analysis.Model)
	cfg.Analysis.MaxTokens = getEnvInt("ANALYSIS_MAX_TOKENS", cfg.Analysis.MaxTokens)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.Atoi(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}
