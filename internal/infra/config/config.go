package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env          string
	LogLevel     string
	Server       ServerConfig
	DB           DBConfig
	Embedder     EmbedderConfig
	Generator    GeneratorConfig
	Rerank       RerankConfig
	Retrieval    RetrievalConfig
	Compare      CompareConfig
	Guardrail    GuardrailConfig
	Orchestrator OrchestratorConfig
	Cache        CacheConfig
	Audit        AuditConfig
	OTel         OTelConfig
}

type ServerConfig struct {
	Port            string
	H2C             bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DBConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	AutoMigrate bool
}

// DSN builds a postgres connection URL from the parts.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

type EmbedderConfig struct {
	URL       string
	Model     string
	Timeout   time.Duration
	BatchSize int
	RateLimit float64
	RateBurst int
}

type GeneratorConfig struct {
	URL     string
	Model   string
	Timeout time.Duration
}

type RerankConfig struct {
	Enabled  bool
	URL      string
	Model    string
	TopK     int
	MinScore float64
	Timeout  time.Duration
}

type RetrievalConfig struct {
	Threshold        float64
	SearchLimit      int
	MaxVariants      int
	FanOutTimeout    time.Duration
	EmbedMaxAttempts int
}

type CompareConfig struct {
	Threshold         float64
	BreadthFactor     int
	DefaultMaxResults int
}

type GuardrailConfig struct {
	DowngradeThreshold float64
	ClaimOverlap       float64
	MaxHallucination   float64
}

type OrchestratorConfig struct {
	PromptVersion   string
	AnswerLimit     int
	MaxTokens       int
	GenerateTimeout time.Duration
}

type CacheConfig struct {
	// Backend is "lru", "redis" or "none".
	Backend       string
	Size          int
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type AuditConfig struct {
	QueueSize   int
	MaxAttempts int
}

type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	SampleRatio    float64
}

func Load() *Config {
	return &Config{
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:            getEnv("PORT", "9010"),
			H2C:             getEnvBool("SERVER_H2C", false),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		DB: DBConfig{
			Host:        getEnv("DB_HOST", "protocol-db"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "protocol_user"),
			Password:    getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "protocol_password"),
			Name:        getEnv("DB_NAME", "protocol_db"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    int32(getEnvInt("DB_MAX_CONNS", 20)),
			MinConns:    int32(getEnvInt("DB_MIN_CONNS", 5)),
			AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Embedder: EmbedderConfig{
			URL:       getEnvWithAlt("EMBEDDER_URL", "OLLAMA_URL", "http://ollama:11434"),
			Model:     getEnv("EMBEDDING_MODEL", "embeddinggemma"),
			Timeout:   getEnvDuration("EMBEDDER_TIMEOUT", 10*time.Second),
			BatchSize: getEnvInt("EMBEDDER_BATCH_SIZE", 32),
			RateLimit: getEnvFloat64("EMBEDDER_RATE_LIMIT", 20),
			RateBurst: getEnvInt("EMBEDDER_RATE_BURST", 10),
		},
		Generator: GeneratorConfig{
			URL:     getEnvWithAlt("GENERATOR_URL", "OLLAMA_URL", "http://ollama:11434"),
			Model:   getEnv("GENERATOR_MODEL", "gemma3:4b"),
			Timeout: getEnvDuration("GENERATOR_TIMEOUT", 60*time.Second),
		},
		Rerank: RerankConfig{
			Enabled:  getEnvBool("RERANK_ENABLED", false),
			URL:      getEnv("RERANK_URL", "http://reranker:8080"),
			Model:    getEnv("RERANK_MODEL", "bge-reranker-v2-m3"),
			TopK:     getEnvInt("RERANK_TOP_K", 30),
			MinScore: getEnvFloat64("RERANK_MIN_SCORE", 0.1),
			Timeout:  getEnvDuration("RERANK_TIMEOUT", 5*time.Second),
		},
		Retrieval: RetrievalConfig{
			Threshold:        getEnvFloat64("RETRIEVAL_THRESHOLD", 0.35),
			SearchLimit:      getEnvInt("RETRIEVAL_SEARCH_LIMIT", 20),
			MaxVariants:      getEnvInt("RETRIEVAL_MAX_VARIANTS", 4),
			FanOutTimeout:    getEnvDuration("RETRIEVAL_TIMEOUT", 8*time.Second),
			EmbedMaxAttempts: getEnvInt("RETRIEVAL_EMBED_MAX_ATTEMPTS", 3),
		},
		Compare: CompareConfig{
			Threshold:         getEnvFloat64("COMPARE_THRESHOLD", 0.25),
			BreadthFactor:     getEnvInt("COMPARE_BREADTH_FACTOR", 3),
			DefaultMaxResults: getEnvInt("COMPARE_DEFAULT_MAX_RESULTS", 5),
		},
		Guardrail: GuardrailConfig{
			DowngradeThreshold: getEnvFloat64("GUARDRAIL_DOWNGRADE_THRESHOLD", 0.55),
			ClaimOverlap:       getEnvFloat64("GUARDRAIL_CLAIM_OVERLAP", 0.7),
			MaxHallucination:   getEnvFloat64("GUARDRAIL_MAX_HALLUCINATION", 0.5),
		},
		Orchestrator: OrchestratorConfig{
			PromptVersion:   getEnv("PROMPT_VERSION", "protocol-v1"),
			AnswerLimit:     getEnvInt("ANSWER_MAX_CHUNKS", 5),
			MaxTokens:       getEnvInt("ANSWER_MAX_TOKENS", 768),
			GenerateTimeout: getEnvDuration("ANSWER_GENERATE_TIMEOUT", 30*time.Second),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(getEnv("CACHE_BACKEND", "lru")),
			Size:          getEnvInt("CACHE_SIZE", 256),
			TTL:           getEnvDuration("CACHE_TTL", 10*time.Minute),
			RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
			RedisPassword: getSecret("REDIS_PASSWORD", "REDIS_PASSWORD_FILE", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		Audit: AuditConfig{
			QueueSize:   getEnvInt("AUDIT_QUEUE_SIZE", 1024),
			MaxAttempts: getEnvInt("AUDIT_MAX_ATTEMPTS", 4),
		},
		OTel: OTelConfig{
			Enabled:        getEnvBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "protocol-rag"),
			ServiceVersion: getEnv("SERVICE_VERSION", "0.0.0"),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
			SampleRatio:    getEnvFloat64("OTEL_TRACE_SAMPLE_RATIO", 0.1),
		},
	}
}

// Validate checks the settings the domain configs do not cover.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "lru", "redis", "none":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend != "none" && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.Cache.Backend == "lru" && c.Cache.Size <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.Embedder.RateLimit <= 0 || c.Embedder.RateBurst <= 0 {
		return fmt.Errorf("embedder rate limit and burst must be positive")
	}
	if c.Retrieval.EmbedMaxAttempts < 1 {
		return fmt.Errorf("embed max attempts must be at least 1")
	}
	if c.Rerank.MinScore < 0 || c.Rerank.MinScore > 1 {
		return fmt.Errorf("rerank min score must be within [0,1], got %v", c.Rerank.MinScore)
	}
	if c.DB.MinConns > c.DB.MaxConns {
		return fmt.Errorf("db min conns %d exceeds max conns %d", c.DB.MinConns, c.DB.MaxConns)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getSecret reads envKey directly, then the file named by fileEnvKey.
func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvWithAlt(key, altKey, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if value, ok := os.LookupEnv(altKey); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat64(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("750ms", "2m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
