package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the config file read by main, overridable with
// LANGGRADE_CONFIG.
var ConfigPath = configPathFromEnv()

func configPathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("LANGGRADE_CONFIG")); v != "" {
		return v
	}
	return "config.yaml"
}

// Provider names accepted in config.yaml.
const (
	LLMOpenAI = "openai"
	LLMOllama = "ollama"
	LLMGemini = "gemini"

	ParserLlamaParse = "llamaparse"
	ParserLocal      = "local"

	CacheMemory = "memory"
	CacheRedis  = "redis"

	ExtractorRegion      = "region"
	ExtractorReadability = "readability"

	CoverOpenLibrary = "openlibrary"
	CoverGoogleBooks = "googlebooks"
	CoverChain       = "chain"
)

// Defaults applied by Load for optional settings.
const (
	DefaultModel              = "gpt-4o-mini"
	DefaultMaxPages           = 25
	DefaultMaxWords           = 15000
	DefaultCacheEntries       = 256
	DefaultCacheTTLSeconds    = 24 * 60 * 60
	DefaultMaxUploadBytes     = 50 << 20
	DefaultFetchTimeoutSecond = 15
	DefaultQueueConcurrency   = 2
	DefaultQueueMaxRetries    = 3
	DefaultQueueName          = "langgrade:cover-backfill"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port           string   `yaml:"port"`
	LogLevel       string   `yaml:"logLevel"`
	StagingRoot    string   `yaml:"stagingRoot"`
	AllowedOrigins []string `yaml:"allowedOrigins"`

	DatabaseURL string `yaml:"databaseURL"`

	LLMProvider   string `yaml:"llmProvider"`
	LLMModel      string `yaml:"llmModel"`
	OpenAIAPIKey  string `yaml:"openaiApiKey"`
	OpenAIBaseURL string `yaml:"openaiBaseURL"`
	OllamaURL     string `yaml:"ollamaURL"`
	GeminiAPIKey  string `yaml:"geminiApiKey"`
	GeminiBaseURL string `yaml:"geminiBaseURL"`

	Parser           string `yaml:"parser"`
	LlamaCloudAPIKey string `yaml:"llamaCloudApiKey"`
	LlamaParseURL    string `yaml:"llamaParseURL"`
	PdftotextPath    string `yaml:"pdftotextPath"`

	MaxPages       int   `yaml:"maxPages"`
	MaxWords       int   `yaml:"maxWords"`
	MaxUploadBytes int64 `yaml:"maxUploadBytes"`

	AnalysisCache           string `yaml:"analysisCache"`
	AnalysisCacheEntries    int    `yaml:"analysisCacheEntries"`
	AnalysisCacheTTLSeconds int    `yaml:"analysisCacheTtlSeconds"`

	ArticleExtractor           string `yaml:"articleExtractor"`
	ArticleFetchTimeoutSeconds int    `yaml:"articleFetchTimeoutSeconds"`

	CoverProvider     string `yaml:"coverProvider"`
	GoogleBooksAPIKey string `yaml:"googleBooksApiKey"`
	OpenLibraryURL    string `yaml:"openLibraryURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	CoverBackfill          bool   `yaml:"coverBackfill"`
	QueueName              string `yaml:"queueName"`
	QueueGroup             string `yaml:"queueGroup"`
	QueueConcurrency       int    `yaml:"queueConcurrency"`
	QueueMaxRetries        int    `yaml:"queueMaxRetries"`
	QueueRetryDelaySeconds int    `yaml:"queueRetryDelaySeconds"`

	RateLimitPerMinute int      `yaml:"rateLimitPerMinute"`
	TrustedProxyCIDRs  []string `yaml:"trustedProxyCidrs"`

	MinioEndpoint        string `yaml:"minioEndpoint"`
	MinioAccessKey       string `yaml:"minioAccessKey"`
	MinioSecretKey       string `yaml:"minioSecretKey"`
	MinioBucket          string `yaml:"minioBucket"`
	MinioUseSSL          bool   `yaml:"minioUseSSL"`
	ArchivePrefix        string `yaml:"archivePrefix"`
	PresignExpirySeconds int    `yaml:"presignExpirySeconds"`

	AuthJWKSURL string `yaml:"authJwksURL"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Override with environment variables
func applyEnv(cfg *FileConfig) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(dst *bool, key string) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.LLMProvider, "LANGGRADE_LLM_PROVIDER")
	setString(&cfg.LLMModel, "LANGGRADE_LLM_MODEL")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&cfg.OllamaURL, "OLLAMA_URL")
	setString(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.Parser, "LANGGRADE_PARSER")
	setString(&cfg.LlamaCloudAPIKey, "LLAMA_CLOUD_API_KEY")
	setString(&cfg.GoogleBooksAPIKey, "GOOGLE_BOOKS_API_KEY")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	setBool(&cfg.MinioUseSSL, "MINIO_USE_SSL")
	setString(&cfg.AuthJWKSURL, "AUTH_JWKS_URL")
	setString(&cfg.JWTIssuer, "AUTH_JWT_ISSUER")
	setString(&cfg.JWTAudience, "AUTH_APP_ID")
	setInt(&cfg.RateLimitPerMinute, "LANGGRADE_RATE_LIMIT_PER_MINUTE")
	setInt(&cfg.MaxPages, "LANGGRADE_MAX_PAGES")
	setInt(&cfg.MaxWords, "LANGGRADE_MAX_WORDS")
	if v := os.Getenv("LANGGRADE_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("LANGGRADE_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	cfg.LLMProvider = lowerOr(cfg.LLMProvider, LLMOpenAI)
	cfg.Parser = lowerOr(cfg.Parser, ParserLlamaParse)
	cfg.AnalysisCache = lowerOr(cfg.AnalysisCache, CacheMemory)
	cfg.ArticleExtractor = lowerOr(cfg.ArticleExtractor, ExtractorRegion)
	cfg.CoverProvider = lowerOr(cfg.CoverProvider, CoverOpenLibrary)
	if strings.TrimSpace(cfg.LLMModel) == "" && cfg.LLMProvider == LLMOpenAI {
		cfg.LLMModel = DefaultModel
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.MaxWords == 0 {
		cfg.MaxWords = DefaultMaxWords
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.AnalysisCacheEntries == 0 {
		cfg.AnalysisCacheEntries = DefaultCacheEntries
	}
	if cfg.AnalysisCacheTTLSeconds == 0 {
		cfg.AnalysisCacheTTLSeconds = DefaultCacheTTLSeconds
	}
	if cfg.ArticleFetchTimeoutSeconds == 0 {
		cfg.ArticleFetchTimeoutSeconds = DefaultFetchTimeoutSecond
	}
	if cfg.QueueConcurrency == 0 {
		cfg.QueueConcurrency = DefaultQueueConcurrency
	}
	if cfg.QueueMaxRetries == 0 {
		cfg.QueueMaxRetries = DefaultQueueMaxRetries
	}
	if strings.TrimSpace(cfg.QueueName) == "" {
		cfg.QueueName = DefaultQueueName
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	switch cfg.LLMProvider {
	case LLMOpenAI:
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return errors.New("config: openaiApiKey is required for llmProvider=openai (set OPENAI_API_KEY)")
		}
	case LLMOllama:
		if strings.TrimSpace(cfg.LLMModel) == "" {
			return errors.New("config: llmModel is required for llmProvider=ollama")
		}
	case LLMGemini:
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return errors.New("config: geminiApiKey is required for llmProvider=gemini (set GEMINI_API_KEY)")
		}
	default:
		return fmt.Errorf("config: unknown llmProvider %q", cfg.LLMProvider)
	}
	switch cfg.Parser {
	case ParserLlamaParse:
		if strings.TrimSpace(cfg.LlamaCloudAPIKey) == "" {
			return errors.New("config: llamaCloudApiKey is required for parser=llamaparse (set LLAMA_CLOUD_API_KEY)")
		}
	case ParserLocal:
	default:
		return fmt.Errorf("config: unknown parser %q", cfg.Parser)
	}
	switch cfg.AnalysisCache {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("config: unknown analysisCache %q", cfg.AnalysisCache)
	}
	switch cfg.ArticleExtractor {
	case ExtractorRegion, ExtractorReadability:
	default:
		return fmt.Errorf("config: unknown articleExtractor %q", cfg.ArticleExtractor)
	}
	switch cfg.CoverProvider {
	case CoverOpenLibrary:
	case CoverGoogleBooks, CoverChain:
		if strings.TrimSpace(cfg.GoogleBooksAPIKey) == "" {
			return fmt.Errorf("config: googleBooksApiKey is required for coverProvider=%s", cfg.CoverProvider)
		}
	default:
		return fmt.Errorf("config: unknown coverProvider %q", cfg.CoverProvider)
	}
	if cfg.NeedsRedis() && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when analysisCache=redis or coverBackfill is set")
	}
	if cfg.MinioEndpoint != "" {
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required with minioEndpoint")
		}
	}
	if cfg.MaxPages < 0 || cfg.MaxWords < 0 || cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxPages, maxWords and maxUploadBytes must be > 0")
	}
	if cfg.AnalysisCacheEntries < 0 || cfg.AnalysisCacheTTLSeconds < 0 {
		return errors.New("config: analysis cache limits must be >= 0")
	}
	if cfg.RateLimitPerMinute < 0 {
		return errors.New("config: rateLimitPerMinute must be >= 0")
	}
	if cfg.QueueConcurrency < 0 || cfg.QueueMaxRetries < 0 || cfg.QueueRetryDelaySeconds < 0 {
		return errors.New("config: queue settings must be >= 0")
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// NeedsRedis reports whether any enabled feature is backed by Redis. The rate
// limiter uses Redis only when redisAddr is set and stays in memory otherwise.
func (c FileConfig) NeedsRedis() bool {
	return c.AnalysisCache == CacheRedis || c.CoverBackfill ||
		(c.RateLimitPerMinute > 0 && strings.TrimSpace(c.RedisAddr) != "")
}

// ArchiveEnabled reports whether normalized documents are archived in MinIO.
func (c FileConfig) ArchiveEnabled() bool {
	return strings.TrimSpace(c.MinioEndpoint) != ""
}

// AuthEnabled reports whether signed-in routes are served.
func (c FileConfig) AuthEnabled() bool {
	return strings.TrimSpace(c.AuthJWKSURL) != ""
}

func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

func lowerOr(v, fallback string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return fallback
	}
	return v
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
