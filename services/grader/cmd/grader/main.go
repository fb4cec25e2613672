package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"

	"langgrade/internal/ratelimit"
	"langgrade/internal/staging"
	"langgrade/internal/usertoken"
	"langgrade/internal/util"
	"langgrade/pkg/ai"
	"langgrade/pkg/analysis"
	"langgrade/pkg/article"
	"langgrade/pkg/convert"
	"langgrade/pkg/cover"
	"langgrade/pkg/parse"
	"langgrade/pkg/queue"
	"langgrade/pkg/storage"
	"langgrade/pkg/store"
	"langgrade/services/grader/internal/app"
	"langgrade/services/grader/internal/config"
	"langgrade/services/grader/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	area, err := staging.New(cfg.StagingRoot)
	if err != nil {
		fatal("failed to resolve staging root", err)
	}
	normalizer, err := convert.NewNormalizer(convert.Options{
		CacheDir: area.Dir(staging.ConvertDir),
		MaxPages: cfg.MaxPages,
		MaxWords: cfg.MaxWords,
	})
	if err != nil {
		fatal("failed to init normalizer", err)
	}

	llm, err := newGenerator(cfg)
	if err != nil {
		fatal("failed to init llm", err)
	}
	parser, err := newParser(cfg)
	if err != nil {
		fatal("failed to init parser", err)
	}

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			fatal("failed to reach redis", err)
		}
		defer rdb.Close()
	}

	var cache analysis.Cache = analysis.NewMemoryCache(cfg.AnalysisCacheEntries)
	if cfg.AnalysisCache == config.CacheRedis {
		cache = analysis.NewRedisCache(rdb, "", time.Duration(cfg.AnalysisCacheTTLSeconds)*time.Second)
	}

	fetcher := article.NewFetcher(time.Duration(cfg.ArticleFetchTimeoutSeconds)*time.Second, cfg.ArticleExtractor)
	openLibrary := cover.NewOpenLibrary(cfg.OpenLibraryURL, "")

	books, err := newStore(cfg.DatabaseURL)
	if err != nil {
		fatal("failed to open book store", err)
	}

	appCfg := app.Config{
		Staging:    area,
		Normalizer: normalizer,
		Analyzer:   analysis.New(parser, llm, cache),
		Articles:   article.NewService(llm, fetcher),
		Covers:     cover.NewResolver(newFinder(cfg, openLibrary)),
		Lookup:     openLibrary,
		Store:      books,
	}

	if cfg.ArchiveEnabled() {
		objects, err := storage.NewMinioStore(ctx, storage.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			fatal("failed to init object storage", err)
		}
		appCfg.Archive = storage.NewArchive(objects, cfg.ArchivePrefix, time.Duration(cfg.PresignExpirySeconds)*time.Second)
	}

	var jobs *queue.RedisJobQueue
	if cfg.CoverBackfill {
		jobs, err = queue.NewRedisJobQueue(rdb, queue.RedisQueueConfig{
			Stream:     cfg.QueueName,
			Group:      cfg.QueueGroup,
			MaxRetries: cfg.QueueMaxRetries,
			RetryDelay: time.Duration(cfg.QueueRetryDelaySeconds) * time.Second,
		})
		if err != nil {
			fatal("failed to init job queue", err)
		}
		appCfg.Queue = jobs
	}

	appCore, err := app.New(appCfg)
	if err != nil {
		fatal("failed to init app", err)
	}
	if jobs != nil {
		jobs.Start(ctx, cfg.QueueConcurrency, appCore.BackfillCover)
		logger.Info("cover backfill workers started", "queue", cfg.QueueName, "concurrency", cfg.QueueConcurrency)
	}

	serverCfg := server.Config{
		App:            appCore,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	if cfg.RateLimitPerMinute > 0 {
		limiter, err := newLimiter(cfg, rdb)
		if err != nil {
			fatal("failed to init rate limiter", err)
		}
		if rdb == nil {
			logger.Info("rate limiter is process-local", "perMinute", cfg.RateLimitPerMinute)
		}
		serverCfg.Limiter = limiter
	}
	serverCfg.TrustedProxies, err = util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		fatal("failed to parse trusted proxies", err)
	}
	if cfg.AuthEnabled() {
		leeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
		if err != nil {
			fatal("failed to parse jwt leeway", err)
		}
		verifier, err := usertoken.NewVerifier(usertoken.Config{
			JWKSURL:    cfg.AuthJWKSURL,
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
			Leeway:     leeway,
			HTTPClient: &http.Client{Timeout: 5 * time.Second},
		})
		if err != nil {
			fatal("failed to init jwks verifier", err)
		}
		serverCfg.TokenVerifier = verifier
	} else {
		logger.Warn("authJwksURL not set; library writes are disabled")
	}

	httpServer, err := server.New(serverCfg)
	if err != nil {
		fatal("failed to init server", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("grader server listening", "addr", addr, "llm", cfg.LLMProvider, "parser", cfg.Parser)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}

func newGenerator(cfg config.FileConfig) (ai.TextGenerator, error) {
	switch cfg.LLMProvider {
	case config.LLMOllama:
		return ai.NewOllamaGenerator(ai.NewOllamaClient(cfg.OllamaURL), cfg.LLMModel), nil
	case config.LLMGemini:
		return ai.NewGeminiGenerator(cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.LLMModel)
	default:
		return ai.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMModel), nil
	}
}

func newParser(cfg config.FileConfig) (parse.Parser, error) {
	if cfg.Parser == config.ParserLocal {
		p := parse.NewLocalParser()
		if strings.TrimSpace(cfg.PdftotextPath) != "" {
			p.Pdftotext = cfg.PdftotextPath
		}
		return p, nil
	}
	return parse.NewLlamaParseClient(cfg.LlamaCloudAPIKey, cfg.LlamaParseURL)
}

func newFinder(cfg config.FileConfig, openLibrary *cover.OpenLibrary) cover.Finder {
	switch cfg.CoverProvider {
	case config.CoverGoogleBooks:
		return cover.NewGoogleBooks(cfg.GoogleBooksAPIKey, "")
	case config.CoverChain:
		return cover.Chain{openLibrary, cover.NewGoogleBooks(cfg.GoogleBooksAPIKey, "")}
	default:
		return openLibrary
	}
}

// newStore opens Postgres, or a SQLite file for DSNs of the form
// sqlite://path.
// newLimiter shares the budget through Redis when a client is available and
// falls back to a per-process window otherwise.
func newLimiter(cfg config.FileConfig, rdb *redis.Client) (ratelimit.Limiter, error) {
	if rdb != nil {
		return ratelimit.NewRedisFixedWindowLimiter(rdb, "", cfg.RateLimitPerMinute, time.Minute)
	}
	return ratelimit.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute)
}

func newStore(dsn string) (store.Store, error) {
	if path, ok := strings.CutPrefix(dsn, "sqlite://"); ok {
		return store.NewGormStoreWithDialector(sqlite.Open(path))
	}
	return store.NewGormStore(dsn)
}
