package admin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/api/handlers"
	"github.com/cloo-solutions/draftdesk/internal/config"
	"github.com/cloo-solutions/draftdesk/internal/database"
	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/jobs"
	"github.com/cloo-solutions/draftdesk/internal/openai"
	"github.com/cloo-solutions/draftdesk/internal/repository"
	"github.com/cloo-solutions/draftdesk/internal/rerank"
	"github.com/cloo-solutions/draftdesk/internal/server"
	"github.com/cloo-solutions/draftdesk/internal/service"
	"github.com/cloo-solutions/draftdesk/internal/storage"
	"github.com/cloo-solutions/draftdesk/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

const defaultMigrationsSource = "file://migrations"

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the draftdesk API server and the stale-ingestion sweeper",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides DRAFTDESK_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", defaultMigrationsSource, "Migration source URL")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	if cfg.HasSentry() {
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: telemetry.SampleRateFor(cfg.Environment),
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Println("connected to database")

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		source, _ := cmd.Flags().GetString("migrations")
		if err := database.Migrate(cfg.DatabaseURL, source); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	ownerRepo := repository.NewOwnerRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	authSvc := service.NewAuthService(ownerRepo, apiKeyRepo, &service.DefaultUUIDGenerator{})

	if cfg.InitOwnerName != "" {
		if err := bootstrapInitialOwner(ctx, cfg, authSvc); err != nil {
			return fmt.Errorf("failed to bootstrap initial owner: %w", err)
		}
	}

	var archive service.SourceArchive
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("source archive bucket '%s' ready", cfg.S3Bucket)
		archive = s3Client
	}

	router, err := BuildRouter(cfg, pool, authSvc, archive)
	if err != nil {
		return err
	}

	sweeper := jobs.NewWorker(
		jobs.NewStaleIngestionSweeper(repository.NewDocumentRepository(pool), cfg.StaleIngestionAfter),
		cfg.SweepInterval,
		jobs.WithName("stale-ingestion-sweeper"),
		jobs.WithRunOnStart(),
	)
	go sweeper.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			sweeper.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	log.Println("shutting down...")

	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// BuildRouter wires the pipeline services behind the HTTP router.
func BuildRouter(cfg *config.Config, pool *pgxpool.Pool, authSvc *service.AuthService, archive service.SourceArchive) (http.Handler, error) {
	if !cfg.HasOpenAI() && cfg.OpenAIBaseURL == "" {
		return nil, fmt.Errorf("DRAFTDESK_OPENAI_API_KEY or DRAFTDESK_OPENAI_BASE_URL is required")
	}

	llm := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		DocumentPrefix:      cfg.DocumentPrefix,
		QueryPrefix:         cfg.QueryPrefix,
		ChatModel:           cfg.GenerationModel,
		Temperature:         cfg.GenerationTemperature,
	})

	batcher := service.NewEmbeddingBatcher(llm, service.BatcherConfig{
		BatchSize:      cfg.EmbedBatchSize,
		Concurrency:    cfg.EmbedConcurrency,
		Dimensions:     cfg.EmbeddingDimensions,
		Timeout:        cfg.EmbedTimeout,
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialBackoff: cfg.RetryInitialBackoff,
		MaxBackoff:     cfg.RetryMaxBackoff,
		RatePerSec:     cfg.EmbedRatePerSec,
		Burst:          cfg.EmbedRateBurst,
	})

	documentRepo := repository.NewDocumentRepository(pool)
	sectionRepo := repository.NewSectionRepository(pool)

	var ranker service.Ranker = sectionRepo
	if cfg.Ranker == config.RankerFusion {
		ranker = service.NewFusionRanker(sectionRepo, cfg.CandidateCount)
	}
	log.Printf("retrieval: ranker=%s k=%d", cfg.Ranker, cfg.RetrievalK)

	retrieverCfg := service.RetrieverConfig{
		Dimensions:       cfg.EmbeddingDimensions,
		Timeout:          cfg.SearchTimeout,
		RerankCandidates: cfg.RerankCandidates,
		RerankTimeout:    cfg.RerankTimeout,
	}
	retriever := service.NewRetriever(ranker, retrieverCfg)
	if cfg.HasReranker() {
		reranker := rerank.NewClient(rerank.Config{
			URL:            cfg.RerankURL,
			APIKey:         cfg.RerankAPIKey,
			Model:          cfg.RerankModel,
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryInitialBackoff,
			MaxBackoff:     cfg.RetryMaxBackoff,
		})
		retriever = service.NewRetrieverWithReranker(ranker, reranker, retrieverCfg)
		log.Printf("retrieval: rerank model=%s candidates=%d", cfg.RerankModel, cfg.RerankCandidates)
	}
	synthesizer := service.NewSynthesizer(llm, service.SynthesizerConfig{
		EmptyContextPolicy: service.EmptyContextPolicy(cfg.EmptyContextPolicy),
		RefusalMessage:     cfg.RefusalMessage,
		Timeout:            cfg.GenerateTimeout,
	})

	ingestSvc := service.NewIngestionServiceWithArchive(documentRepo, repository.NewTxRunner(pool), batcher, archive, service.IngestionConfig{
		Chunk:  service.ChunkConfig{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		Atomic: cfg.IngestAtomic,
	})
	documentSvc := service.NewDocumentServiceWithArchive(documentRepo, archive)
	answerSvc := service.NewAnswerService(batcher, retriever, synthesizer, cfg.RetrievalK)
	draftSvc := service.NewDraftService(repository.NewDraftRepository(pool))

	return server.NewRouter(server.RouterConfig{
		AuthValidator:   authSvc,
		HealthHandler:   handlers.NewHealthHandler(pool),
		DocumentHandler: handlers.NewDocumentHandler(ingestSvc, documentSvc),
		AnswerHandler:   handlers.NewAnswerHandler(answerSvc),
		DraftHandler:    handlers.NewDraftHandler(draftSvc),
		AuthHandler:     handlers.NewAuthHandler(authSvc),
		MaxBodyBytes:    cfg.MaxBodyBytes,
	}), nil
}

func bootstrapInitialOwner(ctx context.Context, cfg *config.Config, authSvc *service.AuthService) error {
	owner, err := authSvc.GetOwnerByName(ctx, cfg.InitOwnerName)
	if err != nil && !errors.Is(err, domain.ErrOwnerNotFound) {
		return fmt.Errorf("failed to check existing owner: %w", err)
	}

	if owner == nil {
		owner, err = authSvc.CreateOwner(ctx, cfg.InitOwnerName)
		if err != nil {
			return fmt.Errorf("failed to create owner: %w", err)
		}
		log.Printf("bootstrap: created owner '%s' (id: %s)", owner.Name, owner.ID)
	} else {
		log.Printf("bootstrap: owner '%s' already exists (id: %s)", owner.Name, owner.ID)
	}

	if cfg.InitAPIKey == "" {
		return nil
	}
	if !service.IsValidAPIToken(cfg.InitAPIKey) {
		return fmt.Errorf("invalid DRAFTDESK_INIT_API_KEY format (expected 'ddk_<64 hex chars>')")
	}

	if existing, err := authSvc.GetAPIKeyByHash(ctx, cfg.InitAPIKey); err == nil && existing != nil {
		log.Printf("bootstrap: API key already exists (id: %s)", existing.ID)
		return nil
	}

	if err := authSvc.CreateAPIKeyWithToken(ctx, owner.ID, "bootstrap", cfg.InitAPIKey); err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}
	log.Printf("bootstrap: created API key")
	return nil
}
