package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/workerpool"
	"github.com/pitabwire/util"

	intakeconfig "github.com/voicetyped/lexintake/config"
	"github.com/voicetyped/lexintake/internal/httpserver"
	intakehandler "github.com/voicetyped/lexintake/internal/intake/handler"
	"github.com/voicetyped/lexintake/internal/store"
	"github.com/voicetyped/lexintake/pkg/intake"
	"github.com/voicetyped/lexintake/pkg/llm"
	"github.com/voicetyped/lexintake/pkg/teams"
	"github.com/voicetyped/lexintake/pkg/urlvalidation"
	"github.com/voicetyped/lexintake/pkg/webhook"
	webhookapi "github.com/voicetyped/lexintake/pkg/webhook/api"

	// Register extraction backends via init().
	_ "github.com/voicetyped/lexintake/pkg/llm/gemini"
	_ "github.com/voicetyped/lexintake/pkg/llm/openai"
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[intakeconfig.IntakeConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("lexintake"),
		frame.WithRegisterServerOauth2Client(),
		frame.WithDatastore(),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.WorkerPoolCount),
			workerpool.WithSinglePoolCapacity(cfg.WorkerPoolCapacity),
		),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	authenticator := srv.SecurityManager().GetAuthenticator(ctx)

	// --- Teams ---
	loader := teams.NewLoader(cfg.TeamsDir)
	if _, err := loader.LoadAll(); err != nil {
		util.Log(ctx).WithError(err).Error("loading team configuration")
	}
	teamCache := teams.NewCache(loader, cfg.TeamCacheTTL)
	loader.OnReload(teamCache.Purge)
	_ = pool.Submit(ctx, func() {
		if err := loader.WatchAndReload(ctx); err != nil {
			util.Log(ctx).WithError(err).Error("team config watcher stopped")
		}
	})

	// --- Webhooks ---
	whRepo := webhook.NewRepository(
		srv.DatastoreManager().GetPool(ctx, "__default__pool_name__"),
	)
	if err := whRepo.Migrate(ctx); err != nil {
		log.Fatalf("migrating webhook log: %v", err)
	}

	var validateOpts []urlvalidation.Option
	if cfg.WebhookAllowPrivateIPs {
		validateOpts = append(validateOpts, urlvalidation.AllowPrivateIPs())
	}
	whDeliverer := webhook.NewDeliverer(whRepo, teamCache, webhook.DelivererConfig{
		TimeoutSec:           cfg.WebhookTimeoutSec,
		DefaultMaxRetries:    cfg.WebhookDefaultMaxRetries,
		DefaultRetryDelaySec: cfg.WebhookDefaultRetryDelaySec,
		CBFailThreshold:      cfg.CBFailThreshold,
		CBResetTimeoutSec:    cfg.CBResetTimeoutSec,
	}, pool, validateOpts...)

	if cfg.WebhookRetrySchedulerEnabled {
		webhook.NewRetryScheduler(whRepo, whDeliverer, pool, cfg.WebhookRetryPollInterval).Start(ctx)
	}

	// --- Sessions ---
	sessions, err := store.NewSQLite(cfg.SessionDBPath, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("opening session store: %v", err)
	}
	defer sessions.Close()
	sessions.StartReaper(ctx, pool, cfg.SessionReapInterval)

	// --- Dialogue ---
	opts := []intake.Option{intake.WithQualityScorer(intake.CompletenessScorer{})}
	if cfg.ExtractionEnabled() {
		client, err := llm.Backends.Create(cfg.LLMBackend, cfg.LLMSettings())
		if err != nil {
			util.Log(ctx).WithError(err).Error("extraction backend unavailable, continuing without it")
		} else {
			timeout := time.Duration(cfg.ExtractionTimeoutSec) * time.Second
			opts = append(opts, intake.WithExtractor(intake.NewExtractor(client, intake.DefaultRegistry(), timeout)))
		}
	}
	manager := intake.NewManager(sessions, teamCache, whDeliverer, opts...)

	// --- HTTP ---
	r := httpserver.NewRouter(httpserver.RouterOptions{
		AllowedOrigins: httpserver.ParseOrigins(cfg.CORSAllowedOrigins),
	})
	intakehandler.NewIntakeHandler(manager).RegisterRoutes(r)

	adminMux := http.NewServeMux()
	webhookapi.NewHandler(whRepo, whDeliverer).RegisterRoutes(adminMux)
	r.Handle("/api/v1/admin/*", httpserver.AuthenticatedHTTPMiddleware(adminMux, authenticator))

	srv.Init(ctx,
		frame.WithHTTPHandler(httpserver.H2CHandler(r)),
	)

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
