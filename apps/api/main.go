package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vetflow-labs/vetflow/domains/channels/be/evolution"
	channelshandler "github.com/vetflow-labs/vetflow/domains/channels/be/handler"
	membershandler "github.com/vetflow-labs/vetflow/domains/members/be/handler"
	membersrepo "github.com/vetflow-labs/vetflow/domains/members/be/repo"
	membersservice "github.com/vetflow-labs/vetflow/domains/members/be/service"
	workspaceshandler "github.com/vetflow-labs/vetflow/domains/workspaces/be/handler"
	workspacesprov "github.com/vetflow-labs/vetflow/domains/workspaces/be/provisioning"
	workspacesrepo "github.com/vetflow-labs/vetflow/domains/workspaces/be/repo"
	workspacesservice "github.com/vetflow-labs/vetflow/domains/workspaces/be/service"
	platformauth "github.com/vetflow-labs/vetflow/platform/go/auth"
	platformlogging "github.com/vetflow-labs/vetflow/platform/go/logging"
	platformmiddleware "github.com/vetflow-labs/vetflow/platform/go/middleware"
	"github.com/vetflow-labs/vetflow/platform/go/persistence"
	platformstorage "github.com/vetflow-labs/vetflow/platform/go/storage"
	"github.com/vetflow-labs/vetflow/platform/go/webhook"
	"github.com/vetflow-labs/vetflow/platform/go/workspace"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`

	DatabaseURL   string `env:"DATABASE_URL,required"`
	CoreSchema    string `env:"CORE_SCHEMA" envDefault:"vetflow"`
	SchemaPrefix  string `env:"SCHEMA_PREFIX" envDefault:"ws"`
	DefaultSchema string `env:"DEFAULT_SCHEMA"` // bound to requests without a workspace key

	AuthProvider  string `env:"AUTH_PROVIDER" envDefault:"clerk"` // clerk | dev
	AuthRequired  bool   `env:"CLERK_AUTH_REQUIRED" envDefault:"true"`
	ClerkIssuer   string `env:"CLERK_ISSUER"`
	ServiceAPIKey string `env:"SERVICE_API_KEY"`

	AutoCreateDefaultWorkspace bool   `env:"AUTO_CREATE_DEFAULT_WORKSPACE" envDefault:"false"`
	WebhookURL                 string `env:"WEBHOOK_URL"`

	EvolutionBaseURL     string `env:"EVOLUTION_API_BASE_URL"`
	EvolutionAPIKey      string `env:"EVOLUTION_API_KEY"`
	EvolutionIntegration string `env:"EVOLUTION_API_INTEGRATION" envDefault:"Baileys"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"none"` // gcs | none
	StorageBucket  string `env:"STORAGE_BUCKET"`                    // required when STORAGE_BACKEND=gcs
}

// membershipRoles adapts the members service to the workspace middleware.
type membershipRoles struct {
	svc *membersservice.Service
}

func (m membershipRoles) GetRole(ctx context.Context, space workspace.Space, email string) (string, error) {
	return m.svc.RoleInSpace(ctx, space, email)
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	coreDB := persistence.NewCoreDB(persistence.CoreDBConfig{
		Pool:       pool,
		CoreSchema: cfg.CoreSchema,
	})
	if err := coreDB.EnsureBootstrap(ctx); err != nil {
		logger.Fatal("bootstrap directory schema", zap.Error(err))
	}

	notifier := webhook.NewNotifier(cfg.WebhookURL, logger)

	workspaceStore := persistence.NewWorkspaceStore(coreDB)
	workspaceRepo := workspacesrepo.NewPostgresRepository(workspaceStore, cfg.SchemaPrefix)
	provisioner := workspacesprov.NewSchemaProvisioner(pool, cfg.CoreSchema)
	workspaceService := workspacesservice.New(workspaceRepo, provisioner, notifier, logger, workspacesservice.Config{
		SchemaPrefix:      cfg.SchemaPrefix,
		AutoCreateDefault: cfg.AutoCreateDefaultWorkspace,
	})
	workspaceHandler := workspaceshandler.New(workspaceService, logger)

	switch cfg.StorageBackend {
	case "gcs":
		if strings.TrimSpace(cfg.StorageBucket) == "" {
			logger.Fatal("storage bucket required when STORAGE_BACKEND=gcs")
		}
		gcsClient, err := gcsstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("init gcs client", zap.Error(err))
		}
		defer gcsClient.Close()
		workspaceHandler.WithIconStore(platformstorage.NewGCSStore(gcsClient, cfg.StorageBucket), cfg.StorageBucket)
	case "none", "":
		logger.Info("object storage disabled")
	default:
		logger.Fatal("invalid STORAGE_BACKEND (use gcs or none)", zap.String("backend", cfg.StorageBackend))
	}

	memberStore := persistence.NewMemberStore(coreDB)
	inviteStore := persistence.NewInviteStore(coreDB)
	memberRepo := membersrepo.NewPostgresRepository(memberStore, inviteStore)
	memberService := membersservice.New(memberRepo, notifier, logger)
	memberHandler := membershandler.New(memberService, logger)

	evolutionClient := evolution.NewClient(evolution.Config{
		BaseURL:     cfg.EvolutionBaseURL,
		APIKey:      cfg.EvolutionAPIKey,
		Integration: cfg.EvolutionIntegration,
	}, logger)
	channelHandler := channelshandler.New(evolutionClient, logger)

	verify := buildVerifier(cfg, logger)

	if !cfg.AuthRequired {
		logger.Warn("workspace membership checks disabled; do not use in production")
	}

	spaceMW := platformmiddleware.WithWorkspaceSpace(
		workspaceService,
		membershipRoles{svc: memberService},
		platformmiddleware.WorkspaceSpaceConfig{
			AuthRequired:  cfg.AuthRequired,
			ServiceAPIKey: cfg.ServiceAPIKey,
			DefaultSchema: cfg.DefaultSchema,
		},
	)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger, "/healthz", "/readyz"))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	apiRouter := chi.NewRouter()
	apiRouter.Use(platformauth.JWT(verify, nil))
	apiRouter.Use(platformmiddleware.RequestTrace)

	apiRouter.Mount("/workspaces", workspaceHandler.Routes(spaceMW, memberHandler.RegisterWorkspaceRoutes))
	apiRouter.Mount("/invites", memberHandler.AcceptRoutes())
	apiRouter.Mount("/channels", channelHandler.Routes(spaceMW))

	rootRouter.Mount("/api", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server",
			zap.String("port", cfg.Port),
			zap.String("auth_provider", cfg.AuthProvider),
			zap.String("core_schema", cfg.CoreSchema))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildVerifier selects the token verifier. Production runs against Clerk;
// "dev" accepts unsigned tokens so local setups work without an identity
// provider.
func buildVerifier(cfg config, logger *zap.Logger) platformauth.VerifyFunc {
	switch cfg.AuthProvider {
	case "clerk":
		issuer := strings.TrimSpace(cfg.ClerkIssuer)
		if issuer == "" {
			logger.Fatal("CLERK_ISSUER required when AUTH_PROVIDER=clerk")
		}
		return platformauth.NewClerkVerifier(issuer, nil).Verify
	case "dev":
		logger.Warn("accepting unsigned dev tokens; do not use in production")
		return platformauth.UnsignedTokenVerifier()
	default:
		logger.Fatal("invalid AUTH_PROVIDER (use clerk or dev)", zap.String("provider", cfg.AuthProvider))
		return nil
	}
}
