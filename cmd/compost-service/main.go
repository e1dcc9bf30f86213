package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecoverde/compost-service/internal/api"
	"github.com/ecoverde/compost-service/internal/config"
	"github.com/ecoverde/compost-service/internal/database"
	"github.com/ecoverde/compost-service/internal/email"
	"github.com/ecoverde/compost-service/internal/services"
	"github.com/ecoverde/compost-service/internal/upstream"
	"github.com/ecoverde/compost-service/internal/workflows"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// Cargar configuración
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	// Configurar logging
	logger := setupLogger(cfg)
	logger.Info("Starting compost service...")

	// Configurar modo de Gin
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Upstream.BaseURL == "" {
		logger.Fatal("UPSTREAM_BASE_URL is required")
	}
	upstreamClient := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout, logger)
	logger.WithField("base_url", upstreamClient.BaseURL()).Info("Upstream API client configured")

	var cascadeOpts []services.CascadeOption
	var runs api.RunLister
	var archives api.ArchiveReader
	healthChecks := map[string]api.HealthCheck{}

	// Base de datos de auditoría (opcional)
	if cfg.Database.Enabled {
		db, err := database.Connect(cfg)
		if err != nil {
			logger.Fatalf("Error connecting to database: %v", err)
		}
		defer db.Close()

		if err := db.EnsureSchema(); err != nil {
			logger.Fatalf("Error creating audit schema: %v", err)
		}
		runRepo := database.NewCascadeRunRepository(db, logger)
		cascadeOpts = append(cascadeOpts, services.WithAuditor(runRepo))
		runs = runRepo
		healthChecks["database"] = db.HealthCheck
		db.LogStats(logger)
	} else {
		logger.Warn("PGHOST not provided, cascade runs will not be audited")
	}

	// Conectar a Redis; sin Redis las sesiones viven en memoria
	var sessionStore services.SessionStore
	var flowStore services.FlowStore
	redis, err := database.ConnectRedis(cfg)
	if err != nil {
		logger.Warnf("Error connecting to Redis, using in-memory stores: %v", err)
		sessionStore = database.NewMemorySessionStore()
		flowStore = database.NewMemoryFlowStore()
	} else {
		defer redis.Close()
		healthChecks["redis"] = redis.HealthCheck
		sessionStore = database.NewSessionStore(redis, logger)
		flowStore = database.NewFlowStore(redis, cfg.Session.TTL)
	}

	// Storage de Supabase para archivar lo que se va a borrar
	if cfg.HasArchiveStorage() {
		supabaseClient, err := database.NewSupabaseClient(&cfg.Supabase, cfg.Archive.Bucket, logger)
		if err != nil {
			logger.Warnf("Error initializing Supabase client: %v", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			if err := supabaseClient.EnsureBucket(ctx); err != nil {
				logger.Warnf("Supabase archive bucket unavailable: %v", err)
			} else {
				logger.Info("Supabase storage connection healthy")
			}
			cancel()

			archiveService := services.NewArchiveService(supabaseClient, logger)
			cascadeOpts = append(cascadeOpts, services.WithArchiver(archiveService))
			archives = archiveService
			healthChecks["storage"] = supabaseClient.HealthCheck
		}
	} else {
		logger.Warn("Supabase storage credentials not provided, cascade archives will not be stored")
	}

	// Servicio de Resend
	if cfg.Email.ResendAPIKey != "" {
		resendService := email.NewResendService(cfg.Email.ResendAPIKey, cfg.Email.From, logger).
			WithReceipts(services.NewReceiptGenerator(logger))
		cascadeOpts = append(cascadeOpts, services.WithMailer(resendService))
		logger.Info("Resend service initialized successfully")
	} else {
		logger.Warn("Resend API key not provided, deletion emails will not be sent")
	}

	// Cliente de Inngest
	inngestClient, err := workflows.NewInngestClient(cfg, logger)
	if err != nil {
		logger.Warnf("Inngest not available, owner deleted events will not be published: %v", err)
	} else {
		cascadeOpts = append(cascadeOpts, services.WithEventPublisher(inngestClient))
	}

	// Inicializar servicios
	cascadeService := services.NewCascadeDeleteService(upstreamClient, logger, cascadeOpts...)
	flowService := services.NewDeletionFlowService(flowStore, cascadeService, logger)
	sessionService := services.NewSessionService(sessionStore, upstreamClient, cfg.Session.OperatorAPIKey, cfg.Session.TTL, logger)

	// Inicializar API
	apiHandler := api.NewAPI(
		sessionService,
		flowService,
		cascadeService,
		upstreamClient,
		runs,
		archives,
		cfg,
		logger,
	)

	for name, check := range healthChecks {
		apiHandler.AddHealthCheck(name, check)
	}

	// Configurar router
	router := api.NewRouter(apiHandler)

	// Crear servidor HTTP; sin WriteTimeout para no cortar el stream de progreso
	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Canal para señales de terminación
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Iniciar servidor en goroutine
	go func() {
		logger.Infof("Server starting on %s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	// Esperar señal de terminación
	<-quit
	logger.Info("Shutting down server...")

	// Contexto con timeout para shutdown graceful
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown graceful del servidor
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Los borrados en curso no se interrumpen
	done := make(chan struct{})
	go func() {
		flowService.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("Shutdown timed out with cascade deletions still running")
	}

	logger.Info("Server exited")
}

// setupLogger configura el logger según la configuración
func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	// Configurar nivel de log
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Configurar formato
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
