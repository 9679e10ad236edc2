package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/packetmill/packetmill/internal/adapter/agenthttp"
	"github.com/packetmill/packetmill/internal/adapter/agentnats"
	pmhttp "github.com/packetmill/packetmill/internal/adapter/http"
	"github.com/packetmill/packetmill/internal/adapter/mcp"
	pmnats "github.com/packetmill/packetmill/internal/adapter/nats"
	"github.com/packetmill/packetmill/internal/adapter/natskv"
	pmotel "github.com/packetmill/packetmill/internal/adapter/otel"
	"github.com/packetmill/packetmill/internal/adapter/postgres"
	"github.com/packetmill/packetmill/internal/adapter/ristretto"
	"github.com/packetmill/packetmill/internal/adapter/sessionhttp"
	"github.com/packetmill/packetmill/internal/adapter/tiered"
	"github.com/packetmill/packetmill/internal/adapter/ws"
	"github.com/packetmill/packetmill/internal/config"
	"github.com/packetmill/packetmill/internal/logger"
	pmmw "github.com/packetmill/packetmill/internal/middleware"
	"github.com/packetmill/packetmill/internal/port/agent"
	"github.com/packetmill/packetmill/internal/resilience"
	"github.com/packetmill/packetmill/internal/service"
)

const version = "0.1.0"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, logClose := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logClose.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"agent_transport", cfg.Agent.Transport,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx := context.Background()

	// --- Telemetry ---
	var metrics *pmotel.Metrics
	if cfg.Telemetry.Enabled {
		shutdown, err := pmotel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()

		metrics, err = pmotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("telemetry metrics: %w", err)
		}
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := pmnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// --- Agent transport ---
	agentnats.Register(queue)
	agenthttp.Register()

	agentClient, err := agent.New(cfg.Agent.Transport, map[string]string{
		"base_url": cfg.Agent.BaseURL,
		"api_key":  cfg.Agent.APIKey,
	})
	if err != nil {
		return fmt.Errorf("agent transport: %w", err)
	}
	if hc, ok := agentClient.(*agenthttp.Client); ok {
		hc.SetBreaker(resilience.NewBreaker(5, 30*time.Second))
	}

	// --- Caches ---
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	kv, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return fmt.Errorf("l2 cache bucket: %w", err)
	}
	sessionCache := tiered.New(l1, natskv.New(kv), cfg.Session.CacheTTL)

	// --- Services ---
	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	sessions := sessionhttp.NewClient(cfg.Session.BaseURL, cfg.Session.Timeout)

	packetSvc := service.NewPacketService(store)
	ledgerSvc := service.NewLedgerService(store)
	execSvc := service.NewExecutorService(store, agentClient, hub, &cfg.Agent)
	execSvc.SetMessageQueue(queue)
	if metrics != nil {
		execSvc.SetMetrics(metrics)
	}
	batchSvc := service.NewBatchService(store, execSvc, hub, &cfg.Executor)
	queueSvc := service.NewQueueService(store, hub)
	reconSvc := service.NewReconcilerService(sessions, store, sessionCache, cfg.Session.CacheTTL)
	authSvc := service.NewAuthService(store)

	// --- MCP ---
	if cfg.MCP.Enabled {
		mcpSrv := mcp.NewServer(
			mcp.ServerConfig{Addr: cfg.MCP.Addr, Name: "packetmill", Version: version, APIKey: cfg.MCP.APIKey},
			mcp.ServerDeps{Packets: store, Runs: store, Executor: execSvc, Queue: store},
		)
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mcpSrv.Stop(stopCtx)
		}()
	}

	// --- HTTP ---
	handlers := &pmhttp.Handlers{
		Packets:    packetSvc,
		Ledger:     ledgerSvc,
		Executor:   execSvc,
		Batch:      batchSvc,
		Queue:      queueSvc,
		Reconciler: reconSvc,
		Auth:       authSvc,
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(pmhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(pmhttp.SecurityHeaders)
	r.Use(pmmw.RequestID)
	r.Use(pmhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	if cfg.Telemetry.Enabled {
		r.Use(pmotel.HTTPMiddleware(cfg.Logging.Service))
	}

	// Passphrase guessing on the token mint endpoint is throttled per IP.
	mintLimiter := pmmw.NewRateLimiter(1, 5)
	stopCleanup := mintLimiter.StartCleanup(10*time.Minute, time.Hour)
	defer stopCleanup()
	r.Use(mintLimiter.LimitPath(http.MethodPost, "/api/v1/auth/token"))

	r.Use(pmmw.Auth(authSvc, cfg.Auth.Enabled))

	// Health endpoint with service status
	r.Get("/health", healthHandler(cfg, queue))

	// WebSocket endpoint
	r.Get("/ws", hub.HandleWS)

	// API routes
	pmhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// healthHandler returns an http.HandlerFunc that reports service health.
func healthHandler(cfg *config.Config, queue *pmnats.Queue) http.HandlerFunc {
	type healthStatus struct {
		Status         string `json:"status"`
		Version        string `json:"version"`
		NATS           string `json:"nats"`
		AgentTransport string `json:"agent_transport"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		natsState := "disconnected"
		if queue.IsConnected() {
			natsState = "connected"
		}
		status := healthStatus{
			Status:         "ok",
			Version:        version,
			NATS:           natsState,
			AgentTransport: cfg.Agent.Transport,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
