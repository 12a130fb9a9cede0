// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/festivo/festivo/internal/bookings"
	"github.com/festivo/festivo/internal/config"
	"github.com/festivo/festivo/internal/escrow"
	"github.com/festivo/festivo/internal/events"
	"github.com/festivo/festivo/internal/gateway"
	"github.com/festivo/festivo/internal/health"
	"github.com/festivo/festivo/internal/inventory"
	"github.com/festivo/festivo/internal/ledger"
	"github.com/festivo/festivo/internal/logging"
	"github.com/festivo/festivo/internal/metrics"
	"github.com/festivo/festivo/internal/notify"
	"github.com/festivo/festivo/internal/payments"
	"github.com/festivo/festivo/internal/ratelimit"
	"github.com/festivo/festivo/internal/security"
	"github.com/festivo/festivo/internal/settlement"
	"github.com/festivo/festivo/internal/traces"
	"github.com/festivo/festivo/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	payments   *payments.Service
	inventory  *inventory.Service
	bookings   *bookings.Service
	ledger     *ledger.Service
	escrow     *escrow.Service
	settlement *settlement.Service
	events     events.Store
	notifier   *notify.Dispatcher

	rateLimiter *ratelimit.Limiter
	checks      *health.Registry
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	shutdownTraces func(context.Context) error
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithChargeVerifier overrides the gateway charge verifier (for testing)
func WithChargeVerifier(v settlement.ChargeVerifier) Option {
	return func(s *Server) {
		if s.settlement != nil {
			s.settlement.SetVerifier(v)
		}
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		checks: health.NewRegistry(),
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply logger option before anything logs
	for _, opt := range opts {
		opt(s)
	}

	var txm settlement.TxManager

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		s.checks.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})

		paymentStore := payments.NewPostgresStore(db)
		bookingStore := bookings.NewPostgresStore(db)
		inventoryStore := inventory.NewPostgresStore(db)
		escrowStore := escrow.NewPostgresStore(db)
		ledgerStore := ledger.NewPostgresStore(db, cfg.Currency)
		eventStore := events.NewPostgresStore(db)

		s.payments = payments.NewService(paymentStore, cfg.Currency)
		s.bookings = bookings.NewService(bookingStore)
		s.inventory = inventory.NewService(inventoryStore, cfg.Currency)
		s.ledger = ledger.NewService(ledgerStore)
		s.escrow = escrow.NewService(escrowStore, s.ledger, eventStore, paymentStore)
		s.events = eventStore

		txm = settlement.NewPostgresTxManager(db, paymentStore, bookingStore, inventoryStore, escrowStore, ledgerStore, eventStore)
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")

		paymentStore := payments.NewMemoryStore()
		bookingStore := bookings.NewMemoryStore()
		inventoryStore := inventory.NewMemoryStore()
		escrowStore := escrow.NewMemoryStore()
		ledgerStore := ledger.NewMemoryStore(cfg.Currency)
		eventStore := events.NewMemoryStore()

		s.payments = payments.NewService(paymentStore, cfg.Currency)
		s.bookings = bookings.NewService(bookingStore)
		s.inventory = inventory.NewService(inventoryStore, cfg.Currency)
		s.ledger = ledger.NewService(ledgerStore)
		s.escrow = escrow.NewService(escrowStore, s.ledger, eventStore, paymentStore)
		s.events = eventStore

		txm = settlement.NewMemoryTxManager(paymentStore, bookingStore, inventoryStore, escrowStore, ledgerStore, eventStore)
	}

	s.ledger.SetListener(&walletActivityLogger{logger: s.logger})

	// Outbound notifications (disabled when NOTIFY_URL is empty)
	s.notifier = notify.NewDispatcher(cfg.NotifyURL, cfg.NotifySecret)
	if cfg.NotifyURL != "" {
		s.logger.Info("notifications enabled", "url", cfg.NotifyURL)
	}

	s.settlement = settlement.NewService(txm, s.notifier, settlement.Config{
		WebhookSecret:   cfg.WebhookSecret,
		PlatformFeeBps:  cfg.PlatformFeeBps,
		EscrowGraceDays: cfg.EscrowGraceDays,
		Currency:        cfg.Currency,
	})
	if cfg.GatewayVerify {
		s.settlement.SetVerifier(gateway.NewClient(cfg.GatewayURL, cfg.GatewayAPIKey))
		s.logger.Info("gateway charge verification enabled", "url", cfg.GatewayURL)
	}

	// Apply remaining options (may override the verifier)
	for _, opt := range opts {
		opt(s)
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// walletActivityLogger logs committed wallet movements. Settlement and
// refunds notify recipients themselves, so the listener only records.
type walletActivityLogger struct {
	logger *slog.Logger
}

func (w *walletActivityLogger) WalletCredited(ctx context.Context, wallet *ledger.Wallet, txn *ledger.WalletTransaction) {
	w.logger.Info("wallet credited",
		"user_id", wallet.UserID,
		"amount_cents", txn.AmountCents,
		"reference", txn.Reference,
		"balance_cents", wallet.AvailableBalanceCents,
	)
}

func (w *walletActivityLogger) WalletDebited(ctx context.Context, wallet *ledger.Wallet, txn *ledger.WalletTransaction) {
	w.logger.Info("wallet debited",
		"user_id", wallet.UserID,
		"amount_cents", txn.AmountCents,
		"reference", txn.Reference,
		"balance_cents", wallet.AvailableBalanceCents,
	)
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Tracing
	s.router.Use(otelgin.Middleware("festivo"))

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Honor an existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/api", s.infoHandler)

	settlementHandler := settlement.NewHandler(s.settlement)

	// Provider webhook stays on the root router, outside rate limiting.
	// Throttling the provider only multiplies its retries.
	settlementHandler.RegisterWebhook(s.router)

	// V1 API group
	v1 := s.router.Group("/v1")

	limiterCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
	}
	s.rateLimiter = ratelimit.New(limiterCfg)
	v1.Use(s.rateLimiter.Middleware())

	events.NewHandler(s.events, s.cfg.Currency).RegisterRoutes(v1)
	payments.NewHandler(s.payments).RegisterRoutes(v1)
	inventory.NewHandler(s.inventory).RegisterRoutes(v1)
	bookings.NewHandler(s.bookings).RegisterRoutes(v1)
	ledger.NewHandler(s.ledger).RegisterRoutes(v1)
	escrow.NewHandler(s.escrow).RegisterRoutes(v1)
	settlementHandler.RegisterRoutes(v1)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Festivo",
		"description": "Settlement core for the Festivo ticketing marketplace",
		"version":     "0.1.0",
		"currency":    s.cfg.Currency,
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	if s.cfg.OTLPEndpoint != "" {
		shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
		if err != nil {
			s.logger.Error("failed to initialize tracing", "error", err)
		} else {
			s.shutdownTraces = shutdown
		}
	}

	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for background goroutines
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
