package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/biodoia/gocouncil/internal/council"
	"github.com/biodoia/gocouncil/internal/groupchat"
	"github.com/biodoia/gocouncil/internal/ollama"
	"github.com/biodoia/gocouncil/internal/stats"
	"github.com/biodoia/gocouncil/internal/storage"
	"github.com/biodoia/gocouncil/pkg/config"
	"github.com/biodoia/gocouncil/pkg/database"
	"github.com/biodoia/gocouncil/pkg/middleware"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Server è il front-end HTTP del council
type Server struct {
	config   *config.Config
	db       *database.DB
	app      *fiber.App
	store    *storage.Store
	ollama   *ollama.Client
	stats    *stats.Collector
	registry *prometheus.Registry

	// requestTimeout governa una singola chiamata di inferenza
	requestTimeout time.Duration

	// il roster può essere riscritto via API: council e groupchat
	// vengono ricostruiti sotto lock
	mu        sync.RWMutex
	council   *council.Council
	groupchat *groupchat.Service
}

// New crea una nuova istanza del server
func New(cfg *config.Config, db *database.DB) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      "Council",
		ServerHeader: "Council/1.0",
		ErrorHandler: customErrorHandler,
	})

	requestTimeout, err := time.ParseDuration(cfg.Ollama.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama request_timeout: %w", err)
	}
	statusTimeout, err := time.ParseDuration(cfg.Ollama.StatusTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama status_timeout: %w", err)
	}

	// Registry dedicato: le metriche del server non passano dal registry
	// globale di processo
	registry := prometheus.NewRegistry()
	collector := stats.NewCollector(registry, "council")

	client := ollama.NewClient(cfg.Ollama.BaseURL,
		ollama.WithRecorder(collector),
		ollama.WithStatusTimeout(statusTimeout),
	)

	s := &Server{
		config:         cfg,
		db:             db,
		app:            app,
		store:          storage.New(db),
		ollama:         client,
		stats:          collector,
		registry:       registry,
		requestTimeout: requestTimeout,
		council:        council.New(cfg.Council, client, requestTimeout),
		groupchat:      groupchat.New(cfg.Council, client, requestTimeout),
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s, nil
}

// customErrorHandler gestisce gli errori globali
func customErrorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":      message,
		"request_id": middleware.GetRequestID(c),
	})
}

// setupMiddlewares configura i middleware globali
func (s *Server) setupMiddlewares() {
	// Recovery per primo, per catturare tutti i panic
	s.app.Use(middleware.Recovery())

	s.app.Use(middleware.RequestID())

	corsConfig := middleware.DefaultCORSConfig()
	if len(s.config.Server.AllowOrigins) > 0 {
		corsConfig.AllowedOrigins = s.config.Server.AllowOrigins
	}
	s.app.Use(middleware.CORS(corsConfig))

	s.app.Use(middleware.Logging(middleware.LoggingConfig{
		SkipPaths: []string{"/", "/metrics"},
	}))
}

// setupRoutes configura le route HTTP
func (s *Server) setupRoutes() {
	s.app.Get("/", s.handleRoot)
	s.app.Get("/api/models", s.handleListModels)
	s.app.Get("/api/monitoring", s.handleMonitoring)

	if s.config.Monitoring.Prometheus.Enabled {
		s.app.Get("/metrics", prometheusHandler(s.registry))
	}

	api := s.app.Group("/api")

	councilGroup := api.Group("/council")
	councilGroup.Get("/config", s.handleGetCouncilConfig)
	councilGroup.Post("/config", s.handleUpdateCouncilConfig)

	conversations := api.Group("/conversations")
	conversations.Get("/", s.handleListConversations)
	conversations.Post("/", s.handleCreateConversation)
	conversations.Get("/:id", s.handleGetConversation)
	conversations.Delete("/:id", s.handleDeleteConversation)
	conversations.Post("/:id/message", s.handleSendMessage)
	conversations.Post("/:id/message/stream", s.handleSendMessageStream)

	sessions := api.Group("/group-chats")
	sessions.Get("/", s.handleListGroupChats)
	sessions.Post("/", s.handleCreateGroupChat)
	sessions.Get("/:id", s.handleGetGroupChat)
	sessions.Delete("/:id", s.handleDeleteGroupChat)
	sessions.Post("/:id/message", s.handleGroupChatMessage)
	sessions.Post("/:id/message/stream", s.handleGroupChatMessageStream)
}

// prometheusHandler adatta l'handler promhttp a Fiber
func prometheusHandler(registry *prometheus.Registry) fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	)
	return func(c fiber.Ctx) error {
		handler(c.RequestCtx())
		return nil
	}
}

// councilService restituisce i servizi correnti sotto read lock
func (s *Server) councilService() (*council.Council, *groupchat.Service) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.council, s.groupchat
}

// Start avvia il server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	log.Info().Str("addr", addr).Msg("HTTP server listening")
	return s.app.Listen(addr)
}

// Shutdown esegue lo shutdown graceful del server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	log.Info().Msg("Server shutdown completed")
	return nil
}

// handleRoot endpoint informativo di base
func (s *Server) handleRoot(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": "council",
	})
}

// handleListModels elenca i modelli disponibili sul backend di inferenza
func (s *Server) handleListModels(c fiber.Ctx) error {
	models, err := s.ollama.Tags(c.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list models")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "inference backend unavailable",
		})
	}
	return c.JSON(fiber.Map{
		"models": models,
	})
}

// handleMonitoring riporta lo stato del backend e le statistiche di inferenza
func (s *Server) handleMonitoring(c fiber.Ctx) error {
	status := s.ollama.GetStatus(c.Context())
	snapshot := s.stats.Snapshot()

	return c.JSON(fiber.Map{
		"ollama": status,
		"stats":  snapshot,
	})
}
