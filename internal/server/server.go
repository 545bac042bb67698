package server

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/jobs"
	"storefront/internal/metrics"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/session"
	"storefront/internal/storage"
	"storefront/internal/transport"
	"storefront/internal/transport/web"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the connections opened by the caller. Redis is optional; without
// it sessions live in memory and the login rate limit is off.
type Deps struct {
	DB    *database.Service
	Redis *redis.Client
	Disk  storage.Disk
}

type Server struct {
	*http.Server
	config    *config.Config
	logger    *zap.Logger
	deps      Deps
	scheduler *jobs.Scheduler
}

func NewServer(cfg *config.Config, logger *zap.Logger, deps Deps) (*Server, error) {
	renderer, err := transport.NewRenderer(transport.StoreInfo{
		Name:     cfg.Store.Name,
		Currency: cfg.Store.Currency,
		BaseURL:  cfg.Server.BaseURL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	db := deps.DB.DB()
	m := metrics.New()

	// Repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	productRepo := repository.NewProductRepository(db)
	variantRepo := repository.NewVariantRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	imageRepo := repository.NewImageRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	// Services
	userService := service.NewUserService(userRepo, refreshTokenRepo, orderRepo, service.TokenConfig{
		Secret:     cfg.JWT.Secret,
		AccessTTL:  time.Duration(cfg.JWT.AccessExpiry) * time.Minute,
		RefreshTTL: time.Duration(cfg.JWT.RefreshExpiry) * 24 * time.Hour,
	})
	catalogService := service.NewCatalogService(productRepo, categoryRepo, variantRepo, imageRepo, service.CatalogConfig{
		StoreName:    cfg.Store.Name,
		Currency:     cfg.Store.Currency,
		BaseURL:      cfg.Server.BaseURL,
		HomeSections: cfg.Store.HomeSections,
	})
	cartService := service.NewCartService(productRepo, variantRepo)
	shippingService := service.NewShippingService()
	checkoutService := service.NewCheckoutService(cartService, orderRepo)
	adminService := service.NewAdminService(service.AdminRepositories{
		Users:      userRepo,
		Products:   productRepo,
		Categories: categoryRepo,
		Images:     imageRepo,
		Orders:     orderRepo,
	}, deps.Disk)

	// Sessions
	var store session.Store = session.NewMemoryStore()
	var limiter redis.Cmdable
	if deps.Redis != nil {
		store = session.NewRedisStore(deps.Redis, "storefront:session:")
		limiter = deps.Redis
	}
	sessions := session.NewManager(store, session.Options{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.Session.Secure,
	}, logger)

	// Handlers
	catalogHandler := transport.NewCatalogHandler(catalogService, renderer, logger)
	cartHandler := transport.NewCartHandler(cartService, shippingService, renderer, m, logger)
	checkoutHandler := transport.NewCheckoutHandler(checkoutService, cartService, renderer, m, logger)
	authHandler := transport.NewAuthHandler(userService, sessions, renderer, logger)
	adminHandler := transport.NewAdminHandler(adminService, renderer, logger)
	userHandler := transport.NewUserHandler(userService, logger)
	apiHandler := transport.NewCatalogAPIHandler(catalogService, logger)
	adminAPIHandler := transport.NewAdminAPIHandler(adminService, logger)

	// Guards
	requireLogin := custommiddleware.RequireLogin(logger)
	requireAdmin := custommiddleware.RequireAdminSession(http.HandlerFunc(renderer.Forbidden), logger)
	limitLogin := custommiddleware.RateLimitMiddleware(limiter, custommiddleware.RateLimitConfig{
		RequestsPerWindow: cfg.Limits.LoginRequests,
		Window:            cfg.Limits.Window,
		KeyPrefix:         "ratelimit:login",
	}, logger)
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)

	router := chi.NewRouter()
	router.Use(custommiddleware.DefaultMiddlewareStack()...)
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(m.Middleware)
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		renderer.ServerError(w, r, nil)
	})))

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := deps.DB.Health(r.Context())
		status := http.StatusOK
		if health["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		custommiddleware.RespondWithJSON(w, status, health)
	})
	router.Handle("/metrics", m.Handler())

	static, err := fs.Sub(web.FS, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to open static assets: %w", err)
	}
	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	if local, ok := deps.Disk.(*storage.LocalDisk); ok && strings.HasPrefix(cfg.Storage.PublicURL, "/") {
		prefix := strings.TrimRight(cfg.Storage.PublicURL, "/") + "/"
		router.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(local.Root()))))
	}

	router.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)
		catalogHandler.RegisterRoutes(r)
		cartHandler.RegisterRoutes(r)
		checkoutHandler.RegisterRoutes(r, requireLogin)
		authHandler.RegisterRoutes(r, requireLogin, limitLogin)
		adminHandler.RegisterRoutes(r, requireLogin, requireAdmin)
	})

	router.Route("/api", func(r chi.Router) {
		r.Use(custommiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.IsDevelopment()))
		userHandler.RegisterRoutes(r, authMiddleware, limitLogin)
		apiHandler.RegisterRoutes(r)
		adminAPIHandler.RegisterRoutes(r, authMiddleware, custommiddleware.RequireAdmin(logger))
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			custommiddleware.RespondWithError(w, http.StatusNotFound, "Resource not found")
		})
	})

	router.NotFound(sessions.Middleware(http.HandlerFunc(renderer.NotFound)).ServeHTTP)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
		deps:   deps,
	}

	if cfg.Jobs.Enabled {
		server.scheduler = jobs.NewScheduler(refreshTokenRepo, store, productRepo, logger)
	}

	return server, nil
}

// StartJobs starts the background scheduler when jobs are enabled.
func (s *Server) StartJobs() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Start()
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.scheduler != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.scheduler.Stop(ctx); err != nil {
			s.logger.Error("Failed to stop scheduler", zap.Error(err))
		}
	}

	if s.deps.Redis != nil {
		if err := s.deps.Redis.Close(); err != nil {
			s.logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}

	// Close database connection
	if s.deps.DB != nil {
		if err := s.deps.DB.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
