package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/foodshare/apiserver/config"
	"github.com/foodshare/apiserver/internal/db"
	"github.com/foodshare/apiserver/internal/handlers"
	"github.com/foodshare/apiserver/internal/live"
	"github.com/foodshare/apiserver/internal/mq"
	"github.com/foodshare/apiserver/internal/services"
	"github.com/foodshare/apiserver/internal/storage"
	"github.com/foodshare/apiserver/internal/store"
	"github.com/foodshare/apiserver/internal/store/memstore"
	"github.com/foodshare/apiserver/internal/store/mongostore"
	"github.com/foodshare/apiserver/internal/sweeper"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server wraps the HTTP server, its router and the background workers.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *zap.Logger
	posts      *services.PostService
	sweeper    *sweeper.Sweeper
	relayStop  context.CancelFunc
	relayWG    sync.WaitGroup
	closers    []func() error
	stopOnce   sync.Once
}

type repositories struct {
	posts    services.PostRepository
	accounts services.AccountRepository
	close    func() error
}

type options struct {
	publishOnly bool
}

// Option adjusts how New wires the server.
type Option func(*options)

// PublishOnly sends post events to the broker without consuming them. Short
// lived commands use it so they never create a broker subscription.
func PublishOnly() Option {
	return func(o *options) { o.publishOnly = true }
}

// New constructs a Server from cfg. Connections opened here are released by
// Shutdown.
func New(ctx context.Context, cfg config.Config, log *zap.Logger, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{log: log}
	ok := false
	defer func() {
		if !ok {
			s.closeAll()
		}
	}()

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, repos.close)

	hub := live.NewHub()
	broker, err := mq.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open events broker: %w", err)
	}
	if broker != nil {
		s.closers = append(s.closers, broker.Close)
	}
	publisher := s.eventPublisher(broker, cfg.Events.Channel, hub, o)

	postOpts := []services.PostServiceOption{
		services.WithEvents(publisher),
		services.WithLogger(log.Named("posts")),
	}
	photos, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open object storage: %w", err)
	}
	if photos != nil {
		postOpts = append(postOpts, services.WithPhotos(photos))
	}

	s.posts = services.NewPostService(repos.posts, postOpts...)
	accounts := services.NewAccountService(repos.accounts)
	s.sweeper = sweeper.New(s.posts, log.Named("sweeper"), cfg.Sweep.Interval)

	s.router = newRouter(cfg, log, s.posts, accounts, hub)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	// open streams never go idle; end them so Shutdown can drain
	s.httpServer.RegisterOnShutdown(hub.Close)

	log.Info("server configured",
		zap.String("store", cfg.StoreBackend),
		zap.String("events", orNone(cfg.Events.Backend)),
		zap.String("object_store", orNone(cfg.ObjectStore)),
		zap.Int("port", port))
	ok = true
	return s, nil
}

func newRouter(
	cfg config.Config,
	log *zap.Logger,
	posts *services.PostService,
	accounts *services.AccountService,
	hub *live.Hub,
) *chi.Mux {
	authHandler := handlers.NewAuthHandler(accounts, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, log.Named("auth"))
	postHandler := handlers.NewPostHandler(posts, hub, log.Named("posts"))
	authMiddleware := handlers.RequireAuth(cfg.Auth.JWTSecret)

	var limit func(http.Handler) http.Handler
	if cfg.Auth.LoginRateLimit > 0 {
		limiter := handlers.NewRateLimiter(log, handlers.IPAddressKeyFunc, rate.Limit(cfg.Auth.LoginRateLimit), cfg.Auth.LoginBurst)
		limit = limiter.Limit
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	})

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		handlers.RequestLogger(log.Named("http")),
		corsHandler.Handler,
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/posts", func(r chi.Router) {
		// long-lived; kept outside the request timeout
		r.Get("/stream", postHandler.Stream)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			handlers.PostRouter(r, postHandler, authMiddleware)
		})
	})
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		handlers.AuthRouter(r, authHandler, limit)
	})
	return router
}

func openRepositories(ctx context.Context, cfg config.Config) (repositories, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return repositories{}, err
		}
		return repositories{
			posts:    store.NewPostRepository(conn),
			accounts: store.NewAccountRepository(conn),
			close:    conn.Close,
		}, nil
	case config.StoreBackendMongo:
		client, database, err := db.OpenMongo(ctx, cfg.Mongo)
		if err != nil {
			return repositories{}, err
		}
		return repositories{
			posts:    mongostore.NewPostStore(database),
			accounts: mongostore.NewAccountStore(database),
			close: func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return client.Disconnect(ctx)
			},
		}, nil
	case config.StoreBackendMemory:
		return repositories{
			posts:    memstore.NewPostStore(),
			accounts: memstore.NewAccountStore(),
			close:    func() error { return nil },
		}, nil
	}
	return repositories{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// eventPublisher picks where post events go. Without a broker the local hub
// receives them directly; with one they travel through the relay, which also
// feeds the hub unless the server is publish-only.
func (s *Server) eventPublisher(broker *mq.MQ, channel string, hub *live.Hub, o options) services.EventPublisher {
	if broker == nil {
		return hub
	}
	relay := live.NewRelay(broker, channel, hub, s.log.Named("relay"))
	if !o.publishOnly {
		s.startRelay(relay)
	}
	return relay
}

func (s *Server) startRelay(relay *live.Relay) {
	ctx, cancel := context.WithCancel(context.Background())
	s.relayStop = cancel
	s.relayWG.Add(1)
	go func() {
		defer s.relayWG.Done()
		if err := relay.Run(ctx); err != nil {
			s.log.Error("event relay stopped", zap.Error(err))
		}
	}()
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Posts exposes the post service.
func (s *Server) Posts() *services.PostService {
	return s.posts
}

// Start runs the sweeper and the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.sweeper.Start()
	s.log.Info("listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, stops the background workers and
// closes every connection.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if s.httpServer != nil {
			err = s.httpServer.Shutdown(ctx)
		}
		if s.sweeper != nil {
			s.sweeper.Stop()
		}
		s.closeAll()
	})
	return err
}

func (s *Server) closeAll() {
	if s.relayStop != nil {
		s.relayStop()
		s.relayWG.Wait()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn("failed to close resource", zap.Error(err))
		}
	}
	s.closers = nil
}

func orNone(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
