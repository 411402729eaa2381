package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vedran77/riffchat/internal/cache"
	"github.com/vedran77/riffchat/internal/config"
	"github.com/vedran77/riffchat/internal/database"
	"github.com/vedran77/riffchat/internal/logger"
	"github.com/vedran77/riffchat/internal/metrics"
	"github.com/vedran77/riffchat/internal/repository"
	"github.com/vedran77/riffchat/internal/repository/memory"
	postgresrepo "github.com/vedran77/riffchat/internal/repository/postgres"
	"github.com/vedran77/riffchat/internal/service"
	"github.com/vedran77/riffchat/internal/token"
	"github.com/vedran77/riffchat/internal/transport/http/handlers"
	"github.com/vedran77/riffchat/internal/transport/http/middleware"
	"github.com/vedran77/riffchat/internal/transport/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		store repository.Store
		db    handlers.Pinger
	)
	switch cfg.StorageDriver {
	case config.StorageMemory:
		store = memory.NewStore()
		zl.Warn("using in-memory storage; data is lost on restart")
	case config.StoragePostgres:
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		zl.Info("connected to database", zap.String("host", cfg.DBHost), zap.String("name", cfg.DBName))

		if cfg.DBAutoMigrate {
			if err := database.Migrate(ctx, pool); err != nil {
				return err
			}
			zl.Info("database schema applied")
		}
		store = postgresrepo.NewStore(pool)
		db = pool
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	// Presence session counting
	var sessions service.SessionCounter = service.NewLocalSessionCounter()
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		sessions = service.NewRedisSessionCounter(rdb)
		zl.Info("presence sessions counted in redis")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Services
	tokens := token.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	authService := service.NewAuthService(store.Users(), tokens)
	conversationService := service.NewConversationService(store)
	messageService := service.NewMessageService(store, conversationService)
	presenceService := service.NewPresenceService(store.Users(), sessions)

	// Realtime
	hub := ws.NewHub(zl)
	messageService.SetNotifier(ws.NewHubNotifier(hub, zl))
	gateway := ws.NewGateway(hub, authService, conversationService, presenceService, zl, ws.GatewayOptions{
		OriginPatterns: originHosts(cfg.CORSAllowedOrigins),
		EventRate:      rate.Limit(cfg.WSEventRatePerSec),
		EventBurst:     cfg.WSEventRateBurst,
		Metrics:        m,
	})

	// Routes
	router := handlers.Router{
		Auth:          handlers.NewAuthHandler(authService, zl),
		Conversations: handlers.NewConversationHandler(conversationService, messageService, m, zl),
		Messages:      handlers.NewMessageHandler(messageService, m, zl),
		Presence:      handlers.NewPresenceHandler(presenceService, zl),
		Health:        handlers.NewHealthHandler(db, zl),
		Gateway:       gateway,
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RequireAuth:   middleware.Auth(authService, zl),
		SendLimit:     middleware.NewRateLimiter(cfg.SendRatePerSec, cfg.SendRateBurst).Limit,
	}

	handler := middleware.CORS(cfg.CORSAllowedOrigins)(middleware.Logger(zl, m)(router.Mux()))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// originHosts turns CORS origins into the host patterns the websocket
// handshake matches against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}
