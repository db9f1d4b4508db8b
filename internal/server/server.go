// FilePath: server/sensorlog/internal/server/server.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	nuts "github.com/vaudience/go-nuts"

	"github.com/itsatony/w4b_v3/server/sensorlog/api"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/cache"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/config"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/database"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/database/migrate"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/monitoring"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/repository/sqlite"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/service"
)

// Server represents our HTTP server
type Server struct {
	config     *config.Config
	srv        *http.Server
	pool       *database.Pool
	latest     cache.LatestCache
	service    *service.Service
	monitoring *monitoring.Service
}

// New creates a new server instance
func New(cfg *config.Config) *Server {
	return &Server{
		config: cfg,
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

// Start opens the store, applies pending migrations and serves until SIGINT
// or SIGTERM. The pool is closed exactly once on the way out.
func (s *Server) Start() error {
	if err := s.init(context.Background()); err != nil {
		return err
	}
	defer s.close()

	errCh := make(chan error, 1)
	go func() {
		nuts.L.Infof("[Server] Starting server on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	return s.waitForShutdown(errCh)
}

// init builds every dependency. A migration failure is fatal for startup.
func (s *Server) init(ctx context.Context) error {
	pool, err := database.Open(ctx, s.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.pool = pool

	if err := migrate.New(pool).Up(); err != nil {
		s.close()
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	s.latest = cache.Noop{}
	if s.config.Redis.Enabled() {
		rc, err := cache.NewRedis(ctx, s.config.Redis)
		if err != nil {
			nuts.L.Warnf("[Server] Redis unavailable, latest-reading cache disabled: %v", err)
		} else {
			s.latest = rc
		}
	}

	if s.config.Monitoring.MetricsEnabled {
		s.monitoring = monitoring.NewService(monitoring.Config{RuntimeCollectors: true})
		s.monitoring.RegisterPool(pool.Stats)
	}

	s.service = service.New(service.Repositories{
		Sensors:     sqlite.NewSensorRepository(pool),
		Readings:    sqlite.NewReadingRepository(pool),
		Sessions:    sqlite.NewSessionRepository(pool, s.config.Database.AllowConcurrentSessions),
		Maintenance: sqlite.NewMaintenanceRepository(pool),
	}, s.latest, s.monitoring, pool.Size())
	if err := s.service.Validate(); err != nil {
		s.close()
		return err
	}

	s.srv.Handler = api.NewRouter(s.service, s.monitoring, s.config.Server)
	return nil
}

// waitForShutdown waits for interrupt signal and gracefully shuts down the server
func (s *Server) waitForShutdown(errCh <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("error starting server: %w", err)
	}

	nuts.L.Infof("[Server] Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	nuts.L.Infof("[Server] Server shut down successfully")
	return nil
}

func (s *Server) close() {
	if s.latest != nil {
		if err := s.latest.Close(); err != nil {
			nuts.L.Warnf("[Server] Failed to close cache: %v", err)
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			nuts.L.Errorf("[Server] Failed to close database: %v", err)
		}
	}
}
