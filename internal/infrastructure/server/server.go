// Package server exposes the kernel introspection surface over HTTP:
// process, mailbox and memory snapshots as JSON, plus prometheus metrics.
// Debug tooling only; nothing here is on the syscall path.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/emberos/kernel/internal/infrastructure/config"
	"github.com/emberos/kernel/internal/infrastructure/logging"
	"github.com/emberos/kernel/internal/kernel"
)

// Server is the debug HTTP server.
type Server struct {
	k    *kernel.Kernel
	log  *logging.Logger
	http *http.Server
}

// New builds the debug server around a kernel instance.
func New(k *kernel.Kernel, cfg config.DebugConfig, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewNop()
	}
	log = log.Named("debug")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CORS(DefaultCORSConfig()))
	router.Use(RateLimit(RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	}))

	s := &Server{
		k:   k,
		log: log,
		http: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/processes", s.processes)
	router.GET("/servers", s.servers)
	router.GET("/memory", s.memory)

	return s
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.log.Info("debug server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime_ms": s.k.Uptime().Milliseconds(),
	})
}

func (s *Server) processes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"processes": s.k.Processes()})
}

func (s *Server) servers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"servers": s.k.Servers()})
}

func (s *Server) memory(c *gin.Context) {
	c.JSON(http.StatusOK, s.k.Memory())
}
