// Package server exposes read-only diagnostics for a running robot session.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/armlink/internal/observability"
	"github.com/danmuck/armlink/internal/robot"
	"github.com/danmuck/armlink/internal/statelog"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Source is the view of a session the routes read. robot.Session satisfies it.
type Source interface {
	LastState() (robot.State, bool)
	Motion() (robot.ActiveMotion, bool)
	ServerVersion() uint16
	RealtimeConfig() robot.RealtimeConfig
	Err() error
}

// History supplies recent cycles; statelog.Log satisfies it.
type History interface {
	Records() []statelog.Record
	Cap() int
}

type Config struct {
	Name        string
	Addr        string
	CorsOrigins []string
}

type Server struct {
	cfg      Config
	source   Source
	history  History
	router   *gin.Engine
	http     *http.Server
	appeared time.Time
}

var _ Source = (*robot.Session)(nil)

// New builds the router. history may be nil.
func New(cfg Config, source Source, history History) *Server {
	observability.RegisterMetrics()
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "armlink"
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:      cfg,
		source:   source,
		history:  history,
		router:   r,
		appeared: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("server.Serve listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
