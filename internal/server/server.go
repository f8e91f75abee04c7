package server

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/radioctl/internal/driver"
	"github.com/danmuck/radioctl/internal/history"
	"github.com/danmuck/radioctl/internal/observability"
	"github.com/danmuck/radioctl/internal/protocol/session"
	"github.com/danmuck/radioctl/internal/queue"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const defaultLimit = 50

// Source is the read-only driver surface the diagnostics routes expose.
type Source interface {
	Stats() driver.Stats
	QueueSize() int
	QueueDepths() []queue.NodeDepth
	Inflight() (session.Snapshot, bool)
	History(limit int) []history.Entry
	Trace(limit int) []history.Record
}

type Server struct {
	Addr     string
	Appeared time.Time

	src    Source
	router *gin.Engine
}

func New(addr string, src Source, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, observability.ScrapePaths...))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Addr:     addr,
		Appeared: time.Now(),
		src:      src,
		router:   r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": "radioctl",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.src.Stats())
	})

	s.router.GET("/queue", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"size":  s.src.QueueSize(),
			"nodes": s.src.QueueDepths(),
		})
	})

	s.router.GET("/inflight", func(c *gin.Context) {
		snap, ok := s.src.Inflight()
		if !ok {
			c.JSON(http.StatusOK, gin.H{"inflight": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"inflight":   true,
			"node":       snap.Node,
			"priority":   snap.Priority.String(),
			"state":      snap.State.String(),
			"payload":    hex.EncodeToString(snap.Payload),
			"age":        time.Since(snap.Start).String(),
			"retries":    snap.Retries,
			"naks":       snap.Naks,
			"collisions": snap.Collisions,
		})
	})

	s.router.GET("/history", func(c *gin.Context) {
		limit, ok := parseLimit(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": s.src.History(limit)})
	})

	s.router.GET("/trace", func(c *gin.Context) {
		limit, ok := parseLimit(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": s.src.Trace(limit)})
	})
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.DefaultQuery("limit", strconv.Itoa(defaultLimit))
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return limit, true
}

// Serve listens on Addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr).Msg("diagnostics listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
