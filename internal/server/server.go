// Package server wires the HTTP File Transfer/Catalog/Heartbeat surface
// and the WebSocket Edit Protocol endpoint together behind gin, grounded
// on edirooss-zmux-server's internal/http pattern of one Router type
// owning a *gin.Engine plus its dependent services.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cshekharsharma/filesync/internal/catalog"
	"github.com/cshekharsharma/filesync/internal/crdt"
	"github.com/cshekharsharma/filesync/internal/transfer"
)

// Server is the filesync server: it owns the CRDT manager, the catalog, the
// file store, and the HTTP listener that fronts all three.
type Server struct {
	engine  *gin.Engine
	http    *http.Server
	catalog *catalog.Catalog
	log     *zap.Logger
}

// New builds a Server. listenAddr is the address to bind; siteID seeds the
// CRDT manager's logical-clock identity (spec.md §3/§9).
func New(listenAddr string, cat *catalog.Catalog, store *transfer.Store, siteID string, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(ginLogger(log), gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST"},
		AllowHeaders:    []string{"Content-Type"},
	}))

	h := &handlers{
		catalog: cat,
		store:   store,
		manager: crdt.NewManager(siteID),
		hub:     newHub(log),
		log:     log,
	}
	h.registerRoutes(engine)

	return &Server{
		engine:  engine,
		http:    &http.Server{Addr: listenAddr, Handler: engine},
		catalog: cat,
		log:     log,
	}
}

// Run starts the HTTP listener and blocks until ctx is cancelled, at which
// point it shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.log.Error("error during shutdown", zap.Error(err))
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
