package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/kd2675/image-back-server/internal/cache"
	"github.com/kd2675/image-back-server/internal/config"
	"github.com/kd2675/image-back-server/internal/storage"
)

// Server is the HTTP front of the image store: upload endpoints, the dated
// image fetch endpoint, and the health/stats surface.
type Server struct {
	cfg        config.Config
	store      *storage.Store
	cache      *cache.VariantCache
	engine     *gin.Engine
	httpServer *http.Server
}

func New(cfg config.Config, store *storage.Store, variantCache *cache.VariantCache) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())
	engine.MaxMultipartMemory = cfg.MultipartMaxMemory

	if len(cfg.AllowedOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization"},
			MaxAge:       time.Hour,
		}))
	}

	s := &Server{
		cfg:    cfg,
		store:  store,
		cache:  variantCache,
		engine: engine,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/stats", s.handleStats)
	s.engine.POST("/upload", s.handleUpload)
	s.engine.POST("/upload/batch", s.handleUploadBatch)
	s.engine.GET("/images/:year/:month/:day/:filename", s.handleGetImage)
}

// Handler exposes the routed engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
