package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"greeting-service/internal/config"
	"greeting-service/internal/db"
)

const tasksSegment = "tasks"

// Server owns the router and the pool the handlers borrow connections from.
type Server struct {
	R  *gin.Engine
	DB db.Acquirer

	cors *cors.Cors
}

// Option customises a Server.
type Option func(*Server)

// WithCORS enables CORS for the configured origins. It is a no-op when no
// origin is configured.
func WithCORS(cfg config.CORS) Option {
	return func(s *Server) {
		if len(cfg.AllowedOrigins) == 0 {
			return
		}
		s.cors = cors.New(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedHeaders: cfg.AllowedHeaders,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			MaxAge:         cfg.MaxAge,
		})
	}
}

// NewServer registers the fixed route table on a new gin engine.
func NewServer(pool db.Acquirer, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// route on the escaped path so an encoded slash stays inside its segment
	r.UseRawPath = true
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	r.Use(requestID(), requestLogger(), recovery())

	s := &Server{R: r, DB: pool}
	for _, opt := range opts {
		opt(s)
	}

	r.GET("/", s.hello)
	r.GET("/"+tasksSegment, s.listTasks)
	r.GET("/:name", s.greet)

	r.NoRoute(notFound)

	return s
}

// Handler returns the router wrapped with metrics, CORS and tracing.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.R
	if s.cors != nil {
		h = s.cors.Handler(h)
	}
	h = monitoringMiddleware(h)
	return otelhttp.NewHandler(h, "http.server")
}
