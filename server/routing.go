package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teranos/shelf/logger"
)

// Handler builds the router with all routes and middleware
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(s.requestLogger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.GetServerAllowedOrigins(),
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	if secs := s.cfg.Server.RequestTimeoutSeconds; secs > 0 {
		router.Use(chimiddleware.Timeout(time.Duration(secs) * time.Second))
	}

	router.Get("/health", s.HandleHealth)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	router.Route("/bookmark", func(r chi.Router) {
		r.Post("/", s.HandleCreateBookmark)
		r.Get("/", s.HandleGetBookmark)
		r.Put("/", s.HandleUpdateBookmark)
		r.Delete("/", s.HandleDeleteBookmark)
		r.Post("/upload", s.HandleUpload)
	})
	router.Route("/bookmarks", func(r chi.Router) {
		r.Get("/", s.HandleListBookmarks)
		r.Post("/batch", s.HandleBatchBookmarks)
		r.Get("/category/{category}", s.HandleListByCategory)
		r.Get("/tag/{tag}", s.HandleListByTag)
		r.Get("/stats", s.HandleStats)
	})

	router.Route("/units", func(r chi.Router) {
		r.Get("/", s.HandleListUnits)
		r.Get("/{name}", s.HandleDescribeUnit)
		r.Put("/{name}/config", s.HandleConfigureUnit)
	})

	router.Route("/pipeline", func(r chi.Router) {
		r.Post("/parse", s.HandleParse)
		r.Post("/analyze", s.HandleAnalyze)
		r.Post("/process", s.HandleProcess)
	})

	return router
}

// requestLogger logs each request and carries the chi request ID into the
// request context for downstream loggers.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		reqID := chimiddleware.GetReqID(r.Context())
		ctx := logger.WithComponent(logger.WithRequestID(r.Context(), reqID), "http")
		r = r.WithContext(ctx)
		next.ServeHTTP(ww, r)

		s.logger.Infow("HTTP request",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, ww.Status(),
			logger.FieldSize, ww.BytesWritten(),
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
			logger.FieldRequestID, reqID)
	})
}
