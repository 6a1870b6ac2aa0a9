package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/bingo-backend/internal/auth"
	"github.com/DoyleJ11/bingo-backend/internal/hub"
	"github.com/DoyleJ11/bingo-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, v auth.Verifier, wsCfg ws.Config, log *zap.Logger) http.Handler {
	log = log.Named("http")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz(h, log))
	r.Get("/ws", ws.Handler(h, v, wsCfg, log))

	r.Group(func(r chi.Router) {
		r.Use(requestLogger(log))
		r.Use(auth.Middleware(v))
		r.Post("/games", CreateGame(h, log))
		r.Get("/games/{ref}", GetGame(h, log))
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
