package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auth "github.com/mind-engage/mindengage-testbot/internal/auth/middleware"
	"github.com/mind-engage/mindengage-testbot/internal/bot"
	"github.com/mind-engage/mindengage-testbot/internal/exam"
	"github.com/mind-engage/mindengage-testbot/internal/rbac"
	"github.com/mind-engage/mindengage-testbot/internal/storage"
	syncx "github.com/mind-engage/mindengage-testbot/internal/sync"
)

type Deps struct {
	Bot       *bot.Bot
	Store     exam.Store
	Grader    bot.Grader
	Blobs     storage.BlobStore
	Events    syncx.Log
	Auth      *auth.AuthService
	Admins    rbac.AdminSet
	PassHash  string
	BotSecret string
	Location  *time.Location

	CORSOrigins   []string
	EnableMetrics bool
	// Ready reports whether backing services are reachable; nil means always.
	Ready func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	if d.Location == nil {
		d.Location = time.Local
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("Bot is running!")) })
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("OK")) })
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(200)
	})
	if d.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Post("/bot/updates", BotUpdatesHandler(d.Bot, d.BotSecret))
	r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Admins, d.PassHash))

	// Admin API (JWT → allow-list → role in context → RBAC)
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(auth.JWTMiddleware(d.Auth), auth.AttachRoleFromAllowList(d.Admins))

		ar.With(rbac.Require(rbac.PermTestView)).
			Get("/tests", ListTestsHandler(d.Store))
		ar.With(rbac.Require(rbac.PermTestCreate)).
			Post("/tests", CreateTestHandler(d.Store, d.Location))
		ar.With(rbac.Require(rbac.PermRegistrationView)).
			Get("/tests/{testID}/registrations", ListRegistrationsHandler(d.Store))
		ar.With(rbac.Require(rbac.PermGradingRun)).
			Post("/tests/{testID}/grade/raw", GradeRawHandler(d.Grader))
		ar.With(rbac.Require(rbac.PermGradingRun)).
			Post("/tests/{testID}/grade/psychometric", GradePsychometricHandler(d.Grader))
		ar.With(rbac.Require(rbac.PermEventView)).
			Get("/events", ListEventsHandler(d.Events, d.Location))
		ar.With(rbac.Require(rbac.PermChartView)).
			Route("/charts", func(cr chi.Router) { MountCharts(cr, d.Blobs) })
	})
	return r
}
