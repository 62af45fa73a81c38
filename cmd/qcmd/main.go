package main

import (
	"context"
	"log"
	"net/http"
	"time"

	api "github.com/formaplus/qcm-engine/internal/api/http"
	"github.com/formaplus/qcm-engine/internal/attempt"
	"github.com/formaplus/qcm-engine/internal/auth"
	"github.com/formaplus/qcm-engine/internal/config"
	"github.com/formaplus/qcm-engine/internal/db"
	"github.com/formaplus/qcm-engine/internal/eventlog"
	"github.com/formaplus/qcm-engine/internal/quiz"
	"github.com/formaplus/qcm-engine/internal/rbac"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	quizzes := quiz.NewSQLStore(dbh)
	attempts := attempt.NewSQLStore(dbh)
	events := eventlog.NewSQLSink(dbh)
	engine := attempt.NewService(attempts, quizzes, events, time.Now)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthSecret)
	if err := auth.BootstrapAdmin(ctx, dbh, cfg.AdminUser, cfg.AdminPassHash); err != nil {
		log.Fatalf("admin bootstrap: %v", err)
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Authoring (teacher)
		pr.With(rbac.Require("quiz:create")).
			Post("/quizzes", api.UpsertQuizHandler(quizzes))
		pr.With(rbac.Require("quiz:list")).
			Get("/quizzes", api.ListQuizzesHandler(quizzes))

		// Student flow
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes/{quizID}", api.GetQuizHandler(quizzes))
		pr.With(rbac.Require("attempt:start")).
			Post("/quizzes/{quizID}/attempts", api.StartAttemptHandler(engine))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/quizzes/{quizID}/attempts", api.AttemptHistoryHandler(engine))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/quizzes/{quizID}/progress", api.ProgressHandler(engine))

		pr.With(rbac.Require("attempt:save")).
			Put("/attempts/{attemptID}/answers/{questionIndex}", api.SaveAnswerHandler(engine))
		pr.With(rbac.Require("attempt:submit")).
			Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(engine))
		pr.With(rbac.Require("attempt:abandon")).
			Post("/attempts/{attemptID}/abandon", api.AbandonAttemptHandler(engine))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}/time", api.RemainingTimeHandler(engine))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}", api.GetAttemptHandler(engine))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
