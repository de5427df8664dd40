package api

import (
	"net/http"
	"time"

	"codeduel/internal/api/handler"
	"codeduel/internal/api/ws"
	"codeduel/internal/app/service"
	"codeduel/internal/common/security"
	"codeduel/internal/domain/repository"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

func NewRouter(
	authService *service.AuthService,
	problemService *service.ProblemService,
	contestService *service.ContestService,
	submissionService *service.SubmissionService,
	ratingService *service.RatingService,
	antiCheatService *service.AntiCheatService,
	duelRepo repository.DuelRepository,
	duelSocket *ws.DuelSocket,
) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	// Public health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Duel websocket. Authenticates via token query parameter, so it sits
	// outside the JWT header middleware chain and its timeout.
	r.Get("/ws/duel", duelSocket.HandleWS)

	// API v1 Routes
	r.Group(func(apiRouter chi.Router) {
		apiRouter.Use(chiMiddleware.Timeout(60 * time.Second))
		apiRouter.Use(jwtauth.Verifier(security.TokenAuth))

		apiRouter.Route("/api/v1", func(v1 chi.Router) {
			// Auth routes (public)
			authHandler := handler.NewAuthHandler(authService)
			v1.Group(func(publicAuth chi.Router) {
				authHandler.RegisterRoutes(publicAuth)
			})

			// Problem routes (some public, some admin)
			problemHandler := handler.NewProblemHandler(problemService)
			v1.Route("/problems", problemHandler.RegisterRoutes)

			// Contest routes incl. registration, standings, submissions
			contestHandler := handler.NewContestHandler(contestService, submissionService, antiCheatService)
			v1.Route("/contests", contestHandler.RegisterRoutes)

			// Rating and duel record routes
			rankingHandler := handler.NewRankingHandler(ratingService, duelRepo)
			v1.Route("/rankings", rankingHandler.RegisterRoutes)
		})
	})

	return r
}
