package routes

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/starkspartacus/ecompetition-sub002/handlers"
	"github.com/starkspartacus/ecompetition-sub002/metrics"
	"github.com/starkspartacus/ecompetition-sub002/middleware"
	"github.com/starkspartacus/ecompetition-sub002/models"
)

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Auth          *handlers.AuthHandler
	User          *handlers.UserHandler
	Competition   *handlers.CompetitionHandler
	Participation *handlers.ParticipationHandler
	Team          *handlers.TeamHandler
	WebSocket     *handlers.WebSocketHandler
	Admin         *handlers.AdminHandler
}

type Options struct {
	JWTSecret      []byte
	AllowedOrigins []string
	Metrics        *metrics.Aggregator
	Logger         *slog.Logger
}

func SetupRoutes(router chi.Router, h Handlers, opts Options) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestLogger(opts.Logger))
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if opts.Metrics != nil {
		router.Use(middleware.Metrics(opts.Metrics))
	}

	authenticate := middleware.Authenticate(opts.JWTSecret)
	managers := middleware.Authorize(models.RoleOrganizer, models.RoleAdmin)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	router.Get("/ws/competitions/{competitionID}", h.WebSocket.ServeWs)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Auth.Register)
			r.Post("/login", h.Auth.Login)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/me", h.User.GetMe)
			r.Get("/{userID}", h.User.GetUser)
			r.Patch("/{userID}", h.User.UpdateUser)
			r.Post("/{userID}/photo", h.User.UploadPhoto)
		})

		r.Route("/competitions", func(r chi.Router) {
			r.Get("/", h.Competition.ListCompetitions)
			r.Get("/code/{joinCode}", h.Competition.GetByJoinCode)

			r.Group(func(r chi.Router) {
				r.Use(authenticate, managers)
				r.Post("/", h.Competition.CreateCompetition)
			})

			r.Route("/{competitionID}", func(r chi.Router) {
				r.Get("/", h.Competition.GetCompetition)
				r.Get("/stats", h.Competition.GetStats)
				r.Get("/transitions", h.Competition.ListTransitions)

				r.Group(func(r chi.Router) {
					r.Use(authenticate)
					r.Post("/participations", h.Participation.CreateParticipation)
					r.Get("/participations/check", h.Participation.CheckParticipation)
				})

				r.Group(func(r chi.Router) {
					r.Use(authenticate, managers)
					r.Patch("/", h.Competition.UpdateCompetition)
					r.Delete("/", h.Competition.DeleteCompetition)
					r.Put("/rules", h.Competition.UpdateRules)
					r.Post("/publish", h.Competition.Publish)
					r.Post("/cancel", h.Competition.Cancel)
					r.Put("/status", h.Competition.OverrideStatus)
					r.Get("/participations", h.Participation.ListCompetitionParticipations)
				})
			})
		})

		r.Route("/participations", func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/me", h.Participation.ListMyParticipations)
			r.Get("/{participationID}", h.Participation.GetParticipation)
			r.Delete("/{participationID}", h.Participation.WithdrawParticipation)
			r.With(managers).Patch("/{participationID}/status", h.Participation.ReviewParticipation)
		})

		r.Route("/teams/{teamID}", func(r chi.Router) {
			r.Get("/", h.Team.GetTeam)
			r.Get("/players", h.Team.ListTeamPlayers)
			r.With(authenticate).Post("/players", h.Team.AddPlayer)
		})

		r.Route("/players/{playerID}", func(r chi.Router) {
			r.Use(authenticate)
			r.Patch("/", h.Team.UpdatePlayer)
			r.Delete("/", h.Team.DeletePlayer)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticate)
			r.With(middleware.Authorize(models.RoleAdmin)).Get("/metrics", h.Admin.ListMetrics)
			r.With(managers).Post("/sweep", h.Admin.RunSweep)
		})
	})
}
