package app

import (
	"net/http"

	"creatively/internal/auth"
	"creatively/internal/handlers"
	"creatively/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

type routes struct {
	tasks    handlers.TaskHandler
	projects handlers.ProjectHandler
	calendar handlers.CalendarHandler
	team     handlers.TeamHandler
	files    handlers.FileHandler
	profiles handlers.ProfileHandler
	auth     handlers.AuthHandler
	system   handlers.SystemHandler
	ws       http.Handler
	authn    *middleware.Authenticator
}

func newAuthenticator(verifier *auth.Verifier, provider auth.Provider) *middleware.Authenticator {
	return middleware.NewAuthenticator(verifier, provider)
}

func (a *App) routes(h routes) *chi.Mux {
	origins := a.config.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.RateLimit(a.config.Server.RateLimit))

	r.Get("/health", h.system.HealthCheck) // GET /health

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.Timeout(a.config.Server.RequestTimeout))
		r.Post("/signup", h.auth.SignUp) // POST /auth/signup
		r.Post("/signin", h.auth.SignIn) // POST /auth/signin

		r.Group(func(r chi.Router) {
			r.Use(h.authn.Middleware)
			r.Post("/signout", h.auth.SignOut) // POST /auth/signout
			r.Get("/session", h.auth.Session)  // GET /auth/session
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authn.Middleware)

		// websocket живёт дольше таймаута запроса
		r.Handle("/ws", h.ws) // GET /api/ws

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.config.Server.RequestTimeout))

			r.Route("/calendar", func(r chi.Router) {
				r.Use(middleware.CalendarRecovery)

				r.Get("/day", h.calendar.Day)     // GET /api/calendar/day?date=
				r.Get("/month", h.calendar.Month) // GET /api/calendar/month?month=

				r.Route("/drags", func(r chi.Router) {
					r.Post("/", h.calendar.StartDrag) // POST /api/calendar/drags

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", h.calendar.GetDrag)         // GET /api/calendar/drags/{id}
						r.Put("/over", h.calendar.DragOver)    // PUT /api/calendar/drags/{id}/over
						r.Post("/drop", h.calendar.Drop)       // POST /api/calendar/drags/{id}/drop
						r.Post("/confirm", h.calendar.Confirm) // POST /api/calendar/drags/{id}/confirm
						r.Delete("/", h.calendar.CancelDrag)   // DELETE /api/calendar/drags/{id}
					})
				})
			})

			r.Route("/events", func(r chi.Router) {
				r.Use(middleware.CalendarRecovery)
				r.Post("/", h.calendar.PostEvent) // POST /api/events

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.calendar.GetEvent)       // GET /api/events/{id}
					r.Put("/", h.calendar.UpdateEvent)    // PUT /api/events/{id}
					r.Delete("/", h.calendar.DeleteEvent) // DELETE /api/events/{id}
				})
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", h.tasks.ListTasks) // GET /api/tasks
				r.Post("/", h.tasks.PostTask) // POST /api/tasks

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.tasks.GetTaskByID)           // GET /api/tasks/{id}
					r.Put("/", h.tasks.UpdateTaskByID)        // PUT /api/tasks/{id}
					r.Delete("/", h.tasks.DeleteTaskByID)     // DELETE /api/tasks/{id}
					r.Post("/complete", h.tasks.CompleteTask) // POST /api/tasks/{id}/complete
				})
			})

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", h.projects.ListProjects) // GET /api/projects
				r.Post("/", h.projects.PostProject) // POST /api/projects

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.projects.GetProject)       // GET /api/projects/{id}
					r.Put("/", h.projects.UpdateProject)    // PUT /api/projects/{id}
					r.Delete("/", h.projects.DeleteProject) // DELETE /api/projects/{id}?confirm=true
				})
			})

			r.Route("/team", func(r chi.Router) {
				r.Get("/", h.team.ListMembers)   // GET /api/team
				r.Post("/", h.team.InviteMember) // POST /api/team

				r.Route("/{id}", func(r chi.Router) {
					r.Put("/", h.team.UpdateMember)              // PUT /api/team/{id}
					r.Delete("/", h.team.RemoveMember)           // DELETE /api/team/{id}
					r.Delete("/force", h.team.ForceDeleteMember) // DELETE /api/team/{id}/force?confirm=true
				})
			})

			r.Route("/folders", func(r chi.Router) {
				r.Get("/contents", h.files.Contents) // GET /api/folders/contents?folder_id=
				r.Post("/", h.files.PostFolder)      // POST /api/folders
				r.Delete("/{id}", h.files.DeleteFolder)
			})

			r.Route("/files", func(r chi.Router) {
				r.Post("/", h.files.Upload) // POST /api/files (multipart)
				r.Get("/{id}/download", h.files.Download)
				r.Delete("/{id}", h.files.DeleteFile)
			})

			r.Get("/profile", h.profiles.GetProfile)    // GET /api/profile
			r.Put("/profile", h.profiles.UpdateProfile) // PUT /api/profile

			r.Get("/capabilities", h.system.Capabilities)                 // GET /api/capabilities
			r.Post("/capabilities/refresh", h.system.RefreshCapabilities) // POST /api/capabilities/refresh
		})
	})

	return r
}
