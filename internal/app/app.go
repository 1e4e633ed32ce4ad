package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"creatively/internal/auth"
	"creatively/internal/capability"
	"creatively/internal/config"
	"creatively/internal/handlers"
	"creatively/internal/logger"
	"creatively/internal/query"
	repo "creatively/internal/repository"
	"creatively/internal/repository/inmemory"
	"creatively/internal/repository/postgres"
	"creatively/internal/repository/postgrest"
	"creatively/internal/service"
	"creatively/internal/storage"
	"creatively/internal/worker"
	"creatively/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type App struct {
	config    *config.Config
	server    *http.Server
	router    *chi.Mux
	store     repo.Store
	cache     *query.Client
	probe     *capability.Probe
	hub       *ws.Hub
	worker    *worker.Sweeper
	shutdowns []func() error // функции для graceful shutdown, в обратном порядке
}

func New(cfg *config.Config) *App {
	return &App{
		config:    cfg,
		shutdowns: make([]func() error, 0),
	}
}

func (a *App) onShutdown(fn func() error) {
	a.shutdowns = append(a.shutdowns, fn)
}

func (a *App) Init(ctx context.Context) (*App, error) {
	if err := logger.Init(a.config.Logging.Development); err != nil {
		return nil, fmt.Errorf("инициализация логгера: %w", err)
	}
	a.onShutdown(func() error {
		logger.Info("Завершение работы логгирования...")
		logger.Sync()
		return nil
	})

	store, err := a.initStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.onShutdown(func() error {
		store.Close()
		return nil
	})

	a.probe = capability.NewProbe(store)
	a.probe.Run(ctx)

	a.cache = query.NewClient(
		query.WithStaleTime(a.config.Cache.StaleTime),
		query.WithGCTime(a.config.Cache.GCTime),
	)
	a.onShutdown(func() error {
		a.cache.Close()
		return nil
	})

	a.hub = ws.NewHub()
	a.hub.Attach(a.cache)

	blobs, err := a.initBlobs(ctx)
	if err != nil {
		return nil, err
	}

	verifier, provider := a.initAuth(store)

	deps := &service.Deps{
		Store:    store,
		Cache:    a.cache,
		Caps:     a.probe,
		Location: a.config.Calendar.Location(),
	}
	rescheduler := service.NewRescheduler(deps, a.config.Calendar.DragTTL)
	clock := handlers.Clock{Location: a.config.Calendar.Location()}

	a.worker = worker.NewSweeper(a.cache, rescheduler, &a.config.Cache.SweepInterval)

	a.router = a.routes(routes{
		tasks:    handlers.NewTaskHandler(service.NewTaskService(deps), clock),
		projects: handlers.NewProjectHandler(service.NewProjectService(deps)),
		calendar: handlers.NewCalendarHandler(
			service.NewCalendarService(deps),
			service.NewEventService(deps),
			rescheduler,
			clock,
		),
		team:     handlers.NewTeamHandler(service.NewTeamService(deps)),
		files:    handlers.NewFileHandler(service.NewFileService(deps, blobs, a.config.Storage.MaxUpload, a.config.Storage.PresignTTL), a.config.Storage.MaxUpload),
		profiles: handlers.NewProfileHandler(service.NewProfileService(deps)),
		auth:     handlers.NewAuthHandler(provider),
		system:   handlers.NewSystemHandler(store, a.probe),
		ws:       ws.NewHandler(a.hub, a.config.Server.AllowedOrigins),
		authn:    newAuthenticator(verifier, provider),
	})

	a.server = &http.Server{
		Addr:              a.config.GetServerAddr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("App: Приложение инициализировано",
		zap.String("repository", a.config.Repository.Type),
		zap.String("storage", a.config.Storage.Type),
		zap.String("timezone", a.config.Calendar.Timezone),
	)
	return a, nil
}

func (a *App) initStore(ctx context.Context) (repo.Store, error) {
	switch a.config.Repository.Type {
	case config.RepositoryPostgREST:
		logger.Info("App: Хранилище - удалённый бэкенд", zap.String("url", a.config.Backend.URL))
		return postgrest.New(
			a.config.Backend.URL,
			a.config.Backend.AnonKey,
			a.config.Backend.Timeout,
			postgrest.WithServiceKey(a.config.Backend.ServiceKey),
		), nil
	case config.RepositoryPostgres:
		if a.config.Database.AutoMigrate {
			if err := postgres.Migrate(a.config.Database.URL); err != nil {
				return nil, fmt.Errorf("миграции: %w", err)
			}
		}
		store, err := postgres.New(ctx, a.config.Database.URL,
			postgres.WithPoolSize(a.config.Database.MaxConnections, a.config.Database.MinConnections),
			postgres.WithIdleTimeout(a.config.Database.IdleTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("подключение к postgres: %w", err)
		}
		return store, nil
	default:
		logger.Warn("App: Данные хранятся в памяти и пропадут после перезапуска")
		return inmemory.NewStore(repo.AllResources...), nil
	}
}

func (a *App) initBlobs(ctx context.Context) (storage.Blobs, error) {
	if a.config.Storage.Type == config.StorageS3 {
		s3, err := storage.NewS3(ctx, a.config.Storage.Bucket, a.config.Storage.Region, a.config.Storage.EndpointURL)
		if err != nil {
			return nil, fmt.Errorf("хранилище файлов: %w", err)
		}
		return s3, nil
	}
	return storage.NewMemory(), nil
}

// initAuth выбирает провайдера. Удалённый бэкенд аутентифицирует сам, локальный
// провайдер нужен, когда бэкенда нет.
func (a *App) initAuth(store repo.Store) (*auth.Verifier, auth.Provider) {
	if a.config.Repository.Type == config.RepositoryPostgREST {
		provider := auth.NewClient(a.config.Backend.URL, a.config.Backend.AnonKey, a.config.Backend.Timeout)
		if a.config.Auth.JWTSecret == "" {
			return nil, provider
		}
		return auth.NewVerifier(a.config.Auth.JWTSecret), provider
	}

	secret := a.config.Auth.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("App: auth.jwt_secret не задан, токены не переживут перезапуск")
	}
	// verifier не передаётся: иначе выход из аккаунта не отзывал бы токен
	return nil, auth.NewLocal(secret, a.config.Auth.TokenTTL, store)
}

// Run блокируется до отмены ctx или ошибки сервера.
func (a *App) Run(ctx context.Context) error {
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	go a.hub.Run(workerCtx)
	go a.worker.Start(workerCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP: Сервер запущен", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("запуск сервера: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	logger.Info("App: Остановка приложения...")

	var err error
	if a.server != nil {
		err = multierr.Append(err, a.server.Shutdown(ctx))
	}
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.shutdowns[i]())
	}
	return err
}

// Handler отдаёт собранный роутер, для тестов.
func (a *App) Handler() http.Handler {
	return a.router
}
