package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"creatively/internal/app"
	"creatively/internal/config"
	"creatively/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("загрузка конфигурации: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg).Init(ctx)
	if err != nil {
		return fmt.Errorf("инициализация приложения: %w", err)
	}

	runErr := a.Run(ctx)
	if runErr != nil {
		logger.Error("App: Сервер остановился с ошибкой", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintln(os.Stderr, "App: Ошибки при остановке:", err)
		return err
	}
	return runErr
}
