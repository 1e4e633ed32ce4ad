package worker

import (
	"context"
	"time"

	"creatively/internal/logger"

	"go.uber.org/zap"
)

// Collector - кэш запросов, который умеет выбрасывать неиспользуемые записи.
type Collector interface {
	GC(now time.Time) int
}

// SessionSweeper забывает брошенные сессии переноса.
type SessionSweeper interface {
	Sweep(now time.Time) int
}

type Sweeper struct {
	cache    Collector
	sessions SessionSweeper
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(cache Collector, sessions SessionSweeper, interval *time.Duration) *Sweeper {
	var intervalToSet time.Duration
	if interval == nil || *interval <= 0 {
		intervalToSet = time.Minute
	} else {
		intervalToSet = *interval
	}
	return &Sweeper{
		cache:    cache,
		sessions: sessions,
		interval: intervalToSet,
		now:      time.Now,
	}
}

func (w *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-ctx.Done():
			logger.Info("Worker: Фоновая очистка останавливается")
			return
		}
	}
}

// Check выполняет один проход очистки.
func (w *Sweeper) Check(ctx context.Context) (evicted, swept int) {
	start := w.now()

	if w.cache != nil {
		evicted = w.cache.GC(start)
	}
	if w.sessions != nil {
		swept = w.sessions.Sweep(start)
	}

	logger.Debug(
		"Worker: Завершение очистки",
		zap.Duration("ms", time.Since(start)),
		zap.Int("evicted", evicted),
		zap.Int("sessions", swept),
	)
	return evicted, swept
}
