package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"creatively/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type entry struct {
	key        Key
	value      any
	updatedAt  time.Time
	lastAccess time.Time
	refreshing bool
}

// pending - одна выполняющаяся загрузка. stale выставляет Invalidate.
type pending struct {
	id    string
	key   Key
	stale bool
}

// Client кэширует результаты по ключу в режиме stale-while-revalidate.
type Client struct {
	mtx       *sync.Mutex
	entries   map[string]*entry
	inflight  map[*pending]struct{}
	epochs    map[string]uint64
	epoch     uint64
	listeners []func(Key)
	group     singleflight.Group

	staleTime time.Duration
	gcTime    time.Duration
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Client)

func WithStaleTime(d time.Duration) Option {
	return func(c *Client) { c.staleTime = d }
}

func WithGCTime(d time.Duration) Option {
	return func(c *Client) { c.gcTime = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		mtx:       &sync.Mutex{},
		entries:   make(map[string]*entry),
		inflight:  make(map[*pending]struct{}),
		epochs:    make(map[string]uint64),
		staleTime: 30 * time.Second,
		gcTime:    5 * time.Minute,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch отдаёт значение из кэша или загружает его через fn.
func Fetch[T any](ctx context.Context, c *Client, key Key, fn func(context.Context) (T, error)) (T, error) {
	id := key.id()
	now := c.now()

	c.mtx.Lock()
	if e, ok := c.entries[id]; ok {
		if v, typed := e.value.(T); typed {
			e.lastAccess = now
			if now.Sub(e.updatedAt) >= c.staleTime && !e.refreshing {
				e.refreshing = true
				c.revalidate(ctx, key, func(ctx context.Context) (any, error) { return fn(ctx) })
			}
			c.mtx.Unlock()
			return v, nil
		}
	}
	c.mtx.Unlock()

	v, err := c.load(ctx, key, func(ctx context.Context) (any, error) { return fn(ctx) })
	if err != nil {
		var zero T
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("query: неожиданный тип значения для %s", key)
	}
	return out, nil
}

// load вызывает fn один раз на ключ и эпоху, параллельные вызовы делят результат.
// Результат загрузки, которую задела инвалидация, в кэш не пишется.
func (c *Client) load(ctx context.Context, key Key, fn func(context.Context) (any, error)) (any, error) {
	id := key.id()

	c.mtx.Lock()
	name := fmt.Sprintf("%s#%d", id, c.epochs[id])
	c.mtx.Unlock()

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(name, func() (any, error) {
		p := &pending{id: id, key: key}
		c.mtx.Lock()
		c.inflight[p] = struct{}{}
		c.mtx.Unlock()

		v, err := fn(shared)

		c.mtx.Lock()
		defer c.mtx.Unlock()
		delete(c.inflight, p)
		if err != nil {
			return nil, err
		}
		if !p.stale {
			now := c.now()
			c.entries[id] = &entry{key: key, value: v, updatedAt: now, lastAccess: now}
		}
		return v, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// revalidate обновляет устаревшую запись в фоне со значениями контекста
// запроса, который её заметил. Вызывается под mtx.
func (c *Client) revalidate(ctx context.Context, key Key, fn func(context.Context) (any, error)) {
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.ctx, cancel)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer stop()
		_, err := c.load(bg, key, fn)
		if err != nil {
			logger.Warn("Query: Фоновое обновление не удалось", zap.String("key", key.String()), zap.Error(err))
		}
		c.mtx.Lock()
		if e, ok := c.entries[key.id()]; ok {
			e.refreshing = false
		}
		c.mtx.Unlock()
	}()
}

// Invalidate выбрасывает все записи под prefix. Загрузки, начатые раньше,
// в кэш уже не попадут.
func (c *Client) Invalidate(prefix Key) {
	c.mtx.Lock()
	c.epoch++
	dropped := 0
	for id, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			delete(c.entries, id)
			c.epochs[id] = c.epoch
			dropped++
		}
	}
	// новые вызовы не должны присоединяться к задетым загрузкам
	for p := range c.inflight {
		if p.key.HasPrefix(prefix) {
			p.stale = true
			c.epochs[p.id] = c.epoch
		}
	}
	listeners := make([]func(Key), len(c.listeners))
	copy(listeners, c.listeners)
	c.mtx.Unlock()

	logger.Debug("Query: Инвалидация", zap.String("prefix", prefix.String()), zap.Int("dropped", dropped))
	for _, fn := range listeners {
		fn(prefix)
	}
}

// OnInvalidate подписывает fn на каждую инвалидацию.
func (c *Client) OnInvalidate(fn func(Key)) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.listeners = append(c.listeners, fn)
}

// GC выбрасывает записи, которые никто не читал дольше gcTime.
func (c *Client) GC(now time.Time) int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	evicted := 0
	for id, e := range c.entries {
		if now.Sub(e.lastAccess) > c.gcTime {
			delete(c.entries, id)
			evicted++
		}
	}
	busy := make(map[string]bool, len(c.inflight))
	for p := range c.inflight {
		busy[p.id] = true
	}
	for id := range c.epochs {
		if _, live := c.entries[id]; !live && !busy[id] {
			delete(c.epochs, id)
		}
	}
	return evicted
}

func (c *Client) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.entries)
}

// Close останавливает фоновые обновления и ждёт их.
func (c *Client) Close() {
	c.cancel()
	c.wg.Wait()
}
