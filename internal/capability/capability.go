package capability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"creatively/internal/logger"
	repo "creatively/internal/repository"

	"go.uber.org/zap"
)

// Optional - ресурсы, которых на новом бэкенде может ещё не быть.
var Optional = []repo.Resource{
	repo.CalendarEvents,
	repo.EventAttendees,
	repo.Folders,
	repo.Files,
	repo.TeamMembers,
}

type Status struct {
	Resource    repo.Resource `json:"resource"`
	Provisioned bool          `json:"provisioned"`
	Remediation string        `json:"remediation,omitempty"`
}

// Probe помнит, какие необязательные ресурсы есть на бэкенде.
type Probe struct {
	store     repo.Store
	resources []repo.Resource

	mtx      *sync.RWMutex
	missing  map[repo.Resource]bool
	probedAt time.Time
}

func NewProbe(store repo.Store, resources ...repo.Resource) *Probe {
	if len(resources) == 0 {
		resources = Optional
	}
	return &Probe{
		store:     store,
		resources: resources,
		mtx:       &sync.RWMutex{},
		missing:   make(map[repo.Resource]bool),
	}
}

// Run проверяет каждый ресурс выборкой одной строки. Отсутствующим ресурс
// считается только при ошибке relation-missing, прочие ошибки логируются.
func (p *Probe) Run(ctx context.Context) {
	missing := make(map[repo.Resource]bool)
	for _, r := range p.resources {
		_, err := p.store.Select(ctx, repo.From(r).Take(1))
		switch {
		case err == nil:
		case repo.IsRelationMissing(err):
			missing[r] = true
			logger.Warn("Capability: Таблица не создана", zap.String("resource", string(r)))
		default:
			logger.Error("Capability: Не удалось проверить таблицу", err, zap.String("resource", string(r)))
		}
	}

	p.mtx.Lock()
	p.missing = missing
	p.probedAt = time.Now()
	p.mtx.Unlock()

	logger.Info("Capability: Проверка завершена", zap.Int("missing", len(missing)))
}

// Refresh повторяет проверку и отдаёт новое состояние.
func (p *Probe) Refresh(ctx context.Context) []Status {
	p.Run(ctx)
	return p.Statuses()
}

func (p *Probe) Has(r repo.Resource) bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return !p.missing[r]
}

// MarkMissing запоминает relation-missing, пойманный вне проверки.
func (p *Probe) MarkMissing(r repo.Resource) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if !p.missing[r] {
		logger.Warn("Capability: Таблица пропала", zap.String("resource", string(r)))
	}
	p.missing[r] = true
}

func (p *Probe) ProbedAt() time.Time {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return p.probedAt
}

func (p *Probe) Statuses() []Status {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	out := make([]Status, 0, len(p.resources))
	for _, r := range p.resources {
		s := Status{Resource: r, Provisioned: !p.missing[r]}
		if p.missing[r] {
			s.Remediation = Remediation(r)
		}
		out = append(out, s)
	}
	return out
}

var features = map[repo.Resource]string{
	repo.CalendarEvents: "Календарь показывает только задачи с дедлайнами",
	repo.EventAttendees: "Участники событий и фильтр по команде недоступны",
	repo.Folders:        "Папки недоступны",
	repo.Files:          "Загрузка файлов недоступна",
	repo.TeamMembers:    "Управление командой недоступно",
}

// Remediation объясняет, чего не хватает и как это исправить.
func Remediation(r repo.Resource) string {
	what := features[r]
	if what == "" {
		what = "Раздел недоступен"
	}
	return fmt.Sprintf("%s: таблица %q не создана. Примените миграции базы данных (DATABASE_AUTO_MIGRATE=true или SQL из каталога migrations) и нажмите «Повторить».", what, r)
}
