package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lpalbou/AbstractAssistant/internal/ai"
)

// errSuperseded — причина отмены предыдущего запроса при last-submit-wins.
var errSuperseded = errors.New("request superseded")

// errTimeout — причина отмены по индивидуальному таймауту запроса.
var errTimeout = errors.New("request timeout")

// OutcomeKind — вид терминального исхода запроса генерации.
type OutcomeKind int

const (
	Succeeded OutcomeKind = iota
	Failed
	Cancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "cancelled"
	}
}

// Outcome — единственный терминальный результат одного запроса.
// Cancelled для координатора всегда no-op, никогда не ошибка.
type Outcome struct {
	RequestID string
	Kind      OutcomeKind
	Reply     ai.Reply
	Err       error
}

// Request — пользовательский запрос генерации.
type Request struct {
	Text      string
	ImageURLs []string
	System    string
	History   []ai.HistoryPair
}

// Manager владеет инвариантом «не больше одного запроса в полёте». Новый Start
// сначала отменяет предыдущий запрос (его исход станет Cancelled) и только потом
// запускает воркер, поэтому отмена вытесненного запроса наблюдается раньше любых
// событий нового. Воркер доставляет ровно один терминальный исход на запрос;
// поздний успех/провал вытесненного запроса деградирует до Cancelled и к
// состоянию не применяется.
type Manager struct {
	client  ai.Client
	logger  *zap.SugaredLogger
	timeout time.Duration

	mu         sync.Mutex
	gen        atomic.Int64
	cancelPrev context.CancelCauseFunc

	outcomes chan Outcome
}

func New(client ai.Client, timeout time.Duration, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		client:   client,
		logger:   logger,
		timeout:  timeout,
		outcomes: make(chan Outcome, 8),
	}
}

// Outcomes — канал терминальных исходов; единственный потребитель — координатор.
func (m *Manager) Outcomes() <-chan Outcome { return m.outcomes }

// Start отменяет активный запрос (если есть) и запускает новый воркер.
// Возвращает идентификатор нового запроса немедленно.
func (m *Manager) Start(ctx context.Context, req Request) string {
	id := uuid.NewString()
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.Lock()
	if m.cancelPrev != nil {
		m.cancelPrev(errSuperseded)
	}
	localGen := m.gen.Add(1)
	wctx, cancel := context.WithCancelCause(ctx)
	m.cancelPrev = cancel
	m.mu.Unlock()

	go func() {
		// Дочерний контекст освобождается сразу после терминального исхода,
		// иначе завершённые запросы копятся в родительском до конца процесса
		defer cancel(nil)
		m.worker(wctx, localGen, id, req)
	}()
	return id
}

// CancelActive отменяет активный запрос, не запуская новый (Shutdown-путь).
func (m *Manager) CancelActive() {
	m.mu.Lock()
	if m.cancelPrev != nil {
		m.cancelPrev(errSuperseded)
		m.cancelPrev = nil
	}
	m.gen.Add(1)
	m.mu.Unlock()
}

func (m *Manager) worker(ctx context.Context, localGen int64, id string, req Request) {
	if m.timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeoutCause(ctx, m.timeout, errTimeout)
		defer tcancel()
	}

	start := time.Now()
	m.logger.Infow("Запрос генерации", "request", id)

	reply, err := m.client.SendMessage(ctx, ai.Request{
		System:    req.System,
		Text:      req.Text,
		ImageURLs: req.ImageURLs,
		History:   req.History,
	})

	// Вытеснение и внешняя отмена (shutdown) — Cancelled; таймаут — Failed.
	cause := context.Cause(ctx)
	out := Outcome{RequestID: id}
	switch {
	case err != nil && (errors.Is(cause, errSuperseded) || errors.Is(cause, context.Canceled)):
		out.Kind = Cancelled
	case err != nil:
		out.Kind = Failed
		out.Err = err
	default:
		out.Kind = Succeeded
		out.Reply = reply
	}

	// Устаревший успех/провал вытесненного запроса никогда не применяется:
	// если поколение ушло вперёд, исход деградирует до Cancelled.
	if m.gen.Load() != localGen && out.Kind != Cancelled {
		m.logger.Infow("Поздний результат вытесненного запроса отброшен", "request", id)
		out = Outcome{RequestID: id, Kind: Cancelled}
	}

	m.mu.Lock()
	if m.gen.Load() == localGen {
		m.cancelPrev = nil
	}
	m.mu.Unlock()

	m.logger.Infow("Запрос генерации завершён",
		"request", id, "kind", out.Kind.String(), "duration", time.Since(start).String())
	m.outcomes <- out
}
