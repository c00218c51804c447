package playback

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lpalbou/AbstractAssistant/internal/service/session"
	"github.com/lpalbou/AbstractAssistant/internal/service/tts"
	"github.com/lpalbou/AbstractAssistant/internal/service/tts/player"
)

// EventType — асинхронные уведомления контроллера воспроизведения.
type EventType int

const (
	// EventStarted — аудиопоток дошёл до спикера.
	EventStarted EventType = iota
	// EventEnded — воспроизведение завершилось естественно либо синтез не удался.
	EventEnded
)

type Event struct {
	Type      EventType
	SessionID string
	At        time.Time
}

// Session — одна сессия воспроизведения. StartedAt монотонно растёт и вместе с ID
// отсекает устаревшие события управления.
type Session struct {
	ID        string
	StartedAt time.Time
}

// Controller оборачивает синтезатор и движок воспроизведения. Контракт pause/resume
// терпим к прогреву движка: попытки повторяются ограниченное число раз и прерываются,
// если сессия уже закончилась.
type Controller struct {
	synth  tts.Synthesizer
	engine player.Engine
	logger *zap.SugaredLogger

	retryAttempts int
	retryInterval time.Duration

	mu      sync.Mutex
	current *Session

	events chan Event
}

// Config — параметры повторов на время прогрева движка.
type Config struct {
	RetryAttempts int
	RetryInterval time.Duration
}

func New(synth tts.Synthesizer, engine player.Engine, cfg Config, logger *zap.SugaredLogger) *Controller {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 5
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 100 * time.Millisecond
	}
	return &Controller{
		synth:         synth,
		engine:        engine,
		logger:        logger,
		retryAttempts: cfg.RetryAttempts,
		retryInterval: cfg.RetryInterval,
		events:        make(chan Event, 16),
	}
}

// Events — канал асинхронных уведомлений для координатора.
func (c *Controller) Events() <-chan Event { return c.events }

// Start начинает синтез и воспроизведение текста. Не блокирует вызывающего:
// синтез и декодирование выполняются в отдельной горутине. Возвращает сессию
// сразу; EventStarted придёт, когда поток дойдёт до спикера.
func (c *Controller) Start(ctx context.Context, text string) (*Session, error) {
	if c.synth == nil {
		return nil, session.ErrBackendUnavailable
	}

	// Предыдущая сессия, если была, молча завершается
	c.Stop()

	sess := &Session{ID: uuid.NewString(), StartedAt: time.Now()}
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()

	go func() {
		audio, err := c.synth.Synthesize(ctx, text)
		if err != nil {
			c.logger.Errorw("Синтез речи не удался", "error", err)
			c.endIfCurrent(sess)
			return
		}
		err = c.engine.Play(audio.Format, audio.Data, func() {
			c.endIfCurrent(sess)
		})
		if err != nil {
			c.logger.Errorw("Не удалось запустить воспроизведение", "error", err)
			c.endIfCurrent(sess)
			return
		}
		if c.isCurrent(sess) {
			c.safeSend(Event{Type: EventStarted, SessionID: sess.ID, At: time.Now()})
		}
	}()

	return sess, nil
}

// Pause пытается поставить активную сессию на паузу. Движку нужен прогрев
// (~1-1.5с после старта), поэтому попытки повторяются; false — если сессия
// закончилась раньше, чем движок стал управляем, либо попытки исчерпаны.
func (c *Controller) Pause() bool {
	return c.withRetry(c.engine.Pause)
}

// Resume симметричен Pause; после подтверждённой паузы движок гарантирует
// немедленное возобновление с точной позиции, так что первая попытка успешна.
func (c *Controller) Resume() bool {
	return c.withRetry(c.engine.Resume)
}

// Stop идемпотентен; всегда успешен. Естественное событие завершения для
// остановленной сессии не рассылается.
func (c *Controller) Stop() {
	c.mu.Lock()
	had := c.current != nil
	c.current = nil
	c.mu.Unlock()
	if had {
		c.engine.Stop()
	}
}

// IsSpeaking — активная сессия воспроизводится и не на паузе.
func (c *Controller) IsSpeaking() bool {
	return c.active() && c.engine.Speaking()
}

// IsPaused — активная сессия стоит на паузе.
func (c *Controller) IsPaused() bool {
	return c.active() && c.engine.Paused()
}

// State возвращает строковое состояние: idle|speaking|paused.
func (c *Controller) State() string {
	switch {
	case c.IsPaused():
		return "paused"
	case c.IsSpeaking():
		return "speaking"
	default:
		return "idle"
	}
}

func (c *Controller) withRetry(op func() bool) bool {
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if !c.active() {
			// Сессия уже закончилась — дальше ждать нечего
			return false
		}
		if op() {
			return true
		}
		time.Sleep(c.retryInterval)
	}
	return false
}

func (c *Controller) active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

func (c *Controller) isCurrent(sess *Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == sess
}

// endIfCurrent завершает сессию и шлёт EventEnded, если её не успели
// остановить или заменить (иначе событие устарело и глотается).
func (c *Controller) endIfCurrent(sess *Session) {
	c.mu.Lock()
	current := c.current == sess
	if current {
		c.current = nil
	}
	c.mu.Unlock()
	if current {
		c.safeSend(Event{Type: EventEnded, SessionID: sess.ID, At: time.Now()})
	}
}

func (c *Controller) safeSend(ev Event) {
	select {
	case c.events <- ev:
	default:
		// при переполнении — дроп, чтобы не блокировать движок
	}
}
