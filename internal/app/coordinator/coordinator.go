package coordinator

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lpalbou/AbstractAssistant/internal/app/lifecycle"
	"github.com/lpalbou/AbstractAssistant/internal/config"
	"github.com/lpalbou/AbstractAssistant/internal/service/clicks"
	"github.com/lpalbou/AbstractAssistant/internal/service/history"
	"github.com/lpalbou/AbstractAssistant/internal/service/playback"
	"github.com/lpalbou/AbstractAssistant/internal/service/session"
	"github.com/lpalbou/AbstractAssistant/internal/service/status"
)

// Capturer — опциональный поставщик вложения (скриншот экрана как data URL).
type Capturer interface {
	Capture(ctx context.Context) (string, error)
}

// command — входящее пользовательское событие (локальный UI, удалённый канал, чат).
type command struct {
	text    string
	images  []string
	clear   bool // очистка истории диалога
	voiceOn *bool
}

// Coordinator — центральный конечный автомат сессии. Единственный писатель
// session.State; события обрабатываются строго по одному в порядке прихода,
// после каждого перехода новая фаза публикуется в Broadcaster ровно один раз.
// Событие, не подходящее текущей фазе, отбрасывается как no-op.
type Coordinator struct {
	cfg    *config.Config
	logger *zap.SugaredLogger

	lifecycle *lifecycle.Manager
	playback  *playback.Controller
	clicks    *clicks.Disambiguator
	bcast     *status.Broadcaster
	conv      *history.Conversation
	capture   Capturer

	cmds chan command

	// pending: id запроса → текст сабмита; только из цикла Run
	pending map[string]string

	mu        sync.Mutex
	state     session.State
	voiceMode bool
}

func New(
	cfg *config.Config,
	lm *lifecycle.Manager,
	pc *playback.Controller,
	cd *clicks.Disambiguator,
	bc *status.Broadcaster,
	conv *history.Conversation,
	logger *zap.SugaredLogger,
) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		logger:    logger,
		lifecycle: lm,
		playback:  pc,
		clicks:    cd,
		bcast:     bc,
		conv:      conv,
		cmds:      make(chan command, 16),
		voiceMode: cfg.VoiceMode,
	}
}

// WithCapture подключает поставщика скриншотов-вложений.
func (c *Coordinator) WithCapture(cap Capturer) *Coordinator {
	c.capture = cap
	return c
}

// Submit принимает пользовательское сообщение. Неблокирующий для цикла
// координатора; захват экрана (если включён) выполняется в горутине вызывающего.
func (c *Coordinator) Submit(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	var images []string
	if c.capture != nil && c.cfg.CaptureEnabled {
		if url, err := c.capture.Capture(ctx); err != nil {
			c.logger.Warnw("Не удалось захватить экран для вложения", "error", err)
		} else if url != "" {
			images = append(images, url)
		}
	}
	c.enqueue(command{text: text, images: images})
}

// Press регистрирует сырое нажатие на тумблер; семантика (одиночный/двойной)
// решается детектором кликов.
func (c *Coordinator) Press() { c.clicks.Press() }

// ClearHistory очищает локальную историю диалога (пункт меню «Clear Session»).
func (c *Coordinator) ClearHistory() { c.enqueue(command{clear: true}) }

// SetVoiceMode включает/выключает голосовой режим извне (удалённый канал).
func (c *Coordinator) SetVoiceMode(on bool) { c.enqueue(command{voiceOn: &on}) }

// State возвращает снимок текущего состояния сессии.
func (c *Coordinator) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// VoiceMode сообщает, включен ли голосовой режим.
func (c *Coordinator) VoiceMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voiceMode
}

func (c *Coordinator) enqueue(cmd command) {
	select {
	case c.cmds <- cmd:
	default:
		c.logger.Warnw("Очередь событий координатора переполнена, событие отброшено")
	}
}

// Run — основной цикл. Блокирует до отмены контекста; при выходе отменяет
// активный запрос, останавливает воспроизведение и публикует финальную фазу Idle.
func (c *Coordinator) Run(ctx context.Context) error {
	c.publishStatus()
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return context.Cause(ctx)
		case cmd := <-c.cmds:
			switch {
			case cmd.clear:
				c.conv.Clear()
				c.logger.Infow("История диалога очищена")
			case cmd.voiceOn != nil:
				c.setVoiceMode(*cmd.voiceOn)
			default:
				c.handleSubmit(ctx, cmd)
			}
		case intent := <-c.clicks.Intents():
			c.handleIntent(intent)
		case out := <-c.lifecycle.Outcomes():
			c.handleOutcome(ctx, out)
		case ev := <-c.playback.Events():
			c.handlePlayback(ev)
		}
	}
}

// handleSubmit: Idle/Error/Generating --UserSubmit--> Generating.
// В Generating новый сабмит вытесняет старый запрос (last-submit-wins);
// в Speaking/Paused сабмит отбрасывается.
func (c *Coordinator) handleSubmit(ctx context.Context, cmd command) {
	st := c.snapshot()
	switch st.Phase {
	case session.PhaseIdle, session.PhaseError, session.PhaseGenerating:
	default:
		c.logger.Infow("Сабмит отброшен: недопустимая фаза", "phase", st.Phase.String())
		return
	}

	system := c.cfg.SystemPrompt
	if c.voiceModeOn() {
		system = c.cfg.VoicePrompt
	}

	id := c.lifecycle.Start(ctx, lifecycle.Request{
		Text:      cmd.text,
		ImageURLs: cmd.images,
		System:    system,
		History:   c.conv.Recent(),
	})

	c.mutate(func(s *session.State) {
		s.Phase = session.PhaseGenerating
		s.ActiveRequestID = id
		s.ActivePlaybackID = ""
		s.LastError = "" // успешный выход из Error чистит ошибку
	})
	c.rememberSubmit(id, cmd.text)
	c.publishStatus()
}

// handleOutcome применяет единственный терминальный исход запроса.
// Cancelled — всегда no-op; исход чужого (вытесненного) запроса отбрасывается.
func (c *Coordinator) handleOutcome(ctx context.Context, out lifecycle.Outcome) {
	if out.Kind == lifecycle.Cancelled {
		c.forgetSubmit(out.RequestID)
		return
	}
	st := c.snapshot()
	if st.Phase != session.PhaseGenerating || st.ActiveRequestID != out.RequestID {
		c.logger.Infow("Устаревший исход генерации отброшен", "request", out.RequestID)
		c.forgetSubmit(out.RequestID)
		return
	}

	if out.Kind == lifecycle.Failed {
		msg := session.ErrGenerationFailed.Error()
		if out.Err != nil {
			msg = out.Err.Error()
		}
		c.mutate(func(s *session.State) {
			s.Phase = session.PhaseError
			s.ActiveRequestID = ""
			s.LastError = msg
		})
		c.bcast.Publish(status.Update{Kind: status.KindError, Phase: session.PhaseError, Voice: c.voiceModeOn(), Text: msg})
		c.publishStatus()
		return
	}

	// Succeeded
	userText := c.takeSubmit(out.RequestID)
	c.conv.Append(userText, out.Reply.Text)

	// Ответ и учёт токенов публикуются уже с новой фазой
	publishReply := func(phase session.Phase) {
		c.bcast.Publish(status.Update{Kind: status.KindResponse, Phase: phase, Voice: c.voiceModeOn(), Text: out.Reply.Text})
		if out.Reply.Tokens.Total > 0 {
			c.bcast.Publish(status.Update{Kind: status.KindTokens, Phase: phase, Voice: c.voiceModeOn(), Tokens: out.Reply.Tokens})
		}
	}

	if c.voiceModeOn() {
		sess, err := c.playback.Start(ctx, out.Reply.Text)
		if err != nil {
			c.logger.Errorw("Озвучка ответа недоступна", "error", err)
			c.mutate(func(s *session.State) {
				s.Phase = session.PhaseError
				s.ActiveRequestID = ""
				s.LastError = err.Error()
			})
			// Текст ответа всё равно доставляется, даже если озвучить не вышло
			publishReply(session.PhaseError)
			c.bcast.Publish(status.Update{Kind: status.KindError, Phase: session.PhaseError, Voice: c.voiceModeOn(), Text: err.Error()})
			c.publishStatus()
			return
		}
		c.mutate(func(s *session.State) {
			s.Phase = session.PhaseSpeaking
			s.ActiveRequestID = ""
			s.ActivePlaybackID = sess.ID
		})
		publishReply(session.PhaseSpeaking)
		c.publishStatus()
		return
	}

	c.mutate(func(s *session.State) {
		s.Phase = session.PhaseIdle
		s.ActiveRequestID = ""
	})
	publishReply(session.PhaseIdle)
	c.publishStatus()
}

// handleIntent применяет семантические клики по таблице переходов.
func (c *Coordinator) handleIntent(intent clicks.Intent) {
	st := c.snapshot()
	switch intent {
	case clicks.SingleActivate:
		switch st.Phase {
		case session.PhaseIdle:
			// Вырожденный переход Idle→Idle: одиночный клик в покое
			// переключает голосовой режим
			c.setVoiceMode(!c.voiceModeOn())
		case session.PhaseSpeaking:
			if c.playback.Pause() {
				c.mutate(func(s *session.State) { s.Phase = session.PhasePaused })
				c.publishStatus()
			} else {
				// Фаза не меняется, пользователь может повторить клик
				c.logger.Warnw("Пауза не подтверждена движком", "error", session.ErrPlaybackControl)
			}
		case session.PhasePaused:
			if c.playback.Resume() {
				c.mutate(func(s *session.State) { s.Phase = session.PhaseSpeaking })
				c.publishStatus()
			} else {
				c.logger.Warnw("Возобновление не подтверждено движком", "error", session.ErrPlaybackControl)
			}
		default:
			c.logger.Debugw("Одиночный клик отброшен", "phase", st.Phase.String())
		}
	case clicks.DoubleActivate:
		switch st.Phase {
		case session.PhaseSpeaking, session.PhasePaused:
			c.playback.Stop()
			c.mutate(func(s *session.State) {
				s.Phase = session.PhaseIdle
				s.ActivePlaybackID = ""
			})
			c.publishStatus()
		default:
			c.logger.Debugw("Двойной клик отброшен", "phase", st.Phase.String())
		}
	}
}

// handlePlayback применяет асинхронные события воспроизведения.
// События чужих (остановленных/заменённых) сессий — устаревшие, отбрасываются.
func (c *Coordinator) handlePlayback(ev playback.Event) {
	st := c.snapshot()
	if st.ActivePlaybackID != ev.SessionID {
		c.logger.Debugw("Устаревшее событие воспроизведения отброшено", "session", ev.SessionID)
		return
	}
	switch ev.Type {
	case playback.EventStarted:
		if st.Phase == session.PhaseSpeaking {
			// Speaking→Speaking: подтверждение старта аудиопотока
			c.publishStatus()
		}
	case playback.EventEnded:
		if st.Phase == session.PhaseSpeaking || st.Phase == session.PhasePaused {
			c.mutate(func(s *session.State) {
				s.Phase = session.PhaseIdle
				s.ActivePlaybackID = ""
			})
			c.publishStatus()
		}
	}
}

// shutdown: any --Shutdown--> Idle; отменить запрос, остановить воспроизведение.
func (c *Coordinator) shutdown() {
	c.lifecycle.CancelActive()
	c.playback.Stop()
	c.clicks.Close()
	c.mutate(func(s *session.State) {
		s.Phase = session.PhaseIdle
		s.ActiveRequestID = ""
		s.ActivePlaybackID = ""
	})
	c.publishStatus()
	c.logger.Infow("Координатор остановлен")
}

func (c *Coordinator) setVoiceMode(on bool) {
	c.mu.Lock()
	changed := c.voiceMode != on
	c.voiceMode = on
	c.mu.Unlock()
	if changed {
		c.logger.Infow("Голосовой режим переключён", "enabled", on)
		c.publishStatus()
	}
}

func (c *Coordinator) voiceModeOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voiceMode
}

func (c *Coordinator) snapshot() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) mutate(fn func(*session.State)) {
	c.mu.Lock()
	fn(&c.state)
	c.mu.Unlock()
}

func (c *Coordinator) publishStatus() {
	st := c.snapshot()
	c.bcast.Publish(status.Update{Kind: status.KindStatus, Phase: st.Phase, Voice: c.voiceModeOn(), Text: st.LastError})
}

// rememberSubmit/takeSubmit/forgetSubmit хранят текст сабмита до терминального
// исхода, чтобы успешную пару реплик положить в историю. Карта трогается только
// из цикла координатора.
func (c *Coordinator) rememberSubmit(id string, text string) {
	if c.pending == nil {
		c.pending = make(map[string]string)
	}
	c.pending[id] = text
}

func (c *Coordinator) takeSubmit(id string) string {
	text := c.pending[id]
	delete(c.pending, id)
	return text
}

func (c *Coordinator) forgetSubmit(id string) {
	delete(c.pending, id)
}
