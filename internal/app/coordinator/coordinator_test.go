package coordinator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lpalbou/AbstractAssistant/internal/ai"
	"github.com/lpalbou/AbstractAssistant/internal/app/lifecycle"
	"github.com/lpalbou/AbstractAssistant/internal/config"
	"github.com/lpalbou/AbstractAssistant/internal/service/clicks"
	"github.com/lpalbou/AbstractAssistant/internal/service/history"
	"github.com/lpalbou/AbstractAssistant/internal/service/playback"
	"github.com/lpalbou/AbstractAssistant/internal/service/session"
	"github.com/lpalbou/AbstractAssistant/internal/service/status"
	"github.com/lpalbou/AbstractAssistant/internal/service/tts"
)

const clickWindow = 25 * time.Millisecond

// echoClient отвечает сразу; текст "fail" — ошибкой, "slow" висит до отмены.
type echoClient struct{}

func (echoClient) SendMessage(ctx context.Context, req ai.Request) (ai.Reply, error) {
	switch req.Text {
	case "fail":
		return ai.Reply{}, errors.New("backend exploded")
	case "slow":
		<-ctx.Done()
		return ai.Reply{}, ctx.Err()
	}
	return ai.Reply{Text: "echo:" + req.Text, Tokens: ai.TokenUsage{Input: 2, Output: 3, Total: 5}}, nil
}

type fakeSynth struct{}

func (fakeSynth) Synthesize(_ context.Context, text string) (tts.Audio, error) {
	return tts.Audio{Format: "mp3", Data: io.NopCloser(strings.NewReader(text))}, nil
}

// fakeEngine всегда прогрет: пауза и возобновление подтверждаются сразу.
type fakeEngine struct {
	mu      sync.Mutex
	playing bool
	paused  bool
	done    func()
}

func (e *fakeEngine) Play(_ string, data io.ReadCloser, done func()) error {
	_ = data.Close()
	e.mu.Lock()
	e.playing, e.paused, e.done = true, false, done
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) Pause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing {
		return false
	}
	e.paused = true
	return true
}

func (e *fakeEngine) Resume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing || !e.paused {
		return false
	}
	e.paused = false
	return true
}

func (e *fakeEngine) Stop() {
	e.mu.Lock()
	e.playing, e.paused = false, false
	e.mu.Unlock()
}

func (e *fakeEngine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing && !e.paused
}

func (e *fakeEngine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing && e.paused
}

func (e *fakeEngine) finish() {
	e.mu.Lock()
	done := e.done
	e.playing = false
	e.mu.Unlock()
	if done != nil {
		done()
	}
}

// recorder копит уведомления для проверки переходов.
type recorder struct {
	mu      sync.Mutex
	updates []status.Update
}

func (r *recorder) Receive(u status.Update) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *recorder) all() []status.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]status.Update(nil), r.updates...)
}

func (r *recorder) waitFor(t *testing.T, desc string, pred func([]status.Update) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pred(r.all()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("не дождались: %s; уведомления: %+v", desc, r.all())
}

func hasPhase(p session.Phase) func([]status.Update) bool {
	return func(us []status.Update) bool {
		for _, u := range us {
			if u.Kind == status.KindStatus && u.Phase == p {
				return true
			}
		}
		return false
	}
}

func responses(us []status.Update) []string {
	var out []string
	for _, u := range us {
		if u.Kind == status.KindResponse {
			out = append(out, u.Text)
		}
	}
	return out
}

type harness struct {
	coord    *Coordinator
	rec      *recorder
	engine   *fakeEngine
	conv     *history.Conversation
	cancel   context.CancelFunc
	done     chan error
	stopOnce sync.Once
}

// stop останавливает координатор и дожидается выхода из Run; повторный вызов — no-op.
func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.stopOnce.Do(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(time.Second):
			t.Error("координатор не остановился")
		}
	})
}

func newHarness(t *testing.T, client ai.Client, voice bool) *harness {
	t.Helper()
	sugar := zap.NewNop().Sugar()

	cfg := config.Defaults()
	cfg.VoiceMode = voice
	cfg.ClickWindow = clickWindow

	engine := &fakeEngine{}
	pb := playback.New(fakeSynth{}, engine, playback.Config{
		RetryAttempts: 5,
		RetryInterval: 5 * time.Millisecond,
	}, sugar)

	lm := lifecycle.New(client, 0, sugar)
	cd := clicks.New(cfg.ClickWindow)
	bcast := status.NewBroadcaster()
	conv := history.New(cfg.HistoryMax)

	rec := &recorder{}
	bcast.Register(rec)

	coord := New(cfg, lm, pb, cd, bcast, conv, sugar)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	h := &harness{coord: coord, rec: rec, engine: engine, conv: conv, cancel: cancel, done: done}
	t.Cleanup(func() {
		h.stop(t)
		bcast.Close()
	})
	return h
}

// waitPhase ждёт установившейся фазы (через снимок состояния, не только уведомления).
func (h *harness) waitPhase(t *testing.T, p session.Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.coord.State().Phase == p {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("фаза %s не наступила, текущая %s", p, h.coord.State().Phase)
}

func TestTextSubmitRoundTrip(t *testing.T) {
	t.Parallel()
	h := newHarness(t, echoClient{}, false)

	h.coord.Submit(context.Background(), "привет")

	h.rec.waitFor(t, "фаза generating", hasPhase(session.PhaseGenerating))
	h.rec.waitFor(t, "текст ответа", func(us []status.Update) bool {
		got := responses(us)
		return len(got) == 1 && got[0] == "echo:привет"
	})
	h.waitPhase(t, session.PhaseIdle)

	// Учёт токенов пришёл вместе с ответом
	h.rec.waitFor(t, "учёт токенов", func(us []status.Update) bool {
		for _, u := range us {
			if u.Kind == status.KindTokens && u.Tokens.Total == 5 {
				return true
			}
		}
		return false
	})

	if h.conv.Len() != 1 {
		t.Fatalf("пара должна попасть в историю, размер %d", h.conv.Len())
	}
	pair := h.conv.Recent()[0]
	if pair.User != "привет" || pair.Assistant != "echo:привет" {
		t.Fatalf("история искажена: %+v", pair)
	}
}

func TestVoiceFlowPauseResumeStop(t *testing.T) {
	t.Parallel()
	h := newHarness(t, echoClient{}, true)

	h.coord.Submit(context.Background(), "расскажи")
	h.waitPhase(t, session.PhaseSpeaking)

	// Одиночный клик во время речи — пауза
	h.coord.Press()
	h.waitPhase(t, session.PhasePaused)
	if !h.engine.Paused() {
		t.Fatal("движок должен стоять на паузе")
	}

	// Ещё один одиночный клик — возобновление
	h.coord.Press()
	h.waitPhase(t, session.PhaseSpeaking)

	// Двойной клик — полная остановка
	h.coord.Press()
	h.coord.Press()
	h.waitPhase(t, session.PhaseIdle)
	if h.engine.Speaking() {
		t.Fatal("движок должен быть остановлен")
	}
	if h.coord.State().ActivePlaybackID != "" {
		t.Fatal("идентификатор сессии озвучки должен быть сброшен")
	}
}

func TestNaturalPlaybackEndReturnsToIdle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, echoClient{}, true)

	h.coord.Submit(context.Background(), "кратко")
	h.waitPhase(t, session.PhaseSpeaking)

	h.engine.finish()
	h.waitPhase(t, session.PhaseIdle)
}

func TestResponseCarriesPostTransitionPhase(t *testing.T) {
	t.Parallel()

	// Текстовый режим: ответ публикуется уже в фазе idle
	h := newHarness(t, echoClient{}, false)
	h.coord.Submit(context.Background(), "текст")
	h.rec.waitFor(t, "ответ с фазой idle", func(us []status.Update) bool {
		for _, u := range us {
			if u.Kind == status.KindResponse {
				return u.Phase == session.PhaseIdle
			}
		}
		return false
	})

	// Голосовой режим: ответ и токены публикуются уже в фазе speaking
	hv := newHarness(t, echoClient{}, true)
	hv.coord.Submit(context.Background(), "голос")
	hv.rec.waitFor(t, "ответ и токены с фазой speaking", func(us []status.Update) bool {
		var reply, tokens bool
		for _, u := range us {
			switch u.Kind {
			case status.KindResponse:
				if u.Phase != session.PhaseSpeaking {
					return false
				}
				reply = true
			case status.KindTokens:
				if u.Phase != session.PhaseSpeaking {
					return false
				}
				tokens = true
			}
		}
		return reply && tokens
	})
}

func TestGenerationFailureAndRecovery(t *testing.T) {
	t.Parallel()
	h := newHarness(t, echoClient{}, false)

	h.coord.Submit(context.Background(), "fail")
	h.waitPhase(t, session.PhaseError)
	if h.coord.State().LastError == "" {
		t.Fatal("текст ошибки должен сохраниться в состоянии")
	}
	h.rec.waitFor(t, "уведомление об ошибке", func(us []status.Update) bool {
		for _, u := range us {
			if u.Kind == status.KindError && strings.Contains(u.Text, "exploded") {
				return true
			}
		}
		return false
	})

	// Из Error повторный сабмит допустим и чистит ошибку
	h.coord.Submit(context.Background(), "снова")
	h.rec.waitFor(t, "ответ после восстановления", func(us []status.Update) bool {
		got := responses(us)
		return len(got) == 1 && got[0] == "echo:снова"
	})
	h.waitPhase(t, session.PhaseIdle)
	if h.coord.State().LastError != "" {
		t.Fatalf("ошибка должна быть очищена, осталась %q", h.coord.State().LastError)
	}
}

func TestLastSubmitWinsAppliesOnlyNewest(t *testing.T) {
	t.Parallel()
	h := newHarness(t, echoClient{}, false)

	h.coord.Submit(context.Background(), "slow")
	h.rec.waitFor(t, "фаза generating", hasPhase(session.PhaseGenerating))
	h.coord.Submit(context.Background(), "fast")

	h.rec.waitFor(t, "ответ нового запроса", func(us []status.Update) bool {
		got := responses(us)
		return len(got) == 1 && got[0] == "echo:fast"
	})
	h.waitPhase(t, session.PhaseIdle)

	// Вытесненный запрос не оставляет следов ни в истории, ни в уведомлениях
	time.Sleep(50 * time.Millisecond)
	if got := responses(h.rec.all()); len(got) != 1 {
		t.Fatalf("должен быть ровно один ответ, получено %v", got)
	}
	if h.conv.Len() != 1 {
		t.Fatalf("в истории должна быть одна пара, размер %d", h.conv.Len())
	}
}

func TestSubmitIgnoredWhileSpeaking(t *testing.T) {
	t.Parallel()
	h := newHarness(t, echoClient{}, true)

	h.coord.Submit(context.Background(), "первый")
	h.waitPhase(t, session.PhaseSpeaking)

	h.coord.Submit(context.Background(), "второй")
	time.Sleep(100 * time.Millisecond)

	if got := h.coord.State().Phase; got != session.PhaseSpeaking {
		t.Fatalf("сабмит во время речи должен игнорироваться, фаза %s", got)
	}
	if got := responses(h.rec.all()); len(got) != 1 {
		t.Fatalf("второго ответа быть не должно: %v", got)
	}
}

func TestIdleSingleClickTogglesVoiceMode(t *testing.T) {
	t.Parallel()
	h := newHarness(t, echoClient{}, false)

	if h.coord.VoiceMode() {
		t.Fatal("голосовой режим должен стартовать выключенным")
	}
	h.coord.Press()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !h.coord.VoiceMode() {
		time.Sleep(5 * time.Millisecond)
	}
	if !h.coord.VoiceMode() {
		t.Fatal("одиночный клик в покое должен включить голосовой режим")
	}
}

func TestClearHistory(t *testing.T) {
	t.Parallel()
	h := newHarness(t, echoClient{}, false)

	h.coord.Submit(context.Background(), "привет")
	h.rec.waitFor(t, "ответ", func(us []status.Update) bool { return len(responses(us)) == 1 })

	h.coord.ClearHistory()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && h.conv.Len() != 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if h.conv.Len() != 0 {
		t.Fatal("история должна быть очищена")
	}
}

func TestShutdownStopsEverything(t *testing.T) {
	t.Parallel()
	h := newHarness(t, echoClient{}, true)

	h.coord.Submit(context.Background(), "долгий рассказ")
	h.waitPhase(t, session.PhaseSpeaking)

	h.stop(t)
	if h.engine.Speaking() {
		t.Fatal("воспроизведение должно быть остановлено при выключении")
	}
	if h.coord.State().Phase != session.PhaseIdle {
		t.Fatalf("финальная фаза должна быть idle, получена %s", h.coord.State().Phase)
	}
}
