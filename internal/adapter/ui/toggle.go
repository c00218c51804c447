package ui

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lpalbou/AbstractAssistant/internal/service/session"
	"github.com/lpalbou/AbstractAssistant/internal/service/status"
)

// ToggleState — визуальное состояние тумблера голосового режима.
type ToggleState int

const (
	ToggleDisabled ToggleState = iota // голосовой режим выключен
	ToggleIdle                        // включен, ничего не озвучивается
	ToggleActive                      // идёт воспроизведение
	TogglePaused                      // воспроизведение на паузе
)

func (t ToggleState) String() string {
	switch t {
	case ToggleIdle:
		return "idle"
	case ToggleActive:
		return "active"
	case TogglePaused:
		return "paused"
	default:
		return "disabled"
	}
}

// Toggle — модель тумблера-наблюдателя: проецирует фазу сессии и голосовой
// режим в визуальное состояние. Состояние никогда не пишется обратно.
type Toggle struct {
	logger *zap.SugaredLogger

	mu    sync.Mutex
	state ToggleState

	// OnChange вызывается из горутины рассыльщика при смене визуального состояния.
	OnChange func(ToggleState)
}

func NewToggle(logger *zap.SugaredLogger) *Toggle {
	return &Toggle{logger: logger}
}

func (t *Toggle) Receive(u status.Update) {
	if u.Kind != status.KindStatus {
		return
	}
	next := project(u)
	t.mu.Lock()
	changed := t.state != next
	t.state = next
	cb := t.OnChange
	t.mu.Unlock()
	if changed {
		t.logger.Debugw("Toggle state", "state", next.String())
		if cb != nil {
			cb(next)
		}
	}
}

func (t *Toggle) State() ToggleState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func project(u status.Update) ToggleState {
	if !u.Voice {
		return ToggleDisabled
	}
	switch u.Phase {
	case session.PhaseSpeaking:
		return ToggleActive
	case session.PhasePaused:
		return TogglePaused
	default:
		return ToggleIdle
	}
}
