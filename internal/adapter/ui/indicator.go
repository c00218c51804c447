package ui

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lpalbou/AbstractAssistant/internal/service/session"
	"github.com/lpalbou/AbstractAssistant/internal/service/status"
)

// IndicatorState — состояние индикатора в трее.
type IndicatorState int

const (
	IndicatorReady IndicatorState = iota // ровное свечение: готов
	IndicatorBusy                        // пульсация: генерация или озвучка
	IndicatorError                       // ровное свечение ошибки
)

func (s IndicatorState) String() string {
	switch s {
	case IndicatorBusy:
		return "busy"
	case IndicatorError:
		return "error"
	default:
		return "ready"
	}
}

// Indicator — модель индикатора-наблюдателя для трея.
type Indicator struct {
	logger *zap.SugaredLogger

	mu    sync.Mutex
	state IndicatorState

	OnChange func(IndicatorState)
}

func NewIndicator(logger *zap.SugaredLogger) *Indicator {
	return &Indicator{logger: logger}
}

func (i *Indicator) Receive(u status.Update) {
	if u.Kind != status.KindStatus {
		return
	}
	var next IndicatorState
	switch u.Phase {
	case session.PhaseGenerating, session.PhaseSpeaking:
		next = IndicatorBusy
	case session.PhaseError:
		next = IndicatorError
	default:
		next = IndicatorReady
	}

	i.mu.Lock()
	changed := i.state != next
	i.state = next
	cb := i.OnChange
	i.mu.Unlock()
	if changed {
		i.logger.Debugw("Tray indicator", "state", next.String())
		if cb != nil {
			cb(next)
		}
	}
}

func (i *Indicator) State() IndicatorState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}
