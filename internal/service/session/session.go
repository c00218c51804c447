package session

import "errors"

// Phase — внешне видимый статус единственной активной сессии чата.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseGenerating
	PhaseSpeaking
	PhasePaused
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseGenerating:
		return "generating"
	case PhaseSpeaking:
		return "speaking"
	case PhasePaused:
		return "paused"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Ошибки ядра. BackendUnavailable/GenerationFailed переводят сессию в PhaseError,
// ошибка управления воспроизведением фазу не меняет.
var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrGenerationFailed   = errors.New("generation failed")
	ErrPlaybackControl    = errors.New("playback control failed")
)

// State — канонический снимок состояния сессии. Единственный писатель — координатор;
// все остальные получают копии через рассылку статусов.
type State struct {
	Phase Phase

	// Идентификатор активного запроса генерации; непустой только в PhaseGenerating.
	ActiveRequestID string

	// Идентификатор активной сессии воспроизведения; непустой только в
	// PhaseSpeaking и PhasePaused.
	ActivePlaybackID string

	// Последняя ошибка; сбрасывается при успешном выходе из PhaseError.
	LastError string
}
