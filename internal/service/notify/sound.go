package notify

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/lpalbou/AbstractAssistant/internal/service/tts/player"
)

// SoundNotifier инкапсулирует логику проигрывания короткого звука-уведомления.
type SoundNotifier struct {
	logger    *zap.SugaredLogger
	pathAI    string
	pathError string
	engine    player.Engine
}

// NewSoundNotifier создаёт нотификатор. Если путь(и) пустые, будут использованы
// дефолты (сначала пытаемся рядом с бинарём).
func NewSoundNotifier(logger *zap.SugaredLogger, engine player.Engine, pathAI, pathError string) *SoundNotifier {
	resolve := func(def string) string {
		// Путь по умолчанию: рядом с бинарём
		if exe, err := os.Executable(); err == nil {
			dir := filepath.Dir(exe)
			cand := filepath.Join(dir, def)
			if _, statErr := os.Stat(cand); statErr == nil {
				return cand
			}
		}
		// fallback: от текущей рабочей директории
		return filepath.FromSlash(def)
	}

	if strings.TrimSpace(pathAI) == "" {
		pathAI = resolve(filepath.Join("sound", "notification1.mp3"))
	}
	if strings.TrimSpace(pathError) == "" {
		pathError = resolve(filepath.Join("sound", "notification3.mp3"))
	}

	return &SoundNotifier{
		logger:    logger,
		pathAI:    pathAI,
		pathError: pathError,
		engine:    engine,
	}
}

// play проигрывает звук уведомления. Ошибки логируются и не фатальны.
func (n *SoundNotifier) play(path string) {
	f, err := os.Open(path)
	if err != nil {
		if n.logger != nil {
			n.logger.Warnw("Не удалось открыть звуковой файл уведомления", "path", path, "error", err)
		}
		return
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		ext = "mp3" // по умолчанию
	}

	if err := n.engine.Play(ext, f, nil); err != nil {
		if n.logger != nil {
			n.logger.Warnw("Не удалось воспроизвести звуковое уведомление", "path", path, "error", err)
		}
	}
}

// PlayAI проигрывает звук уведомления получения ответа ИИ.
func (n *SoundNotifier) PlayAI() { n.play(n.pathAI) }

// PlayError проигрывает звук уведомления об ошибке.
func (n *SoundNotifier) PlayError() { n.play(n.pathError) }
