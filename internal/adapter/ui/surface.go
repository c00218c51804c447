package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lpalbou/AbstractAssistant/internal/service/notify"
	"github.com/lpalbou/AbstractAssistant/internal/service/status"
)

// Surface — поверхность ответа: показывает пользователю текст ответа или
// ошибки. Выводит системное уведомление (на macOS через osascript) и играет
// короткий звук; хранит последний ответ для окна чата.
type Surface struct {
	logger *zap.SugaredLogger
	sound  *notify.SoundNotifier

	mu       sync.Mutex
	lastText string
	lastErr  string
}

func NewSurface(logger *zap.SugaredLogger, sound *notify.SoundNotifier) *Surface {
	return &Surface{logger: logger, sound: sound}
}

func (s *Surface) Receive(u status.Update) {
	switch u.Kind {
	case status.KindResponse:
		s.mu.Lock()
		s.lastText = u.Text
		s.lastErr = ""
		s.mu.Unlock()
		s.logger.Infow("Ответ ассистента", "text", u.Text)
		if s.sound != nil {
			s.sound.PlayAI()
		}
		s.osNotify("AI Response", u.Text)
	case status.KindError:
		s.mu.Lock()
		s.lastErr = u.Text
		s.mu.Unlock()
		s.logger.Warnw("Ошибка для пользователя", "error", u.Text)
		if s.sound != nil {
			s.sound.PlayError()
		}
		s.osNotify("Error", u.Text)
	}
}

// LastResponse возвращает последний показанный ответ.
func (s *Surface) LastResponse() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastText
}

// LastError возвращает последнюю показанную ошибку.
func (s *Surface) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// osNotify показывает системное уведомление. Поддержан только macOS;
// на остальных платформах — no-op, текст и так уходит в лог.
func (s *Surface) osNotify(subtitle string, message string) {
	if runtime.GOOS != "darwin" {
		return
	}
	if len(message) > 200 {
		message = message[:200] + "..."
	}
	message = strings.ReplaceAll(message, `"`, `\"`)
	script := fmt.Sprintf(`display notification "%s" with title "AbstractAssistant" subtitle "%s"`, message, subtitle)
	if err := exec.Command("osascript", "-e", script).Run(); err != nil {
		s.logger.Debugw("Не удалось показать системное уведомление", "error", err)
	}
}
