package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lpalbou/AbstractAssistant/internal/config"
	"github.com/lpalbou/AbstractAssistant/internal/service/playback"
	ttsgoogle "github.com/lpalbou/AbstractAssistant/internal/service/tts/google"
	"github.com/lpalbou/AbstractAssistant/internal/service/tts/player"
)

// Небольшая утилита для проверки речевого тракта без LLM: синтезирует фразу,
// ставит на паузу во время прогрева движка, возобновляет и дожидается конца.
func main() {
	cfg := config.NewConfig()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	sugar := logger.Sugar()
	defer func() { _ = logger.Sync() }()

	text := strings.Join(os.Args[1:], " ")
	if strings.TrimSpace(text) == "" {
		text = "Привет! Это проверка синтеза и управления воспроизведением."
	}

	ctx, cancel := context.WithTimeoutCause(context.Background(), 60*time.Second, errors.New("speak timeout"))
	defer cancel()

	synth := ttsgoogle.New(cfg.GoogleTTS, sugar)
	if !synth.Available(ctx) {
		fmt.Println("Google TTS недоступен: нет учётных данных (GOOGLE_APPLICATION_CREDENTIALS)")
		os.Exit(1)
	}

	ctl := playback.New(synth, player.New(), playback.Config{
		RetryAttempts: cfg.PauseRetryAttempts,
		RetryInterval: cfg.PauseRetryInterval,
	}, sugar)

	sess, err := ctl.Start(ctx, text)
	if err != nil {
		sugar.Fatalw("Не удалось запустить воспроизведение", "error", err)
	}
	sugar.Infow("Сессия запущена", "session", sess.ID)

	// Пауза сразу после старта: движок ещё прогревается, сработает повтор.
	if ctl.Pause() {
		sugar.Infow("Пауза подтверждена")
	} else {
		sugar.Warnw("Пауза не подтверждена")
	}
	time.Sleep(2 * time.Second)
	if ctl.Resume() {
		sugar.Infow("Воспроизведение возобновлено")
	}

	for {
		select {
		case ev := <-ctl.Events():
			sugar.Infow("Событие воспроизведения", "type", ev.Type, "session", ev.SessionID)
			if ev.Type == playback.EventEnded {
				return
			}
		case <-ctx.Done():
			sugar.Warnw("Таймаут ожидания", "cause", context.Cause(ctx))
			ctl.Stop()
			return
		}
	}
}
