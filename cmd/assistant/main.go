package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lpalbou/AbstractAssistant/internal/adapter/chat/twitch"
	"github.com/lpalbou/AbstractAssistant/internal/adapter/remote"
	"github.com/lpalbou/AbstractAssistant/internal/adapter/ui"
	"github.com/lpalbou/AbstractAssistant/internal/ai"
	"github.com/lpalbou/AbstractAssistant/internal/app/capture"
	"github.com/lpalbou/AbstractAssistant/internal/app/coordinator"
	"github.com/lpalbou/AbstractAssistant/internal/app/lifecycle"
	"github.com/lpalbou/AbstractAssistant/internal/config"
	"github.com/lpalbou/AbstractAssistant/internal/service/clicks"
	"github.com/lpalbou/AbstractAssistant/internal/service/history"
	imgsvc "github.com/lpalbou/AbstractAssistant/internal/service/image"
	"github.com/lpalbou/AbstractAssistant/internal/service/notify"
	"github.com/lpalbou/AbstractAssistant/internal/service/playback"
	"github.com/lpalbou/AbstractAssistant/internal/service/status"
	ttsgoogle "github.com/lpalbou/AbstractAssistant/internal/service/tts/google"
	"github.com/lpalbou/AbstractAssistant/internal/service/tts/player"
)

func main() {
	cfg := config.NewConfig()

	// создаём предустановленный регистратор zap
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	// делаем регистратор SugaredLogger
	sugar := logger.Sugar()
	//сброс буфера логгера
	defer func() {
		_ = logger.Sync()
	}()

	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("Некорректная конфигурация", "error", err)
	}

	sugar.Infow(
		"Starting assistant",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"voice_mode", cfg.VoiceMode,
	)

	rootCtx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	// Клиент LLM по провайдеру: openai идёт на облако, lmstudio/ollama — на
	// локальный OpenAI-совместимый сервер, stub — для отладки без сети.
	var client ai.Client
	switch cfg.Provider {
	case "stub":
		client = ai.NewStubClient()
	default:
		client = ai.NewResponsesClient(cfg.Model, cfg.BaseURL, sugar)
	}

	// Речевой тракт: Google TTS + beep-движок. Если учётные данные недоступны,
	// голосовой режим стартует выключенным, текстовый путь работает как обычно.
	synth := ttsgoogle.New(cfg.GoogleTTS, sugar)
	if cfg.VoiceMode && !synth.Available(rootCtx) {
		sugar.Warnw("Google TTS недоступен, голосовой режим выключен на старте")
		cfg.VoiceMode = false
	}
	speech := player.New()
	pb := playback.New(synth, speech, playback.Config{
		RetryAttempts: cfg.PauseRetryAttempts,
		RetryInterval: cfg.PauseRetryInterval,
	}, sugar)

	cd := clicks.New(cfg.ClickWindow)
	lm := lifecycle.New(client, cfg.RequestTimeout, sugar)
	bcast := status.NewBroadcaster()
	defer bcast.Close()
	conv := history.New(cfg.HistoryMax)

	coord := coordinator.New(cfg, lm, pb, cd, bcast, conv, sugar)
	if cfg.CaptureEnabled {
		proc := imgsvc.NewProcessor(cfg.CaptureDir, cfg.CaptureMaxWidth)
		coord.WithCapture(capture.New(proc, sugar))
	}

	// Наблюдатели. Спикер beep у процесса один общий, звуки уведомлений просто
	// микшируются поверх речи; отдельный движок нужен, чтобы Stop речевой
	// сессии и уведомления не трогали потоки друг друга.
	sound := notify.NewSoundNotifier(sugar, player.New(), cfg.NotificationSoundAI, cfg.NotificationSoundError)
	surface := ui.NewSurface(sugar, sound)
	bcast.Register(surface)

	toggle := ui.NewToggle(sugar)
	toggle.OnChange = func(st ui.ToggleState) {
		sugar.Infow("Тумблер", "state", st.String())
	}
	bcast.Register(toggle)

	indicator := ui.NewIndicator(sugar)
	indicator.OnChange = func(st ui.IndicatorState) {
		sugar.Infow("Индикатор", "state", st.String())
	}
	bcast.Register(indicator)

	var remoteSrv *remote.Server
	if cfg.Remote.Enabled {
		remoteSrv = remote.NewServer(cfg.Remote.BindAddr, cfg.Remote.Path, submitAdapter{coord}, sugar)
		bcast.Register(remoteSrv)
		remoteSrv.Start()
	}

	if cfg.TwitchConfigured() {
		go func() {
			err := twitch.Run(rootCtx, sugar, twitch.Config{
				Username: cfg.TwitchUsername,
				OAuth:    cfg.TwitchOAuthToken,
				Channel:  cfg.TwitchChannel,
			}, submitAdapter{coord})
			if err != nil && !errors.Is(err, context.Canceled) {
				sugar.Errorw("Twitch-канал завершился", "error", err)
			}
		}()
	}

	done := make(chan error, 1)
	go func() { done <- coord.Run(rootCtx) }()

	// Консольный ввод вместо трея: строки уходят как сабмиты,
	// служебные команды управляют сессией.
	go readInput(rootCtx, coord, sugar)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		sugar.Infow("Получен сигнал, останавливаемся", "signal", sig.String())
		cancel(errors.New("останов по сигналу"))
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			sugar.Errorw("Координатор завершился с ошибкой", "error", err)
		}
	}

	if remoteSrv != nil {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		remoteSrv.Shutdown(shutCtx)
		shutCancel()
	}
	// Дать координатору закончить shutdown-переход
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	sugar.Infow("Ассистент остановлен")
}

// submitAdapter сужает координатор до интерфейса Submitter внешних каналов.
type submitAdapter struct {
	coord *coordinator.Coordinator
}

func (a submitAdapter) Submit(ctx context.Context, text string) error {
	a.coord.Submit(ctx, text)
	return nil
}

// readInput читает stdin построчно. Команды: /press — клик по тумблеру,
// /voice on|off, /clear, /state; остальное — сообщение ассистенту.
func readInput(ctx context.Context, coord *coordinator.Coordinator, sugar *zap.SugaredLogger) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case line == "/press":
			coord.Press()
		case line == "/voice on":
			coord.SetVoiceMode(true)
		case line == "/voice off":
			coord.SetVoiceMode(false)
		case line == "/clear":
			coord.ClearHistory()
		case line == "/state":
			st := coord.State()
			fmt.Printf("phase=%s voice=%v\n", st.Phase.String(), coord.VoiceMode())
		default:
			coord.Submit(ctx, line)
		}
	}
	if err := sc.Err(); err != nil {
		sugar.Warnw("Чтение stdin прервано", "error", err)
	}
}
