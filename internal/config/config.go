package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	DebugMode bool `env:"DEBUG_MODE"` // Режим дебага

	// LLM
	Provider     string `env:"LLM_PROVIDER"`      // openai|lmstudio|ollama|stub
	Model        string `env:"LLM_MODEL"`         // Имя модели у провайдера
	BaseURL      string `env:"LLM_BASE_URL"`      // Базовый URL для OpenAI-совместимых локальных провайдеров
	SystemPrompt string `env:"SYSTEM_PROMPT"`     // Системные инструкции текстового режима
	VoicePrompt  string `env:"VOICE_PROMPT"`      // Системные инструкции голосового режима (короткие ответы)
	HistoryMax   int    `env:"MAX_HISTORY_PAIRS"` // Максимум хранимых пар вопрос/ответ в локальной истории

	// Таймаут одного запроса генерации; 0 — без таймаута, отмена только новым
	// сабмитом или завершением приложения.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`

	// Голосовой режим при старте
	VoiceMode bool `env:"VOICE_MODE"`

	// Клик-детектор: окно различения одиночного и двойного клика
	ClickWindow time.Duration `env:"CLICK_WINDOW"`

	// Повторные попытки pause/resume, пока аудиопоток движка «прогревается»
	PauseRetryAttempts int           `env:"PAUSE_RETRY_ATTEMPTS"`
	PauseRetryInterval time.Duration `env:"PAUSE_RETRY_INTERVAL"`

	// TTS (Google Cloud Text-to-Speech)
	GoogleTTS GoogleTTSConfig

	// Звуки уведомлений
	NotificationSoundAI    string `env:"NOTIFICATION_SOUND_AI"`    // Звук при получении ответа ИИ
	NotificationSoundError string `env:"NOTIFICATION_SOUND_ERROR"` // Звук при ошибке

	// Захват экрана как вложение к запросу
	CaptureEnabled  bool   `env:"CAPTURE_ENABLED"`   // Прикладывать скриншот экрана к сабмиту
	CaptureDir      string `env:"CAPTURE_DIR"`       // Папка для обработанных кадров
	CaptureMaxWidth int    `env:"CAPTURE_MAX_WIDTH"` // Максимальная ширина кадра после даунскейла

	// RemoteServer — websocket-канал для внешних подписчиков
	Remote RemoteConfig

	// Chat / Twitch — опциональный внешний источник сообщений
	TwitchUsername   string `env:"TWITCH_USERNAME"`    // Имя пользователя Twitch (логин)
	TwitchOAuthToken string `env:"TWITCH_OAUTH_TOKEN"` // OAuth токен Twitch (может быть без префикса oauth:)
	TwitchChannel    string `env:"TWITCH_CHANNEL"`     // Канал Twitch (один), без #
}

// GoogleTTSConfig конфигурация для синтеза речи через Google Cloud Text-to-Speech.
type GoogleTTSConfig struct {
	// Путь к файлу ключа сервисного аккаунта. Фактически читается из ENV GOOGLE_APPLICATION_CREDENTIALS.
	CredentialsPath string  `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	Language        string  `env:"GOOGLE_TTS_LANGUAGE"`
	Voice           string  `env:"GOOGLE_TTS_VOICE"`
	SpeakingRate    float64 `env:"GOOGLE_TTS_SPEAKING_RATE"`
	Pitch           float64 `env:"GOOGLE_TTS_PITCH"`
	VolumeGainDb    float64 `env:"GOOGLE_TTS_VOLUME_DB"`
	// Тип входа: text|ssml. Пусто — auto (по наличию тега <speak> в тексте).
	InputType string `env:"GOOGLE_TTS_INPUT_TYPE"`
}

// RemoteConfig конфигурация websocket-сервера удалённых подписчиков.
type RemoteConfig struct {
	Enabled  bool   `env:"REMOTE_ENABLED"`   // Главный флаг включения/выключения
	BindAddr string `env:"REMOTE_BIND_ADDR"` // Адрес слушателя, напр. 127.0.0.1:8765
	Path     string `env:"REMOTE_PATH"`      // HTTP-путь, напр. "/ws"
}

// Defaults возвращает конфигурацию с предустановленными значениями по умолчанию.
// Эти значения перекрываются .env, переменными окружения и флагами CLI.
func Defaults() *Config {
	return &Config{
		DebugMode: false,
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		SystemPrompt: "You are AbstractAssistant, a helpful AI assistant living in the system tray. " +
			"Answer concisely and directly.",
		VoicePrompt: "You are AbstractAssistant in voice mode. This is a spoken conversation. " +
			"Maximum 2-3 sentences per response, no markdown, no lists, speak conversationally.",
		HistoryMax:     10,
		RequestTimeout: 0,
		VoiceMode:      false,
		// Эмпирика исходного приложения: двойной клик в пределах 300мс
		ClickWindow: 300 * time.Millisecond,
		// Прогрев аудиопотока движка занимает ~1-1.5с; 5 попыток по 100мс
		// покрывают обычный случай, не растягивая задержку UI
		PauseRetryAttempts: 5,
		PauseRetryInterval: 100 * time.Millisecond,
		GoogleTTS: GoogleTTSConfig{
			CredentialsPath: "service-account.json",
			Language:        "en-US",
			Voice:           "en-US-Standard-C",
			SpeakingRate:    1.0,
			Pitch:           0.0,
			VolumeGainDb:    0.0,
			InputType:       "", // auto
		},
		NotificationSoundAI:    "sound/notification1.mp3",
		NotificationSoundError: "sound/notification3.mp3",
		CaptureEnabled:         false,
		CaptureDir:             "images/processed",
		CaptureMaxWidth:        1280,
		Remote: RemoteConfig{
			Enabled:  false,
			BindAddr: "127.0.0.1:8765",
			Path:     "/ws",
		},
	}
}

// NewConfig загружает конфигурацию приложения.
func NewConfig() *Config {
	_ = godotenv.Load()

	// Стартуем с дефолтов, затем перекрываем .env/окружением и флагами
	cfg := Defaults()
	_ = env.Parse(cfg)

	flag.BoolVar(&cfg.DebugMode, "debug-mode", cfg.DebugMode, "включить режим дебага")
	flag.StringVar(&cfg.Provider, "provider", cfg.Provider, "провайдер LLM: openai|lmstudio|ollama|stub")
	flag.StringVar(&cfg.Model, "model", cfg.Model, "модель LLM у выбранного провайдера")
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "базовый URL OpenAI-совместимого провайдера (lmstudio/ollama)")
	flag.StringVar(&cfg.SystemPrompt, "system-prompt", cfg.SystemPrompt, "системные инструкции текстового режима")
	flag.StringVar(&cfg.VoicePrompt, "voice-prompt", cfg.VoicePrompt, "системные инструкции голосового режима")
	flag.IntVar(&cfg.HistoryMax, "max-history-pairs", cfg.HistoryMax, "максимум хранимых пар вопрос/ответ в локальной истории")
	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "таймаут запроса генерации; 0 — без таймаута")
	flag.BoolVar(&cfg.VoiceMode, "voice-mode", cfg.VoiceMode, "включить голосовой режим при старте")
	flag.DurationVar(&cfg.ClickWindow, "click-window", cfg.ClickWindow, "окно различения одиночного/двойного клика")
	flag.IntVar(&cfg.PauseRetryAttempts, "pause-retry-attempts", cfg.PauseRetryAttempts, "попытки pause/resume на время прогрева движка")
	flag.DurationVar(&cfg.PauseRetryInterval, "pause-retry-interval", cfg.PauseRetryInterval, "интервал между попытками pause/resume")
	// Параметры Google TTS
	flag.StringVar(&cfg.GoogleTTS.CredentialsPath, "google-tts-credentials", cfg.GoogleTTS.CredentialsPath, "путь к service-account.json (также читается из ENV GOOGLE_APPLICATION_CREDENTIALS)")
	flag.StringVar(&cfg.GoogleTTS.Language, "google-tts-language", cfg.GoogleTTS.Language, "язык синтеза, напр. en-US")
	flag.StringVar(&cfg.GoogleTTS.Voice, "google-tts-voice", cfg.GoogleTTS.Voice, "имя голоса, напр. en-US-Standard-C")
	flag.Float64Var(&cfg.GoogleTTS.SpeakingRate, "google-tts-speaking-rate", cfg.GoogleTTS.SpeakingRate, "скорость речи (1.0 по умолчанию)")
	flag.Float64Var(&cfg.GoogleTTS.Pitch, "google-tts-pitch", cfg.GoogleTTS.Pitch, "тон (полутоны), может быть отрицательным")
	flag.Float64Var(&cfg.GoogleTTS.VolumeGainDb, "google-tts-volume-db", cfg.GoogleTTS.VolumeGainDb, "усиление громкости (дБ)")
	flag.StringVar(&cfg.GoogleTTS.InputType, "google-tts-input-type", cfg.GoogleTTS.InputType, "тип входа: text|ssml; пусто = авто по наличию <speak>")
	// Уведомления
	flag.StringVar(&cfg.NotificationSoundAI, "notification-sound-ai", cfg.NotificationSoundAI, "путь к звуку уведомления ответа ИИ (mp3 или wav)")
	flag.StringVar(&cfg.NotificationSoundError, "notification-sound-error", cfg.NotificationSoundError, "путь к звуку уведомления об ошибке (mp3 или wav)")
	// Захват экрана
	flag.BoolVar(&cfg.CaptureEnabled, "capture-enabled", cfg.CaptureEnabled, "прикладывать скриншот экрана к каждому сабмиту")
	flag.StringVar(&cfg.CaptureDir, "capture-dir", cfg.CaptureDir, "папка для обработанных кадров")
	flag.IntVar(&cfg.CaptureMaxWidth, "capture-max-width", cfg.CaptureMaxWidth, "максимальная ширина кадра после даунскейла")
	// RemoteServer
	flag.BoolVar(&cfg.Remote.Enabled, "remote-enabled", cfg.Remote.Enabled, "включить websocket-канал удалённых подписчиков")
	flag.StringVar(&cfg.Remote.BindAddr, "remote-bind-addr", cfg.Remote.BindAddr, "адрес для прослушивания (напр. 127.0.0.1:8765)")
	flag.StringVar(&cfg.Remote.Path, "remote-path", cfg.Remote.Path, "HTTP путь websocket-канала (напр. /ws)")
	// Chat/Twitch
	flag.StringVar(&cfg.TwitchUsername, "twitch-username", cfg.TwitchUsername, "логин Twitch для подключения к чату")
	flag.StringVar(&cfg.TwitchOAuthToken, "twitch-oauth-token", cfg.TwitchOAuthToken, "OAuth токен Twitch (может быть без префикса oauth:)")
	flag.StringVar(&cfg.TwitchChannel, "twitch-channel", cfg.TwitchChannel, "канал Twitch (без #)")
	flag.Parse()

	cfg.normalize()
	return cfg
}

// normalize приводит значения к допустимым диапазонам и готовит окружение.
func (c *Config) normalize() {
	if c.ClickWindow <= 0 {
		c.ClickWindow = 300 * time.Millisecond
	}
	if c.PauseRetryAttempts <= 0 {
		c.PauseRetryAttempts = 5
	}
	if c.PauseRetryInterval <= 0 {
		c.PauseRetryInterval = 100 * time.Millisecond
	}
	if c.HistoryMax < 0 {
		c.HistoryMax = 0
	}
	if c.CaptureMaxWidth <= 0 {
		c.CaptureMaxWidth = 1280
	}

	// Для Google TTS убеждаемся, что задан путь к cred-файлу.
	// Если ENV пуст, но в конфиге указан путь — устанавливаем ENV.
	if strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")) == "" {
		if cp := strings.TrimSpace(c.GoogleTTS.CredentialsPath); cp != "" {
			if _, err := os.Stat(cp); err == nil {
				_ = os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", cp)
			}
		}
	}
}

// TwitchConfigured сообщает, заполнены ли все параметры подключения к чату.
func (c *Config) TwitchConfigured() bool {
	return strings.TrimSpace(c.TwitchUsername) != "" &&
		strings.TrimSpace(c.TwitchOAuthToken) != "" &&
		strings.TrimSpace(c.TwitchChannel) != ""
}

// Validate проверяет минимальную согласованность конфигурации.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case "openai", "lmstudio", "ollama", "stub":
	default:
		return fmt.Errorf("unknown provider: %q", c.Provider)
	}
	if strings.TrimSpace(c.Model) == "" && c.Provider != "stub" {
		return fmt.Errorf("model is required for provider %q", c.Provider)
	}
	return nil
}
