package google

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	gctts "cloud.google.com/go/texttospeech/apiv1"
	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"

	"github.com/lpalbou/AbstractAssistant/internal/config"
	"github.com/lpalbou/AbstractAssistant/internal/service/session"
	"github.com/lpalbou/AbstractAssistant/internal/service/tts"
)

// Client реализует синтез речи через Google Cloud Text-to-Speech.
// Возвращает MP3, воспроизведение — на стороне playback.Controller.
type Client struct {
	cfg    config.GoogleTTSConfig
	logger *zap.SugaredLogger
}

func New(cfg config.GoogleTTSConfig, logger *zap.SugaredLogger) *Client {
	return &Client{cfg: cfg, logger: logger}
}

// Available проверяет, что Application Default Credentials доступны.
// Без них каждый вызов Synthesize завершится ErrBackendUnavailable.
func (c *Client) Available(ctx context.Context) bool {
	_, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil && c.logger != nil {
		c.logger.Warnw("Google TTS credentials not found", "error", err)
	}
	return err == nil
}

// Synthesize выполняет запрос к Google TTS и возвращает аудио.
func (c *Client) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	// Создаём клиента SDK
	ttsClient, err := gctts.NewClient(ctx)
	if err != nil {
		return tts.Audio{}, session.ErrBackendUnavailable
	}
	defer ttsClient.Close()

	// Определяем тип входа (text|ssml); пусто — авто по наличию <speak>
	var input *ttspb.SynthesisInput
	it := strings.ToLower(strings.TrimSpace(c.cfg.InputType))
	if it == "" && strings.Contains(text, "<speak") {
		it = "ssml"
	}
	if it == "ssml" {
		input = &ttspb.SynthesisInput{InputSource: &ttspb.SynthesisInput_Ssml{Ssml: text}}
	} else {
		input = &ttspb.SynthesisInput{InputSource: &ttspb.SynthesisInput_Text{Text: text}}
	}

	voice := &ttspb.VoiceSelectionParams{
		LanguageCode: c.cfg.Language,
		Name:         c.cfg.Voice,
	}

	// Только MP3
	audio := &ttspb.AudioConfig{
		AudioEncoding: ttspb.AudioEncoding_MP3,
		SpeakingRate:  c.cfg.SpeakingRate,
		Pitch:         c.cfg.Pitch,
		VolumeGainDb:  c.cfg.VolumeGainDb,
	}

	req := &ttspb.SynthesizeSpeechRequest{Input: input, Voice: voice, AudioConfig: audio}
	started := time.Now()
	resp, err := ttsClient.SynthesizeSpeech(ctx, req)
	if err != nil {
		return tts.Audio{}, err
	}
	if c.logger != nil {
		c.logger.Infow("Google TTS synthesize completed", "took", time.Since(started).String())
	}

	return tts.Audio{
		Format: "mp3",
		Data:   io.NopCloser(bytes.NewReader(resp.GetAudioContent())),
	}, nil
}
