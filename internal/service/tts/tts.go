package tts

import (
	"context"
	"io"
)

// Audio — результат синтеза: формат контейнера (mp3|wav) и поток данных.
type Audio struct {
	Format string
	Data   io.ReadCloser
}

// Synthesizer абстракция TTS. Метод возвращает синтезированное аудио,
// воспроизведением занимается вызывающая сторона (playback.Controller).
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Audio, error)
}
