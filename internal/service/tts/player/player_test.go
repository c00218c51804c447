package player

import (
	"io"
	"strings"
	"testing"

	"github.com/faiface/beep"
)

func TestPlayRejectsUnknownFormat(t *testing.T) {
	t.Parallel()
	d := New()

	err := d.Play("ogg", io.NopCloser(strings.NewReader("данные")), nil)
	if err == nil {
		t.Fatal("неизвестный формат должен отклоняться")
	}
	if d.Pause() || d.Resume() {
		t.Fatal("без активного потока управление должно отвечать false")
	}
}

func TestPlayRejectsCorruptStream(t *testing.T) {
	t.Parallel()
	d := New()

	// Декодирование идёт до инициализации спикера: мусор не должен трогать аудио
	if err := d.Play("mp3", io.NopCloser(strings.NewReader("это не mp3")), nil); err == nil {
		t.Fatal("мусорный поток должен отклоняться декодером")
	}
	if d.Speaking() || d.Paused() {
		t.Fatal("после ошибки декодирования поток не должен считаться активным")
	}
}

// nullStreamer — сравнимая заглушка потока для проверок ресемплинга.
type nullStreamer struct{}

func (nullStreamer) Stream(_ [][2]float64) (int, bool) { return 0, false }
func (nullStreamer) Err() error                        { return nil }

func TestResampleToBaseKeepsBaseRateStream(t *testing.T) {
	t.Parallel()
	src := nullStreamer{}

	if got := resampleToBase(src, baseSampleRate); got != beep.Streamer(src) {
		t.Fatal("поток на базовой частоте не должен оборачиваться")
	}
}

func TestResampleToBaseWrapsForeignRate(t *testing.T) {
	t.Parallel()
	got := resampleToBase(nullStreamer{}, beep.SampleRate(22050))
	if _, ok := got.(*beep.Resampler); !ok {
		t.Fatalf("чужая частота должна ресемплироваться, получен %T", got)
	}
}

func TestStopWithoutStreamIsNoop(t *testing.T) {
	t.Parallel()
	d := New()
	d.Stop()
	d.Stop()
}
