package player

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Engine — движок воспроизведения с управлением на лету. Между подачей потока в
// Play и фактическим стартом аудиопотока есть окно прогрева (декодирование,
// инициализация спикера): в этом окне Pause/Resume возвращают false.
type Engine interface {
	// Play декодирует поток и начинает воспроизведение; блокирует до конца
	// декодирования, но не до конца воспроизведения. done вызывается один раз
	// по естественному завершению потока (после Stop не вызывается).
	Play(format string, r io.ReadCloser, done func()) error
	Pause() bool
	Resume() bool
	Stop()
	Speaking() bool
	Paused() bool
}

// Default реализует Engine поверх beep и поддерживает mp3 и wav.
type Default struct {
	volumeDB float64

	mu      sync.Mutex
	current *control
}

type control struct {
	ctrl    *beep.Ctrl
	src     beep.StreamSeekCloser
	stopped bool
}

// New создаёт движок без изменения громкости (0 dB).
func New() *Default { return &Default{volumeDB: 0} }

// NewWithVolume создаёт движок с предустановленной громкостью в dB (отрицательные — тише).
func NewWithVolume(db float64) *Default { return &Default{volumeDB: db} }

// Спикер beep — синглтон на процесс: повторный speaker.Init сбрасывает микшер
// и молча выбрасывает активные потоки, их коллбеки завершения не срабатывают.
// Поэтому спикер инициализируется ровно один раз на фиксированной частоте, все
// движки процесса делят один микшер, а потоки с другой частотой ресемплируются.
const (
	baseSampleRate  beep.SampleRate = 44100
	resampleQuality                 = 4
)

var (
	speakerOnce sync.Once
	speakerErr  error
)

func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(baseSampleRate, baseSampleRate.N(time.Second/10))
	})
	return speakerErr
}

// resampleToBase приводит поток к частоте общего спикера.
func resampleToBase(s beep.Streamer, from beep.SampleRate) beep.Streamer {
	if from == baseSampleRate {
		return s
	}
	return beep.Resample(resampleQuality, from, baseSampleRate, s)
}

func (d *Default) Play(format string, r io.ReadCloser, done func()) error {
	var (
		streamer beep.StreamSeekCloser
		bformat  beep.Format
		err      error
	)
	switch format {
	case "wav", "WAV":
		streamer, bformat, err = wav.Decode(r)
	case "mp3", "MP3":
		streamer, bformat, err = mp3.Decode(r)
	default:
		return errors.New("unsupported format for playback; use mp3 or wav")
	}
	if err != nil {
		return err
	}

	if err := initSpeaker(); err != nil {
		streamer.Close()
		return err
	}

	vol := &effects.Volume{
		Streamer: streamer,
		Base:     2,
		Volume:   d.volumeDB,
		Silent:   false,
	}
	stream := resampleToBase(vol, bformat.SampleRate)

	c := &control{src: streamer}
	c.ctrl = &beep.Ctrl{Streamer: beep.Seq(stream, beep.Callback(func() {
		streamer.Close()
		d.mu.Lock()
		natural := d.current == c && !c.stopped
		if natural {
			d.current = nil
		}
		d.mu.Unlock()
		if natural && done != nil {
			done()
		}
	}))}

	// Поток управляем только с этого момента: до установки current
	// Pause/Resume отвечают false, это и есть окно прогрева.
	d.mu.Lock()
	d.current = c
	d.mu.Unlock()
	speaker.Play(c.ctrl)
	return nil
}

func (d *Default) Pause() bool {
	d.mu.Lock()
	c := d.current
	d.mu.Unlock()
	if c == nil {
		return false
	}
	speaker.Lock()
	c.ctrl.Paused = true
	speaker.Unlock()
	return true
}

func (d *Default) Resume() bool {
	d.mu.Lock()
	c := d.current
	d.mu.Unlock()
	if c == nil {
		return false
	}
	speaker.Lock()
	c.ctrl.Paused = false
	speaker.Unlock()
	return true
}

// Stop идемпотентен: повторный вызов без активного потока — no-op.
// Гасится только собственный поток движка: спикер общий, speaker.Clear
// срезал бы и чужие потоки (например, звук уведомления).
func (d *Default) Stop() {
	d.mu.Lock()
	c := d.current
	if c != nil {
		c.stopped = true
		d.current = nil
	}
	d.mu.Unlock()
	if c == nil {
		return
	}
	speaker.Lock()
	c.ctrl.Streamer = nil
	speaker.Unlock()
	// Коллбек завершения для остановленного потока уже не сработает,
	// декодер закрывается здесь
	_ = c.src.Close()
}

func (d *Default) Speaking() bool {
	// Не держим d.mu во время speaker.Lock: callback завершения берёт d.mu
	// изнутри спикера, обратный порядок захвата привёл бы к дедлоку.
	d.mu.Lock()
	c := d.current
	d.mu.Unlock()
	if c == nil {
		return false
	}
	speaker.Lock()
	paused := c.ctrl.Paused
	speaker.Unlock()
	return !paused
}

func (d *Default) Paused() bool {
	d.mu.Lock()
	c := d.current
	d.mu.Unlock()
	if c == nil {
		return false
	}
	speaker.Lock()
	paused := c.ctrl.Paused
	speaker.Unlock()
	return paused
}
