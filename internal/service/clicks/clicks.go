package clicks

import (
	"sync"
	"time"
)

// Intent — семантическое намерение, извлечённое из сырых нажатий.
type Intent int

const (
	SingleActivate Intent = iota
	DoubleActivate
)

func (i Intent) String() string {
	if i == DoubleActivate {
		return "double"
	}
	return "single"
}

// Disambiguator превращает поток сырых нажатий на одном контроле в SingleActivate /
// DoubleActivate. Двухсостоянийный автомат (покой / ожидание второго нажатия) с
// одним таймером: второе нажатие до дедлайна — DoubleActivate сразу; истечение
// дедлайна с одним нажатием — SingleActivate. После каждой выдачи состояние
// сбрасывается, поэтому тройной клик даёт DoubleActivate плюс новый одиночный цикл.
type Disambiguator struct {
	window time.Duration

	mu       sync.Mutex
	awaiting bool
	timer    *time.Timer

	intents chan Intent
}

func New(window time.Duration) *Disambiguator {
	if window <= 0 {
		window = 300 * time.Millisecond
	}
	return &Disambiguator{
		window:  window,
		intents: make(chan Intent, 4),
	}
}

// Intents — канал семантических намерений.
func (d *Disambiguator) Intents() <-chan Intent { return d.intents }

// Press регистрирует одно сырое нажатие. Никогда не блокирует.
func (d *Disambiguator) Press() {
	d.mu.Lock()
	if !d.awaiting {
		d.awaiting = true
		d.timer = time.AfterFunc(d.window, d.deadline)
		d.mu.Unlock()
		return
	}
	// Второе нажатие в пределах окна
	d.awaiting = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.emit(DoubleActivate)
}

// deadline срабатывает по истечении окна с одним нажатием.
func (d *Disambiguator) deadline() {
	d.mu.Lock()
	fire := d.awaiting
	d.awaiting = false
	d.timer = nil
	d.mu.Unlock()
	if fire {
		d.emit(SingleActivate)
	}
}

// Close останавливает ожидающий таймер; начатый одиночный цикл пропадает без выдачи.
func (d *Disambiguator) Close() {
	d.mu.Lock()
	d.awaiting = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
}

func (d *Disambiguator) emit(i Intent) {
	select {
	case d.intents <- i:
	default:
		// переполнение очереди намерений — дроп
	}
}
