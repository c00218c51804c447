package status

import (
	"sync"

	"github.com/lpalbou/AbstractAssistant/internal/ai"
	"github.com/lpalbou/AbstractAssistant/internal/service/session"
)

// Kind — вид уведомления наблюдателям.
type Kind int

const (
	// KindStatus — смена фазы сессии; рассылается после каждого перехода.
	KindStatus Kind = iota
	// KindResponse — готовый текст ответа ассистента.
	KindResponse
	// KindError — человекочитаемая ошибка для поверхности ответа.
	KindError
	// KindTokens — обновление учёта токенов после успешной генерации.
	KindTokens
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindResponse:
		return "response"
	case KindError:
		return "error"
	case KindTokens:
		return "token_update"
	default:
		return "unknown"
	}
}

// Update — одно уведомление. Заполненность полей зависит от Kind;
// Phase и Voice валидны всегда.
type Update struct {
	Kind   Kind
	Phase  session.Phase
	Voice  bool // включен ли голосовой режим
	Text   string
	Tokens ai.TokenUsage
}

// Observer — любой потребитель уведомлений (тумблер, поверхность ответа,
// индикатор в трее, удалённые подписчики).
type Observer interface {
	Receive(Update)
}

// Broadcaster раздаёт уведомления всем зарегистрированным наблюдателям.
// Публикация не ждёт отрисовки: у каждого наблюдателя своя горутина и очередь,
// доставка внутри одного наблюдателя строго последовательная. Медленный
// наблюдатель теряет старые уведомления, но никогда не блокирует координатор.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int64]*subscriber
	next int64
}

type subscriber struct {
	queue chan Update
	once  sync.Once
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int64]*subscriber)}
}

// Register подключает наблюдателя и возвращает функцию отписки.
// Отписка в любой момент безопасна; публикация отписанному — тихий no-op.
func (b *Broadcaster) Register(o Observer) func() {
	sub := &subscriber{queue: make(chan Update, 32)}
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		for u := range sub.queue {
			o.Receive(u)
		}
	}()

	return func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			sub.once.Do(func() { close(sub.queue) })
		}
		b.mu.Unlock()
	}
}

// Publish рассылает уведомление всем текущим наблюдателям.
func (b *Broadcaster) Publish(u Update) {
	b.mu.Lock()
	for _, sub := range b.subs {
		select {
		case sub.queue <- u:
		default:
			// очередь наблюдателя переполнена: вытесняем самое старое,
			// чтобы он в итоге увидел актуальное состояние
			select {
			case <-sub.queue:
			default:
			}
			select {
			case sub.queue <- u:
			default:
			}
		}
	}
	b.mu.Unlock()
}

// Close отписывает всех наблюдателей.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.once.Do(func() { close(sub.queue) })
	}
	b.mu.Unlock()
}
