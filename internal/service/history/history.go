package history

import (
	"sync"

	"github.com/lpalbou/AbstractAssistant/internal/ai"
)

// Conversation — локальная история диалога: пары «пользователь/ассистент» с
// ограничением на размер. Потокобезопасна: пишет координатор, читают воркеры.
type Conversation struct {
	mu       sync.Mutex
	pairs    []ai.HistoryPair
	maxPairs int
}

func New(maxPairs int) *Conversation {
	if maxPairs < 0 {
		maxPairs = 0
	}
	return &Conversation{pairs: make([]ai.HistoryPair, 0, maxPairs), maxPairs: maxPairs}
}

// Append добавляет завершённую пару реплик, при переполнении удаляет самую старую.
func (c *Conversation) Append(user string, assistant string) {
	if user == "" && assistant == "" {
		return
	}
	c.mu.Lock()
	c.pairs = append(c.pairs, ai.HistoryPair{User: user, Assistant: assistant})
	if c.maxPairs > 0 && len(c.pairs) > c.maxPairs {
		// Оставляем последние maxPairs элементов
		c.pairs = c.pairs[len(c.pairs)-c.maxPairs:]
	}
	c.mu.Unlock()
}

// Recent возвращает копию текущей истории.
func (c *Conversation) Recent() []ai.HistoryPair {
	c.mu.Lock()
	out := make([]ai.HistoryPair, len(c.pairs))
	copy(out, c.pairs)
	c.mu.Unlock()
	return out
}

// Clear очищает историю (пункт меню «Clear Session»).
func (c *Conversation) Clear() {
	c.mu.Lock()
	c.pairs = c.pairs[:0]
	c.mu.Unlock()
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	l := len(c.pairs)
	c.mu.Unlock()
	return l
}
