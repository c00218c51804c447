package ai

import "context"

// TokenUsage — учёт токенов одного ответа провайдера.
type TokenUsage struct {
	Input  int64
	Output int64
	Total  int64
}

// Reply — результат одного запроса генерации.
type Reply struct {
	Text   string
	Tokens TokenUsage
}

// HistoryPair — одна пара реплик «пользователь/ассистент» из локальной истории.
type HistoryPair struct {
	User      string
	Assistant string
}

// Request — один запрос генерации: системные инструкции, текущий ввод пользователя,
// вложения (data URL или http(s) URL) и последние пары реплик диалога.
type Request struct {
	System    string
	Text      string
	ImageURLs []string
	History   []HistoryPair
}

// Client интерфейс для взаимодействия с AI. Все реализации должны быть взаимозаменяемыми.
type Client interface {
	SendMessage(ctx context.Context, req Request) (Reply, error)
}
