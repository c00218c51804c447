package ai

import "context"

// StubClient заглушка, которая не делает реальных запросов.
type StubClient struct{}

func NewStubClient() *StubClient { return &StubClient{} }

func (c *StubClient) SendMessage(_ context.Context, req Request) (Reply, error) {
	return Reply{Text: "запрос получен: " + req.Text}, nil
}
