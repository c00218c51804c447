package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lpalbou/AbstractAssistant/internal/ai"
	"github.com/lpalbou/AbstractAssistant/internal/service/session"
	"github.com/lpalbou/AbstractAssistant/internal/service/status"
)

// recordingSubmitter копит принятые тексты.
type recordingSubmitter struct {
	mu    sync.Mutex
	texts []string
	got   chan struct{}
}

func newRecordingSubmitter() *recordingSubmitter {
	return &recordingSubmitter{got: make(chan struct{}, 8)}
}

func (r *recordingSubmitter) Submit(_ context.Context, text string) error {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
	r.got <- struct{}{}
	return nil
}

func dialTest(t *testing.T, s *Server) (*websocket.Conn, func()) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(s.handleWS))
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		ts.Close()
		t.Fatalf("не удалось подключиться: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
		ts.Close()
	}
}

func TestStatusReachesRemoteClient(t *testing.T) {
	t.Parallel()
	s := NewServer("127.0.0.1:0", "/ws", newRecordingSubmitter(), zap.NewNop().Sugar())

	conn, closeFn := dialTest(t, s)
	defer closeFn()

	// Дать серверу зарегистрировать соединение
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		n := len(s.conns)
		s.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Receive(status.Update{Kind: status.KindStatus, Phase: session.PhaseGenerating, Voice: true})
	s.Receive(status.Update{Kind: status.KindTokens, Tokens: ai.TokenUsage{Input: 1, Output: 2, Total: 3}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first outbound
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("не дождались первого сообщения: %v", err)
	}
	if first.Type != "status" || first.Phase != "generating" || !first.Voice {
		t.Fatalf("искажённый статус: %+v", first)
	}

	var second outbound
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("не дождались второго сообщения: %v", err)
	}
	if second.Type != "token_update" || second.Total != 3 {
		t.Fatalf("искажённый учёт токенов: %+v", second)
	}
}

func TestInboundMessageForwardedToSubmitter(t *testing.T) {
	t.Parallel()
	sub := newRecordingSubmitter()
	s := NewServer("127.0.0.1:0", "/ws", sub, zap.NewNop().Sugar())

	conn, closeFn := dialTest(t, s)
	defer closeFn()

	if err := conn.WriteJSON(inbound{Type: "message", Text: "привет с телефона"}); err != nil {
		t.Fatal(err)
	}
	// Нечитаемое и пустое — тихо игнорируются
	if err := conn.WriteMessage(websocket.TextMessage, []byte("не json")); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(inbound{Type: "message", Text: "   "}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-sub.got:
	case <-time.After(2 * time.Second):
		t.Fatal("сообщение не дошло до ассистента")
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.texts) != 1 || sub.texts[0] != "привет с телефона" {
		t.Fatalf("приняты не те сообщения: %v", sub.texts)
	}
}
