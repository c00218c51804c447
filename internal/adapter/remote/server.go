package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lpalbou/AbstractAssistant/internal/service/status"
)

// Submitter — то, что умеет принять текст от удалённого клиента.
type Submitter interface {
	Submit(ctx context.Context, text string) error
}

// inbound — сообщение от клиента. Поддерживается только type=message.
type inbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// outbound — сообщение клиенту, тип совпадает с Kind статуса.
type outbound struct {
	Type   string `json:"type"`
	Phase  string `json:"phase,omitempty"`
	Voice  bool   `json:"voice"`
	Text   string `json:"text,omitempty"`
	Input  int64  `json:"input_tokens,omitempty"`
	Output int64  `json:"output_tokens,omitempty"`
	Total  int64  `json:"total_tokens,omitempty"`
}

// Server — WebSocket-канал для удалённого клиента: наружу уходят те же
// обновления, что получают локальные наблюдатели, внутрь принимаются
// текстовые сообщения для ассистента.
type Server struct {
	logger    *zap.SugaredLogger
	submitter Submitter
	path      string

	srv      *http.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// conn — одно клиентское соединение со своей очередью записи.
type conn struct {
	ws    *websocket.Conn
	sendq chan outbound
}

func NewServer(bindAddr string, path string, submitter Submitter, logger *zap.SugaredLogger) *Server {
	if path == "" {
		path = "/ws"
	}
	s := &Server{
		logger:    logger,
		submitter: submitter,
		path:      path,
		conns:     make(map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 15 * time.Second,
			// Сервер слушает только loopback, проверка Origin не нужна.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handleWS)
	s.srv = &http.Server{
		Addr:              bindAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start запускает HTTP-сервер в фоне.
func (s *Server) Start() {
	go func() {
		s.logger.Infow("Удалённый канал слушает", "addr", s.srv.Addr, "path", s.path)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("Ошибка удалённого канала", "error", err)
		}
	}()
}

// Shutdown останавливает сервер и закрывает все соединения.
func (s *Server) Shutdown(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warnw("Жёсткое закрытие удалённого канала", "error", err)
		_ = s.srv.Close()
	}
	s.mu.Lock()
	for c := range s.conns {
		close(c.sendq)
		delete(s.conns, c)
	}
	s.mu.Unlock()
}

// Receive реализует status.Observer: обновление рассылается всем клиентам.
func (s *Server) Receive(u status.Update) {
	out := outbound{Type: u.Kind.String(), Voice: u.Voice}
	switch u.Kind {
	case status.KindStatus:
		out.Phase = u.Phase.String()
	case status.KindResponse, status.KindError:
		out.Text = u.Text
	case status.KindTokens:
		out.Input = u.Tokens.Input
		out.Output = u.Tokens.Output
		out.Total = u.Tokens.Total
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		select {
		case c.sendq <- out:
		default:
			// Клиент не успевает читать — обновление пропускаем.
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("Не удалось апгрейдить соединение", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := &conn{ws: ws, sendq: make(chan outbound, 32)}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Infow("Удалённый клиент подключился", "remote", r.RemoteAddr)

	go s.writePump(c)
	s.readPump(c, r.RemoteAddr)
}

// readPump читает входящие сообщения до закрытия соединения.
func (s *Server) readPump(c *conn, remote string) {
	defer s.drop(c)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warnw("Удалённый клиент отвалился", "remote", remote, "error", err)
			}
			return
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.logger.Debugw("Нечитаемое сообщение от клиента", "remote", remote, "error", err)
			continue
		}
		if in.Type != "message" || strings.TrimSpace(in.Text) == "" {
			continue
		}
		if err := s.submitter.Submit(context.Background(), in.Text); err != nil {
			s.logger.Warnw("Сообщение клиента не принято", "remote", remote, "error", err)
		}
	}
}

// writePump сериализует запись: у gorilla/websocket один писатель на соединение.
func (s *Server) writePump(c *conn) {
	for out := range c.sendq {
		_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.ws.WriteJSON(out); err != nil {
			return
		}
	}
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = c.ws.Close()
}

func (s *Server) drop(c *conn) {
	s.mu.Lock()
	if _, ok := s.conns[c]; ok {
		close(c.sendq)
		delete(s.conns, c)
	}
	s.mu.Unlock()
	_ = c.ws.Close()
}
