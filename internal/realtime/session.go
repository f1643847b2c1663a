package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xela07ax/radar-bff/internal/domain"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 64 * 1024

	stompVersion = "1.2"
	serverName   = "radar-bff"
)

// Server: STOMP поверх WebSocket на /api/ws.
type Server struct {
	hub        *Hub
	gate       *Gate
	upgrader   websocket.Upgrader
	sessions   prometheus.Gauge
	sendBuffer int
	logger     *zap.Logger
}

func NewServer(hub *Hub, gate *Gate, sessions prometheus.Gauge, sendBuffer int, logger *zap.Logger) *Server {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Server{
		hub:  hub,
		gate: gate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    []string{"v12.stomp", "v11.stomp", "v10.stomp"},
			CheckOrigin:     func(r *http.Request) bool { return true }, // CORS решается на уровне ingress
		},
		sessions:   sessions,
		sendBuffer: sendBuffer,
		logger:     logger.Named("ws"),
	}
}

// ServeHTTP допускает соединение и без токена: аутентификация возможна в CONNECT.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity := srv.gate.Authenticate(TokenFromRequest(r))

	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := &Session{
		id:       uuid.NewString(),
		conn:     conn,
		hub:      srv.hub,
		gate:     srv.gate,
		send:     make(chan []byte, srv.sendBuffer),
		done:     make(chan struct{}),
		identity: identity,
	}
	s.logger = srv.logger.With(zap.String("session", s.id))

	if srv.sessions != nil {
		srv.sessions.Inc()
	}
	s.logger.Debug("websocket session opened", zap.String("remote", conn.RemoteAddr().String()), zap.Bool("authenticated", identity != nil))

	go s.writePump()
	go func() {
		s.readPump()
		if srv.sessions != nil {
			srv.sessions.Dec()
		}
	}()
}

// Session: одно STOMP-соединение.
type Session struct {
	id        string
	conn      *websocket.Conn
	hub       *Hub
	gate      *Gate
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger

	// только в readPump
	identity  *domain.Identity
	connected bool
}

func (s *Session) ID() string { return s.id }

func (s *Session) Enqueue(msg []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) readPump() {
	defer func() {
		s.hub.Remove(s)
		s.Close()
		s.logger.Debug("websocket session closed")
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { return s.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		r := frame.NewReader(bytes.NewReader(data))
		for {
			f, err := r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				s.fail("malformed frame", err.Error())
				return
			}
			if f == nil { // heart-beat
				continue
			}
			if !s.handle(f) {
				return
			}
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	write := func(msg []byte) bool {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return s.conn.WriteMessage(websocket.TextMessage, msg) == nil
	}

	for {
		select {
		case msg := <-s.send:
			if !write(msg) {
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			// дописываем то, что уже в очереди (ERROR, RECEIPT); читатель send один
			for len(s.send) > 0 {
				if !write(<-s.send) {
					return
				}
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handle возвращает false, если сессию нужно завершить.
func (s *Session) handle(f *frame.Frame) bool {
	switch f.Command {
	case frame.CONNECT, frame.STOMP:
		return s.onConnect(f)
	}

	if !s.connected {
		s.fail("not connected", "CONNECT frame expected first")
		return false
	}

	switch f.Command {
	case frame.SUBSCRIBE:
		dest, id := f.Header.Get(frame.Destination), f.Header.Get(frame.Id)
		if dest == "" || id == "" {
			s.fail("bad subscribe", "destination and id headers are required")
			return false
		}
		if err := AuthorizeSubscribe(s.identity, dest); err != nil {
			s.logger.Warn("subscribe denied", zap.String("destination", dest), zap.Error(err))
			s.fail("access denied", err.Error())
			return false
		}
		s.hub.Subscribe(dest, s, id)
		s.receipt(f)

	case frame.UNSUBSCRIBE:
		s.hub.Unsubscribe(s, f.Header.Get(frame.Id))
		s.receipt(f)

	case frame.SEND:
		if err := s.route(f); err != nil {
			s.logger.Warn("send rejected", zap.String("destination", f.Header.Get(frame.Destination)), zap.Error(err))
			s.fail("send rejected", err.Error())
			return false
		}
		s.receipt(f)

	case frame.DISCONNECT:
		s.receipt(f)
		s.Close()
		return false

	default:
		// ACK/NACK/транзакции: брокер без подтверждений
		s.logger.Debug("frame ignored", zap.String("command", f.Command))
	}
	return true
}

func (s *Session) onConnect(f *frame.Frame) bool {
	if s.connected {
		s.fail("already connected", "duplicate CONNECT")
		return false
	}
	if token := TokenFromFrame(f); token != "" {
		// явный, но невалидный токен снимает и привязку рукопожатия
		s.identity = s.gate.Authenticate(token)
	} else if s.identity == nil {
		s.logger.Debug("no bearer token in CONNECT, session stays anonymous")
	}
	s.connected = true

	resp := frame.New(frame.CONNECTED,
		frame.Version, stompVersion,
		frame.HeartBeat, "0,0",
		frame.Server, serverName,
		frame.Session, s.id,
	)
	if s.identity != nil {
		resp.Header.Add("user-name", s.identity.Subject)
	}
	return s.write(resp)
}

// route обрабатывает SEND на /app/*.
func (s *Session) route(f *frame.Frame) error {
	dest := f.Header.Get(frame.Destination)
	if err := AuthorizeSend(s.identity, dest); err != nil {
		return err
	}

	var msg domain.NotificationMessage
	if err := json.Unmarshal(f.Body, &msg); err != nil {
		return fmt.Errorf("%w: notification body: %v", ErrMalformed, err)
	}

	switch {
	case dest == appPrefix+"/notify":
		s.hub.Publish(TopicNotifications, msg)
	case strings.HasPrefix(dest, appPrefix+"/notify-user/"):
		userID := strings.TrimPrefix(dest, appPrefix+"/notify-user/")
		if strings.TrimSpace(userID) == "" {
			return fmt.Errorf("%w: empty recipient", ErrMalformed)
		}
		s.hub.Publish(UserTopic(userID), msg)
	case dest == appPrefix+"/echo":
		s.hub.Publish(TopicEcho, domain.NotificationMessage{Message: "ECHO: " + msg.Message})
	}
	return nil
}

func (s *Session) receipt(f *frame.Frame) {
	if id := f.Header.Get(frame.Receipt); id != "" {
		s.write(frame.New(frame.RECEIPT, frame.ReceiptId, id))
	}
}

// fail отправляет ERROR и закрывает сессию (STOMP требует закрыть соединение после ERROR).
func (s *Session) fail(message, detail string) {
	f := frame.New(frame.ERROR, frame.Message, message, frame.ContentType, "text/plain")
	f.Body = []byte(detail)
	s.write(f)
	s.Close()
}

func (s *Session) write(f *frame.Frame) bool {
	msg, err := encodeFrame(f, f.Body)
	if err != nil {
		s.logger.Error("encode frame failed", zap.Error(err))
		return false
	}
	if !s.Enqueue(msg) {
		s.Close()
		return false
	}
	return true
}
