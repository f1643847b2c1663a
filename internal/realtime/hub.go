package realtime

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Топики брокера
const (
	TopicLastRadar     = "/topic/last-radar"
	TopicNotifications = "/topic/notificacoes"
	TopicEcho          = "/topic/echo"
)

// Subscriber: получатель кадров. Enqueue не блокируется:
// false означает, что буфер переполнен или сессия закрыта.
type Subscriber interface {
	ID() string
	Enqueue(msg []byte) bool
	Close()
}

type subKey struct {
	sub Subscriber
	id  string // STOMP subscription id
}

// Hub: in-memory брокер топиков. Доставка fire-and-forget: медленный
// подписчик отключается, остальные и издатель этого не замечают.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[subKey]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[subKey]struct{}),
		logger: logger.Named("hub"),
	}
}

func (h *Hub) Subscribe(topic string, s Subscriber, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[subKey]struct{})
		h.topics[topic] = subs
	}
	subs[subKey{sub: s, id: subID}] = struct{}{}
}

func (h *Hub) Unsubscribe(s Subscriber, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, subs := range h.topics {
		delete(subs, subKey{sub: s, id: subID})
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Remove снимает все подписки сессии.
func (h *Hub) Remove(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s Subscriber) {
	for topic, subs := range h.topics {
		for k := range subs {
			if k.sub == s {
				delete(subs, k)
			}
		}
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Subscribers: число подписок на топик.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Publish сериализует v в JSON один раз и рассылает MESSAGE всем подписчикам топика.
// Возвращает число успешных постановок в очередь.
func (h *Hub) Publish(topic string, v any) int {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("publish marshal failed", zap.String("topic", topic), zap.Error(err))
		return 0
	}
	return h.PublishRaw(topic, body, "application/json")
}

func (h *Hub) PublishRaw(topic string, body []byte, contentType string) int {
	h.mu.RLock()
	targets := make([]subKey, 0, len(h.topics[topic]))
	for k := range h.topics[topic] {
		targets = append(targets, k)
	}
	h.mu.RUnlock()

	delivered := 0
	var slow []Subscriber
	for _, k := range targets {
		msg, err := encodeFrame(frame.New(frame.MESSAGE,
			frame.Destination, topic,
			frame.Subscription, k.id,
			frame.MessageId, uuid.NewString(),
			frame.ContentType, contentType,
		), body)
		if err != nil {
			h.logger.Error("encode frame failed", zap.Error(err))
			continue
		}
		if k.sub.Enqueue(msg) {
			delivered++
			continue
		}
		slow = append(slow, k.sub)
	}

	if len(slow) > 0 {
		h.mu.Lock()
		for _, s := range slow {
			h.removeLocked(s)
		}
		h.mu.Unlock()
		for _, s := range slow {
			h.logger.Warn("subscriber too slow, dropping session", zap.String("session", s.ID()), zap.String("topic", topic))
			go s.Close()
		}
	}
	return delivered
}

func encodeFrame(f *frame.Frame, body []byte) ([]byte, error) {
	f.Body = body
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UserTopic: персональный топик получателя.
func UserTopic(userID string) string {
	return TopicNotifications + "/" + strings.TrimSpace(userID)
}
