package collab

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mindweave-ai/mindweave/pkg/logging"
)

// Publisher is the outbound side of a collaboration surface. The
// orchestrator publishes workflow events through it without caring
// whether anyone is listening.
type Publisher interface {
	Publish(env Envelope)
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(Envelope) {}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// hubSession is one connected observer.
type hubSession struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	topics map[string]bool
}

func (s *hubSession) send(env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(env)
}

func (s *hubSession) subscribed(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topics[topic]
}

func (s *hubSession) setTopic(topic string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.topics[topic] = true
	} else {
		delete(s.topics, topic)
	}
}

// Hub is the server side of the collaboration channel: it accepts
// websocket connections, tracks per-session topic subscriptions, and
// fans published envelopes out to subscribers.
//
// Thread Safety: Safe for concurrent use.
type Hub struct {
	log *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*hubSession
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	if log == nil {
		log = logging.Default()
	}
	return &Hub{
		log:      log,
		sessions: make(map[string]*hubSession),
	}
}

// Sessions returns the number of connected observers.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Publish fans an envelope out to every session subscribed to its
// topic. Envelopes without a topic go to everyone.
func (h *Hub) Publish(env Envelope) {
	if env.SentAt.IsZero() {
		env.SentAt = time.Now()
	}

	h.mu.RLock()
	targets := make([]*hubSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		if env.Topic == "" || s.subscribed(env.Topic) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if err := s.send(env); err != nil {
			h.log.Warn("hub send failed", "session_id", s.id, "error", err)
		}
	}
}

// Handler returns the gin handler that upgrades and serves one
// observer connection.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Error("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		session := &hubSession{
			id:     uuid.New().String(),
			conn:   conn,
			topics: make(map[string]bool),
		}
		h.mu.Lock()
		h.sessions[session.id] = session
		h.mu.Unlock()
		defer func() {
			h.mu.Lock()
			delete(h.sessions, session.id)
			h.mu.Unlock()
		}()

		h.log.Info("observer connected", "session_id", session.id)

		hello, err := NewEnvelope(TypeSessionCreated, "", map[string]string{"session_id": session.id})
		if err == nil {
			err = session.send(hello)
		}
		if err != nil {
			h.log.Warn("session hello failed", "session_id", session.id, "error", err)
			return
		}

		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				h.log.Info("observer disconnected", "session_id", session.id, "error", err.Error())
				return
			}
			switch env.Type {
			case TypeSubscribe:
				if env.Topic != "" {
					session.setTopic(env.Topic, true)
					h.log.Debug("observer subscribed", "session_id", session.id, "topic", env.Topic)
				}
			case TypeUnsubscribe:
				session.setTopic(env.Topic, false)
			default:
				// Collaboration traffic from one observer is relayed
				// to the others on the same topic.
				h.relay(session.id, env)
			}
		}
	}
}

// relay forwards an observer's envelope to other subscribers.
func (h *Hub) relay(fromID string, env Envelope) {
	if env.Topic == "" {
		return
	}
	h.mu.RLock()
	targets := make([]*hubSession, 0, len(h.sessions))
	for id, s := range h.sessions {
		if id != fromID && s.subscribed(env.Topic) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if err := s.send(env); err != nil {
			h.log.Warn("relay send failed", "session_id", s.id, "error", err)
		}
	}
}
