// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collab

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mindweave-ai/mindweave/pkg/logging"
)

// State is the channel connection state.
type State int

const (
	// StateDisconnected means no connection and no attempt in flight.
	StateDisconnected State = iota
	// StateConnecting means a dial or reconnect attempt is in flight.
	StateConnecting
	// StateConnected means the channel is live.
	StateConnected
	// StateError means an established connection dropped; reconnect
	// attempts are running.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Handler consumes envelopes delivered for a subscribed topic.
//
// Handlers run on the channel's read goroutine; long work should be
// handed off so it does not stall message delivery.
type Handler func(env Envelope)

// SubscribePolicy controls repeated Subscribe calls on one topic.
type SubscribePolicy int

const (
	// SubscribeReplace makes the newest handler the only handler for
	// the topic.
	SubscribeReplace SubscribePolicy = iota
	// SubscribeStack delivers each message to every handler
	// registered for the topic, in registration order.
	SubscribeStack
)

// Guard wraps risky channel operations, typically with the resilience
// executor. See PassThroughGuard for an unguarded variant.
type Guard interface {
	Execute(ctx context.Context, operationID string, op func(ctx context.Context) (any, error)) (any, error)
}

// PassThroughGuard runs operations directly.
type PassThroughGuard struct{}

// Execute implements Guard.
func (PassThroughGuard) Execute(ctx context.Context, _ string, op func(ctx context.Context) (any, error)) (any, error) {
	return op(ctx)
}

// OpChannelSend is the guard operation id for outbound sends.
const OpChannelSend = "channelSend"

// Config tunes the channel manager.
type Config struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// QueueCapacity bounds the offline replay queue. Default: 100.
	QueueCapacity int

	// HandshakeTimeout bounds each dial attempt. Default: 10s.
	HandshakeTimeout time.Duration

	// InitialBackoff is the delay before the first reconnect
	// attempt. Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth. Default: 30s.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay per failed attempt.
	// Default: 2.0.
	BackoffMultiplier float64

	// MaxReconnectAttempts stops reconnecting after this many
	// consecutive failures. Zero means never stop.
	MaxReconnectAttempts int

	// Policy controls repeated subscriptions on one topic.
	Policy SubscribePolicy
}

func (c Config) normalized() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 100
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = 2.0
	}
	return c
}

// ChannelManager owns one websocket collaboration channel: lifecycle,
// subscriptions, ordered offline queueing, and reconnection.
//
// Reconnection only runs after an ESTABLISHED connection drops; a
// failed initial Connect returns the error and stays disconnected so
// the caller decides whether to retry.
//
// Thread Safety: Safe for concurrent use. Handlers run on the read
// goroutine.
type ChannelManager struct {
	cfg    Config
	guard  Guard
	log    *logging.Logger
	dialer *websocket.Dialer
	queue  *sendQueue

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	epoch     int
	closed    bool
	sessionID string
	handlers  map[string][]Handler

	// writeMu serializes writes; gorilla connections allow only one
	// concurrent writer.
	writeMu sync.Mutex
}

// NewChannelManager creates a manager. A nil guard runs sends
// unguarded.
func NewChannelManager(cfg Config, guard Guard, log *logging.Logger) *ChannelManager {
	if guard == nil {
		guard = PassThroughGuard{}
	}
	if log == nil {
		log = logging.Default()
	}
	cfg = cfg.normalized()
	return &ChannelManager{
		cfg:      cfg,
		guard:    guard,
		log:      log,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		queue:    newSendQueue(cfg.QueueCapacity),
		handlers: make(map[string][]Handler),
	}
}

// State returns the current connection state.
func (m *ChannelManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the id assigned by the hub, empty before the
// session_created message arrives.
func (m *ChannelManager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// QueuedMessages returns the number of envelopes awaiting replay.
func (m *ChannelManager) QueuedMessages() int { return m.queue.length() }

// DroppedMessages returns how many queued envelopes were evicted.
func (m *ChannelManager) DroppedMessages() int { return m.queue.droppedCount() }

// Connect dials the configured URL and starts the read loop.
//
// Outputs:
//   - error: ErrInvalidScheme, ErrAlreadyConnecting, ErrClosed, nil
//     when already connected, or the dial error.
func (m *ChannelManager) Connect(ctx context.Context) error {
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return ErrInvalidScheme
	}

	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.state == StateConnected:
		m.mu.Unlock()
		return nil
	case m.state == StateConnecting:
		m.mu.Unlock()
		return ErrAlreadyConnecting
	}
	m.state = StateConnecting
	m.mu.Unlock()

	conn, _, err := m.dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		m.log.Warn("channel connect failed", "url", m.cfg.URL, "error", err)
		return err
	}

	m.adopt(conn)
	m.log.Info("channel connected", "url", m.cfg.URL)
	return nil
}

// adopt installs a live connection, starts its read loop, restores
// subscriptions, and replays the offline queue in order.
func (m *ChannelManager) adopt(conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.state = StateConnected
	m.epoch++
	epoch := m.epoch
	topics := make([]string, 0, len(m.handlers))
	for topic := range m.handlers {
		if topic != "" {
			topics = append(topics, topic)
		}
	}
	m.mu.Unlock()

	go m.readLoop(conn, epoch)

	for _, topic := range topics {
		if err := m.write(Envelope{Type: TypeSubscribe, Topic: topic, SentAt: time.Now()}); err != nil {
			m.log.Warn("resubscribe failed", "topic", topic, "error", err)
			return
		}
	}
	m.replay()
}

// replay flushes the offline queue in FIFO order. Undelivered
// envelopes go back to the head of the queue.
func (m *ChannelManager) replay() {
	pending := m.queue.drain()
	for i, env := range pending {
		if err := m.write(env); err != nil {
			m.queue.requeueFront(pending[i:])
			m.log.Warn("replay interrupted", "delivered", i, "remaining", len(pending)-i, "error", err)
			return
		}
	}
	if len(pending) > 0 {
		m.log.Info("replayed queued messages", "count", len(pending))
	}
}

// Subscribe registers a handler for a topic and, when connected, tells
// the hub to route the topic here. An empty topic receives every
// message.
func (m *ChannelManager) Subscribe(topic string, h Handler) {
	m.mu.Lock()
	if m.cfg.Policy == SubscribeReplace {
		m.handlers[topic] = []Handler{h}
	} else {
		m.handlers[topic] = append(m.handlers[topic], h)
	}
	connected := m.state == StateConnected
	m.mu.Unlock()

	if connected && topic != "" {
		if err := m.write(Envelope{Type: TypeSubscribe, Topic: topic, SentAt: time.Now()}); err != nil {
			m.log.Warn("subscribe send failed", "topic", topic, "error", err)
		}
	}
}

// Unsubscribe drops all handlers for a topic.
func (m *ChannelManager) Unsubscribe(topic string) {
	m.mu.Lock()
	delete(m.handlers, topic)
	connected := m.state == StateConnected
	m.mu.Unlock()

	if connected && topic != "" {
		if err := m.write(Envelope{Type: TypeUnsubscribe, Topic: topic, SentAt: time.Now()}); err != nil {
			m.log.Warn("unsubscribe send failed", "topic", topic, "error", err)
		}
	}
}

// SendMessage delivers a typed payload over the channel.
//
// While disconnected the envelope is queued for ordered replay and
// ErrNotConnected is returned so the caller knows delivery is
// deferred.
func (m *ChannelManager) SendMessage(ctx context.Context, msgType, topic string, payload any) error {
	if msgType == "" {
		return ErrEmptyType
	}
	env, err := NewEnvelope(msgType, topic, payload)
	if err != nil {
		return err
	}

	m.mu.Lock()
	connected := m.state == StateConnected
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !connected {
		m.queue.enqueue(env)
		return ErrNotConnected
	}

	_, err = m.guard.Execute(ctx, OpChannelSend, func(ctx context.Context) (any, error) {
		return nil, m.write(env)
	})
	if err != nil {
		// Keep the message for replay once the connection heals.
		m.queue.enqueue(env)
	}
	return err
}

// write serializes one envelope onto the connection.
func (m *ChannelManager) write(env Envelope) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(env)
}

// readLoop consumes envelopes until the connection drops. epoch
// identifies the connection so a stale loop cannot clobber a newer
// one. Malformed frames are dropped with a diagnostic; only transport
// errors end the loop.
func (m *ChannelManager) readLoop(conn *websocket.Conn, epoch int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.onDrop(epoch, err)
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			m.log.Warn("dropping malformed envelope", "error", err)
			continue
		}
		m.dispatch(env)
	}
}

// dispatch routes an envelope to topic handlers and the catch-all.
func (m *ChannelManager) dispatch(env Envelope) {
	if env.Type == TypeSessionCreated {
		var body struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(env.Payload, &body); err == nil && body.SessionID != "" {
			m.mu.Lock()
			m.sessionID = body.SessionID
			m.mu.Unlock()
		}
	}

	m.mu.Lock()
	targets := make([]Handler, 0, 4)
	targets = append(targets, m.handlers[""]...)
	if env.Topic != "" {
		targets = append(targets, m.handlers[env.Topic]...)
	}
	m.mu.Unlock()

	for _, h := range targets {
		h(env)
	}
}

// onDrop handles a read-loop exit. Manual disconnects and stale loops
// are ignored; a genuine drop moves to ERROR and starts reconnecting.
func (m *ChannelManager) onDrop(epoch int, cause error) {
	m.mu.Lock()
	if m.closed || epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = StateError
	m.mu.Unlock()

	m.log.Warn("channel connection dropped", "error", cause)
	go m.reconnectLoop()
}

// reconnectLoop redials with exponential backoff until it succeeds,
// the manager closes, or the attempt budget runs out.
func (m *ChannelManager) reconnectLoop() {
	backoff := m.cfg.InitialBackoff

	for attempt := 1; ; attempt++ {
		time.Sleep(backoff)

		m.mu.Lock()
		if m.closed || m.state != StateError {
			m.mu.Unlock()
			return
		}
		m.state = StateConnecting
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
		conn, _, err := m.dialer.DialContext(ctx, m.cfg.URL, nil)
		cancel()
		if err == nil {
			m.adopt(conn)
			m.log.Info("channel reconnected", "attempt", attempt)
			return
		}

		m.log.Warn("reconnect attempt failed", "attempt", attempt, "backoff", backoff, "error", err)
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		if m.cfg.MaxReconnectAttempts > 0 && attempt >= m.cfg.MaxReconnectAttempts {
			m.state = StateDisconnected
			m.mu.Unlock()
			m.log.Error("reconnect attempts exhausted", "attempts", attempt)
			return
		}
		m.state = StateError
		m.mu.Unlock()

		backoff = time.Duration(float64(backoff) * m.cfg.BackoffMultiplier)
		if backoff > m.cfg.MaxBackoff {
			backoff = m.cfg.MaxBackoff
		}
	}
}

// Disconnect closes the connection without reconnecting. The manager
// can Connect again later; the offline queue is preserved.
func (m *ChannelManager) Disconnect() {
	m.mu.Lock()
	m.epoch++ // invalidate the read loop so it does not reconnect
	if m.conn != nil {
		m.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		m.conn.Close()
		m.conn = nil
	}
	m.state = StateDisconnected
	m.mu.Unlock()
	m.log.Info("channel disconnected")
}

// Close shuts the manager down permanently.
func (m *ChannelManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.epoch++
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = StateDisconnected
	m.mu.Unlock()
}
