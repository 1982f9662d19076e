// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package collab manages websocket collaboration channels between
// reasoning sessions and their observers: connection lifecycle with
// exponential-backoff reconnection, topic subscriptions, and ordered
// replay of messages queued while disconnected.
package collab

import (
	"encoding/json"
	"time"
)

// Reserved envelope types used by the channel protocol itself.
const (
	// TypeSubscribe tells the remote side to route a topic here.
	TypeSubscribe = "subscribe"
	// TypeUnsubscribe reverses a subscription.
	TypeUnsubscribe = "unsubscribe"
	// TypeSessionCreated is the hub's first message on a new
	// connection, carrying the session id.
	TypeSessionCreated = "session_created"
)

// Envelope is the wire format for every channel message.
type Envelope struct {
	// Type routes the message, e.g. "thought_added".
	Type string `json:"type"`

	// Topic scopes the message to a subscription, typically a
	// project id. Empty for protocol messages.
	Topic string `json:"topic,omitempty"`

	// Payload is the message body, left opaque so producers and
	// consumers agree on structure without this package caring.
	Payload json.RawMessage `json:"payload,omitempty"`

	// SentAt is stamped by the sender.
	SentAt time.Time `json:"sent_at,omitempty"`
}

// NewEnvelope builds an envelope with a marshaled payload.
func NewEnvelope(msgType, topic string, payload any) (Envelope, error) {
	env := Envelope{Type: msgType, Topic: topic, SentAt: time.Now()}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}
