// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collab

import "errors"

// Sentinel errors for the collab package.
var (
	// ErrNotConnected is returned by SendMessage when the channel is
	// not in the connected state. The message is still queued for
	// replay after reconnection.
	ErrNotConnected = errors.New("channel not connected")

	// ErrAlreadyConnecting is returned by Connect when a connection
	// attempt is already in flight.
	ErrAlreadyConnecting = errors.New("connection attempt already in progress")

	// ErrInvalidScheme is returned by Connect for URLs that are not
	// ws:// or wss://.
	ErrInvalidScheme = errors.New("channel URL scheme must be ws or wss")

	// ErrClosed is returned after Close; a closed manager never
	// reconnects.
	ErrClosed = errors.New("channel manager closed")

	// ErrEmptyType is returned by SendMessage for messages without a
	// type, which the receiving side could not route.
	ErrEmptyType = errors.New("message type must not be empty")
)
