package config

import "time"

const (
	// Typing presence
	TypingExpiry = 3 * time.Second

	// Call signaling
	RingTimeout = 60 * time.Second

	// WebSocket pumps
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 64 * 1024 // signaling offers carry full SDP blobs

	// Per-connection outbound buffer. A connection that falls this far
	// behind is treated as dead and unregistered.
	SendBufferSize = 256
)
