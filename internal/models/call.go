package models

import (
	"encoding/json"
	"time"
)

// CallState is the lifecycle of a signaling session. A session only ever
// moves forward: Ringing -> Connected -> Ended, or Ringing -> Ended.
type CallState int

const (
	CallRinging CallState = iota
	CallConnected
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallRinging:
		return "ringing"
	case CallConnected:
		return "connected"
	case CallEnded:
		return "ended"
	}
	return "unknown"
}

// CallSession is one brokered call between exactly two users. The hub only
// relays Offer/Answer blobs; it never inspects them.
type CallSession struct {
	ID         string
	CallerID   string
	CalleeID   string
	CallerName string
	ChatID     string
	Offer      json.RawMessage
	Answer     json.RawMessage
	State      CallState
	Missed     bool
	IsVideo    bool
	StartedAt  time.Time
}
