package models

import "encoding/json"

// Event is the wire envelope for everything crossing a websocket, in both
// directions. Payload stays raw until the hub knows which handler owns it;
// signaling payloads (SDP offers/answers) are relayed opaque, never parsed.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound event names (client -> hub).
const (
	EventSetup      = "setup"
	EventJoinChat   = "join chat"
	EventTyping     = "typing"
	EventStopTyping = "stop typing"
	EventNewMessage = "new message"
	EventCallUser   = "callUser"
	EventAnswerCall = "answerCall"
	EventLeaveCall  = "leaveCall"
)

// Outbound event names (hub -> client).
const (
	EventConnected       = "connected"
	EventMessageReceived = "message received"
	EventNotification    = "notification"
	EventCallAccepted    = "callAccepted"
	EventCallEnded       = "callEnded"
	EventError           = "error"
	// EventTyping, EventStopTyping and EventCallUser are reused verbatim
	// on the outbound side, matching the client protocol.
)

// Reasons carried by a callEnded payload.
const (
	CallEndReasonHangup            = "hangup"
	CallEndReasonMissed            = "missed"
	CallEndReasonAnsweredElsewhere = "answered_elsewhere"
)

type SetupPayload struct {
	Token string `json:"token"`
}

type JoinChatPayload struct {
	ChatID string `json:"chatId"`
}

type TypingPayload struct {
	ChatID string `json:"chatId"`
}

// MessagePayload is the already-persisted message record handed to the hub
// for fan-out. ChatUsers carries the chat's participant list so the hub
// never has to ask the Directory Service who should be notified.
type MessagePayload struct {
	MessageID  string   `json:"messageId"`
	ChatID     string   `json:"chatId"`
	SenderID   string   `json:"senderId"`
	SenderName string   `json:"senderName,omitempty"`
	Content    string   `json:"content"`
	Type       string   `json:"type"`
	ChatUsers  []string `json:"chatUsers"`
}

type CallOfferPayload struct {
	UserToCall string          `json:"userToCall"`
	SignalData json.RawMessage `json:"signalData"`
	From       string          `json:"from"`
	Name       string          `json:"name"`
	ChatID     string          `json:"chatId"`
	IsVideo    bool            `json:"isVideo"`
}

type CallAnswerPayload struct {
	SessionID string          `json:"sessionId"`
	Signal    json.RawMessage `json:"signal"`
	To        string          `json:"to"`
}

type CallHangupPayload struct {
	SessionID string `json:"sessionId"`
}

// CallRingPayload is fanned out to every callee connection on initiate.
type CallRingPayload struct {
	SessionID string          `json:"sessionId"`
	Signal    json.RawMessage `json:"signal"`
	From      string          `json:"from"`
	Name      string          `json:"name"`
	IsVideo   bool            `json:"isVideo"`
}

type CallAcceptedPayload struct {
	SessionID string          `json:"sessionId"`
	Signal    json.RawMessage `json:"signal"`
}

type CallEndedPayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

// TypingNotice tells room members who is typing where.
type TypingNotice struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// NotificationPayload marks a message unread for a user not watching the
// chat. Deduplicated by MessageID.
type NotificationPayload struct {
	MessageID  string `json:"messageId"`
	ChatID     string `json:"chatId"`
	SenderName string `json:"senderName,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
