// Package chathub is the realtime coordination hub: it keeps every live
// websocket connection informed of the others in real time. Message
// fan-out, typing presence, unread notification bookkeeping, and the call
// signaling relay all live here. Persistence stays with the Directory
// Service; the hub only notifies it.
package chathub

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mingle/backend/internal/auth"
	"mingle/backend/internal/config"
	"mingle/backend/internal/directory"
	"mingle/backend/internal/models"
	"mingle/backend/internal/storage"
)

// Hub owns the shared mutable state of the realtime layer. It is created
// at process start and torn down at shutdown by closing every connection;
// nothing in it is module-level.
type Hub struct {
	id string

	Registry *Registry
	Rooms    *RoomTable
	Typing   *TypingTracker
	Calls    *CallRelay
	Dispatch *Dispatcher

	verifier auth.TokenVerifier
	dir      directory.Directory
	store    storage.Store // nil when running without Redis
}

// NewHub wires the hub with the default timing constants.
func NewHub(verifier auth.TokenVerifier, dir directory.Directory, store storage.Store, alerts MissedCallAlerter) *Hub {
	return NewHubWithTimeouts(verifier, dir, store, alerts, config.TypingExpiry, config.RingTimeout)
}

// NewHubWithTimeouts exposes the typing window and ring timeout, which
// tests shrink to keep timer-driven paths fast.
func NewHubWithTimeouts(verifier auth.TokenVerifier, dir directory.Directory, store storage.Store, alerts MissedCallAlerter, typingExpiry, ringTimeout time.Duration) *Hub {
	h := &Hub{
		id:       uuid.New().String(),
		Registry: NewRegistry(),
		Rooms:    NewRoomTable(),
		verifier: verifier,
		dir:      dir,
		store:    store,
	}
	h.Dispatch = NewDispatcher(h.disconnect)
	h.Typing = NewTypingTracker(typingExpiry, h.broadcastTyping)
	h.Calls = NewCallRelay(ringTimeout, h.Registry, h.Dispatch, dir, alerts)
	return h
}

// HandleEvent routes one inbound event from a connection. Each connection
// feeds events from a single read pump, so per-connection ordering is
// arrival order. Errors are reported only to the connection that caused
// them.
func (h *Hub) HandleEvent(c Client, ev models.Event) {
	if ev.Name != models.EventSetup && c.GetUserID() == "" {
		h.sendError(c, ErrAuthRejected, "setup required before "+ev.Name)
		return
	}

	switch ev.Name {
	case models.EventSetup:
		h.handleSetup(c, ev.Payload)

	case models.EventJoinChat:
		var p models.JoinChatPayload
		if !h.decode(c, ev, &p) {
			return
		}
		h.Rooms.Join(c, p.ChatID)
		if h.store != nil {
			if err := h.store.ClearUnread(c.GetUserID(), p.ChatID); err != nil {
				log.Printf("hub: clear unread for %s in %s: %v", c.GetUserID(), p.ChatID, err)
			}
		}

	case models.EventTyping:
		var p models.TypingPayload
		if !h.decode(c, ev, &p) {
			return
		}
		h.Typing.Typing(p.ChatID, c.GetUserID())

	case models.EventStopTyping:
		var p models.TypingPayload
		if !h.decode(c, ev, &p) {
			return
		}
		h.Typing.StopTyping(p.ChatID, c.GetUserID())

	case models.EventNewMessage:
		var p models.MessagePayload
		if !h.decode(c, ev, &p) {
			return
		}
		h.handleNewMessage(c, p)

	case models.EventCallUser:
		var p models.CallOfferPayload
		if !h.decode(c, ev, &p) {
			return
		}
		if _, err := h.Calls.Initiate(c, p); err != nil {
			h.sendError(c, err, "call to "+p.UserToCall)
		}

	case models.EventAnswerCall:
		var p models.CallAnswerPayload
		if !h.decode(c, ev, &p) {
			return
		}
		if err := h.Calls.Answer(c, p); err != nil {
			h.sendError(c, err, "answer "+p.SessionID)
		}

	case models.EventLeaveCall:
		var p models.CallHangupPayload
		if !h.decode(c, ev, &p) {
			return
		}
		if err := h.Calls.Terminate(c, p.SessionID); err != nil {
			h.sendError(c, err, "leave "+p.SessionID)
		}

	default:
		log.Printf("hub: unknown event %q from connection %s", ev.Name, c.GetID())
	}
}

// handleSetup verifies the presented token and binds the connection.
// Re-sending setup on an already-bound connection just re-acks.
func (h *Hub) handleSetup(c Client, payload json.RawMessage) {
	if c.GetUserID() != "" {
		h.Dispatch.Deliver([]Client{c}, models.EventConnected, nil)
		return
	}

	var p models.SetupPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.sendError(c, ErrAuthRejected, "malformed setup payload")
		c.Close()
		return
	}

	userID, err := h.verifier.Verify(p.Token)
	if err != nil {
		log.Printf("hub: setup rejected for connection %s: %v", c.GetID(), err)
		h.sendError(c, ErrAuthRejected, "token verification failed")
		c.Close()
		return
	}

	c.SetUserID(userID)
	h.Registry.Add(c)
	if h.store != nil {
		if err := h.store.SetOnline(userID); err != nil {
			log.Printf("hub: set online for %s: %v", userID, err)
		}
	}
	h.Dispatch.Deliver([]Client{c}, models.EventConnected, nil)
	log.Printf("hub: connection %s bound to user %s", c.GetID(), userID)
}

// handleNewMessage fans an already-persisted message out to the chat's
// room and records unread notifications for participants who are not
// watching it. The sender's own connection is skipped; their other devices
// still receive the message for sync.
func (h *Hub) handleNewMessage(c Client, p models.MessagePayload) {
	members := h.Rooms.MembersOf(p.ChatID)
	h.Dispatch.DeliverExcept(members, c.GetID(), models.EventMessageReceived, p)
	h.publishRoom(p.ChatID, models.EventMessageReceived, p)

	inRoom := make(map[string]struct{}, len(members))
	for _, m := range members {
		inRoom[m.GetUserID()] = struct{}{}
	}

	for _, userID := range p.ChatUsers {
		if userID == p.SenderID {
			continue
		}
		if _, watching := inRoom[userID]; watching {
			continue
		}
		fresh := true
		if h.store != nil {
			var err error
			fresh, err = h.store.MarkUnread(userID, p.ChatID, p.MessageID)
			if err != nil {
				log.Printf("hub: mark unread %s for %s: %v", p.MessageID, userID, err)
				continue
			}
		}
		if !fresh {
			continue
		}
		h.Dispatch.Deliver(h.Registry.ConnectionsFor(userID), models.EventNotification, models.NotificationPayload{
			MessageID:  p.MessageID,
			ChatID:     p.ChatID,
			SenderName: p.SenderName,
		})
	}
}

// broadcastTyping is the typing tracker's edge callback. The subject is a
// user, so every connection of that user is excluded from the notice.
func (h *Hub) broadcastTyping(roomID, userID string, typing bool) {
	name := models.EventStopTyping
	if typing {
		name = models.EventTyping
	}
	notice := models.TypingNotice{ChatID: roomID, UserID: userID}

	members := h.Rooms.MembersOf(roomID)
	targets := make([]Client, 0, len(members))
	for _, m := range members {
		if m.GetUserID() != userID {
			targets = append(targets, m)
		}
	}
	h.Dispatch.Deliver(targets, name, notice)
	h.publishRoom(roomID, name, notice)
}

// HandleDisconnect is invoked by a client's read pump when the transport
// reports the connection gone, gracefully or not.
func (h *Hub) HandleDisconnect(c Client) {
	h.disconnect(c)
}

// disconnect tears one connection down: registry, room memberships,
// presence, and any call session left dangling by the user's last
// connection. Safe to call more than once for the same connection.
func (h *Hub) disconnect(c Client) {
	c.Close()

	removed, lastOfUser, ok := h.Registry.Remove(c.GetID())
	if !ok {
		return
	}
	h.Rooms.LeaveAll(c.GetID())

	if lastOfUser {
		userID := removed.GetUserID()
		if h.store != nil {
			if err := h.store.SetLastSeen(userID, time.Now()); err != nil {
				log.Printf("hub: set last seen for %s: %v", userID, err)
			}
		}
		h.Calls.UserOffline(userID)
	}
	log.Printf("hub: connection %s closed (user %s)", c.GetID(), removed.GetUserID())
}

// publishRoom forwards a room-scoped event to sibling hub instances over
// the Redis bridge. Best-effort; a single-instance deployment runs with a
// nil store and skips it.
func (h *Hub) publishRoom(roomID, name string, payload any) {
	if h.store == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	env := storage.RoomEnvelope{
		Origin: h.id,
		RoomID: roomID,
		Event:  models.Event{Name: name, Payload: raw},
	}
	if err := h.store.PublishRoomEvent(env); err != nil {
		log.Printf("hub: publish room event %q for %s: %v", name, roomID, err)
	}
}

// StartRoomEventBridge consumes room events published by sibling hub
// instances and delivers them to local room members. Own echoes are
// dropped by origin id.
func (h *Hub) StartRoomEventBridge(ps *redis.PubSub) {
	go func() {
		for msg := range ps.Channel() {
			var env storage.RoomEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("hub: bad bridge payload: %v", err)
				continue
			}
			if env.Origin == h.id {
				continue
			}
			for _, c := range h.Rooms.MembersOf(env.RoomID) {
				if !c.Send(env.Event) {
					go h.disconnect(c)
				}
			}
		}
	}()
}

// Shutdown cancels every timer and closes every live connection.
func (h *Hub) Shutdown() {
	h.Typing.Stop()
	h.Calls.Stop()
	for _, c := range h.Registry.All() {
		h.disconnect(c)
	}
	log.Println("hub: shut down")
}

// decode unmarshals an event payload, reporting a malformed one back to
// the offending connection only.
func (h *Hub) decode(c Client, ev models.Event, into any) bool {
	if err := json.Unmarshal(ev.Payload, into); err != nil {
		h.sendError(c, fmt.Errorf("malformed %q payload: %w", ev.Name, err), ev.Name)
		return false
	}
	return true
}

func (h *Hub) sendError(c Client, err error, context string) {
	h.Dispatch.Deliver([]Client{c}, models.EventError, models.ErrorPayload{
		Code:    errorCode(err),
		Message: context,
	})
}
