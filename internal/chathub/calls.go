package chathub

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"mingle/backend/internal/directory"
	"mingle/backend/internal/models"
)

// MissedCallAlerter pushes an out-of-band alert (e.g. Telegram) to a user
// who missed a call. Best-effort; a nil alerter disables it.
type MissedCallAlerter interface {
	MissedCall(calleeID, callerName string, isVideo bool)
}

// pairKey identifies the unordered (caller, callee) pair. At most one
// active session exists per pair.
type pairKey struct {
	a, b string
}

func newPairKey(u1, u2 string) pairKey {
	if u1 < u2 {
		return pairKey{u1, u2}
	}
	return pairKey{u2, u1}
}

// CallRelay brokers call setup between exactly two users. It owns every
// CallSession and its state machine; all its side effects leave through
// the dispatcher after the state transition is committed, so no session
// lock is ever held across a delivery.
type CallRelay struct {
	mu       sync.Mutex
	sessions map[string]*models.CallSession
	pairs    map[pairKey]string // pair -> active session id
	timers   map[string]*time.Timer

	ringTimeout time.Duration

	registry *Registry
	dispatch *Dispatcher
	dir      directory.Directory
	alerts   MissedCallAlerter
}

func NewCallRelay(ringTimeout time.Duration, registry *Registry, dispatch *Dispatcher, dir directory.Directory, alerts MissedCallAlerter) *CallRelay {
	return &CallRelay{
		sessions:    make(map[string]*models.CallSession),
		pairs:       make(map[pairKey]string),
		timers:      make(map[string]*time.Timer),
		ringTimeout: ringTimeout,
		registry:    registry,
		dispatch:    dispatch,
		dir:         dir,
		alerts:      alerts,
	}
}

// Initiate creates a Ringing session and rings every connection the callee
// holds. It fails with ErrCalleeBusy when a session between the pair is
// already active, and ErrCalleeOffline when the callee has no connections.
func (r *CallRelay) Initiate(caller Client, p models.CallOfferPayload) (*models.CallSession, error) {
	callerID := caller.GetUserID()
	calleeConns := r.registry.ConnectionsFor(p.UserToCall)
	if len(calleeConns) == 0 {
		return nil, ErrCalleeOffline
	}

	r.mu.Lock()
	pair := newPairKey(callerID, p.UserToCall)
	if _, busy := r.pairs[pair]; busy {
		r.mu.Unlock()
		return nil, ErrCalleeBusy
	}

	s := &models.CallSession{
		ID:         uuid.New().String(),
		CallerID:   callerID,
		CalleeID:   p.UserToCall,
		CallerName: p.Name,
		ChatID:     p.ChatID,
		Offer:      p.SignalData,
		State:      models.CallRinging,
		IsVideo:    p.IsVideo,
		StartedAt:  time.Now(),
	}
	r.sessions[s.ID] = s
	r.pairs[pair] = s.ID
	sessionID := s.ID
	r.timers[s.ID] = time.AfterFunc(r.ringTimeout, func() { r.ringTimedOut(sessionID) })
	r.mu.Unlock()

	r.dispatch.Deliver(calleeConns, models.EventCallUser, models.CallRingPayload{
		SessionID: s.ID,
		Signal:    s.Offer,
		From:      s.CallerID,
		Name:      s.CallerName,
		IsVideo:   s.IsVideo,
	})
	log.Printf("call %s: %s ringing %s (video=%v)", s.ID, s.CallerID, s.CalleeID, s.IsVideo)
	return s, nil
}

// Answer transitions a Ringing session to Connected. Only a connection of
// the callee may answer; anything else is rejected with
// ErrInvalidSessionState and the session is left untouched.
func (r *CallRelay) Answer(c Client, p models.CallAnswerPayload) error {
	r.mu.Lock()
	s, ok := r.sessions[p.SessionID]
	if !ok || s.State != models.CallRinging || c.GetUserID() != s.CalleeID {
		r.mu.Unlock()
		return fmt.Errorf("answer call %s: %w", p.SessionID, ErrInvalidSessionState)
	}
	s.Answer = p.Signal
	s.State = models.CallConnected
	r.stopTimerLocked(s.ID)
	r.mu.Unlock()

	callerConns := r.registry.ConnectionsFor(s.CallerID)
	r.dispatch.Deliver(callerConns, models.EventCallAccepted, models.CallAcceptedPayload{
		SessionID: s.ID,
		Signal:    p.Signal,
	})

	// The call was answered on this device; any sibling device still
	// ringing is told to stand down.
	calleeConns := r.registry.ConnectionsFor(s.CalleeID)
	r.dispatch.DeliverExcept(calleeConns, c.GetID(), models.EventCallEnded, models.CallEndedPayload{
		SessionID: s.ID,
		Reason:    models.CallEndReasonAnsweredElsewhere,
	})
	log.Printf("call %s: answered by %s", s.ID, s.CalleeID)
	return nil
}

// Terminate ends a session on behalf of one of its participants, from
// Ringing or Connected. A caller hanging up while still Ringing is a
// missed call.
func (r *CallRelay) Terminate(c Client, sessionID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok || s.State == models.CallEnded {
		r.mu.Unlock()
		return fmt.Errorf("terminate call %s: %w", sessionID, ErrInvalidSessionState)
	}
	userID := c.GetUserID()
	if userID != s.CallerID && userID != s.CalleeID {
		r.mu.Unlock()
		return fmt.Errorf("terminate call %s: %w", sessionID, ErrInvalidSessionState)
	}
	missed := s.State == models.CallRinging && userID == s.CallerID
	r.endLocked(s, missed)
	r.mu.Unlock()

	r.afterEnd(s, c.GetID())
	return nil
}

// UserOffline force-terminates every active session the user participates
// in, after their last connection disappeared without a graceful hangup.
// Missed if still Ringing, a normal end once Connected.
func (r *CallRelay) UserOffline(userID string) {
	r.mu.Lock()
	var ended []*models.CallSession
	for _, s := range r.sessions {
		if s.State == models.CallEnded || (s.CallerID != userID && s.CalleeID != userID) {
			continue
		}
		r.endLocked(s, s.State == models.CallRinging)
		ended = append(ended, s)
	}
	r.mu.Unlock()

	for _, s := range ended {
		r.afterEnd(s, "")
	}
}

// ringTimedOut fires when neither answer nor terminate arrived within the
// ring timeout. A timer racing an explicit transition loses cleanly: the
// state has already left Ringing and nothing happens.
func (r *CallRelay) ringTimedOut(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok || s.State != models.CallRinging {
		r.mu.Unlock()
		return
	}
	r.endLocked(s, true)
	r.mu.Unlock()

	log.Printf("call %s: ring timeout", sessionID)
	r.afterEnd(s, "")
}

// endLocked commits the transition to Ended and releases the pair slot.
// Exactly one goroutine can perform it for a given session, which is what
// makes the missed-call record exactly-once. Caller holds r.mu.
func (r *CallRelay) endLocked(s *models.CallSession, missed bool) {
	s.State = models.CallEnded
	s.Missed = missed
	delete(r.pairs, newPairKey(s.CallerID, s.CalleeID))
	delete(r.sessions, s.ID)
	r.stopTimerLocked(s.ID)
}

func (r *CallRelay) stopTimerLocked(sessionID string) {
	if timer, ok := r.timers[sessionID]; ok {
		timer.Stop()
		delete(r.timers, sessionID)
	}
}

// afterEnd performs the post-transition side effects: callEnded fan-out to
// both parties (minus the acting connection) and, for a missed outcome, the
// system-message record plus the offline alert.
func (r *CallRelay) afterEnd(s *models.CallSession, actingConnID string) {
	reason := models.CallEndReasonHangup
	if s.Missed {
		reason = models.CallEndReasonMissed
	}
	payload := models.CallEndedPayload{SessionID: s.ID, Reason: reason}

	r.dispatch.DeliverExcept(r.registry.ConnectionsFor(s.CallerID), actingConnID, models.EventCallEnded, payload)
	r.dispatch.DeliverExcept(r.registry.ConnectionsFor(s.CalleeID), actingConnID, models.EventCallEnded, payload)

	if !s.Missed {
		return
	}

	content := "Missed Call"
	if s.IsVideo {
		content = "Missed Video Call"
	}
	if err := r.dir.RecordSystemMessage(s.ChatID, content, models.MessageTypeCallMissed); err != nil {
		log.Printf("call %s: failed to record missed-call message: %v", s.ID, err)
	}
	if r.alerts != nil {
		go r.alerts.MissedCall(s.CalleeID, s.CallerName, s.IsVideo)
	}
}

// Stop cancels every pending ring timer. Used at hub shutdown.
func (r *CallRelay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, timer := range r.timers {
		timer.Stop()
		delete(r.timers, id)
	}
}
