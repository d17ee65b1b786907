package chathub_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"mingle/backend/internal/chathub"
	"mingle/backend/internal/models"
)

// fakeAlerter captures missed-call alerts; they fire from a goroutine.
type fakeAlerter struct {
	mu    sync.Mutex
	calls []string
}

func (a *fakeAlerter) MissedCall(calleeID, callerName string, isVideo bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, calleeID)
}

func (a *fakeAlerter) alerted() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func callOffer(t *testing.T, callee, chatID string, video bool) models.Event {
	t.Helper()
	return models.Event{
		Name: models.EventCallUser,
		Payload: mustMarshal(t, models.CallOfferPayload{
			UserToCall: callee,
			SignalData: mustMarshal(t, map[string]string{"sdp": "offer"}),
			From:       "", // hub trusts the connection identity, not this field
			Name:       "Alice",
			ChatID:     chatID,
			IsVideo:    video,
		}),
	}
}

// ringSessionID extracts the session id from the callUser event a callee
// connection received.
func ringSessionID(t *testing.T, c *mockClient) string {
	t.Helper()
	ev, ok := firstNamed(c.drain(), models.EventCallUser)
	if !ok {
		t.Fatal("callee connection never rang")
	}
	var p models.CallRingPayload
	assert.NoError(t, jsonUnmarshal(ev.Payload, &p))
	assert.NotEmpty(t, p.SessionID)
	return p.SessionID
}

func TestCallInitiateRingsAllCalleeDevices(t *testing.T) {
	dir := new(MockDirectory)
	h := newTestHub(t, dir)

	a := setupClient(t, h, "conn-A", "user-A")
	b1 := setupClient(t, h, "conn-B1", "user-B")
	b2 := setupClient(t, h, "conn-B2", "user-B")

	h.HandleEvent(a, callOffer(t, "user-B", "c1", true))

	for _, tab := range []*mockClient{b1, b2} {
		ev, ok := firstNamed(tab.drain(), models.EventCallUser)
		assert.True(t, ok, "%s must ring", tab.GetID())
		var p models.CallRingPayload
		assert.NoError(t, jsonUnmarshal(ev.Payload, &p))
		assert.Equal(t, "user-A", p.From)
		assert.Equal(t, "Alice", p.Name)
		assert.True(t, p.IsVideo)
	}
}

func TestCallCalleeOffline(t *testing.T) {
	dir := new(MockDirectory)
	h := newTestHub(t, dir)

	a := setupClient(t, h, "conn-A", "user-A")
	h.HandleEvent(a, callOffer(t, "user-B", "c1", false))

	ev, ok := firstNamed(a.drain(), models.EventError)
	assert.True(t, ok)
	var p models.ErrorPayload
	assert.NoError(t, jsonUnmarshal(ev.Payload, &p))
	assert.Equal(t, "callee_offline", p.Code)
}

func TestCallPairBusy(t *testing.T) {
	dir := new(MockDirectory)
	h := newTestHub(t, dir)

	a := setupClient(t, h, "conn-A", "user-A")
	b := setupClient(t, h, "conn-B", "user-B")

	h.HandleEvent(a, callOffer(t, "user-B", "c1", false))
	b.drain()

	// Same pair, opposite direction, while the first is still Ringing.
	h.HandleEvent(b, callOffer(t, "user-A", "c1", false))

	ev, ok := firstNamed(b.drain(), models.EventError)
	assert.True(t, ok, "second call for the pair must be rejected")
	var p models.ErrorPayload
	assert.NoError(t, jsonUnmarshal(ev.Payload, &p))
	assert.Equal(t, "callee_busy", p.Code)
}

func TestCallAnswerFlow(t *testing.T) {
	dir := new(MockDirectory)
	h := newTestHub(t, dir)

	a := setupClient(t, h, "conn-A", "user-A")
	b1 := setupClient(t, h, "conn-B1", "user-B")
	b2 := setupClient(t, h, "conn-B2", "user-B")

	h.HandleEvent(a, callOffer(t, "user-B", "c1", true))
	sessionID := ringSessionID(t, b1)
	b2.drain()

	h.HandleEvent(b1, models.Event{
		Name: models.EventAnswerCall,
		Payload: mustMarshal(t, models.CallAnswerPayload{
			SessionID: sessionID,
			Signal:    mustMarshal(t, map[string]string{"sdp": "answer"}),
			To:        "user-A",
		}),
	})

	accepted, ok := firstNamed(a.drain(), models.EventCallAccepted)
	assert.True(t, ok, "caller must receive the answer")
	var ap models.CallAcceptedPayload
	assert.NoError(t, jsonUnmarshal(accepted.Payload, &ap))
	assert.Equal(t, sessionID, ap.SessionID)

	// The sibling tab that did not answer is told to stop ringing.
	ended, ok := firstNamed(b2.drain(), models.EventCallEnded)
	assert.True(t, ok)
	var ep models.CallEndedPayload
	assert.NoError(t, jsonUnmarshal(ended.Payload, &ep))
	assert.Equal(t, models.CallEndReasonAnsweredElsewhere, ep.Reason)

	assert.Empty(t, countNamed(b1.drain(), models.EventCallEnded), "the answering tab keeps the call")

	// Hangup after Connected is a normal end: no missed-call record.
	h.HandleEvent(a, models.Event{
		Name:    models.EventLeaveCall,
		Payload: mustMarshal(t, models.CallHangupPayload{SessionID: sessionID}),
	})
	ended, ok = firstNamed(b1.drain(), models.EventCallEnded)
	assert.True(t, ok)
	assert.NoError(t, jsonUnmarshal(ended.Payload, &ep))
	assert.Equal(t, models.CallEndReasonHangup, ep.Reason)
	dir.AssertNotCalled(t, "RecordSystemMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestCallCallerHangupWhileRingingIsMissed(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("RecordSystemMessage", "c1", "Missed Video Call", models.MessageTypeCallMissed).Return(nil).Once()
	alerts := &fakeAlerter{}
	h := chathub.NewHubWithTimeouts(stubVerifier{}, dir, nil, alerts, testTypingExpiry, testRingTimeout)

	a := setupClient(t, h, "conn-A", "user-A")
	b := setupClient(t, h, "conn-B", "user-B")

	h.HandleEvent(a, callOffer(t, "user-B", "c1", true))
	sessionID := ringSessionID(t, b)

	h.HandleEvent(a, models.Event{
		Name:    models.EventLeaveCall,
		Payload: mustMarshal(t, models.CallHangupPayload{SessionID: sessionID}),
	})

	ended, ok := firstNamed(b.drain(), models.EventCallEnded)
	assert.True(t, ok)
	var ep models.CallEndedPayload
	assert.NoError(t, jsonUnmarshal(ended.Payload, &ep))
	assert.Equal(t, models.CallEndReasonMissed, ep.Reason)

	time.Sleep(settleDelay)
	dir.AssertExpectations(t)
	assert.Equal(t, []string{"user-B"}, alerts.alerted())
}

func TestCallRingTimeoutMissedExactlyOnce(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("RecordSystemMessage", "c1", "Missed Call", models.MessageTypeCallMissed).Return(nil)
	h := newTestHub(t, dir)

	a := setupClient(t, h, "conn-A", "user-A")
	b := setupClient(t, h, "conn-B", "user-B")

	h.HandleEvent(a, callOffer(t, "user-B", "c1", false))
	sessionID := ringSessionID(t, b)

	time.Sleep(testRingTimeout + settleDelay)

	events := a.drain()
	assert.Equal(t, 1, countNamed(events, models.EventCallEnded), "timeout must end the call exactly once")
	ended, _ := firstNamed(events, models.EventCallEnded)
	var ep models.CallEndedPayload
	assert.NoError(t, jsonUnmarshal(ended.Payload, &ep))
	assert.Equal(t, models.CallEndReasonMissed, ep.Reason)
	dir.AssertNumberOfCalls(t, "RecordSystemMessage", 1)

	// A late hangup for the dead session is rejected, not re-processed.
	h.HandleEvent(a, models.Event{
		Name:    models.EventLeaveCall,
		Payload: mustMarshal(t, models.CallHangupPayload{SessionID: sessionID}),
	})
	ev, ok := firstNamed(a.drain(), models.EventError)
	assert.True(t, ok)
	var p models.ErrorPayload
	assert.NoError(t, jsonUnmarshal(ev.Payload, &p))
	assert.Equal(t, "invalid_session_state", p.Code)
	dir.AssertNumberOfCalls(t, "RecordSystemMessage", 1)
}

func TestCallCalleeDisconnectWhileRingingIsMissed(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("RecordSystemMessage", "c1", "Missed Video Call", models.MessageTypeCallMissed).Return(nil).Once()
	h := newTestHub(t, dir)

	a := setupClient(t, h, "conn-A", "user-A")
	b := setupClient(t, h, "conn-B", "user-B")

	h.HandleEvent(a, callOffer(t, "user-B", "c1", true))
	ringSessionID(t, b)

	h.HandleDisconnect(b)

	ended, ok := firstNamed(a.drain(), models.EventCallEnded)
	assert.True(t, ok, "caller must learn the callee vanished")
	var ep models.CallEndedPayload
	assert.NoError(t, jsonUnmarshal(ended.Payload, &ep))
	assert.Equal(t, models.CallEndReasonMissed, ep.Reason)
	dir.AssertExpectations(t)
}

func TestCallDisconnectWhileConnectedIsNormalEnd(t *testing.T) {
	dir := new(MockDirectory)
	h := newTestHub(t, dir)

	a := setupClient(t, h, "conn-A", "user-A")
	b := setupClient(t, h, "conn-B", "user-B")

	h.HandleEvent(a, callOffer(t, "user-B", "c1", false))
	sessionID := ringSessionID(t, b)
	h.HandleEvent(b, models.Event{
		Name: models.EventAnswerCall,
		Payload: mustMarshal(t, models.CallAnswerPayload{
			SessionID: sessionID,
			Signal:    mustMarshal(t, map[string]string{"sdp": "answer"}),
		}),
	})
	a.drain()

	h.HandleDisconnect(b)

	ended, ok := firstNamed(a.drain(), models.EventCallEnded)
	assert.True(t, ok)
	var ep models.CallEndedPayload
	assert.NoError(t, jsonUnmarshal(ended.Payload, &ep))
	assert.Equal(t, models.CallEndReasonHangup, ep.Reason)
	dir.AssertNotCalled(t, "RecordSystemMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestCallSecondDeviceStillRingingDoesNotMiss(t *testing.T) {
	// One callee tab disconnecting while another still rings must not end
	// the session: the user is still reachable.
	dir := new(MockDirectory)
	h := newTestHub(t, dir)

	a := setupClient(t, h, "conn-A", "user-A")
	b1 := setupClient(t, h, "conn-B1", "user-B")
	b2 := setupClient(t, h, "conn-B2", "user-B")

	h.HandleEvent(a, callOffer(t, "user-B", "c1", true))
	sessionID := ringSessionID(t, b1)
	ringSessionID(t, b2)

	h.HandleDisconnect(b2)
	assert.Zero(t, countNamed(a.drain(), models.EventCallEnded))

	// The surviving tab can still answer.
	h.HandleEvent(b1, models.Event{
		Name: models.EventAnswerCall,
		Payload: mustMarshal(t, models.CallAnswerPayload{
			SessionID: sessionID,
			Signal:    mustMarshal(t, map[string]string{"sdp": "answer"}),
		}),
	})
	assert.Equal(t, 1, countNamed(a.drain(), models.EventCallAccepted))
}

func TestCallAnswerByNonCalleeRejected(t *testing.T) {
	dir := new(MockDirectory)
	h := newTestHub(t, dir)

	a := setupClient(t, h, "conn-A", "user-A")
	b := setupClient(t, h, "conn-B", "user-B")
	eve := setupClient(t, h, "conn-E", "user-E")

	h.HandleEvent(a, callOffer(t, "user-B", "c1", false))
	sessionID := ringSessionID(t, b)

	h.HandleEvent(eve, models.Event{
		Name: models.EventAnswerCall,
		Payload: mustMarshal(t, models.CallAnswerPayload{
			SessionID: sessionID,
			Signal:    mustMarshal(t, map[string]string{"sdp": "answer"}),
		}),
	})

	ev, ok := firstNamed(eve.drain(), models.EventError)
	assert.True(t, ok)
	var p models.ErrorPayload
	assert.NoError(t, jsonUnmarshal(ev.Payload, &p))
	assert.Equal(t, "invalid_session_state", p.Code)
	assert.Zero(t, countNamed(a.drain(), models.EventCallAccepted), "session must be untouched")
}

func TestCallTerminateByNonParticipantRejected(t *testing.T) {
	dir := new(MockDirectory)
	h := newTestHub(t, dir)

	a := setupClient(t, h, "conn-A", "user-A")
	b := setupClient(t, h, "conn-B", "user-B")
	eve := setupClient(t, h, "conn-E", "user-E")

	h.HandleEvent(a, callOffer(t, "user-B", "c1", false))
	sessionID := ringSessionID(t, b)

	err := h.Calls.Terminate(eve, sessionID)
	assert.ErrorIs(t, err, chathub.ErrInvalidSessionState)
	assert.Zero(t, countNamed(a.drain(), models.EventCallEnded))
}
