package chathub_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"mingle/backend/internal/chathub"
	"mingle/backend/internal/models"
	"mingle/backend/internal/storage"
)

// Short timers so the expiry-driven paths stay fast in tests.
const (
	testTypingExpiry = 50 * time.Millisecond
	testRingTimeout  = 80 * time.Millisecond
	settleDelay      = 150 * time.Millisecond
)

// MockDirectory is a testify mock of the directory.Directory interface.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) RecordSystemMessage(chatID, content, msgType string) error {
	args := m.Called(chatID, content, msgType)
	return args.Error(0)
}

func (m *MockDirectory) GetUserByID(userID string) (*models.User, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockStore is a testify mock of the storage.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) MarkUnread(userID, chatID, messageID string) (bool, error) {
	args := m.Called(userID, chatID, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) ClearUnread(userID, chatID string) error {
	args := m.Called(userID, chatID)
	return args.Error(0)
}

func (m *MockStore) SetOnline(userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockStore) SetLastSeen(userID string, at time.Time) error {
	args := m.Called(userID, at)
	return args.Error(0)
}

func (m *MockStore) PublishRoomEvent(env storage.RoomEnvelope) error {
	args := m.Called(env)
	return args.Error(0)
}

// stubVerifier accepts any token of the form "token-<user>" and rejects
// everything else.
type stubVerifier struct{}

func (stubVerifier) Verify(token string) (string, error) {
	const prefix = "token-"
	if len(token) > len(prefix) && token[:len(prefix)] == prefix {
		return token[len(prefix):], nil
	}
	return "", chathub.ErrAuthRejected
}

// mockClient is a test double for the chathub.Client interface. Received
// events accumulate in a buffered channel for later inspection.
type mockClient struct {
	id     string
	mu     sync.Mutex
	userID string
	closed bool
	recv   chan models.Event
}

func newMockClient(id string) *mockClient {
	return &mockClient{
		id:   id,
		recv: make(chan models.Event, 64),
	}
}

func (c *mockClient) GetID() string { return c.id }

func (c *mockClient) GetUserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *mockClient) SetUserID(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

func (c *mockClient) Send(ev models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.recv <- ev:
		return true
	default:
		return false
	}
}

func (c *mockClient) Run() {}

func (c *mockClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *mockClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// drain returns every event received so far.
func (c *mockClient) drain() []models.Event {
	var events []models.Event
	for {
		select {
		case ev := <-c.recv:
			events = append(events, ev)
		default:
			return events
		}
	}
}

// countNamed reports how many of the given events carry the name.
func countNamed(events []models.Event, name string) int {
	n := 0
	for _, ev := range events {
		if ev.Name == name {
			n++
		}
	}
	return n
}

// firstNamed returns the first event with the name, if any.
func firstNamed(events []models.Event, name string) (models.Event, bool) {
	for _, ev := range events {
		if ev.Name == name {
			return ev, true
		}
	}
	return models.Event{}, false
}

func jsonUnmarshal(raw json.RawMessage, into any) error {
	return json.Unmarshal(raw, into)
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

// newTestHub builds a hub with the stub verifier, fast timers, and no
// Redis store. Pending ring timers are cancelled at test end so a call
// left ringing cannot fire into a later test's mock.
func newTestHub(t *testing.T, dir *MockDirectory) *chathub.Hub {
	t.Helper()
	h := chathub.NewHubWithTimeouts(stubVerifier{}, dir, nil, nil, testTypingExpiry, testRingTimeout)
	t.Cleanup(h.Calls.Stop)
	return h
}

// setupClient runs a connection through the setup handshake and drops the
// connected ack so individual tests start from a clean event stream.
func setupClient(t *testing.T, h *chathub.Hub, connID, userID string) *mockClient {
	t.Helper()
	c := newMockClient(connID)
	h.HandleEvent(c, models.Event{
		Name:    models.EventSetup,
		Payload: mustMarshal(t, models.SetupPayload{Token: "token-" + userID}),
	})
	events := c.drain()
	if countNamed(events, models.EventConnected) != 1 {
		t.Fatalf("setup of %s: expected connected ack, got %+v", connID, events)
	}
	return c
}

// joinChat sends a "join chat" event for the client.
func joinChat(t *testing.T, h *chathub.Hub, c *mockClient, chatID string) {
	t.Helper()
	h.HandleEvent(c, models.Event{
		Name:    models.EventJoinChat,
		Payload: mustMarshal(t, models.JoinChatPayload{ChatID: chatID}),
	})
}
