package chathub_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vidmatch/backend/internal/chathub"
	"vidmatch/backend/internal/models"
	"vidmatch/backend/internal/storage"
)

// MockStorage is a testify mock of the storage.Storage interface.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) GetProfile(userID string) (*models.User, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) SaveUserIfNotExists(userID string) (*models.User, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) IsUserBanned(userID string) (bool, error) {
	args := m.Called(userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) IncrementUsage(userID string, delta storage.UsageDelta) error {
	args := m.Called(userID, delta)
	return args.Error(0)
}

func (m *MockStorage) TouchLastActive(userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockStorage) SaveCallRecord(rec *models.CallRecord) error {
	args := m.Called(rec)
	return args.Error(0)
}

// newPermissiveStorage returns a MockStorage that accepts every best-effort
// side effect. Tests that assert on a specific call add expectations on top.
func newPermissiveStorage() *MockStorage {
	s := new(MockStorage)
	s.On("GetProfile", mock.Anything).Return(nil, nil).Maybe()
	s.On("IncrementUsage", mock.Anything, mock.Anything).Return(nil).Maybe()
	s.On("TouchLastActive", mock.Anything).Return(nil).Maybe()
	s.On("SaveCallRecord", mock.Anything).Return(nil).Maybe()
	return s
}

// MockClient is a channel-backed test double for the chathub.Client
// interface. Events sent by the hub land in Recv.
type MockClient struct {
	userID string
	Recv   chan models.Event
}

func newMockClient(userID string) *MockClient {
	return &MockClient{
		userID: userID,
		Recv:   make(chan models.Event, 64),
	}
}

func (c *MockClient) GetUserID() string { return c.userID }

func (c *MockClient) GetSendChannel() chan<- models.Event { return c.Recv }

func (c *MockClient) Run() {}

func (c *MockClient) Close() {}

// Drain empties the receive channel and returns everything collected.
func (c *MockClient) Drain() []models.Event {
	var events []models.Event
	for {
		select {
		case ev := <-c.Recv:
			events = append(events, ev)
		default:
			return events
		}
	}
}

// WaitFor blocks until an event of the given type arrives, failing the test
// after a short deadline. Events of other types are discarded.
func (c *MockClient) WaitFor(t *testing.T, eventType string) models.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Recv:
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("client %s: timed out waiting for %q", c.userID, eventType)
			return models.Event{}
		}
	}
}

func eventTypes(events []models.Event) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func testProfile(id, gender string, age int) *models.User {
	return &models.User{
		ID:       id,
		Username: "user-" + id,
		Gender:   gender,
		Age:      age,
	}
}

// asOnline wraps a profile and a fresh mock client as a presence entry
// without going through storage. Tests exercising the presence flow itself
// use goOnline instead.
func asOnline(profile *models.User) (*chathub.OnlineUser, *MockClient) {
	client := newMockClient(profile.ID)
	return &chathub.OnlineUser{Client: client, Profile: profile}, client
}

// goOnline pushes a user through the real presence flow and returns the
// resulting presence entry plus its client.
func goOnline(t *testing.T, hub *chathub.ManagerService, store *MockStorage, profile *models.User) (*chathub.OnlineUser, *MockClient) {
	t.Helper()
	store.On("IsUserBanned", profile.ID).Return(false, nil).Maybe()
	store.On("SaveUserIfNotExists", profile.ID).Return(profile, nil).Maybe()
	store.On("TouchLastActive", mock.Anything).Return(nil).Maybe()

	client := newMockClient(profile.ID)
	herr := hub.Presence.SetOnline(client)
	require.Nil(t, herr)

	user, ok := hub.Presence.Get(profile.ID)
	require.True(t, ok)
	client.Drain() // discard user_online_success
	return user, client
}

// drainTasks runs every closure queued by timers or the reaper, standing in
// for the hub loop in tests that drive services directly.
func drainTasks(hub *chathub.ManagerService) {
	for {
		select {
		case task := <-hub.TaskCh:
			task()
		default:
			return
		}
	}
}
