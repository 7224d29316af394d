package chathub_test

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidmatch/backend/internal/chathub"
	"vidmatch/backend/internal/models"
)

func anyPrefs() models.MatchPreferences {
	return models.MatchPreferences{Gender: models.GenderAny, AgeMin: 18, AgeMax: 99}
}

// TestRequestMatch_SingleEntryPerUser verifies an identity never holds more
// than one queue entry, however often it re-requests or cancels.
func TestRequestMatch_SingleEntryPerUser(t *testing.T) {
	hub := chathub.NewManagerService(newPermissiveStorage())
	user, client := asOnline(testProfile("user_A", "male", 25))

	for i := 0; i < 5; i++ {
		hub.Matcher.RequestMatch(user, anyPrefs())
	}
	assert.Len(t, hub.Matcher.Queue, 1)

	hub.Matcher.Cancel(user)
	assert.Empty(t, hub.Matcher.Queue)

	hub.Matcher.RequestMatch(user, anyPrefs())
	assert.Len(t, hub.Matcher.Queue, 1)

	events := client.Drain()
	assert.Contains(t, eventTypes(events), "search_stopped")
}

// TestRequestMatch_MutualEligibilityMatches is the canonical pairing: both
// sides satisfy each other's filters, so the second request must match.
func TestRequestMatch_MutualEligibilityMatches(t *testing.T) {
	hub := chathub.NewManagerService(newPermissiveStorage())

	userA, clientA := asOnline(testProfile("user_A", "male", 25))
	userB, clientB := asOnline(testProfile("user_B", "female", 30))

	hub.Matcher.RequestMatch(userA, models.MatchPreferences{Gender: "both", AgeMin: 18, AgeMax: 40})
	assert.Len(t, hub.Matcher.Queue, 1)

	hub.Matcher.RequestMatch(userB, models.MatchPreferences{Gender: "male", AgeMin: 20, AgeMax: 35})

	assert.Empty(t, hub.Matcher.Queue, "both entries must be consumed by the match")

	evA := clientA.WaitFor(t, "chat_matched").Data.(chathub.MatchedPayload)
	evB := clientB.WaitFor(t, "chat_matched").Data.(chathub.MatchedPayload)

	assert.Equal(t, "user_B", evA.Partner.ID)
	assert.Equal(t, "user_A", evB.Partner.ID)
	assert.Equal(t, evA.RoomID, evB.RoomID)

	room, ok := hub.Rooms.Rooms[evA.RoomID]
	require.True(t, ok, "matched room must exist")
	assert.Len(t, room.Participants, 2)
	assert.Equal(t, "random", room.Kind)
}

// TestRequestMatch_NoEligibleCandidateQueues covers the filter matrix: each
// failing filter leaves the requester waiting instead of mismatched.
func TestRequestMatch_NoEligibleCandidateQueues(t *testing.T) {
	tests := []struct {
		name           string
		waitingProfile *models.User
		waitingPrefs   models.MatchPreferences
		reqProfile     *models.User
		reqPrefs       models.MatchPreferences
	}{
		{
			name:           "requester gender preference unmet",
			waitingProfile: testProfile("w", "male", 30),
			waitingPrefs:   anyPrefs(),
			reqProfile:     testProfile("r", "female", 30),
			reqPrefs:       models.MatchPreferences{Gender: "female", AgeMin: 18, AgeMax: 99},
		},
		{
			name:           "waiter gender preference unmet",
			waitingProfile: testProfile("w", "male", 30),
			waitingPrefs:   models.MatchPreferences{Gender: "male", AgeMin: 18, AgeMax: 99},
			reqProfile:     testProfile("r", "female", 30),
			reqPrefs:       anyPrefs(),
		},
		{
			name:           "requester age range excludes waiter",
			waitingProfile: testProfile("w", "female", 45),
			waitingPrefs:   anyPrefs(),
			reqProfile:     testProfile("r", "male", 30),
			reqPrefs:       models.MatchPreferences{Gender: "both", AgeMin: 18, AgeMax: 40},
		},
		{
			name:           "waiter age range excludes requester",
			waitingProfile: testProfile("w", "female", 30),
			waitingPrefs:   models.MatchPreferences{Gender: "both", AgeMin: 25, AgeMax: 35},
			reqProfile:     testProfile("r", "male", 20),
			reqPrefs:       anyPrefs(),
		},
		{
			name: "waiter blocked the requester",
			waitingProfile: &models.User{
				ID: "w", Gender: "female", Age: 30, Blocked: []string{"r"},
			},
			waitingPrefs: anyPrefs(),
			reqProfile:   testProfile("r", "male", 30),
			reqPrefs:     anyPrefs(),
		},
		{
			name:           "requester blocked the waiter",
			waitingProfile: testProfile("w", "female", 30),
			waitingPrefs:   anyPrefs(),
			reqProfile: &models.User{
				ID: "r", Gender: "male", Age: 30, Blocked: []string{"w"},
			},
			reqPrefs: anyPrefs(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := chathub.NewManagerService(newPermissiveStorage())
			waiter, waiterClient := asOnline(tt.waitingProfile)
			req, reqClient := asOnline(tt.reqProfile)

			hub.Matcher.RequestMatch(waiter, tt.waitingPrefs)
			hub.Matcher.RequestMatch(req, tt.reqPrefs)

			assert.Len(t, hub.Matcher.Queue, 2, "both should still be waiting")
			assert.NotContains(t, eventTypes(waiterClient.Drain()), "chat_matched")

			ev := reqClient.WaitFor(t, "finding_chat_partner")
			assert.Equal(t, chathub.SearchingPayload{QueuePosition: 2}, ev.Data)
		})
	}
}

// TestRequestMatch_NeverPairsBlockedOverManyTrials hammers the randomized
// pick: with only blocked candidates waiting, no draw may ever match. The
// waiters only accept men, so they stay queued instead of pairing with each
// other while the fixture builds up.
func TestRequestMatch_NeverPairsBlockedOverManyTrials(t *testing.T) {
	malesOnly := models.MatchPreferences{Gender: "male", AgeMin: 18, AgeMax: 99}
	for seed := int64(0); seed < 50; seed++ {
		hub := chathub.NewManagerService(newPermissiveStorage())
		hub.Matcher.SetRandSource(rand.NewSource(seed))

		for i := 0; i < 5; i++ {
			waiter, _ := asOnline(&models.User{
				ID: fmt.Sprintf("waiter_%d", i), Gender: "female", Age: 30,
				Blocked: []string{"req"},
			})
			hub.Matcher.RequestMatch(waiter, malesOnly)
		}

		req, reqClient := asOnline(testProfile("req", "male", 30))
		hub.Matcher.RequestMatch(req, anyPrefs())

		assert.Len(t, hub.Matcher.Queue, 6, "seed %d: requester must only queue", seed)
		assert.NotContains(t, eventTypes(reqClient.Drain()), "chat_matched")
	}
}

// TestRequestMatch_DeterministicPickWithFixedSeed fixes the random source
// and asserts the same arrival order always produces the same pairing. The
// four waiters only accept men so all four are still queued when the
// requester arrives and the draw actually has four candidates.
func TestRequestMatch_DeterministicPickWithFixedSeed(t *testing.T) {
	malesOnly := models.MatchPreferences{Gender: "male", AgeMin: 18, AgeMax: 99}
	pick := func(seed int64) string {
		hub := chathub.NewManagerService(newPermissiveStorage())
		hub.Matcher.SetRandSource(rand.NewSource(seed))

		for i := 0; i < 4; i++ {
			waiter, _ := asOnline(testProfile(fmt.Sprintf("waiter_%d", i), "female", 30))
			hub.Matcher.RequestMatch(waiter, malesOnly)
		}
		req, reqClient := asOnline(testProfile("req", "male", 30))
		hub.Matcher.RequestMatch(req, anyPrefs())

		ev := reqClient.WaitFor(t, "chat_matched")
		return ev.Data.(chathub.MatchedPayload).Partner.ID
	}

	first := pick(42)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, pick(42), "same seed and arrival order must repeat the pick")
	}
}

// TestRequestMatch_RefreshesProfileSnapshotOnEntry: a block added after the
// user came online must count when the user enters the queue.
func TestRequestMatch_RefreshesProfileSnapshotOnEntry(t *testing.T) {
	store := new(MockStorage)
	hub := chathub.NewManagerService(store)

	waiter, _ := asOnline(testProfile("waiter", "female", 30))
	store.On("GetProfile", "waiter").Return(nil, nil)
	hub.Matcher.RequestMatch(waiter, anyPrefs())

	req, reqClient := asOnline(testProfile("req", "male", 30))
	store.On("GetProfile", "req").Return(&models.User{
		ID: "req", Gender: "male", Age: 30, Blocked: []string{"waiter"},
	}, nil)
	hub.Matcher.RequestMatch(req, anyPrefs())

	assert.Len(t, hub.Matcher.Queue, 2, "the stored block must prevent the match")
	assert.NotContains(t, eventTypes(reqClient.Drain()), "chat_matched")
	assert.True(t, hub.Matcher.Queue["req"].Profile.Blocks("waiter"),
		"the queue entry must carry the reloaded profile")
}

// TestExpireStale purges old entries and notifies their owners.
func TestExpireStale(t *testing.T) {
	hub := chathub.NewManagerService(newPermissiveStorage())

	stale, staleClient := asOnline(testProfile("stale", "male", 25))
	fresh, freshClient := asOnline(testProfile("fresh", "female", 55))

	hub.Matcher.RequestMatch(stale, models.MatchPreferences{Gender: "male", AgeMin: 18, AgeMax: 30})
	hub.Matcher.Queue["stale"].EnqueuedAt = hub.Matcher.Queue["stale"].EnqueuedAt.Add(-10 * time.Minute)
	hub.Matcher.RequestMatch(fresh, models.MatchPreferences{Gender: "female", AgeMin: 50, AgeMax: 60})

	hub.Matcher.ExpireStale(5 * time.Minute)

	assert.NotContains(t, hub.Matcher.Queue, "stale")
	assert.Contains(t, hub.Matcher.Queue, "fresh")
	assert.Contains(t, eventTypes(staleClient.Drain()), "search_timeout")
	assert.NotContains(t, eventTypes(freshClient.Drain()), "search_timeout")
}
