package chathub_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidmatch/backend/internal/chathub"
	"vidmatch/backend/internal/models"
)

// TestReaper_PurgesStaleQueueAndCalls runs the real tickers on short
// intervals and checks that only stale entries get reaped.
func TestReaper_PurgesStaleQueueAndCalls(t *testing.T) {
	store := newPermissiveStorage()
	hub := chathub.NewManagerService(store)

	// A queue entry already past its TTL and a ringing call already past
	// the call TTL.
	stale, staleClient := asOnline(testProfile("stale", "male", 25))
	hub.Matcher.RequestMatch(stale, models.MatchPreferences{Gender: "male", AgeMin: 90, AgeMax: 99})
	hub.Matcher.Queue["stale"].EnqueuedAt = time.Now().Add(-time.Hour)

	callID, callerClient, _ := startCall(t, hub, store)
	hub.Calls.Sessions[callID].CreatedAt = time.Now().Add(-time.Hour)

	fresh, freshClient := asOnline(testProfile("fresh", "female", 95))
	hub.Matcher.RequestMatch(fresh, models.MatchPreferences{Gender: "female", AgeMin: 90, AgeMax: 99})
	staleClient.Drain()
	freshClient.Drain()

	reaper := chathub.NewReaperService(hub)
	reaper.QueueTTL = 5 * time.Minute
	reaper.QueueSweepEvery = 20 * time.Millisecond
	reaper.CallTTL = 5 * time.Minute
	reaper.CallSweepEvery = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	go reaper.Run(ctx)

	require.Equal(t, "search_timeout", staleClient.WaitFor(t, "search_timeout").Type)
	ended := callerClient.WaitFor(t, "call_ended").Data.(chathub.CallEndedPayload)
	assert.Equal(t, "timeout", ended.Reason)

	time.Sleep(100 * time.Millisecond)
	assert.NotContains(t, eventTypes(freshClient.Drain()), "search_timeout",
		"fresh entries survive the sweep")
}
