package chathub

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"vidmatch/backend/internal/models"
	"vidmatch/backend/internal/storage"
)

// QueueEntry is one waiting participant's matchmaking record.
type QueueEntry struct {
	Profile    *models.User
	Prefs      models.MatchPreferences
	Client     Client
	EnqueuedAt time.Time
}

// MatcherService resolves match requests against the current set of waiting
// users. The queue is a map so an identity can hold at most one entry and
// removal is O(1); candidate scans are O(queue size).
type MatcherService struct {
	hub     *ManagerService
	storage storage.Storage

	Queue map[string]*QueueEntry

	// rnd drives candidate selection; injected so tests can fix the draw.
	rnd *rand.Rand
	now func() time.Time
}

func NewMatcherService(hub *ManagerService, s storage.Storage) *MatcherService {
	return &MatcherService{
		hub:     hub,
		storage: s,
		Queue:   make(map[string]*QueueEntry),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
}

// SetRandSource replaces the selection source. Tests use a fixed seed to
// make the pick deterministic.
func (m *MatcherService) SetRandSource(src rand.Source) {
	m.rnd = rand.New(src)
}

// SetClock replaces the time source used for enqueue timestamps.
func (m *MatcherService) SetClock(now func() time.Time) { m.now = now }

// RequestMatch pairs the requester with a uniformly random eligible waiter,
// or enqueues the request when nobody fits. Re-requesting refreshes the
// existing entry, so an identity never holds two. The profile snapshot is
// reloaded here so blocks and edits made since the user came online count.
func (m *MatcherService) RequestMatch(user *OnlineUser, prefs models.MatchPreferences) {
	userID := user.UserID()
	prefs = prefs.Normalized()
	delete(m.Queue, userID)

	profile := user.Profile
	if fresh, err := m.storage.GetProfile(userID); err != nil {
		log.Warn().Err(err).Str("module", "matcher").Str("user_id", userID).Msg("profile refresh failed, using stale snapshot")
	} else if fresh != nil {
		profile = fresh
	}

	req := &QueueEntry{
		Profile:    profile,
		Prefs:      prefs,
		Client:     user.Client,
		EnqueuedAt: m.now(),
	}

	var candidates []string
	for id, entry := range m.Queue {
		if m.eligible(req, entry) {
			candidates = append(candidates, id)
		}
	}

	if len(candidates) == 0 {
		m.Queue[userID] = req
		trySend(user.Client, models.Event{Type: "finding_chat_partner", Data: SearchingPayload{
			QueuePosition: len(m.Queue),
		}})
		return
	}

	// Uniform pick over all eligible waiters: no FIFO bias.
	partnerID := candidates[m.rnd.Intn(len(candidates))]
	partner := m.Queue[partnerID]
	delete(m.Queue, partnerID)

	room := m.hub.Rooms.Create("random",
		&OnlineUser{Client: user.Client, Profile: profile},
		&OnlineUser{Client: partner.Client, Profile: partner.Profile},
	)

	trySend(user.Client, models.Event{Type: "chat_matched", Data: MatchedPayload{
		RoomID:  room.ID,
		Partner: partner.Profile.Public(),
	}})
	trySend(partner.Client, models.Event{Type: "chat_matched", Data: MatchedPayload{
		RoomID:  room.ID,
		Partner: profile.Public(),
	}})

	log.Info().Str("module", "matcher").
		Str("room_id", room.ID).
		Str("user_a", userID).
		Str("user_b", partnerID).
		Msg("match found")

	go m.touch(userID, partnerID)
}

// eligible checks the mutual filters: neither side blocks the other, and
// each side's gender and age satisfy the other's preferences.
func (m *MatcherService) eligible(a, b *QueueEntry) bool {
	if a.Profile.ID == b.Profile.ID {
		return false
	}
	if a.Profile.Blocks(b.Profile.ID) || b.Profile.Blocks(a.Profile.ID) {
		return false
	}
	return a.Prefs.Accepts(b.Profile) && b.Prefs.Accepts(a.Profile)
}

// Cancel removes the caller's queue entry and confirms the stop.
func (m *MatcherService) Cancel(user *OnlineUser) {
	delete(m.Queue, user.UserID())
	trySend(user.Client, models.Event{Type: "search_stopped"})
}

// Remove silently drops an entry. Used on disconnect.
func (m *MatcherService) Remove(userID string) {
	delete(m.Queue, userID)
}

// ExpireStale purges entries older than maxAge and tells the owners their
// search timed out. Called by the reaper on the hub loop.
func (m *MatcherService) ExpireStale(maxAge time.Duration) {
	cutoff := m.now().Add(-maxAge)
	for id, entry := range m.Queue {
		if entry.EnqueuedAt.After(cutoff) {
			continue
		}
		delete(m.Queue, id)
		trySend(entry.Client, models.Event{Type: "search_timeout"})
		log.Info().Str("module", "matcher").Str("user_id", id).Msg("queue entry expired")
	}
}

func (m *MatcherService) touch(userIDs ...string) {
	for _, id := range userIDs {
		if err := m.storage.TouchLastActive(id); err != nil {
			log.Warn().Err(err).Str("module", "matcher").Str("user_id", id).Msg("touch last active failed")
		}
	}
}
