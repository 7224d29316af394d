package chathub

import (
	"github.com/rs/zerolog/log"

	"vidmatch/backend/internal/models"
	"vidmatch/backend/internal/storage"
)

// OnlineUser is one presence entry: a live connection plus the profile
// snapshot captured when the user declared itself online.
type OnlineUser struct {
	Client  Client
	Profile *models.User
}

func (u *OnlineUser) UserID() string { return u.Profile.ID }

// PresenceService tracks which identities currently have a live, declared
// connection. At most one entry exists per identity; a reconnect overwrites
// the previous one.
type PresenceService struct {
	hub     *ManagerService
	storage storage.Storage

	online map[string]*OnlineUser
}

func NewPresenceService(hub *ManagerService, s storage.Storage) *PresenceService {
	return &PresenceService{
		hub:     hub,
		storage: s,
		online:  make(map[string]*OnlineUser),
	}
}

// SetOnline loads the caller's profile snapshot, records the presence entry
// and notifies visible friends. Banned users are turned away before any
// state is touched.
func (p *PresenceService) SetOnline(c Client) *HubError {
	userID := c.GetUserID()

	banned, err := p.storage.IsUserBanned(userID)
	if err != nil {
		log.Error().Err(err).Str("module", "presence").Str("user_id", userID).Msg("ban check failed")
	}
	if banned {
		return errUnauthorized("your account is suspended")
	}

	profile, err := p.storage.SaveUserIfNotExists(userID)
	if err != nil || profile == nil {
		return &HubError{Code: CodeNotFound, Message: "profile unavailable"}
	}

	entry := &OnlineUser{Client: c, Profile: profile}
	p.online[userID] = entry

	trySend(c, models.Event{Type: "user_online_success", Data: OnlinePayload{Profile: profile.Public()}})
	p.notifyFriends(entry, "friend_online")

	go func() {
		if err := p.storage.TouchLastActive(userID); err != nil {
			log.Warn().Err(err).Str("module", "presence").Str("user_id", userID).Msg("touch last active failed")
		}
	}()

	return nil
}

// Get returns the presence entry for an identity, if any.
func (p *PresenceService) Get(userID string) (*OnlineUser, bool) {
	u, ok := p.online[userID]
	return u, ok
}

// Count returns how many identities are currently online.
func (p *PresenceService) Count() int { return len(p.online) }

// Remove drops the presence entry and notifies visible friends that the
// user went offline. No-op for identities that never declared online.
func (p *PresenceService) Remove(userID string) {
	entry, ok := p.online[userID]
	if !ok {
		return
	}
	delete(p.online, userID)
	p.notifyFriends(entry, "friend_offline")
}

// notifyFriends pushes a presence-changed event to every currently-present
// friend. Both sides must allow online-status visibility.
func (p *PresenceService) notifyFriends(subject *OnlineUser, eventType string) {
	if !subject.Profile.ShowOnlineStatus {
		return
	}
	for _, friendID := range subject.Profile.Friends {
		friend, ok := p.online[friendID]
		if !ok || !friend.Profile.ShowOnlineStatus {
			continue
		}
		trySend(friend.Client, models.Event{Type: eventType, Data: PresencePayload{
			UserID:   subject.UserID(),
			Username: subject.Profile.Username,
		}})
	}
}
