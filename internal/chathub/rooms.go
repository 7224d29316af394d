package chathub

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"vidmatch/backend/internal/models"
	"vidmatch/backend/internal/storage"
)

// roomLogCap bounds a room's message log; the oldest entry is evicted first.
const roomLogCap = 100

// Participant is one member of a room: identity, connection and the profile
// snapshot taken at match time.
type Participant struct {
	UserID  string
	Client  Client
	Profile *models.User
}

// Room is an in-memory chat session. A room with zero participants is
// deleted immediately; nothing about it persists.
type Room struct {
	ID           string
	Kind         string // "random" or "direct"
	Participants map[string]*Participant
	Log          []models.ChatMessage
	CreatedAt    time.Time
}

// RoomService owns all live rooms. byUser is the reverse index (user ID →
// room IDs) so disconnect cleanup does not scan every room.
type RoomService struct {
	hub     *ManagerService
	storage storage.Storage

	Rooms  map[string]*Room
	byUser map[string]map[string]bool
}

func NewRoomService(hub *ManagerService, s storage.Storage) *RoomService {
	return &RoomService{
		hub:     hub,
		storage: s,
		Rooms:   make(map[string]*Room),
		byUser:  make(map[string]map[string]bool),
	}
}

// Create opens a room containing the given users.
func (r *RoomService) Create(kind string, users ...*OnlineUser) *Room {
	room := &Room{
		ID:           uuid.New().String(),
		Kind:         kind,
		Participants: make(map[string]*Participant, len(users)),
		CreatedAt:    time.Now(),
	}
	for _, u := range users {
		room.Participants[u.UserID()] = &Participant{
			UserID:  u.UserID(),
			Client:  u.Client,
			Profile: u.Profile,
		}
		if r.byUser[u.UserID()] == nil {
			r.byUser[u.UserID()] = make(map[string]bool)
		}
		r.byUser[u.UserID()][room.ID] = true
	}
	r.Rooms[room.ID] = room
	return room
}

// SendMessage appends to the room log and multicasts the message to every
// participant, sender included. Absent rooms and non-participants fail
// silently toward the sender; there is nothing useful to tell them.
func (r *RoomService) SendMessage(sender *OnlineUser, roomID, content, msgType string) {
	room, ok := r.Rooms[roomID]
	if !ok {
		return
	}
	if _, ok := room.Participants[sender.UserID()]; !ok {
		return
	}
	if msgType == "" {
		msgType = "text"
	}

	msg := models.ChatMessage{
		ID:       uuid.New().String(),
		RoomID:   roomID,
		SenderID: sender.UserID(),
		Content:  content,
		Type:     msgType,
		SentAt:   time.Now(),
	}
	room.Log = append(room.Log, msg)
	if len(room.Log) > roomLogCap {
		room.Log = room.Log[len(room.Log)-roomLogCap:]
	}

	r.multicast(room, models.Event{Type: "new_message", Data: msg})

	go func() {
		if err := r.storage.IncrementUsage(msg.SenderID, storage.UsageDelta{Chats: 1}); err != nil {
			log.Warn().Err(err).Str("module", "rooms").Str("user_id", msg.SenderID).Msg("chat counter increment failed")
		}
	}()
}

// Leave removes the participant, tells the remainder, and deletes the room
// once it is empty.
func (r *RoomService) Leave(userID, roomID string) {
	r.remove(userID, roomID, "user_left_chat")
}

// RemoveEverywhere pulls the identity out of every room it belongs to.
// Used on disconnect; the remainder sees a user_disconnected event.
func (r *RoomService) RemoveEverywhere(userID string) {
	for roomID := range r.byUser[userID] {
		r.remove(userID, roomID, "user_disconnected")
	}
}

// Typing relays a transient typing indicator to the rest of the room.
// Nothing is stored.
func (r *RoomService) Typing(userID, roomID string, typing bool) {
	room, ok := r.Rooms[roomID]
	if !ok {
		return
	}
	if _, ok := room.Participants[userID]; !ok {
		return
	}
	ev := models.Event{Type: "user_typing", Data: TypingPayload{
		RoomID: roomID,
		UserID: userID,
		Typing: typing,
	}}
	for id, p := range room.Participants {
		if id != userID {
			trySend(p.Client, ev)
		}
	}
}

func (r *RoomService) remove(userID, roomID, eventType string) {
	room, ok := r.Rooms[roomID]
	if !ok {
		return
	}
	if _, ok := room.Participants[userID]; !ok {
		return
	}
	delete(room.Participants, userID)
	if rooms := r.byUser[userID]; rooms != nil {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.byUser, userID)
		}
	}

	if len(room.Participants) == 0 {
		delete(r.Rooms, roomID)
		log.Info().Str("module", "rooms").Str("room_id", roomID).Msg("room closed")
		return
	}

	r.multicast(room, models.Event{Type: eventType, Data: RoomEventPayload{
		RoomID: roomID,
		UserID: userID,
	}})
}

func (r *RoomService) multicast(room *Room, ev models.Event) {
	for _, p := range room.Participants {
		trySend(p.Client, ev)
	}
}
