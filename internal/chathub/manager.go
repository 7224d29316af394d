package chathub

import (
	"context"

	"github.com/rs/zerolog/log"

	"vidmatch/backend/internal/models"
	"vidmatch/backend/internal/storage"
)

// InboundCommand is one decoded frame plus the connection it arrived on.
type InboundCommand struct {
	Client Client
	Cmd    models.Command
}

// ManagerService is the hub: it owns every piece of live session state and
// serializes all mutations through a single Run loop. Component methods
// (presence, matcher, rooms, calls) must only be called from that loop;
// they hold no locks of their own.
type ManagerService struct {
	// Clients maps user ID to the registered connection. Last write wins
	// when the same identity reconnects.
	Clients map[string]Client

	RegisterCh   chan Client
	UnregisterCh chan Client
	CommandCh    chan InboundCommand
	// TaskCh carries closures from timers and the reaper onto the loop so
	// expiry callbacks see consistent state.
	TaskCh chan func()

	Storage storage.Storage

	Presence *PresenceService
	Matcher  *MatcherService
	Rooms    *RoomService
	Calls    *CallService
}

func NewManagerService(s storage.Storage) *ManagerService {
	m := &ManagerService{
		Clients:      make(map[string]Client),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		CommandCh:    make(chan InboundCommand),
		TaskCh:       make(chan func(), 16),
		Storage:      s,
	}
	m.Presence = NewPresenceService(m, s)
	m.Matcher = NewMatcherService(m, s)
	m.Rooms = NewRoomService(m, s)
	m.Calls = NewCallService(m, s)
	return m
}

// Run is the single event loop. Every state transition in this package
// happens on the goroutine that calls it.
func (m *ManagerService) Run(ctx context.Context) {
	log.Info().Str("module", "chathub").Msg("hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "chathub").Msg("hub stopped")
			return
		case client := <-m.RegisterCh:
			m.register(client)
		case client := <-m.UnregisterCh:
			m.unregister(client)
		case cmd := <-m.CommandCh:
			m.dispatch(cmd)
		case task := <-m.TaskCh:
			task()
		}
	}
}

func (m *ManagerService) register(c Client) {
	userID := c.GetUserID()
	if prev, ok := m.Clients[userID]; ok && prev != c {
		log.Info().Str("module", "chathub").Str("user_id", userID).Msg("replacing existing connection")
		m.cleanup(userID)
		prev.Close()
	}
	m.Clients[userID] = c
	trySend(c, models.Event{Type: "authenticated", Data: PresencePayload{UserID: userID}})
	log.Info().Str("module", "chathub").Str("user_id", userID).Msg("client registered")
}

// unregister tears down everything the identity participates in. A client
// that was already replaced by a newer connection is ignored so the
// replacement's state survives.
func (m *ManagerService) unregister(c Client) {
	userID := c.GetUserID()
	if current, ok := m.Clients[userID]; !ok || current != c {
		return
	}
	m.cleanup(userID)
	delete(m.Clients, userID)
	c.Close()
	log.Info().Str("module", "chathub").Str("user_id", userID).Msg("client unregistered")
}

// cleanup removes the identity from every structure it could belong to:
// search queue, all rooms, any open call, and the presence registry.
func (m *ManagerService) cleanup(userID string) {
	m.Matcher.Remove(userID)
	m.Rooms.RemoveEverywhere(userID)
	m.Calls.EndAllFor(userID, "disconnected")
	m.Presence.Remove(userID)
}

// online resolves the command's sender to its presence entry. Commands other
// than user_online require the sender to have declared itself online first.
func (m *ManagerService) online(c Client) (*OnlineUser, *HubError) {
	u, ok := m.Presence.Get(c.GetUserID())
	if !ok {
		return nil, errNotAuthenticated()
	}
	return u, nil
}

func (m *ManagerService) dispatch(in InboundCommand) {
	c, cmd := in.Client, in.Cmd

	if cmd.Type == "user_online" {
		if err := m.Presence.SetOnline(c); err != nil {
			sendError(c, "error", err)
		}
		return
	}

	user, herr := m.online(c)
	if herr != nil {
		sendError(c, "error", herr)
		return
	}

	switch cmd.Type {
	case "find_random_chat":
		prefs := models.MatchPreferences{}
		if cmd.Preferences != nil {
			prefs = *cmd.Preferences
		}
		m.Matcher.RequestMatch(user, prefs)

	case "stop_searching":
		m.Matcher.Cancel(user)

	case "send_message":
		if cmd.RoomID == "" || cmd.Message == "" {
			sendError(c, "error", errInvalidRequest("room_id and message are required"))
			return
		}
		m.Rooms.SendMessage(user, cmd.RoomID, cmd.Message, cmd.MessageType)

	case "leave_chat":
		if cmd.RoomID == "" {
			sendError(c, "error", errInvalidRequest("room_id is required"))
			return
		}
		m.Rooms.Leave(user.UserID(), cmd.RoomID)

	case "typing_start", "typing_stop":
		if cmd.RoomID == "" {
			sendError(c, "error", errInvalidRequest("room_id is required"))
			return
		}
		m.Rooms.Typing(user.UserID(), cmd.RoomID, cmd.Type == "typing_start")

	case "initiate_call":
		if cmd.TargetUserID == "" {
			sendError(c, "call_error", errInvalidRequest("target_user_id is required"))
			return
		}
		if err := m.Calls.Initiate(user, cmd.TargetUserID, cmd.CallType); err != nil {
			sendError(c, "call_error", err)
		}

	case "accept_call":
		if cmd.CallID == "" {
			sendError(c, "call_error", errInvalidRequest("call_id is required"))
			return
		}
		if err := m.Calls.Accept(user.UserID(), cmd.CallID); err != nil {
			sendError(c, "call_error", err)
		}

	case "reject_call":
		if cmd.CallID == "" {
			sendError(c, "call_error", errInvalidRequest("call_id is required"))
			return
		}
		if err := m.Calls.Reject(user.UserID(), cmd.CallID); err != nil {
			sendError(c, "call_error", err)
		}

	case "end_call":
		if cmd.CallID == "" {
			sendError(c, "call_error", errInvalidRequest("call_id is required"))
			return
		}
		if err := m.Calls.End(user.UserID(), cmd.CallID, "hangup"); err != nil {
			sendError(c, "call_error", err)
		}

	case "webrtc_offer":
		if len(cmd.Offer) == 0 {
			sendError(c, "call_error", errInvalidRequest("offer is required"))
			return
		}
		if err := m.Calls.RelayOffer(user.UserID(), cmd.CallID, cmd.Offer); err != nil {
			sendError(c, "call_error", err)
		}

	case "webrtc_answer":
		if len(cmd.Answer) == 0 {
			sendError(c, "call_error", errInvalidRequest("answer is required"))
			return
		}
		if err := m.Calls.RelayAnswer(user.UserID(), cmd.CallID, cmd.Answer); err != nil {
			sendError(c, "call_error", err)
		}

	case "webrtc_ice_candidate":
		if len(cmd.Candidate) == 0 {
			sendError(c, "call_error", errInvalidRequest("candidate is required"))
			return
		}
		if err := m.Calls.RelayICECandidate(user.UserID(), cmd.CallID, cmd.Candidate); err != nil {
			sendError(c, "call_error", err)
		}

	case "toggle_video", "toggle_audio":
		if cmd.Enabled == nil {
			sendError(c, "call_error", errInvalidRequest("enabled is required"))
			return
		}
		if err := m.Calls.ToggleMedia(user.UserID(), cmd.CallID, cmd.Type, *cmd.Enabled); err != nil {
			sendError(c, "call_error", err)
		}

	default:
		sendError(c, "error", errInvalidRequest("unknown command: "+cmd.Type))
	}
}
