package chathub

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"vidmatch/backend/internal/models"
	"vidmatch/backend/internal/storage"
)

// Call session states. A session only ever moves forward:
// calling → accepted → connected → ended, with shortcuts straight to ended.
const (
	CallStateCalling   = "calling"
	CallStateAccepted  = "accepted"
	CallStateConnected = "connected"
	CallStateEnded     = "ended"
)

const defaultRingTimeout = 45 * time.Second

// CallParticipant is one leg of a call session.
type CallParticipant struct {
	UserID  string
	Client  Client
	Profile *models.User
}

// CallSession is an in-memory call record. The two participants form the
// call's broadcast group; the last offer/answer are retained for
// diagnostics only.
type CallSession struct {
	ID     string
	Caller *CallParticipant
	Callee *CallParticipant
	Kind   string // "video" or "audio"
	State  string

	CreatedAt   time.Time
	AcceptedAt  time.Time
	ConnectedAt time.Time

	LastOffer  json.RawMessage
	LastAnswer json.RawMessage

	ringTimer *time.Timer
}

func (s *CallSession) other(userID string) *CallParticipant {
	if userID == s.Caller.UserID {
		return s.Callee
	}
	return s.Caller
}

func (s *CallSession) isParty(userID string) bool {
	return userID == s.Caller.UserID || userID == s.Callee.UserID
}

// CallService owns all live call sessions and drives their state machine.
// byUser enforces the invariant that an identity is referenced by at most
// one open session.
type CallService struct {
	hub     *ManagerService
	storage storage.Storage

	Sessions map[string]*CallSession
	byUser   map[string]string

	// RingTimeout bounds how long a session may stay in "calling" before
	// it is ended with reason "timeout".
	RingTimeout time.Duration

	now func() time.Time
}

func NewCallService(hub *ManagerService, s storage.Storage) *CallService {
	return &CallService{
		hub:         hub,
		storage:     s,
		Sessions:    make(map[string]*CallSession),
		byUser:      make(map[string]string),
		RingTimeout: defaultRingTimeout,
		now:         time.Now,
	}
}

// SetClock replaces the time source. Tests use a fixed clock to assert
// durations and credits deterministically.
func (c *CallService) SetClock(now func() time.Time) { c.now = now }

// Initiate starts a call toward calleeID. The guards run in order: self
// target, either side busy, callee offline, mutual block, callee privacy.
func (c *CallService) Initiate(caller *OnlineUser, calleeID, kind string) *HubError {
	callerID := caller.UserID()
	if calleeID == callerID {
		return errConflict("you cannot call yourself")
	}
	if _, busy := c.byUser[callerID]; busy {
		return errConflict("you are already in a call")
	}
	if _, busy := c.byUser[calleeID]; busy {
		return errConflict("that user is already in a call")
	}
	callee, online := c.hub.Presence.Get(calleeID)
	if !online {
		return errOffline("that user is not online")
	}
	if caller.Profile.Blocks(calleeID) || callee.Profile.Blocks(callerID) {
		return errConflict("this call is not possible")
	}
	if callee.Profile.FriendsOnlyCalls && !callee.Profile.IsFriend(callerID) {
		return errUnauthorized("that user only accepts calls from friends")
	}
	if kind != "audio" {
		kind = "video"
	}

	sess := &CallSession{
		ID:        uuid.New().String(),
		Caller:    &CallParticipant{UserID: callerID, Client: caller.Client, Profile: caller.Profile},
		Callee:    &CallParticipant{UserID: calleeID, Client: callee.Client, Profile: callee.Profile},
		Kind:      kind,
		State:     CallStateCalling,
		CreatedAt: c.now(),
	}
	c.Sessions[sess.ID] = sess
	c.byUser[callerID] = sess.ID
	c.byUser[calleeID] = sess.ID

	// The callback hops onto the hub loop and re-checks state there, so a
	// timer racing a normal accept/end acts on nothing.
	callID := sess.ID
	sess.ringTimer = time.AfterFunc(c.RingTimeout, func() {
		c.hub.TaskCh <- func() { c.onRingTimeout(callID) }
	})

	trySend(caller.Client, models.Event{Type: "call_initiated", Data: CallPayload{
		CallID:   sess.ID,
		CallType: kind,
		Peer:     callee.Profile.Public(),
	}})
	trySend(callee.Client, models.Event{Type: "incoming_call", Data: CallPayload{
		CallID:   sess.ID,
		CallType: kind,
		Peer:     caller.Profile.Public(),
	}})

	log.Info().Str("module", "calls").
		Str("call_id", sess.ID).
		Str("caller", callerID).
		Str("callee", calleeID).
		Str("kind", kind).
		Msg("call initiated")
	return nil
}

// Accept moves a ringing session to "accepted". Only the recorded callee
// may accept, and only while the session is still ringing.
func (c *CallService) Accept(userID, callID string) *HubError {
	sess, ok := c.Sessions[callID]
	if !ok {
		return errNotFound("call not found")
	}
	if userID != sess.Callee.UserID {
		return errUnauthorized("only the called party can accept")
	}
	if sess.State != CallStateCalling {
		return errConflict("call is no longer ringing")
	}
	sess.State = CallStateAccepted
	sess.AcceptedAt = c.now()
	c.broadcast(sess, models.Event{Type: "call_accepted", Data: CallPayload{CallID: callID}})
	return nil
}

// Reject ends a ringing session with reason "rejected".
func (c *CallService) Reject(userID, callID string) *HubError {
	sess, ok := c.Sessions[callID]
	if !ok {
		return errNotFound("call not found")
	}
	if userID != sess.Callee.UserID {
		return errUnauthorized("only the called party can reject")
	}
	if sess.State != CallStateCalling {
		return errConflict("call is no longer ringing")
	}
	c.end(sess, "rejected")
	return nil
}

// RelayOffer forwards the caller's SDP offer verbatim to the callee.
func (c *CallService) RelayOffer(userID, callID string, offer json.RawMessage) *HubError {
	sess, ok := c.Sessions[callID]
	if !ok {
		return errNotFound("call not found")
	}
	if userID != sess.Caller.UserID {
		return errUnauthorized("only the caller sends the offer")
	}
	sess.LastOffer = offer
	trySend(sess.Callee.Client, models.Event{Type: "webrtc_offer", Data: SignalPayload{
		CallID: callID,
		From:   userID,
		Offer:  offer,
	}})
	return nil
}

// RelayAnswer forwards the callee's SDP answer verbatim to the caller.
// The first answer on an accepted session marks it connected.
func (c *CallService) RelayAnswer(userID, callID string, answer json.RawMessage) *HubError {
	sess, ok := c.Sessions[callID]
	if !ok {
		return errNotFound("call not found")
	}
	if userID != sess.Callee.UserID {
		return errUnauthorized("only the called party sends the answer")
	}
	sess.LastAnswer = answer
	if sess.State == CallStateAccepted {
		sess.State = CallStateConnected
		sess.ConnectedAt = c.now()
		log.Info().Str("module", "calls").Str("call_id", callID).Msg("call connected")
	}
	trySend(sess.Caller.Client, models.Event{Type: "webrtc_answer", Data: SignalPayload{
		CallID: callID,
		From:   userID,
		Answer: answer,
	}})
	return nil
}

// RelayICECandidate forwards a candidate to the other party. Either
// participant may send them; there is no state-machine effect.
func (c *CallService) RelayICECandidate(userID, callID string, candidate json.RawMessage) *HubError {
	sess, ok := c.Sessions[callID]
	if !ok {
		return errNotFound("call not found")
	}
	if !sess.isParty(userID) {
		return errUnauthorized("you are not part of this call")
	}
	trySend(sess.other(userID).Client, models.Event{Type: "webrtc_ice_candidate", Data: SignalPayload{
		CallID:    callID,
		From:      userID,
		Candidate: candidate,
	}})
	return nil
}

// ToggleMedia relays a video/audio mute state change to the peer.
func (c *CallService) ToggleMedia(userID, callID, cmdType string, enabled bool) *HubError {
	sess, ok := c.Sessions[callID]
	if !ok {
		return errNotFound("call not found")
	}
	if !sess.isParty(userID) {
		return errUnauthorized("you are not part of this call")
	}
	eventType := "participant_video_toggle"
	if cmdType == "toggle_audio" {
		eventType = "participant_audio_toggle"
	}
	trySend(sess.other(userID).Client, models.Event{Type: eventType, Data: TogglePayload{
		CallID:  callID,
		UserID:  userID,
		Enabled: enabled,
	}})
	return nil
}

// End terminates a session from either participant's request.
func (c *CallService) End(userID, callID, reason string) *HubError {
	sess, ok := c.Sessions[callID]
	if !ok {
		return errNotFound("call not found")
	}
	if !sess.isParty(userID) {
		return errUnauthorized("you are not part of this call")
	}
	c.end(sess, reason)
	return nil
}

// EndAllFor terminates the session an identity is party to, if any.
// Used on disconnect.
func (c *CallService) EndAllFor(userID, reason string) {
	callID, ok := c.byUser[userID]
	if !ok {
		return
	}
	if sess, ok := c.Sessions[callID]; ok {
		c.end(sess, reason)
	}
}

// SweepStale ends pre-connect sessions older than maxAge with reason
// "timeout". Connected calls are never swept.
func (c *CallService) SweepStale(maxAge time.Duration) {
	cutoff := c.now().Add(-maxAge)
	for _, sess := range c.Sessions {
		if sess.State == CallStateConnected {
			continue
		}
		if sess.CreatedAt.After(cutoff) {
			continue
		}
		log.Info().Str("module", "calls").Str("call_id", sess.ID).Msg("stale call swept")
		c.end(sess, "timeout")
	}
}

// onRingTimeout fires on the hub loop when the ring timer elapses. The
// session may have ended or been accepted in the meantime; only a session
// still ringing is affected.
func (c *CallService) onRingTimeout(callID string) {
	sess, ok := c.Sessions[callID]
	if !ok || sess.State != CallStateCalling {
		return
	}
	log.Info().Str("module", "calls").Str("call_id", callID).Msg("call ring timeout")
	c.end(sess, "timeout")
}

// end is the single terminal transition: it settles usage minutes, archives
// the record, notifies both parties and drops every trace of the session.
// Sessions are deleted here, so end runs at most once per session.
func (c *CallService) end(sess *CallSession, reason string) {
	if sess.ringTimer != nil {
		sess.ringTimer.Stop()
	}
	sess.State = CallStateEnded
	endedAt := c.now()

	duration := 0
	if !sess.ConnectedAt.IsZero() {
		duration = int(endedAt.Sub(sess.ConnectedAt).Seconds())
	}

	c.broadcast(sess, models.Event{Type: "call_ended", Data: CallEndedPayload{
		CallID:   sess.ID,
		Reason:   reason,
		Duration: duration,
	}})

	delete(c.byUser, sess.Caller.UserID)
	delete(c.byUser, sess.Callee.UserID)
	delete(c.Sessions, sess.ID)

	// Usage minutes are settled exactly once, here: ceil(duration/60) to
	// each participant for connected time.
	minutes := 0
	if duration > 0 {
		minutes = (duration + 59) / 60
	}
	rec := &models.CallRecord{
		CallID:          sess.ID,
		CallerID:        sess.Caller.UserID,
		CalleeID:        sess.Callee.UserID,
		Kind:            sess.Kind,
		Reason:          reason,
		DurationSeconds: duration,
		EndedAt:         endedAt,
	}
	if !sess.ConnectedAt.IsZero() {
		connectedAt := sess.ConnectedAt
		rec.ConnectedAt = &connectedAt
	}
	go c.settle(rec, minutes)

	log.Info().Str("module", "calls").
		Str("call_id", sess.ID).
		Str("reason", reason).
		Int("duration", duration).
		Msg("call ended")
}

func (c *CallService) settle(rec *models.CallRecord, minutes int) {
	if minutes > 0 {
		for _, id := range []string{rec.CallerID, rec.CalleeID} {
			if err := c.storage.IncrementUsage(id, storage.UsageDelta{Minutes: minutes}); err != nil {
				log.Warn().Err(err).Str("module", "calls").Str("user_id", id).Msg("minute credit failed")
			}
		}
	}
	if err := c.storage.SaveCallRecord(rec); err != nil {
		log.Warn().Err(err).Str("module", "calls").Str("call_id", rec.CallID).Msg("call archive failed")
	}
}

func (c *CallService) broadcast(sess *CallSession, ev models.Event) {
	trySend(sess.Caller.Client, ev)
	trySend(sess.Callee.Client, ev)
}
