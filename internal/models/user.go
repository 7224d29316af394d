package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// User represents a participant profile as stored in PostgreSQL.
// The chat core only ever holds a snapshot of this record, captured when the
// user comes online and refreshed when they enter the search queue.
type User struct {
	ID       string `gorm:"primaryKey" json:"id"` // anonymous UUID
	Username string `json:"username"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`

	Interests pq.StringArray `gorm:"type:text[]" json:"interests"`
	// Blocked holds the anonymous IDs this user refuses to be paired or
	// called with. The matcher and call store check it in both directions.
	Blocked pq.StringArray `gorm:"type:text[]" json:"-"`
	Friends pq.StringArray `gorm:"type:text[]" json:"-"`

	// ShowOnlineStatus gates friend_online/friend_offline notifications.
	ShowOnlineStatus bool `json:"-"`
	// FriendsOnlyCalls restricts incoming calls to users in Friends.
	FriendsOnlyCalls bool `json:"-"`

	RatingScore  int       `json:"-"`
	LastActiveAt time.Time `json:"-"`
}

// BeforeCreate is a GORM hook that assigns a fresh anonymous UUID
// when the record is created without one.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// Blocks reports whether this user has blocked the given ID.
func (u *User) Blocks(id string) bool {
	return slices.Contains(u.Blocked, id)
}

// IsFriend reports whether the given ID is in this user's friend list.
func (u *User) IsFriend(id string) bool {
	return slices.Contains(u.Friends, id)
}

// PublicProfile is the subset of User shared with a matched partner
// or a call peer.
type PublicProfile struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Age       int      `json:"age"`
	Gender    string   `json:"gender"`
	Interests []string `json:"interests,omitempty"`
}

// Public returns the shareable view of the profile.
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:        u.ID,
		Username:  u.Username,
		Age:       u.Age,
		Gender:    u.Gender,
		Interests: u.Interests,
	}
}
