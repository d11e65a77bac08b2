package models

import "time"

// State is the participant's position in the search lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateSearching State = "searching"
	StateChatting  State = "chatting"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateSearching, StateChatting:
		return true
	}
	return false
}

// Gender is an optional self-declared tag. The empty value means "not set"
// and acts as a wildcard for compatibility.
type Gender string

const (
	GenderUnset  Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// ParseGender maps free-form input (callback payloads, CLI args) to a Gender.
// Anything unrecognised becomes GenderUnset.
func ParseGender(s string) Gender {
	switch Gender(s) {
	case GenderMale, GenderFemale:
		return Gender(s)
	}
	return GenderUnset
}

// User is the participant record kept by the live store.
// It is keyed by the Telegram chat ID and is never deleted.
type User struct {
	ID           int64     `json:"id"`
	State        State     `json:"state"`
	Gender       Gender    `json:"gender,omitempty"`
	Region       string    `json:"region,omitempty"`
	RegionFilter bool      `json:"region_filter,omitempty"`
	PartnerID    *int64    `json:"partner_id,omitempty"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// NewUser returns the default record created on first interaction.
func NewUser(id int64, now time.Time) *User {
	return &User{ID: id, State: StateIdle, LastActiveAt: now}
}

// HasPartner reports whether a partner link is recorded.
func (u *User) HasPartner() bool {
	return u.PartnerID != nil
}

// Partner returns the partner ID, or 0 when there is none.
func (u *User) Partner() int64 {
	if u.PartnerID == nil {
		return 0
	}
	return *u.PartnerID
}
