package model

import "time"

// FreeEventLifetime is how long a free event accepts questions and likes
// after it was created. Premium events never time out.
const FreeEventLifetime = 7 * 24 * time.Hour

// FreeEventRetention is how long a free event record is kept in the store
// before the backing store may evict it.
const FreeEventRetention = 30 * 24 * time.Hour

// State is the moderator-controlled lifecycle of an event.
type State string

const (
	StateOpen         State = "open"
	StateVotingClosed State = "voting_closed"
	StateClosed       State = "closed"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsValid checks whether the state is a known value.
func (s State) IsValid() bool {
	switch s {
	case StateOpen, StateVotingClosed, StateClosed:
		return true
	}
	return false
}

// AcceptsQuestions reports whether new questions may be asked in this state.
func (s State) AcceptsQuestions() bool {
	return s == StateOpen || s == StateVotingClosed
}

// AcceptsLikes reports whether questions may be liked in this state.
func (s State) AcceptsLikes() bool {
	return s == StateOpen
}

// PremiumKind names the origin of a premium upgrade.
type PremiumKind string

const (
	PremiumPaypal PremiumKind = "paypal"
	PremiumStripe PremiumKind = "stripe"
	PremiumGrant  PremiumKind = "grant"
)

// IsValid checks whether the premium kind is a known value.
func (k PremiumKind) IsValid() bool {
	switch k {
	case PremiumPaypal, PremiumStripe, PremiumGrant:
		return true
	}
	return false
}

// PremiumOrder marks an event as premium and records which order paid for it.
type PremiumOrder struct {
	Kind PremiumKind `json:"kind"`
	ID   string      `json:"id"`
}

// Tokens identify an event. Public is shared with the audience and is the
// store key; Moderator is the secret handed to the event owner.
type Tokens struct {
	Public    string `json:"public_token"`
	Moderator string `json:"moderator_token,omitempty"`
}

// Info is the descriptive metadata of an event.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

// Tag is an entry in an event's tag catalog. Questions reference tags by ID.
type Tag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ContextLink is an external resource attached to an event (slides, stream).
type ContextLink struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Event is the aggregate: one live Q&A session and everything asked in it.
type Event struct {
	Tokens       Tokens        `json:"tokens"`
	Info         Info          `json:"info"`
	State        State         `json:"state"`
	Questions    []Question    `json:"questions"`
	Tags         []Tag         `json:"tags,omitempty"`
	Password     *string       `json:"password,omitempty"`
	Premium      *PremiumOrder `json:"premium,omitempty"`
	ContextLinks []ContextLink `json:"context_links,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	LastEdit     time.Time     `json:"last_edit"`
	DeletedAt    *time.Time    `json:"deleted_at,omitempty"`
}

// IsPremium reports whether the event carries a premium marker.
func (e *Event) IsPremium() bool {
	return e.Premium != nil
}

// IsDeleted reports whether the event was soft-deleted.
func (e *Event) IsDeleted() bool {
	return e.DeletedAt != nil
}

// TimedOut reports whether a free event has outlived FreeEventLifetime at now.
func (e *Event) TimedOut(now time.Time) bool {
	if e.IsPremium() {
		return false
	}
	return now.Sub(e.CreatedAt) > FreeEventLifetime
}

// Expiry returns the store TTL (epoch seconds) for the event, or nil when the
// record should never expire.
func (e *Event) Expiry() *int64 {
	if e.IsPremium() {
		return nil
	}
	ttl := e.CreatedAt.Add(FreeEventRetention).Unix()
	return &ttl
}

// Public returns a copy of the event safe to show to the audience: the
// moderator token and password are stripped.
func (e *Event) Public() *Event {
	c := *e
	c.Tokens.Moderator = ""
	c.Password = nil
	return &c
}

// NewEvent returns a fresh open event created at now. Stored times are
// always UTC.
func NewEvent(tokens Tokens, info Info, now time.Time) *Event {
	now = now.UTC()
	return &Event{
		Tokens:    tokens,
		Info:      info,
		State:     StateOpen,
		Questions: []Question{},
		CreatedAt: now,
		LastEdit:  now,
	}
}
