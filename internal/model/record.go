package model

// Record is the stored envelope around an Event: the unit of optimistic
// concurrency.
//
// Version starts at 0 and grows by exactly one on every successful put.
// Format is the schema revision the record was read with; encoders always
// write the current revision. TTL is an optional absolute expiry in epoch
// seconds, nil meaning the record never expires.
type Record struct {
	Version uint64
	Format  uint32
	TTL     *int64
	Event   *Event
}

// Token returns the public token of the wrapped event, or "" when empty.
func (r *Record) Token() string {
	if r == nil || r.Event == nil {
		return ""
	}
	return r.Event.Tokens.Public
}
