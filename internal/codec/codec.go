// Package codec maps event records to and from the self-describing field maps
// kept by the store backends.
//
// A field map is a protobuf Struct: every value carries its own kind (string,
// number, bool, map, list), so a decoder can tell a missing field from a
// mistyped one without a schema. The top level holds the envelope
// (key, format, v, ttl) and the aggregate under "event".
//
// Every item carries a format revision. Encode always writes CurrentFormat;
// Decode reads every revision up to CurrentFormat and applies only the
// migrations the item needs:
//
//	0  no "format" field; questions may lack "createdAt"
//	1  premium orders stored as a flat "premiumOrder" string
//	2  typed "premium" map (current)
package codec

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/liveqa/internal/model"
)

// CurrentFormat is the format revision written by Encode.
const CurrentFormat uint32 = 2

const (
	formatQuestionTimes uint32 = 1 // first revision that always writes question createdAt
	formatTypedPremium  uint32 = 2 // first revision with the typed premium map
)

// KeyPrefix namespaces event items in the store.
const KeyPrefix = "events/ev-"

// Key returns the store key for the event with the given public token.
func Key(token string) string {
	return KeyPrefix + token + ".json"
}

// TokenFromKey is the inverse of Key. ok is false for keys outside the
// event namespace.
func TokenFromKey(key string) (token string, ok bool) {
	if !strings.HasPrefix(key, KeyPrefix) || !strings.HasSuffix(key, ".json") {
		return "", false
	}
	token = strings.TrimSuffix(strings.TrimPrefix(key, KeyPrefix), ".json")
	return token, token != ""
}

// Top-level field names.
const (
	fieldKey    = "key"
	fieldFormat = "format"
	fieldVer    = "v"
	fieldEvent  = "event"
	fieldTTL    = "ttl"
)

// Encode converts a record into a field map at CurrentFormat. rec.Format is
// ignored. Encode refuses records Decode could not read back.
//
// Times are written in UTC and decode in UTC. A nil question list is written
// as an empty list and decodes as an empty, non-nil slice.
func Encode(rec *model.Record) (*structpb.Struct, error) {
	if rec == nil || rec.Event == nil {
		return nil, fmt.Errorf("codec: encode: record has no event")
	}
	ev := rec.Event
	if ev.Tokens.Public == "" {
		return nil, fmt.Errorf("codec: encode: event has no public token")
	}
	if !ev.State.IsValid() {
		return nil, fmt.Errorf("codec: encode: unknown state %q", ev.State)
	}
	if ev.Premium != nil && !ev.Premium.Kind.IsValid() {
		return nil, fmt.Errorf("codec: encode: unknown premium kind %q", ev.Premium.Kind)
	}
	m := map[string]*structpb.Value{
		fieldKey:    str(Key(rec.Event.Tokens.Public)),
		fieldFormat: num(CurrentFormat),
		fieldVer:    num(rec.Version),
		fieldEvent:  encodeEvent(rec.Event),
	}
	if rec.TTL != nil {
		m[fieldTTL] = num(*rec.TTL)
	}
	return &structpb.Struct{Fields: m}, nil
}

// Decode converts a field map back into a record. Structural problems are
// reported as *MalformedObjectError; items from a newer codec as
// *UnsupportedFormatError.
func Decode(s *structpb.Struct) (*model.Record, error) {
	if s == nil {
		return nil, malformed("", "nil item")
	}
	top := newFields("", s)

	format, err := readFormat(top)
	if err != nil {
		return nil, err
	}
	if format > CurrentFormat {
		return nil, &UnsupportedFormatError{Format: format}
	}

	if _, err := top.str(fieldKey); err != nil {
		return nil, err
	}
	version, err := top.unsigned(fieldVer)
	if err != nil {
		return nil, err
	}
	rec := &model.Record{Version: version, Format: format}

	if ttl, ok, err := top.optInteger(fieldTTL); err != nil {
		return nil, err
	} else if ok {
		rec.TTL = &ttl
	}

	ev, err := top.sub(fieldEvent)
	if err != nil {
		return nil, err
	}
	if rec.Event, err = decodeEvent(ev, format); err != nil {
		return nil, err
	}
	return rec, nil
}

// Marshal encodes a record and renders it as JSON, the representation the
// durable backends persist.
func Marshal(rec *model.Record) ([]byte, error) {
	s, err := Encode(rec)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(s)
}

// Unmarshal parses JSON written by Marshal (or by any older codec) and decodes it.
func Unmarshal(data []byte) (*model.Record, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return nil, malformed("", "not a JSON object: "+err.Error())
	}
	return Decode(&s)
}

// readFormat returns the item's format; a missing field means revision 0.
func readFormat(top fields) (uint32, error) {
	n, ok, err := top.optInteger(fieldFormat)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if n < 0 || n > int64(^uint32(0)) {
		return 0, malformed(fieldFormat, fmt.Sprintf("out of range: %d", n))
	}
	return uint32(n), nil
}
