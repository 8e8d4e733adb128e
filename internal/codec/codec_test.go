package codec

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/liveqa/internal/model"
)

var (
	created = time.Date(2026, 2, 1, 18, 0, 0, 123456789, time.UTC)
	edited  = created.Add(90 * time.Minute)
)

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func minimalRecord() *model.Record {
	return &model.Record{
		Version: 0,
		Format:  CurrentFormat,
		Event:   model.NewEvent(model.Tokens{Public: "abc123"}, model.Info{Name: "Standup"}, created),
	}
}

func fullRecord() *model.Record {
	deleted := edited.Add(time.Hour)
	ttl := int64(1777777777)
	return &model.Record{
		Version: 41,
		Format:  CurrentFormat,
		TTL:     &ttl,
		Event: &model.Event{
			Tokens: model.Tokens{Public: "abc123", Moderator: "mod-secret"},
			Info:   model.Info{Name: "Town hall", Description: "Quarterly", Color: "#ff8800"},
			State:  model.StateVotingClosed,
			Questions: []model.Question{
				{ID: 1, Text: "First?", Likes: 3, CreatedAt: created, Hidden: true, Tag: intPtr(2)},
				{ID: 4, Text: "Second?", CreatedAt: edited, Answered: true, Screening: true},
			},
			Tags:         []model.Tag{{ID: 2, Name: "Product"}, {ID: 5, Name: "HR"}},
			Password:     strPtr("hunter2"),
			Premium:      &model.PremiumOrder{Kind: model.PremiumStripe, ID: "cs_test_1"},
			ContextLinks: []model.ContextLink{{URL: "https://example.com/slides", Title: "Slides"}, {URL: "https://example.com/live"}},
			CreatedAt:    created,
			LastEdit:     edited,
			DeletedAt:    &deleted,
		},
	}
}

func TestKey(t *testing.T) {
	if got, want := Key("abc123"), "events/ev-abc123.json"; got != want {
		t.Fatalf("Key = %q, want %q", got, want)
	}
	tok, ok := TokenFromKey("events/ev-abc123.json")
	if !ok || tok != "abc123" {
		t.Errorf("TokenFromKey = %q, %v", tok, ok)
	}
	for _, k := range []string{"viewers/abc", "events/ev-.json", "events/ev-abc"} {
		if _, ok := TokenFromKey(k); ok {
			t.Errorf("TokenFromKey(%q) should fail", k)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	cest := time.FixedZone("CEST", 2*60*60)
	for _, tc := range []struct {
		name string
		rec  *model.Record
		want *model.Record // nil means rec itself
	}{
		{"every optional field absent", minimalRecord(), nil},
		{"every optional field populated", fullRecord(), nil},
		{"empty but present lists", func() *model.Record {
			r := minimalRecord()
			r.Event.Tags = []model.Tag{}
			r.Event.ContextLinks = []model.ContextLink{}
			r.Event.Password = strPtr("")
			return r
		}(), nil},
		{"event created in a non-UTC zone", &model.Record{
			Format: CurrentFormat,
			Event:  model.NewEvent(model.Tokens{Public: "abc123"}, model.Info{Name: "Standup"}, created.In(cest)),
		}, nil},
		{"nil question list reads back empty", func() *model.Record {
			r := minimalRecord()
			r.Event.Questions = nil
			return r
		}(), minimalRecord()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			want := tc.want
			if want == nil {
				want = tc.rec
			}
			s, err := Encode(tc.rec)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(s)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round trip mismatch\n got: %+v\nwant: %+v", got.Event, want.Event)
			}
		})
	}
}

func TestEncode_RejectsUnreadableRecords(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*model.Event)
	}{
		{"empty state", func(e *model.Event) { e.State = "" }},
		{"unknown state", func(e *model.Event) { e.State = "paused" }},
		{"premium without kind", func(e *model.Event) { e.Premium = &model.PremiumOrder{ID: "x"} }},
		{"unknown premium kind", func(e *model.Event) { e.Premium = &model.PremiumOrder{Kind: "bitcoin", ID: "x"} }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := fullRecord()
			tc.mutate(rec.Event)
			if _, err := Encode(rec); err == nil {
				t.Fatal("Encode accepted a record Decode would reject")
			}
			if _, err := Marshal(rec); err == nil {
				t.Fatal("Marshal accepted a record Decode would reject")
			}
		})
	}
}

func TestRoundTrip_JSON(t *testing.T) {
	rec := fullRecord()
	data, err := Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, rec) {
		t.Errorf("JSON round trip mismatch: %s", data)
	}
}

func TestEncode_WritesEnvelope(t *testing.T) {
	rec := fullRecord()
	rec.Format = 0 // ignored by Encode
	s, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m := s.AsMap()
	if m["key"] != "events/ev-abc123.json" {
		t.Errorf("key = %v", m["key"])
	}
	if m["format"] != float64(CurrentFormat) {
		t.Errorf("format = %v, want %d", m["format"], CurrentFormat)
	}
	if m["v"] != float64(41) {
		t.Errorf("v = %v, want 41", m["v"])
	}
	if m["ttl"] != float64(1777777777) {
		t.Errorf("ttl = %v", m["ttl"])
	}
	if _, ok := m["event"].(map[string]any); !ok {
		t.Errorf("event = %T, want map", m["event"])
	}
}

func TestEncode_RequiresToken(t *testing.T) {
	if _, err := Encode(&model.Record{}); err == nil {
		t.Error("expected error for record without event")
	}
	rec := minimalRecord()
	rec.Event.Tokens.Public = ""
	if _, err := Encode(rec); err == nil {
		t.Error("expected error for event without public token")
	}
}

// legacyItem builds a field map shaped like the oldest supported revision:
// no format field, no typed premium, questions without createdAt.
func legacyItem(t *testing.T) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(map[string]any{
		"key": "events/ev-old1.json",
		"v":   7,
		"event": map[string]any{
			"publicToken":  "old1",
			"name":         "Legacy event",
			"state":        "open",
			"premiumOrder": "PAYPAL-ORDER-9",
			"createdAt":    created.Format(time.RFC3339Nano),
			"lastEdit":     edited.Format(time.RFC3339Nano),
			"questions": []any{
				map[string]any{"id": 1, "text": "old question", "likes": 2},
			},
		},
	})
	if err != nil {
		t.Fatalf("building legacy item: %v", err)
	}
	return s
}

func TestDecode_LegacyPremiumHoisted(t *testing.T) {
	rec, err := Decode(legacyItem(t))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rec.Format != 0 {
		t.Errorf("format = %d, want 0 (not bumped until next write)", rec.Format)
	}
	want := &model.PremiumOrder{Kind: model.PremiumPaypal, ID: "PAYPAL-ORDER-9"}
	if !reflect.DeepEqual(rec.Event.Premium, want) {
		t.Errorf("premium = %+v, want %+v", rec.Event.Premium, want)
	}
	if got := rec.Event.Questions[0].CreatedAt; !got.Equal(created) {
		t.Errorf("question createdAt = %v, want event creation %v", got, created)
	}

	// The next write carries the current format and the typed field.
	s, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m := s.AsMap()
	ev := m["event"].(map[string]any)
	if _, ok := ev["premiumOrder"]; ok {
		t.Error("re-encoded item still carries the legacy premiumOrder field")
	}
	if ev["premium"] == nil || m["format"] != float64(CurrentFormat) {
		t.Errorf("re-encoded item not upgraded: %v", m)
	}
}

func TestDecode_FormatOneHoistsPremium(t *testing.T) {
	s := legacyItem(t)
	s.Fields["format"] = structpb.NewNumberValue(1)
	// Format 1 always wrote question timestamps.
	q := s.Fields["event"].GetStructValue().Fields["questions"].GetListValue().Values[0].GetStructValue()
	q.Fields["createdAt"] = structpb.NewStringValue(edited.Format(time.RFC3339Nano))

	rec, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rec.Format != 1 || rec.Event.Premium == nil || rec.Event.Premium.ID != "PAYPAL-ORDER-9" {
		t.Errorf("format=%d premium=%+v", rec.Format, rec.Event.Premium)
	}
}

func TestDecode_FormatOneRequiresQuestionTimes(t *testing.T) {
	s := legacyItem(t)
	s.Fields["format"] = structpb.NewNumberValue(1)
	_, err := Decode(s)
	var me *MalformedObjectError
	if !errors.As(err, &me) || me.Field != "event.questions[0].createdAt" {
		t.Fatalf("err = %v, want malformed event.questions[0].createdAt", err)
	}
}

func TestDecode_CurrentFormatIgnoresLegacyField(t *testing.T) {
	s := legacyItem(t)
	s.Fields["format"] = structpb.NewNumberValue(float64(CurrentFormat))
	q := s.Fields["event"].GetStructValue().Fields["questions"].GetListValue().Values[0].GetStructValue()
	q.Fields["createdAt"] = structpb.NewStringValue(edited.Format(time.RFC3339Nano))

	rec, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rec.Event.Premium != nil {
		t.Errorf("premium = %+v, want nil for current-format item", rec.Event.Premium)
	}
}

func TestDecode_UnsupportedFormat(t *testing.T) {
	s, _ := Encode(minimalRecord())
	s.Fields["format"] = structpb.NewNumberValue(float64(CurrentFormat + 1))
	_, err := Decode(s)
	var ue *UnsupportedFormatError
	if !errors.As(err, &ue) || ue.Format != CurrentFormat+1 {
		t.Fatalf("err = %v, want *UnsupportedFormatError", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, tc := range []struct {
		name  string
		edit  func(top, ev map[string]*structpb.Value)
		field string
	}{
		{"missing key", func(top, _ map[string]*structpb.Value) { delete(top, "key") }, "key"},
		{"version wrong kind", func(top, _ map[string]*structpb.Value) { top["v"] = structpb.NewStringValue("1") }, "v"},
		{"negative version", func(top, _ map[string]*structpb.Value) { top["v"] = structpb.NewNumberValue(-1) }, "v"},
		{"fractional version", func(top, _ map[string]*structpb.Value) { top["v"] = structpb.NewNumberValue(1.5) }, "v"},
		{"format wrong kind", func(top, _ map[string]*structpb.Value) { top["format"] = structpb.NewBoolValue(true) }, "format"},
		{"ttl wrong kind", func(top, _ map[string]*structpb.Value) { top["ttl"] = structpb.NewStringValue("soon") }, "ttl"},
		{"missing event", func(top, _ map[string]*structpb.Value) { delete(top, "event") }, "event"},
		{"event wrong kind", func(top, _ map[string]*structpb.Value) { top["event"] = structpb.NewListValue(&structpb.ListValue{}) }, "event"},
		{"missing name", func(_, ev map[string]*structpb.Value) { delete(ev, "name") }, "event.name"},
		{"unknown state", func(_, ev map[string]*structpb.Value) { ev["state"] = structpb.NewStringValue("paused") }, "event.state"},
		{"bad timestamp", func(_, ev map[string]*structpb.Value) { ev["createdAt"] = structpb.NewStringValue("yesterday") }, "event.createdAt"},
		{"questions wrong kind", func(_, ev map[string]*structpb.Value) { ev["questions"] = structpb.NewStringValue("[]") }, "event.questions"},
		{"missing questions", func(_, ev map[string]*structpb.Value) { delete(ev, "questions") }, "event.questions"},
		{"question element not a map", func(_, ev map[string]*structpb.Value) {
			ev["questions"].GetListValue().Values[1] = structpb.NewNumberValue(3)
		}, "event.questions[1]"},
		{"question missing text", func(_, ev map[string]*structpb.Value) {
			delete(ev["questions"].GetListValue().Values[0].GetStructValue().Fields, "text")
		}, "event.questions[0].text"},
		{"question flag wrong kind", func(_, ev map[string]*structpb.Value) {
			ev["questions"].GetListValue().Values[1].GetStructValue().Fields["answered"] = structpb.NewStringValue("yes")
		}, "event.questions[1].answered"},
		{"tag missing name", func(_, ev map[string]*structpb.Value) {
			delete(ev["tags"].GetListValue().Values[1].GetStructValue().Fields, "name")
		}, "event.tags[1].name"},
		{"link url wrong kind", func(_, ev map[string]*structpb.Value) {
			ev["contextLinks"].GetListValue().Values[0].GetStructValue().Fields["url"] = structpb.NewNumberValue(1)
		}, "event.contextLinks[0].url"},
		{"premium unknown kind", func(_, ev map[string]*structpb.Value) {
			ev["premium"].GetStructValue().Fields["kind"] = structpb.NewStringValue("barter")
		}, "event.premium.kind"},
		{"password wrong kind", func(_, ev map[string]*structpb.Value) { ev["password"] = structpb.NewBoolValue(false) }, "event.password"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Encode(fullRecord())
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			tc.edit(s.Fields, s.Fields["event"].GetStructValue().Fields)

			_, err = Decode(s)
			var me *MalformedObjectError
			if !errors.As(err, &me) {
				t.Fatalf("err = %v, want *MalformedObjectError", err)
			}
			if me.Field != tc.field {
				t.Errorf("field = %q, want %q", me.Field, tc.field)
			}
			if !errors.Is(err, ErrMalformed) {
				t.Error("MalformedObjectError should match ErrMalformed")
			}
		})
	}
}

func TestDecode_OptionalFieldsDefault(t *testing.T) {
	s, err := Encode(fullRecord())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ev := s.Fields["event"].GetStructValue().Fields
	for _, k := range []string{"moderatorToken", "description", "color", "tags", "password", "premium", "contextLinks", "deletedAt"} {
		delete(ev, k)
	}
	q := ev["questions"].GetListValue().Values[0].GetStructValue().Fields
	delete(q, "likes")
	delete(q, "hidden")
	delete(q, "tag")
	ev["color"] = structpb.NewNullValue()

	rec, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	e := rec.Event
	if e.Tokens.Moderator != "" || e.Info.Color != "" || e.Tags != nil || e.Password != nil || e.Premium != nil || e.ContextLinks != nil || e.DeletedAt != nil {
		t.Errorf("optional fields not defaulted: %+v", e)
	}
	if got := e.Questions[0]; got.Likes != 0 || got.Hidden || got.Tag != nil {
		t.Errorf("question optional fields not defaulted: %+v", got)
	}
}

func TestUnmarshal_InvalidJSON(t *testing.T) {
	for _, data := range []string{"{not json", "{", "[1,2]", `"x"`, ""} {
		_, err := Unmarshal([]byte(data))
		var me *MalformedObjectError
		if !errors.As(err, &me) {
			t.Errorf("Unmarshal(%q) err = %v, want *MalformedObjectError", data, err)
			continue
		}
		if me.Field != "" {
			t.Errorf("Unmarshal(%q) field = %q, want the item root", data, me.Field)
		}
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Unmarshal(%q) err does not match ErrMalformed", data)
		}
	}
}
