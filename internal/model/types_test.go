package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

type textPayload struct {
	Text string
}

func (p textPayload) RecordValue() any { return map[string]any{"text": p.Text} }

// mirror presents itself as itself.
type mirror struct{}

func (m mirror) RecordValue() any { return m }

type opaque struct {
	Ch chan int
}

func TestParseUpdateKind(t *testing.T) {
	cases := map[string]UpdateKind{
		"ADD":     KindAdd,
		"revoke":  KindRevoke,
		" Update": KindUpdate,
		"COMMIT":  KindCommit,
	}
	for in, want := range cases {
		got, err := ParseUpdateKind(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Errorf("parse %q: want %v, got %v", in, want, got)
		}
	}
	if _, err := ParseUpdateKind("DELETE"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestUpdateKindJSON(t *testing.T) {
	b, err := json.Marshal([]UpdateKind{KindAdd, KindCommit})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `["ADD","COMMIT"]` {
		t.Fatalf("unexpected encoding %s", b)
	}
	var back []UpdateKind
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back) != 2 || back[0] != KindAdd || back[1] != KindCommit {
		t.Fatalf("unexpected decode %v", back)
	}
}

func TestNewRecordPreviousRendering(t *testing.T) {
	prev := &Unit{Type: "TextUnit", IUID: "p1", Payload: "deep"}
	grounding := &Unit{Type: "AudioUnit", IUID: "g1"}
	u := &Unit{
		Type:       "TextUnit",
		CreatedAt:  time.Unix(1700000000, 500000000),
		Payload:    "hello",
		IUID:       "u1",
		Creator:    "asr",
		Previous:   prev,
		GroundedIn: grounding,
	}

	rec := NewRecord(Update{Unit: u, Kind: KindAdd})
	if rec.PreviousIU == nil || *rec.PreviousIU != "TextUnit" {
		t.Fatalf("want previous_iu TextUnit, got %v", rec.PreviousIU)
	}
	if rec.GroundedIn == nil || *rec.GroundedIn != "g1" {
		t.Fatalf("want grounded_in g1, got %v", rec.GroundedIn)
	}
	if rec.Timestamp == nil || *rec.Timestamp != 1700000000.5 {
		t.Fatalf("unexpected timestamp %v", rec.Timestamp)
	}
	if rec.UpdateType != "ADD" {
		t.Fatalf("unexpected update_type %q", rec.UpdateType)
	}

	noPrev := NewRecord(Update{Unit: &Unit{Type: "TextUnit", IUID: "u2"}, Kind: KindRevoke})
	b, err := json.Marshal(noPrev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := m["previous_iu"]; !ok || v != nil {
		t.Fatalf("want previous_iu null, got %v (present=%v)", v, ok)
	}
}

func TestNewRecordNilUnit(t *testing.T) {
	rec := NewRecord(Update{Kind: KindCommit})
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"timestamp":null,"payload":null,"unit_type":null,"update_type":"COMMIT","iuid":null,"creator":null,"previous_iu":null,"grounded_in":null}`
	if string(b) != want {
		t.Fatalf("want %s\n got %s", want, b)
	}
}

func TestRenderValue(t *testing.T) {
	if got := RenderValue(textPayload{Text: "hi"}); got.(map[string]any)["text"] != "hi" {
		t.Fatalf("RecordValuer not used: %v", got)
	}
	if got := RenderValue(opaque{}); got != "opaque" {
		t.Fatalf("want type name fallback, got %v", got)
	}
	if got := RenderValue(math.NaN()); got != "float64" {
		t.Fatalf("want float64 for NaN, got %v", got)
	}

	nested := RenderValue(map[string]any{
		"ok":   1,
		"bad":  make(chan int),
		"list": []any{"a", func() {}},
	}).(map[string]any)
	if nested["bad"] != "chan int" {
		t.Fatalf("nested chan: got %v", nested["bad"])
	}
	list := nested["list"].([]any)
	if list[0] != "a" || list[1] != "func()" {
		t.Fatalf("nested list: got %v", list)
	}
	if _, err := json.Marshal(nested); err != nil {
		t.Fatalf("rendered value must always encode: %v", err)
	}

	type point struct {
		X int `json:"x"`
	}
	raw, ok := RenderValue(&point{X: 3}).(json.RawMessage)
	if !ok || string(raw) != `{"x":3}` {
		t.Fatalf("struct should encode natively, got %v", raw)
	}
}

func TestRenderValueSelfReference(t *testing.T) {
	if got := RenderValue(mirror{}); got != "mirror" {
		t.Fatalf("self-returning valuer: want type name, got %v", got)
	}

	loop := map[string]any{}
	loop["self"] = loop
	if _, err := json.Marshal(RenderValue(loop)); err != nil {
		t.Fatalf("self-containing map must still encode: %v", err)
	}
}

func TestTypeOrBase(t *testing.T) {
	if got := (&Unit{}).TypeOrBase(); got != BaseUnitType {
		t.Fatalf("want %s, got %s", BaseUnitType, got)
	}
	if got := (&Unit{Type: "TextUnit"}).TypeOrBase(); got != "TextUnit" {
		t.Fatalf("want TextUnit, got %s", got)
	}
}
