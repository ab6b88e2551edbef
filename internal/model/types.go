/*
PURPOSE:
  Defines the core data structures used throughout iulog.
  These models represent incremental units (IUs), the update kinds they
  arrive with, and the log record written for each accepted update.

REQUIREMENTS:
  User-specified:
  - Record timestamp, payload, unit type, update type, iuid, creator,
    previous unit and grounding unit.
  - previous_iu is rendered by type name only (no recursive dump).

  Implementation-discovered:
  - Unit type is an explicit tag on the unit, not reflected from Go types.
  - Missing fields must render as null rather than abort the writer.

ARCHITECTURE INTEGRATION:
  - Used by: internal/filter, internal/output, internal/source, internal/server
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs). Parsing helpers return explicit errors.

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Record field order is the on-disk field order.

USAGE:
  u := &model.Unit{Type: "TextUnit", IUID: "a1", Payload: "hello"}
  rec := model.NewRecord(model.Update{Unit: u, Kind: model.KindAdd})

SELF-HEALING INSTRUCTIONS:
  - If a new update kind appears upstream, add it to the const block and
    the kindNames table.

RELATED FILES:
  - internal/model/render.go
  - internal/output/json.go

MAINTENANCE:
  - Update NewRecord when Record gains fields.
*/

package model

import (
	"fmt"
	"strings"
	"time"
)

// UnitType is the discriminator carried on every unit. It is used both for
// filtering and for the unit_type field of a record.
type UnitType string

// BaseUnitType is used for units whose concrete type is unknown, e.g. stub
// references to units that were never seen by this process.
const BaseUnitType UnitType = "IncrementalUnit"

func (t UnitType) String() string { return string(t) }

// UpdateKind is the nature of a unit's appearance in a batch.
type UpdateKind uint8

const (
	KindAdd UpdateKind = iota + 1
	KindRevoke
	KindUpdate
	KindCommit
)

var kindNames = map[UpdateKind]string{
	KindAdd:    "ADD",
	KindRevoke: "REVOKE",
	KindUpdate: "UPDATE",
	KindCommit: "COMMIT",
}

// String returns the upstream name of the kind (ADD, REVOKE, ...).
func (k UpdateKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("UpdateKind(%d)", uint8(k))
}

// ParseUpdateKind accepts names case-insensitively.
func ParseUpdateKind(s string) (UpdateKind, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == want {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown update kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k UpdateKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *UpdateKind) UnmarshalText(b []byte) error {
	parsed, err := ParseUpdateKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Unit is an incremental unit as produced by the upstream pipeline.
// The logger only reads it.
type Unit struct {
	Type       UnitType
	CreatedAt  time.Time
	Payload    any
	IUID       string
	Creator    string
	Previous   *Unit
	GroundedIn *Unit
}

// Update pairs a unit with the kind of update it arrived with.
type Update struct {
	Unit *Unit
	Kind UpdateKind
}

// Record is the serialized form of one accepted update.
// Nil pointers render as JSON null.
type Record struct {
	Timestamp  *float64 `json:"timestamp"`
	Payload    any      `json:"payload"`
	UnitType   *string  `json:"unit_type"`
	UpdateType string   `json:"update_type"`
	IUID       *string  `json:"iuid"`
	Creator    *string  `json:"creator"`
	PreviousIU *string  `json:"previous_iu"`
	GroundedIn *string  `json:"grounded_in"`
}

// NewRecord builds the record for an update. It never fails: absent fields
// (including a nil unit) become null.
func NewRecord(up Update) Record {
	rec := Record{UpdateType: up.Kind.String()}
	u := up.Unit
	if u == nil {
		return rec
	}

	if !u.CreatedAt.IsZero() {
		ts := float64(u.CreatedAt.Unix()) + float64(u.CreatedAt.Nanosecond())/1e9
		rec.Timestamp = &ts
	}
	rec.Payload = RenderValue(u.Payload)
	rec.UnitType = optional(string(u.TypeOrBase()))
	rec.IUID = optional(u.IUID)
	rec.Creator = optional(u.Creator)
	if u.Previous != nil {
		rec.PreviousIU = optional(string(u.Previous.TypeOrBase()))
	}
	if u.GroundedIn != nil {
		rec.GroundedIn = optional(u.GroundedIn.IUID)
	}
	return rec
}

// TypeOrBase returns the unit's type, or BaseUnitType when it has none. This
// is the type a record reports and the type filters match against.
func (u *Unit) TypeOrBase() UnitType {
	if u.Type == "" {
		return BaseUnitType
	}
	return u.Type
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
