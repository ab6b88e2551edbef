// Package source turns the wire form of incremental-unit updates into model
// values. The same decoder serves JSONL replay files and HTTP batch bodies.
//
// One update looks like:
//
//	{"update_type": "ADD",
//	 "unit": {"type": "TextUnit", "iuid": "a1", "created_at": 1700000000.25,
//	          "creator": "asr", "payload": {"text": "hi"},
//	          "previous_iu": "a0", "grounded_in": {"type": "AudioUnit", "iuid": "g7"}}}
//
// previous_iu and grounded_in may be null, an IUID string or an object with
// type and iuid. References resolve against units this Decoder has already
// seen; unknown or evicted references become stubs.
//
// The index holds shallow {type, iuid} copies in a fixed-size LRU, so a
// long-running server keeps neither an unbounded number of entries nor the
// causal chain behind each one.
package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/valyala/fastjson"

	"github.com/daryltucker/iulog/internal/model"
)

var ErrMissingUnit = errors.New("update has no unit object")

// DefaultIndexSize is the number of units NewDecoder remembers for reference
// resolution.
const DefaultIndexSize = 65536

// Decoder is safe for concurrent use.
type Decoder struct {
	parsers fastjson.ParserPool

	mu    sync.Mutex
	units *lru.Cache[string, *model.Unit]
}

// NewDecoder creates a decoder with an index of DefaultIndexSize units.
func NewDecoder() *Decoder {
	return NewDecoderSize(DefaultIndexSize)
}

// NewDecoderSize creates a decoder that remembers at most size units.
// Non-positive sizes fall back to DefaultIndexSize.
func NewDecoderSize(size int) *Decoder {
	if size <= 0 {
		size = DefaultIndexSize
	}
	// lru.New only fails for non-positive sizes.
	units, _ := lru.New[string, *model.Unit](size)
	return &Decoder{units: units}
}

// DecodeUpdate parses a single update object.
func (d *Decoder) DecodeUpdate(data []byte) (model.Update, error) {
	p := d.parsers.Get()
	defer d.parsers.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return model.Update{}, err
	}
	return d.update(v)
}

// DecodeBatch parses either a JSON array of updates or a single update object.
func (d *Decoder) DecodeBatch(data []byte) ([]model.Update, error) {
	p := d.parsers.Get()
	defer d.parsers.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, err
	}
	if v.Type() != fastjson.TypeArray {
		up, err := d.update(v)
		if err != nil {
			return nil, err
		}
		return []model.Update{up}, nil
	}

	arr, _ := v.Array()
	batch := make([]model.Update, 0, len(arr))
	for i, item := range arr {
		up, err := d.update(item)
		if err != nil {
			return nil, fmt.Errorf("update %d: %w", i, err)
		}
		batch = append(batch, up)
	}
	return batch, nil
}

// Known returns the number of distinct units indexed so far.
func (d *Decoder) Known() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.units.Len()
}

func (d *Decoder) update(v *fastjson.Value) (model.Update, error) {
	if v.Type() != fastjson.TypeObject {
		return model.Update{}, fmt.Errorf("update must be an object, got %s", v.Type())
	}
	kind, err := model.ParseUpdateKind(string(v.GetStringBytes("update_type")))
	if err != nil {
		return model.Update{}, err
	}
	uv := v.Get("unit")
	if uv == nil || uv.Type() != fastjson.TypeObject {
		return model.Update{}, ErrMissingUnit
	}
	return model.Update{Unit: d.unit(uv), Kind: kind}, nil
}

func (d *Decoder) unit(v *fastjson.Value) *model.Unit {
	u := &model.Unit{
		Type:    model.UnitType(v.GetStringBytes("type")),
		IUID:    string(v.GetStringBytes("iuid")),
		Creator: string(v.GetStringBytes("creator")),
		Payload: payload(v.Get("payload")),
	}
	if u.Type == "" {
		u.Type = model.BaseUnitType
	}
	if u.IUID == "" {
		u.IUID = uuid.NewString()
	}
	if ts := v.Get("created_at"); ts != nil && ts.Type() == fastjson.TypeNumber {
		u.CreatedAt = fromUnixSeconds(ts.GetFloat64())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	u.Previous = d.resolve(v.Get("previous_iu"))
	u.GroundedIn = d.resolve(v.Get("grounded_in"))
	// Re-sending a unit (e.g. its COMMIT) replaces the indexed copy.
	d.units.Add(u.IUID, &model.Unit{Type: u.Type, IUID: u.IUID})
	return u
}

// resolve must be called with d.mu held.
func (d *Decoder) resolve(v *fastjson.Value) *model.Unit {
	if v == nil {
		return nil
	}
	switch v.Type() {
	case fastjson.TypeString:
		id := string(v.GetStringBytes())
		if id == "" {
			return nil
		}
		if u, ok := d.units.Get(id); ok {
			return u
		}
		return &model.Unit{Type: model.BaseUnitType, IUID: id}
	case fastjson.TypeObject:
		id := string(v.GetStringBytes("iuid"))
		if id != "" {
			if u, ok := d.units.Get(id); ok {
				return u
			}
		}
		stub := &model.Unit{Type: model.UnitType(v.GetStringBytes("type")), IUID: id}
		if stub.Type == "" {
			stub.Type = model.BaseUnitType
		}
		return stub
	default:
		return nil
	}
}

// payload keeps the raw JSON so it is written back byte-for-byte equivalent.
func payload(v *fastjson.Value) any {
	if v == nil || v.Type() == fastjson.TypeNull {
		return nil
	}
	return json.RawMessage(v.MarshalTo(nil))
}

func fromUnixSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9)))
}
