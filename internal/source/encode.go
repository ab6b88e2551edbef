/*
PURPOSE:
  Encodes updates into the wire form read by Decoder, for shipping batches
  to a remote server.

REQUIREMENTS:
  Implementation-discovered:
  - Output must round-trip through DecodeBatch.
  - References are sent as {type, iuid} so the receiver can stub them.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/client.go
  - Uses: valyala/fastjson Arena

ERROR HANDLING:
  - Payloads that fail to encode are sent as their type name.

IMPLEMENTATION RULES:
  - Parsed payload values live in their parser; use one parser per unit.

USAGE:
  body := source.EncodeBatch(batch)

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/source/decoder.go

MAINTENANCE:
  - Keep in sync with the decoder's field names.
*/

package source

import (
	"encoding/json"

	"github.com/valyala/fastjson"

	"github.com/daryltucker/iulog/internal/model"
)

// EncodeBatch renders updates back into the wire form accepted by
// DecodeBatch. References are written as {"type","iuid"} objects so the
// receiving side can build stubs without having seen the referenced unit.
func EncodeBatch(batch []model.Update) []byte {
	var a fastjson.Arena

	arr := a.NewArray()
	for i, up := range batch {
		obj := a.NewObject()
		obj.Set("update_type", a.NewString(up.Kind.String()))
		if up.Unit == nil {
			obj.Set("unit", a.NewNull())
		} else {
			// A fresh parser per unit: parsed payload values live in the
			// parser and must not be overwritten before MarshalTo.
			obj.Set("unit", encodeUnit(&a, new(fastjson.Parser), up.Unit))
		}
		arr.SetArrayItem(i, obj)
	}
	return arr.MarshalTo(nil)
}

func encodeUnit(a *fastjson.Arena, p *fastjson.Parser, u *model.Unit) *fastjson.Value {
	obj := a.NewObject()
	obj.Set("type", a.NewString(string(u.Type)))
	obj.Set("iuid", a.NewString(u.IUID))
	if !u.CreatedAt.IsZero() {
		obj.Set("created_at", a.NewNumberFloat64(float64(u.CreatedAt.Unix())+float64(u.CreatedAt.Nanosecond())/1e9))
	}
	if u.Creator != "" {
		obj.Set("creator", a.NewString(u.Creator))
	}
	obj.Set("payload", encodePayload(a, p, u.Payload))
	obj.Set("previous_iu", encodeRef(a, u.Previous))
	obj.Set("grounded_in", encodeRef(a, u.GroundedIn))
	return obj
}

func encodeRef(a *fastjson.Arena, u *model.Unit) *fastjson.Value {
	if u == nil {
		return a.NewNull()
	}
	ref := a.NewObject()
	ref.Set("type", a.NewString(string(u.Type)))
	ref.Set("iuid", a.NewString(u.IUID))
	return ref
}

func encodePayload(a *fastjson.Arena, p *fastjson.Parser, v any) *fastjson.Value {
	if v == nil {
		return a.NewNull()
	}
	raw, err := json.Marshal(model.RenderValue(v))
	if err != nil {
		return a.NewString(model.TypeName(v))
	}
	pv, err := p.ParseBytes(raw)
	if err != nil {
		return a.NewString(model.TypeName(v))
	}
	return pv
}
