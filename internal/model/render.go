/*
PURPOSE:
  Turns arbitrary payload values into something encoding/json can always
  encode.

REQUIREMENTS:
  User-specified:
  - Serialization never fails; unknown values fall back to their type name.

  Implementation-discovered:
  - Payloads can opt in to a custom representation via RecordValuer.
  - Self-referential values must terminate (depth cap).

ARCHITECTURE INTEGRATION:
  - Used by: internal/model/types.go (NewRecord), internal/filter/cel.go

ERROR HANDLING:
  - Never returns an error. Encoder failures become the type name.

IMPLEMENTATION RULES:
  - JSON-native values pass through untouched.
  - Maps and slices are rendered element-wise, so one bad element does not
    hide its siblings.

USAGE:
  v := model.RenderValue(payload)

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/model/types.go
  - internal/output/json.go

MAINTENANCE:
  - Add cases here before reaching for reflection.
*/

package model

import (
	"encoding"
	"encoding/json"
	"math"
	"reflect"
)

// RecordValuer is implemented by payload types that know how to present
// themselves in a log record. The returned value is rendered again, so it may
// itself be a map, slice or another RecordValuer.
type RecordValuer interface {
	RecordValue() any
}

// maxRenderDepth bounds nesting so that self-referential values
// (a RecordValuer returning itself, a map containing itself) still render.
const maxRenderDepth = 64

// RenderValue converts v into something encoding/json can always encode.
// Values the encoder cannot represent degrade to their type name, so rendering
// never fails.
func RenderValue(v any) any {
	return renderValue(v, 0)
}

func renderValue(v any, depth int) any {
	if depth > maxRenderDepth {
		return TypeName(v)
	}
	switch x := v.(type) {
	case nil:
		return nil
	case RecordValuer:
		return renderValue(x.RecordValue(), depth+1)
	case string, bool, json.Number, json.RawMessage,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x
	case float64:
		return renderFloat(x)
	case float32:
		return renderFloat(float64(x))
	case json.Marshaler, encoding.TextMarshaler:
		return marshalOrName(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = renderValue(e, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = renderValue(e, depth+1)
		}
		return out
	default:
		return marshalOrName(x)
	}
}

// TypeName returns the name of v's dynamic type, dereferencing pointers.
func TypeName(v any) string {
	if v == nil {
		return "nil"
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

func renderFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return TypeName(f)
	}
	return f
}

// marshalOrName pre-encodes v so that a failure surfaces here, not halfway
// through writing a record to the stream.
func marshalOrName(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return TypeName(v)
	}
	return json.RawMessage(b)
}
