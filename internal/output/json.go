/*
PURPOSE:
  Streams log records into a single top-level JSON array.

REQUIREMENTS:
  User-specified:
  - File begins with `[`, ends with `]`, records separated by `, `.
  - Zero records produce exactly `[]`.

  Implementation-discovered:
  - Records are marshalled before anything is written, so a record that
    fails to encode never leaves a dangling separator.

ARCHITECTURE INTEGRATION:
  - Called by: BufferedWriter worker (buffered.go)
  - Consumes: internal/model.Record

ERROR HANDLING:
  - Returns the underlying io error unchanged; the caller treats it as fatal.

IMPLEMENTATION RULES:
  - Use encoding/json.
  - Not thread-safe. Only the worker goroutine touches it.

USAGE:
  enc := output.NewArrayEncoder(w, true)
  enc.Begin()
  enc.Encode(rec)
  enc.End()

SELF-HEALING INSTRUCTIONS:
  - None specific.

RELATED FILES:
  - internal/model/types.go

MAINTENANCE:
  - Keep the separator exactly ", "; downstream tooling greps for it.
*/

package output

import (
	"encoding/json"
	"io"

	"github.com/daryltucker/iulog/internal/model"
)

const (
	arrayOpen  = "["
	arrayClose = "]"
	separator  = ", "
)

// ArrayEncoder writes records as elements of one JSON array.
type ArrayEncoder struct {
	w      io.Writer
	indent bool
	count  int64
}

// NewArrayEncoder creates an encoder; indent selects two-space indented records.
func NewArrayEncoder(w io.Writer, indent bool) *ArrayEncoder {
	return &ArrayEncoder{w: w, indent: indent}
}

// Begin writes the opening bracket.
func (e *ArrayEncoder) Begin() error {
	_, err := io.WriteString(e.w, arrayOpen)
	return err
}

// Encode appends one record, preceded by a separator unless it is the first.
func (e *ArrayEncoder) Encode(rec model.Record) error {
	data, err := e.marshal(rec)
	if err != nil {
		// Payload is the only open-ended field.
		rec.Payload = model.TypeName(rec.Payload)
		if data, err = e.marshal(rec); err != nil {
			return err
		}
	}
	if e.count != 0 {
		if _, err := io.WriteString(e.w, separator); err != nil {
			return err
		}
	}
	if _, err := e.w.Write(data); err != nil {
		return err
	}
	e.count++
	return nil
}

// End writes the closing bracket.
func (e *ArrayEncoder) End() error {
	_, err := io.WriteString(e.w, arrayClose)
	return err
}

// Count returns the number of records written so far.
func (e *ArrayEncoder) Count() int64 {
	return e.count
}

func (e *ArrayEncoder) marshal(rec model.Record) ([]byte, error) {
	if e.indent {
		return json.MarshalIndent(rec, "", "  ")
	}
	return json.Marshal(rec)
}
