/*
PURPOSE:
  Reads recorded update streams (JSONL, optionally zstd-compressed) in
  batches.

REQUIREMENTS:
  User-specified:
  - Replay files in order; log every input before a malformed line.

  Implementation-discovered:
  - Recordings are large; ".zst" is decompressed on the fly.
  - "-" reads stdin so recordings can be piped in.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go
  - Uses: internal/source/decoder.go, klauspost/compress/zstd

ERROR HANDLING:
  - Malformed line: pending updates go to fn, then "line N: ..." is returned.
  - Errors from fn stop the read and are returned as-is.

IMPLEMENTATION RULES:
  - Blank lines are skipped but still counted for line numbers.
  - One line is at most 16MB.

USAGE:
  r, err := source.Open("session.jsonl.zst")
  err = dec.ReadLines(ctx, r, 64, func(batch []model.Update) error { ... })

SELF-HEALING INSTRUCTIONS:
  - "token too long": raise maxLineSize.

RELATED FILES:
  - internal/source/decoder.go
  - internal/engine/runner.go

MAINTENANCE:
  - None.
*/

package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/daryltucker/iulog/internal/model"
)

// maxLineSize bounds a single JSONL line (one update).
const maxLineSize = 16 << 20

// BatchFunc receives consecutive updates in file order.
type BatchFunc func(batch []model.Update) error

// Open opens a replay file, transparently decompressing ".zst" files.
// "-" reads standard input.
func Open(path string) (io.ReadCloser, error) {
	var f io.ReadCloser
	if path == "-" {
		f = io.NopCloser(os.Stdin)
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		f = file
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open zstd stream %s: %w", path, err)
	}
	return &zstdReadCloser{dec: dec, under: f}, nil
}

type zstdReadCloser struct {
	dec   *zstd.Decoder
	under io.Closer
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.under.Close()
}

// ReadLines decodes JSONL from r, calling fn with batches of at most
// batchSize updates. Blank lines are skipped. A malformed line stops the read
// with an error naming its line number, after the updates before it have been
// handed to fn. Cancelling ctx stops between lines.
func (d *Decoder) ReadLines(ctx context.Context, r io.Reader, batchSize int, fn BatchFunc) error {
	if batchSize <= 0 {
		batchSize = 1
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	batch := make([]model.Update, 0, batchSize)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		up, err := d.DecodeUpdate(raw)
		if err != nil {
			lineErr := fmt.Errorf("line %d: %w", line, err)
			if len(batch) > 0 {
				if ferr := fn(batch); ferr != nil {
					return errors.Join(lineErr, ferr)
				}
			}
			return lineErr
		}
		batch = append(batch, up)
		if len(batch) == batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = make([]model.Update, 0, batchSize)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}
