package source

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/daryltucker/iulog/internal/model"
)

const sample = `{"update_type":"ADD","unit":{"type":"AudioUnit","iuid":"a1","created_at":1700000000.25,"creator":"mic","payload":[1,2,3]}}
{"update_type":"ADD","unit":{"type":"TextUnit","iuid":"t1","creator":"asr","payload":{"text":"hi"},"grounded_in":"a1"}}

{"update_type":"revoke","unit":{"type":"TextUnit","iuid":"t2","previous_iu":"t1","grounded_in":{"type":"AudioUnit","iuid":"a9"}}}
{"update_type":"COMMIT","unit":{"type":"TextUnit","previous_iu":{"iuid":"zz"}}}
`

func TestDecodeUpdateFields(t *testing.T) {
	d := NewDecoder()
	up, err := d.DecodeUpdate([]byte(`{"update_type":"ADD","unit":{"type":"AudioUnit","iuid":"a1","created_at":1700000000.25,"creator":"mic","payload":{"b":[1,true,null]}}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	u := up.Unit
	if up.Kind != model.KindAdd || u.Type != "AudioUnit" || u.IUID != "a1" || u.Creator != "mic" {
		t.Fatalf("unexpected unit %+v", u)
	}
	if !u.CreatedAt.Equal(time.Unix(1700000000, 250000000)) {
		t.Fatalf("unexpected created_at %v", u.CreatedAt)
	}
	raw, ok := u.Payload.(json.RawMessage)
	if !ok || string(raw) != `{"b":[1,true,null]}` {
		t.Fatalf("unexpected payload %s", raw)
	}
}

func TestDecodeReferences(t *testing.T) {
	d := NewDecoder()
	var all []model.Update
	err := d.ReadLines(context.Background(), strings.NewReader(sample), 3, func(b []model.Update) error {
		all = append(all, b...)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("want 4 updates, got %d", len(all))
	}

	t1 := all[1].Unit
	if g := t1.GroundedIn; g == nil || g.Type != "AudioUnit" || g.IUID != "a1" {
		t.Fatalf("grounded_in should resolve to the indexed unit, got %+v", g)
	}
	t2 := all[2].Unit
	if p := t2.Previous; all[2].Kind != model.KindRevoke || p == nil || p.Type != "TextUnit" || p.IUID != "t1" {
		t.Fatalf("previous_iu should resolve to t1, got %+v", p)
	}
	if t2.Previous.Previous != nil || t2.Previous.GroundedIn != nil {
		t.Fatalf("indexed references must not carry their own links: %+v", t2.Previous)
	}
	if t2.GroundedIn.Type != "AudioUnit" || t2.GroundedIn.IUID != "a9" {
		t.Fatalf("unexpected stub %+v", t2.GroundedIn)
	}
	last := all[3].Unit
	if last.IUID == "" {
		t.Fatalf("missing iuid should be generated")
	}
	if last.Previous.Type != model.BaseUnitType || last.Previous.IUID != "zz" {
		t.Fatalf("unexpected stub %+v", last.Previous)
	}
	if d.Known() != 4 {
		t.Fatalf("want 4 indexed units, got %d", d.Known())
	}
}

func TestIndexIsBounded(t *testing.T) {
	d := NewDecoderSize(100)
	for i := 0; i < 10000; i++ {
		if _, err := d.DecodeUpdate([]byte(`{"update_type":"ADD","unit":{"type":"TextUnit"}}`)); err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
	}
	if d.Known() != 100 {
		t.Fatalf("want index capped at 100, got %d", d.Known())
	}
}

func TestEvictedReferenceBecomesStub(t *testing.T) {
	d := NewDecoderSize(2)
	for _, line := range []string{
		`{"update_type":"ADD","unit":{"type":"AudioUnit","iuid":"a1"}}`,
		`{"update_type":"ADD","unit":{"type":"TextUnit","iuid":"t1"}}`,
		`{"update_type":"ADD","unit":{"type":"TextUnit","iuid":"t2"}}`,
	} {
		if _, err := d.DecodeUpdate([]byte(line)); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	up, err := d.DecodeUpdate([]byte(`{"update_type":"ADD","unit":{"type":"TextUnit","iuid":"t3","previous_iu":"t2","grounded_in":"a1"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if up.Unit.Previous.Type != "TextUnit" {
		t.Fatalf("recent reference should resolve, got %+v", up.Unit.Previous)
	}
	if g := up.Unit.GroundedIn; g.Type != model.BaseUnitType || g.IUID != "a1" {
		t.Fatalf("evicted reference should be a stub, got %+v", g)
	}
}

func TestReadLinesBatching(t *testing.T) {
	d := NewDecoder()
	var sizes []int
	err := d.ReadLines(context.Background(), strings.NewReader(sample), 3, func(b []model.Update) error {
		sizes = append(sizes, len(b))
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(sizes) != 2 || sizes[0] != 3 || sizes[1] != 1 {
		t.Fatalf("unexpected batch sizes %v", sizes)
	}
}

func TestReadLinesErrors(t *testing.T) {
	d := NewDecoder()
	delivered := 0
	collect := func(b []model.Update) error {
		delivered += len(b)
		return nil
	}
	err := d.ReadLines(context.Background(), strings.NewReader("{\"update_type\":\"ADD\",\"unit\":{}}\n\n{\"update_type\":\"ADD\",\"unit\":{}}\n{oops\n"), 10, collect)
	if err == nil || !strings.Contains(err.Error(), "line 4") {
		t.Fatalf("want line 4 error, got %v", err)
	}
	if delivered != 2 {
		t.Fatalf("updates before the bad line must be delivered, got %d", delivered)
	}
	if _, err := d.DecodeUpdate([]byte(`{"update_type":"ADD"}`)); err != ErrMissingUnit {
		t.Fatalf("want ErrMissingUnit, got %v", err)
	}
	if _, err := d.DecodeUpdate([]byte(`{"update_type":"NOPE","unit":{}}`)); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestDecodeBatch(t *testing.T) {
	d := NewDecoder()
	batch, err := d.DecodeBatch([]byte(`[{"update_type":"ADD","unit":{"iuid":"x"}},{"update_type":"COMMIT","unit":{"iuid":"x"}}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(batch) != 2 || batch[1].Kind != model.KindCommit || batch[0].Unit.Type != model.BaseUnitType {
		t.Fatalf("unexpected batch %+v", batch)
	}
	single, err := d.DecodeBatch([]byte(`{"update_type":"ADD","unit":{"iuid":"y"}}`))
	if err != nil || len(single) != 1 {
		t.Fatalf("single object: %v %v", single, err)
	}
	if _, err := d.DecodeBatch([]byte(`[1]`)); err == nil {
		t.Fatalf("expected error for non-object element")
	}
}

func TestOpenZstd(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	enc.Write([]byte(sample))
	if err := enc.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}
	p := filepath.Join(dir, "units.jsonl.zst")
	if err := os.WriteFile(p, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r, err := Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	n := 0
	err = NewDecoder().ReadLines(context.Background(), r, 10, func(b []model.Update) error {
		n += len(b)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 4 {
		t.Fatalf("want 4 updates, got %d", n)
	}
}
