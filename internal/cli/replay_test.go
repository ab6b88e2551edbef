package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/daryltucker/iulog/internal/output"
)

func TestReplayCommand(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	in := filepath.Join(dir, "in.jsonl")
	body := `{"update_type":"ADD","unit":{"type":"TextUnit","iuid":"1"}}
{"update_type":"ADD","unit":{"type":"AudioUnit","iuid":"2"}}
{"update_type":"COMMIT","unit":{"type":"TextUnit","iuid":"1"}}
`
	if err := os.WriteFile(in, []byte(body), 0644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"replay", in, "-o", "result", "--unit-types", "TextUnit", "--compact", "--log-level", "error"})
	if err := Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var stats output.Stats
	if err := json.Unmarshal(out.Bytes(), &stats); err != nil {
		t.Fatalf("stats output: %v (%q)", err, out.String())
	}
	if stats.Written != 2 || stats.Rejected != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	data, err := os.ReadFile(filepath.Join(dir, "result.json"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var recs []map[string]any
	if err := json.Unmarshal(data, &recs); err != nil {
		t.Fatalf("invalid output: %v", err)
	}
	if len(recs) != 2 || recs[1]["update_type"] != "COMMIT" {
		t.Fatalf("unexpected records %v", recs)
	}
}
