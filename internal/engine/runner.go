/*
PURPOSE:
  High-level runner that replays recorded unit streams into a logger.
  Feeds JSONL files (optionally zstd-compressed) through the filter and
  buffered writer, or ships them to a remote server.

REQUIREMENTS:
  User-specified:
  - Output is a single JSON array file, well formed after shutdown.

  Implementation-discovered:
  - Files are replayed in argument order; order inside a file is kept.
  - The writer is always shut down and drained, even when reading fails,
    so the output stays well formed.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Uses: internal/output, internal/source, internal/engine/client.go

ERROR HANDLING:
  - Read/decode errors stop the replay but still drain the writer.
  - Returned error joins the replay error and the writer's fatal error.

IMPLEMENTATION RULES:
  - Local mode: one BufferedWriter for all input files.
  - Remote mode: one Send per batch, sequential.

USAGE:
  stats, err := engine.Replay(ctx, cfg, []string{"session.jsonl.zst"})

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/source/reader.go
  - internal/output/buffered.go

MAINTENANCE:
  - Update if parallel file readers are introduced (order guarantees!).
*/

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/daryltucker/iulog/internal/config"
	"github.com/daryltucker/iulog/internal/model"
	"github.com/daryltucker/iulog/internal/output"
	"github.com/daryltucker/iulog/internal/source"
)

// Replay feeds every file in paths into a logger configured by cfg. When
// cfg.Target is set the updates are sent to that server instead of a local
// file. The returned stats describe the local writer, or the remote writer
// as last reported.
func Replay(ctx context.Context, cfg *config.Config, paths []string) (output.Stats, error) {
	if len(paths) == 0 {
		return output.Stats{}, errors.New("no input files")
	}
	if cfg.Target != "" {
		return replayRemote(ctx, cfg, paths)
	}

	w, err := output.NewBufferedWriter(cfg.WriterOptions())
	if err != nil {
		return output.Stats{}, err
	}
	if err := w.Start(); err != nil {
		return output.Stats{}, err
	}
	output.Logger.Info("Replaying", "files", len(paths), "output", w.Path())

	readErr := readAll(ctx, cfg, paths, func(batch []model.Update) error {
		w.Ingest(batch)
		return nil
	})

	// Drain regardless of ctx; the file is only well formed once closed.
	closeCtx, cancel := cfg.ShutdownContext()
	defer cancel()
	closeErr := w.Close(closeCtx)

	stats := w.Stats()
	output.Logger.Info("Replay finished",
		"output", w.Path(),
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"written", stats.Written,
	)
	return stats, errors.Join(readErr, closeErr)
}

func replayRemote(ctx context.Context, cfg *config.Config, paths []string) (output.Stats, error) {
	c := NewClient(cfg)
	output.Logger.Info("Replaying to remote logger", "files", len(paths), "target", c.BaseURL)

	sent, accepted := 0, 0
	err := readAll(ctx, cfg, paths, func(batch []model.Update) error {
		ack, err := c.Send(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to send batch after %d updates: %w", sent, err)
		}
		sent += ack.Received
		accepted += ack.Accepted
		return nil
	})
	output.Logger.Info("Remote replay finished", "sent", sent, "accepted", accepted)
	if err != nil {
		return output.Stats{}, err
	}
	return c.Stats(ctx)
}

func readAll(ctx context.Context, cfg *config.Config, paths []string, fn source.BatchFunc) error {
	dec := source.NewDecoderSize(cfg.IndexSize)
	for _, path := range paths {
		if err := readFile(ctx, dec, path, cfg.BatchSize, fn); err != nil {
			return err
		}
	}
	return nil
}

func readFile(ctx context.Context, dec *source.Decoder, path string, batchSize int, fn source.BatchFunc) error {
	r, err := source.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open input %s: %w", path, err)
	}
	defer r.Close()

	output.Logger.Debug("Reading input", "path", path)
	if err := dec.ReadLines(ctx, r, batchSize, fn); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
