/*
PURPOSE:
  HTTP front for one BufferedWriter.

REQUIREMENTS:
  User-specified:
  - Producers in other processes log through a single writer.
  - Shutdown drains the writer so the file is well formed.

  Implementation-discovered:
  - Ingest answers 202 with received/accepted counts; it never waits on I/O.
  - 503 once the writer has exited so clients stop sending.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli/serve.go
  - Uses: gin, internal/output, internal/source

ERROR HANDLING:
  - Oversized body: 413. Malformed body: 400. Writer closed: 503.
  - Serve returns the listener error joined with the writer's fatal error.

IMPLEMENTATION RULES:
  - One Decoder per server so references resolve across requests.

USAGE:
  h := &server.Handler{Writer: w, Decoder: source.NewDecoder()}
  err := server.Serve(ctx, ":8089", h, 30*time.Second)

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/client.go

MAINTENANCE:
  - Keep routes in sync with engine.Client.
*/

// Package server exposes a BufferedWriter over HTTP so that pipelines in
// other processes can log through a single writer.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/daryltucker/iulog/internal/output"
	"github.com/daryltucker/iulog/internal/source"
)

// maxBodySize bounds one ingest request.
const maxBodySize = 32 << 20

// Handler serves the ingest API for one writer.
type Handler struct {
	Writer  *output.BufferedWriter
	Decoder *source.Decoder
}

// NewRouter wires the routes onto a fresh gin engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.Health)
	v1 := r.Group("/v1")
	v1.POST("/updates", h.Ingest)
	v1.GET("/stats", h.Stats)
	return r
}

// Ingest accepts a JSON array of updates (or a single update object).
func (h *Handler) Ingest(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}
	batch, err := h.Decoder.DecodeBatch(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	select {
	case <-h.Writer.Done():
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "writer closed"})
		return
	default:
	}

	accepted := h.Writer.Ingest(batch)
	c.JSON(http.StatusAccepted, gin.H{
		"received": len(batch),
		"accepted": accepted,
	})
}

// Stats reports the writer counters.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Writer.Stats())
}

// Health answers 200 while the writer is running and 503 once it has exited.
func (h *Handler) Health(c *gin.Context) {
	select {
	case <-h.Writer.Done():
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "closed"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "path": h.Writer.Path()})
	}
}

// Serve runs the HTTP server on addr until ctx is cancelled, then stops
// accepting requests and drains the writer. The returned error joins the
// listener error and the writer's fatal error.
func Serve(ctx context.Context, addr string, h *Handler, drainTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		output.Logger.Info("Listening", "addr", addr, "output", h.Writer.Path())
		errCh <- srv.ListenAndServe()
	}()

	var listenErr error
	select {
	case <-ctx.Done():
		output.Logger.Info("Shutting down...", "reason", context.Cause(ctx))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			listenErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		output.Logger.Error("Server shutdown error", "error", err)
	}

	output.Logger.Info("Draining writer...", "pending", h.Writer.Stats().Pending)
	drainCtx := context.Background()
	if drainTimeout > 0 {
		var dcancel context.CancelFunc
		drainCtx, dcancel = context.WithTimeout(drainCtx, drainTimeout)
		defer dcancel()
	}
	return errors.Join(listenErr, h.Writer.Close(drainCtx))
}
