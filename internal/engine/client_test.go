package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/daryltucker/iulog/internal/config"
	"github.com/daryltucker/iulog/internal/model"
)

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"received":1,"accepted":1}`))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Target = srv.URL
	cfg.RetryDelay = time.Millisecond
	c := NewClient(cfg)

	ack, err := c.Send(context.Background(), []model.Update{{Unit: &model.Unit{Type: "TextUnit"}, Kind: model.KindAdd}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ack.Accepted != 1 || calls.Load() != 3 {
		t.Fatalf("unexpected ack %+v after %d calls", ack, calls.Load())
	}
}

func TestClientDoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Target = srv.URL + "/"
	cfg.RetryDelay = time.Millisecond
	c := NewClient(cfg)

	if _, err := c.Send(context.Background(), nil); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls.Load())
	}
}
