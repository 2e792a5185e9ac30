package speech

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hammamikhairi/iqra/internal/domain"
)

func TestReciterRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recitation"))
	}))
	defer srv.Close()

	sink := newFakeSink(false)
	r := NewReciter(sink, quietLog(), WithFetchRetry(3, time.Millisecond))
	ch := &domain.Chapter{Number: 112, Name: "Al-Ikhlas", AudioURL: srv.URL + "/112.mp3"}

	if err := r.Recite(context.Background(), ch); err != nil {
		t.Fatalf("Recite: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 requests, got %d", calls.Load())
	}
	if got := sink.Played(); len(got) != 1 || got[0] != "recitation" {
		t.Fatalf("played %v", got)
	}
}

func TestReciterNotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	r := NewReciter(newFakeSink(false), quietLog(), WithFetchRetry(3, time.Millisecond))
	err := r.Recite(context.Background(), &domain.Chapter{Number: 1, AudioURL: srv.URL})

	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected 404 status error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx should not be retried, got %d requests", calls.Load())
	}
}

func TestReciterInterrupted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("long recitation"))
	}))
	defer srv.Close()

	sink := newFakeSink(true)
	r := NewReciter(sink, quietLog())

	errc := make(chan error, 1)
	go func() {
		errc <- r.Recite(context.Background(), &domain.Chapter{Number: 2, AudioURL: srv.URL})
	}()
	<-sink.started
	sink.Stop()

	if err := <-errc; !errors.Is(err, domain.ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
}

func TestReciterCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("long recitation"))
	}))
	defer srv.Close()

	sink := newFakeSink(true)
	r := NewReciter(sink, quietLog())
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		errc <- r.Recite(ctx, &domain.Chapter{Number: 2, AudioURL: srv.URL})
	}()
	<-sink.started
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
