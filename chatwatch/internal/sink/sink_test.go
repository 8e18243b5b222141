package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/widgetwatch/chatwatch/event"
)

func TestStdout_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	ctx := context.Background()

	s.Send(ctx, event.Event{Kind: event.KindSendTriggered, Seq: 1})
	s.Send(ctx, event.Event{Kind: event.KindAgentReplying, Seq: 2})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var ev event.Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Kind != event.KindAgentReplying || ev.Seq != 2 {
		t.Fatalf("line 2: %+v", ev)
	}
}

type failingSink struct{ calls int }

func (f *failingSink) Send(context.Context, event.Event) error {
	f.calls++
	return errors.New("down")
}
func (f *failingSink) Close() error { return nil }

func TestRouter_OneFailureDoesNotBlockOthers(t *testing.T) {
	bad := &failingSink{}
	var got []event.Kind
	good := NewCallback(func(_ context.Context, ev event.Event) error {
		got = append(got, ev.Kind)
		return nil
	})

	r := NewRouter(nil, bad, good)
	err := r.Send(context.Background(), event.Event{Kind: event.KindTimeout})
	if err == nil {
		t.Fatal("expected first error to be returned")
	}
	if bad.calls != 1 || len(got) != 1 || got[0] != event.KindTimeout {
		t.Fatalf("fan-out: bad=%d good=%v", bad.calls, got)
	}
}

func TestCallback_NilFunc(t *testing.T) {
	if err := NewCallback(nil).Send(context.Background(), event.Event{}); err != nil {
		t.Fatal(err)
	}
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type: %q", r.Header.Get("Content-Type"))
		}
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var ev event.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.Kind != event.KindAgentReplied {
			t.Errorf("body: %+v err=%v", ev, err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	if err := wh.Send(context.Background(), event.Event{Kind: event.KindAgentReplied}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("hits: got %d, want 3", hits.Load())
	}
}

func TestWebhook_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond))
	if err := wh.Send(context.Background(), event.Event{}); err == nil {
		t.Fatal("expected error after retries exhausted")
	}
}
