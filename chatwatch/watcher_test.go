package chatwatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/widgetwatch/chatwatch/event"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/browser"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/observer"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatcher_UnknownPage(t *testing.T) {
	w := New(DefaultConfig(), quietLogger())
	ctx := context.Background()

	if _, err := w.PageStatus(ctx, "page_x"); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("status: %v", err)
	}
	if _, err := w.ResetPage(ctx, "page_x"); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("reset: %v", err)
	}
	if err := w.StopPage("page_x"); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("stop: %v", err)
	}
	pages, err := w.Pages(ctx)
	if err != nil || len(pages) != 0 {
		t.Fatalf("pages: %v %v", pages, err)
	}
	if w.ReservedID() != "chatwatch-typing" {
		t.Fatalf("reserved id: %q", w.ReservedID())
	}
}

func TestWatcher_ImplementsController(t *testing.T) {
	var _ Controller = New(DefaultConfig(), quietLogger())
}

func TestSinksFromConfig(t *testing.T) {
	var buf bytes.Buffer
	sinks, err := SinksFromConfig([]SinkConfig{
		{Type: "stdout"},
		{Type: "webhook", URL: "http://127.0.0.1:1/hook"},
	}, &buf, quietLogger())
	if err != nil {
		t.Fatalf("sinks: %v", err)
	}
	if len(sinks) != 2 {
		t.Fatalf("got %d sinks", len(sinks))
	}

	if err := sinks[0].Send(context.Background(), event.Event{Kind: event.KindSendTriggered, Via: "key"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(buf.String(), `"kind":"send_triggered"`) {
		t.Fatalf("stdout: %s", buf.String())
	}

	if _, err := SinksFromConfig([]SinkConfig{{Type: "kafka"}}, nil, nil); err == nil {
		t.Fatal("unknown sink type should fail")
	}
}

func TestCallbackSink(t *testing.T) {
	var got []event.Kind
	s := NewCallbackSink(func(_ context.Context, ev event.Event) error {
		got = append(got, ev.Kind)
		return nil
	})
	s.Send(context.Background(), event.Event{Kind: event.KindAgentReplying})
	s.Send(context.Background(), event.Event{Kind: event.KindAgentReplied})
	if len(got) != 2 || got[1] != event.KindAgentReplied {
		t.Fatalf("got %v", got)
	}
}

func TestWatcher_SyncPagesOpensOutsideLock(t *testing.T) {
	w := New(DefaultConfig(), quietLogger())
	opening := make(chan string, 4)
	release := make(chan struct{})
	w.open = func(_ context.Context, pc PageConfig) (*browser.Tab, *observer.Observer, error) {
		opening <- pc.ID
		<-release
		return nil, nil, nil
	}
	ctx := context.Background()

	synced := make(chan struct{})
	go func() {
		w.SyncPages(ctx, []PageConfig{{ID: "page_slow", URL: "https://slow.example/"}})
		close(synced)
	}()
	if id := <-opening; id != "page_slow" {
		t.Fatalf("opening %q", id)
	}

	// The tab is still navigating: other calls must not wait for it.
	answered := make(chan error, 1)
	go func() {
		_, err := w.ResetPage(ctx, "page_slow")
		if _, perr := w.Pages(ctx); perr != nil {
			err = perr
		}
		answered <- err
	}()
	select {
	case err := <-answered:
		if !errors.Is(err, ErrPageNotFound) {
			t.Fatalf("reset while opening: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("status calls blocked behind an opening tab")
	}

	// A second sync while the first open is in flight does not open twice.
	w.SyncPages(ctx, []PageConfig{{ID: "page_slow", URL: "https://slow.example/"}})
	select {
	case id := <-opening:
		t.Fatalf("opened %q twice", id)
	default:
	}

	close(release)
	<-synced

	w.mu.Lock()
	p, ok := w.pages["page_slow"]
	w.mu.Unlock()
	if !ok || !p.registry {
		t.Fatalf("page not published: %v %+v", ok, p)
	}

	w.SyncPages(ctx, nil)
	w.mu.Lock()
	n := len(w.pages)
	w.mu.Unlock()
	if n != 0 {
		t.Fatalf("registry page not removed: %d pages", n)
	}
}

func TestWatcher_PageStoppedWhileOpening(t *testing.T) {
	w := New(DefaultConfig(), quietLogger())
	opening := make(chan struct{})
	release := make(chan struct{})
	w.open = func(context.Context, PageConfig) (*browser.Tab, *observer.Observer, error) {
		close(opening)
		<-release
		return nil, nil, nil
	}

	done := make(chan error, 1)
	go func() { done <- w.ObservePage(context.Background(), PageConfig{ID: "page_gone", URL: "https://gone.example/"}) }()
	<-opening
	if err := w.StopPage("page_gone"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("observe: %v", err)
	}

	w.mu.Lock()
	_, ok := w.pages["page_gone"]
	w.mu.Unlock()
	if ok {
		t.Fatal("stopped page came back after its tab opened")
	}
}
