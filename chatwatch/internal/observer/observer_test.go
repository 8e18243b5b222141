package observer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/widgetwatch/chatwatch/event"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/config"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/infer"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/sink"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/widget"
)

type fakeSurface struct {
	mu           sync.Mutex
	onSignal     func(string)
	onLoad       func()
	subscribeErr error
	shows, hides int
	boots        int
	augmented    []uint64
	nodeLinks    map[uint64]int
}

func (f *fakeSurface) Show() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shows++
	return nil
}

func (f *fakeSurface) Hide() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hides++
	return nil
}

func (f *fakeSurface) subscribe(_ context.Context, onSignal func(string), onLoad func()) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.onSignal, f.onLoad = onSignal, onLoad
	return nil
}

func (f *fakeSurface) bootstrap(_ context.Context, onWatch func()) widget.Result {
	f.mu.Lock()
	f.boots++
	f.mu.Unlock()
	onWatch()
	return widget.Result{Opened: true, Watching: true, Polls: 1}
}

func (f *fakeSurface) augmentNode(_ context.Context, seq uint64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.augmented = append(f.augmented, seq)
	return f.nodeLinks[seq], nil
}

func (f *fakeSurface) augmentExisting(context.Context) (int, error) { return 0, nil }

func (f *fakeSurface) counts() (shows, hides, boots int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shows, f.hides, f.boots
}

func startObserver(t *testing.T, w config.WidgetConfig) (*Observer, *fakeSurface, <-chan event.Event) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	events := make(chan event.Event, 64)
	s := sink.NewCallback(func(_ context.Context, ev event.Event) error {
		events <- ev
		return nil
	})

	o := newObserver("page_test", "https://shop.example/", s, w, logger)
	f := &fakeSurface{nodeLinks: map[uint64]int{}}
	o.surf = f
	o.inf = infer.New(infer.Config{Timeout: w.SafetyTimeout, Indicator: f, Logger: logger})
	if err := o.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(o.Stop)

	if ev := next(t, events); ev.Kind != event.KindWatchStarted {
		t.Fatalf("first event: got %s, want watch_started", ev.Kind)
	}
	return o, f, events
}

func next(t *testing.T, events <-chan event.Event) event.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return event.Event{}
	}
}

func TestObserver_FullExchange(t *testing.T) {
	o, f, events := startObserver(t, config.WidgetConfig{})
	f.mu.Lock()
	f.nodeLinks[2] = 1
	f.mu.Unlock()

	f.onSignal(`{"op":"send","via":"key"}`)
	ev := next(t, events)
	if ev.Kind != event.KindSendTriggered || ev.Via != "key" || ev.Stage != "awaiting_echo" {
		t.Fatalf("send: %+v", ev)
	}

	f.onSignal(`{"op":"added","nodes":[{"seq":1,"html":"<p>hello</p>"}]}`)
	ev = next(t, events)
	if ev.Kind != event.KindAgentReplying || ev.Stage != "awaiting_reply" {
		t.Fatalf("echo: %+v", ev)
	}
	if !strings.Contains(ev.Text, "hello") {
		t.Fatalf("echo text: %q", ev.Text)
	}

	f.onSignal(`{"op":"added","nodes":[{"seq":2,"html":"<p>see https://help.example</p>"}]}`)
	ev = next(t, events)
	if ev.Kind != event.KindLinksAugmented || ev.Links != 1 || ev.Stage != "awaiting_reply" {
		t.Fatalf("links must be augmented before the reply is inferred: %+v", ev)
	}
	ev = next(t, events)
	if ev.Kind != event.KindAgentReplied || ev.Stage != "idle" {
		t.Fatalf("reply: %+v", ev)
	}

	shows, hides, _ := f.counts()
	if shows != 1 || hides != 1 {
		t.Fatalf("indicator: shows=%d hides=%d", shows, hides)
	}

	st, err := o.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Stage != "idle" || !st.Watching || st.Links != 1 || st.Events != 5 {
		t.Fatalf("status: %+v", st)
	}
	if st.PageID != "page_test" || st.PageURL != "https://shop.example/" {
		t.Fatalf("status identity: %+v", st)
	}
}

func TestObserver_NodesInBatchOrder(t *testing.T) {
	_, f, events := startObserver(t, config.WidgetConfig{})

	f.onSignal(`{"op":"send","via":"click"}`)
	next(t, events)
	f.onSignal(`{"op":"added","nodes":[{"seq":7,"html":"<p>me</p>"},{"seq":8,"html":"<p>agent</p>"}]}`)

	if ev := next(t, events); ev.Kind != event.KindAgentReplying {
		t.Fatalf("got %s", ev.Kind)
	}
	if ev := next(t, events); ev.Kind != event.KindAgentReplied {
		t.Fatalf("got %s", ev.Kind)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.augmented) != 2 || f.augmented[0] != 7 || f.augmented[1] != 8 {
		t.Fatalf("augmented order: %v", f.augmented)
	}
}

func TestObserver_SendWhileBusyIgnored(t *testing.T) {
	_, f, events := startObserver(t, config.WidgetConfig{})

	f.onSignal(`{"op":"send","via":"key"}`)
	next(t, events)
	f.onSignal(`{"op":"send","via":"click"}`)
	f.onSignal(`{"op":"added","nodes":[{"seq":1,"html":"<p>me</p>"}]}`)

	if ev := next(t, events); ev.Kind != event.KindAgentReplying {
		t.Fatalf("second send must not emit: got %s", ev.Kind)
	}
}

func TestObserver_RequireNonEmpty(t *testing.T) {
	_, f, events := startObserver(t, config.WidgetConfig{RequireNonEmpty: true})

	f.onSignal(`{"op":"send","via":"key","empty":true}`)
	f.onSignal(`{"op":"send","via":"click"}`)

	ev := next(t, events)
	if ev.Kind != event.KindSendTriggered || ev.Via != "click" {
		t.Fatalf("empty send should be dropped: %+v", ev)
	}
}

func TestObserver_MalformedSignalDropped(t *testing.T) {
	_, f, events := startObserver(t, config.WidgetConfig{})

	f.onSignal(`garbage`)
	f.onSignal(`{"op":"resize"}`)
	f.onSignal(`{"op":"send","via":"key"}`)

	if ev := next(t, events); ev.Kind != event.KindSendTriggered {
		t.Fatalf("got %s", ev.Kind)
	}
}

func TestObserver_IdleNodesIgnored(t *testing.T) {
	o, f, events := startObserver(t, config.WidgetConfig{})

	f.onSignal(`{"op":"added","nodes":[{"seq":1,"html":"<p>welcome</p>"}]}`)
	f.onSignal(`{"op":"send","via":"key"}`)

	if ev := next(t, events); ev.Kind != event.KindSendTriggered {
		t.Fatalf("idle node must not emit: got %s", ev.Kind)
	}
	st, _ := o.Status(context.Background())
	if st.Stage != "awaiting_echo" {
		t.Fatalf("stage: %s", st.Stage)
	}
}

func TestObserver_SafetyTimeout(t *testing.T) {
	_, f, events := startObserver(t, config.WidgetConfig{SafetyTimeout: 20 * time.Millisecond})

	f.onSignal(`{"op":"send","via":"key"}`)
	next(t, events)

	ev := next(t, events)
	if ev.Kind != event.KindTimeout || ev.Stage != "idle" {
		t.Fatalf("timeout: %+v", ev)
	}
}

func TestObserver_OperatorReset(t *testing.T) {
	o, f, events := startObserver(t, config.WidgetConfig{})

	f.onSignal(`{"op":"send","via":"key"}`)
	f.onSignal(`{"op":"added","nodes":[{"seq":1,"html":"<p>me</p>"}]}`)
	next(t, events)
	next(t, events)

	tr, err := o.Reset(context.Background())
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if tr.From != infer.AwaitingReply || tr.To != infer.Idle {
		t.Fatalf("transition: %+v", tr)
	}
	ev := next(t, events)
	if ev.Kind != event.KindReset || ev.Via != "operator" || ev.Stage != "idle" {
		t.Fatalf("reset event: %+v", ev)
	}
	if _, hides, _ := f.counts(); hides != 1 {
		t.Fatalf("indicator not removed: hides=%d", hides)
	}
}

func TestObserver_ReloadRestartsBootstrap(t *testing.T) {
	_, f, events := startObserver(t, config.WidgetConfig{})

	f.onSignal(`{"op":"send","via":"key"}`)
	next(t, events)

	f.onLoad()
	ev := next(t, events)
	if ev.Kind != event.KindReset || ev.Via != "reload" {
		t.Fatalf("reload reset: %+v", ev)
	}
	if ev := next(t, events); ev.Kind != event.KindWatchStarted {
		t.Fatalf("after reload: got %s", ev.Kind)
	}
	if _, _, boots := f.counts(); boots != 2 {
		t.Fatalf("bootstraps: %d", boots)
	}
}

func TestObserver_SubscribeError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := newObserver("p", "u", nil, config.WidgetConfig{}, logger)
	f := &fakeSurface{subscribeErr: errors.New("target closed")}
	o.surf = f
	o.inf = infer.New(infer.Config{Indicator: f, Logger: logger})

	if err := o.Start(); err == nil {
		t.Fatal("expected error")
	}
	if _, err := o.Status(context.Background()); err == nil {
		t.Fatal("status on a failed observer should fail")
	}
	o.Stop()
}
