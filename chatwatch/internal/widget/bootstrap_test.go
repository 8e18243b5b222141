package widget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakePage becomes ready after a given number of calls per target.
type fakePage struct {
	mu           sync.Mutex
	launcherAt   int // OpenLauncher succeeds on this call (0 = never)
	phoneAt      int
	containerAt  int
	hides        int
	opens        int
	phoneCalls   int
	watchCalls   int
	watchErrOnce bool
}

func (f *fakePage) HideLaunchers(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hides++
	return nil
}

func (f *fakePage) OpenLauncher(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return f.launcherAt > 0 && f.opens >= f.launcherAt, nil
}

func (f *fakePage) InjectPhoneButton(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phoneCalls++
	return f.phoneAt > 0 && f.phoneCalls >= f.phoneAt, nil
}

func (f *fakePage) StartWatch(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchCalls++
	if f.watchErrOnce {
		f.watchErrOnce = false
		return false, errors.New("container selector threw")
	}
	return f.containerAt > 0 && f.watchCalls >= f.containerAt, nil
}

func (f *fakePage) snapshot() fakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakePage{hides: f.hides, opens: f.opens, phoneCalls: f.phoneCalls, watchCalls: f.watchCalls}
}

func TestBootstrap_StopsWhenWatching(t *testing.T) {
	page := &fakePage{launcherAt: 2, containerAt: 3}
	b := New(page, Config{PollInterval: time.Millisecond, MaxPolls: 50})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watched := 0
	res := b.Run(ctx, func() { watched++ })
	if !res.Watching || !res.Opened {
		t.Fatalf("result: %+v", res)
	}
	if res.Polls != 3 {
		t.Fatalf("polls: got %d, want 3", res.Polls)
	}
	if watched != 1 {
		t.Fatalf("onWatch called %d times", watched)
	}
	if s := page.snapshot(); s.opens != 2 {
		t.Fatalf("launcher clicked attempts: got %d, want 2 (no retry once opened)", s.opens)
	}
}

func TestBootstrap_WaitsForPhone(t *testing.T) {
	page := &fakePage{containerAt: 1, phoneAt: 4}
	b := New(page, Config{PollInterval: time.Millisecond, MaxPolls: 50, Phone: true})

	res := b.Run(context.Background(), nil)
	if !res.Watching || !res.PhoneInjected || res.Polls != 4 {
		t.Fatalf("result: %+v", res)
	}
	if s := page.snapshot(); s.watchCalls != 1 {
		t.Fatalf("StartWatch called %d times after success", s.watchCalls)
	}
}

func TestBootstrap_GivesUpAfterMaxPolls(t *testing.T) {
	page := &fakePage{}
	b := New(page, Config{PollInterval: time.Millisecond, MaxPolls: 5})

	res := b.Run(context.Background(), func() { t.Fatal("onWatch without container") })
	if res.Watching || res.Opened || res.Polls != 5 {
		t.Fatalf("result: %+v", res)
	}
}

func TestBootstrap_ErrorIsAbsentTarget(t *testing.T) {
	page := &fakePage{containerAt: 2, watchErrOnce: true}
	b := New(page, Config{PollInterval: time.Millisecond, MaxPolls: 10})

	res := b.Run(context.Background(), nil)
	if !res.Watching {
		t.Fatalf("bootstrap did not recover from a lookup error: %+v", res)
	}
}

func TestBootstrap_RehidesAfterOpen(t *testing.T) {
	page := &fakePage{launcherAt: 1, containerAt: 1}
	b := New(page, Config{PollInterval: time.Millisecond, HideInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	b.Run(ctx, nil)
	before := page.snapshot().hides

	time.Sleep(60 * time.Millisecond)
	cancel()
	if after := page.snapshot().hides; after <= before {
		t.Fatalf("launchers not re-hidden: before=%d after=%d", before, after)
	}
}

func TestBootstrap_ContextCancelled(t *testing.T) {
	page := &fakePage{}
	b := New(page, Config{PollInterval: time.Hour, MaxPolls: 50})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := b.Run(ctx, nil)
	if res.Polls != 1 {
		t.Fatalf("polls after cancel: %d", res.Polls)
	}
}
