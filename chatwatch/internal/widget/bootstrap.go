// Package widget brings the third-party chat widget into a watchable state:
// it opens the launcher once, keeps decorative launcher buttons hidden,
// injects the phone button and starts the watch as soon as the messages
// container exists. Every step is a lookup that either finds its target or
// tries again on the next poll.
package widget

import (
	"context"
	"log/slog"
	"time"
)

// Page is what the bootstrap needs from the browser tab. Each method
// reports whether its target was present; an error is treated the same as
// an absent target.
type Page interface {
	// HideLaunchers hides launcher-like elements outside the chat window.
	HideLaunchers(ctx context.Context) error
	// OpenLauncher clicks the first launcher outside the chat window.
	OpenLauncher(ctx context.Context) (bool, error)
	// InjectPhoneButton inserts the call button into the header once.
	InjectPhoneButton(ctx context.Context) (bool, error)
	// StartWatch installs the listeners if the messages container exists.
	StartWatch(ctx context.Context) (bool, error)
}

// Config for a Bootstrap.
type Config struct {
	PollInterval time.Duration // default 200ms
	MaxPolls     int           // default 50
	HideInterval time.Duration // default 500ms
	Phone        bool          // inject the phone button
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = 50
	}
	if c.HideInterval <= 0 {
		c.HideInterval = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Result summarises a bootstrap run.
type Result struct {
	Opened        bool
	PhoneInjected bool
	Watching      bool
	Polls         int
}

// Bootstrap is the bounded poller. Create one per page load.
type Bootstrap struct {
	page Page
	cfg  Config
	res  Result
}

// New creates a Bootstrap.
func New(page Page, cfg Config) *Bootstrap {
	cfg.defaults()
	return &Bootstrap{page: page, cfg: cfg}
}

// Run polls until the watch is started (and the phone button injected, when
// enabled) or MaxPolls attempts were made. onWatch is called once, from
// Run's goroutine, when StartWatch first succeeds. Once the launcher has
// been opened, a background loop keeps re-hiding launchers every
// HideInterval until ctx is cancelled.
func (b *Bootstrap) Run(ctx context.Context, onWatch func()) Result {
	log := b.cfg.Logger
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		b.poll(ctx, onWatch)
		if b.done() {
			log.Info("widget: bootstrap complete", "polls", b.res.Polls, "opened", b.res.Opened)
			return b.res
		}
		if b.res.Polls >= b.cfg.MaxPolls {
			log.Warn("widget: bootstrap gave up",
				"polls", b.res.Polls, "watching", b.res.Watching, "phone", b.res.PhoneInjected)
			return b.res
		}
		select {
		case <-ctx.Done():
			return b.res
		case <-ticker.C:
		}
	}
}

func (b *Bootstrap) done() bool {
	return b.res.Watching && (!b.cfg.Phone || b.res.PhoneInjected)
}

func (b *Bootstrap) poll(ctx context.Context, onWatch func()) {
	log := b.cfg.Logger
	b.res.Polls++

	if err := b.page.HideLaunchers(ctx); err != nil {
		log.Debug("widget: hide launchers", "error", err)
	}

	if !b.res.Opened {
		ok, err := b.page.OpenLauncher(ctx)
		if err != nil {
			log.Debug("widget: open launcher", "error", err)
		}
		if ok {
			b.res.Opened = true
			if err := b.page.HideLaunchers(ctx); err != nil {
				log.Debug("widget: hide launchers", "error", err)
			}
			go b.hideLoop(ctx)
		}
	}

	if b.cfg.Phone && !b.res.PhoneInjected {
		ok, err := b.page.InjectPhoneButton(ctx)
		if err != nil {
			log.Debug("widget: inject phone button", "error", err)
		}
		b.res.PhoneInjected = ok
	}

	if !b.res.Watching {
		ok, err := b.page.StartWatch(ctx)
		if err != nil {
			log.Debug("widget: start watch", "error", err)
		}
		if ok {
			b.res.Watching = true
			if onWatch != nil {
				onWatch()
			}
		}
	}
}

// hideLoop keeps launchers hidden: the widget re-renders its launcher when
// the chat window is toggled.
func (b *Bootstrap) hideLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.HideInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.page.HideLaunchers(ctx); err != nil && ctx.Err() == nil {
				b.cfg.Logger.Debug("widget: re-hide launchers", "error", err)
			}
		}
	}
}
