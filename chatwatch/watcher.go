// Package chatwatch drives Chrome tabs hosting a third-party chat widget and
// infers the conversation from the outside: when the user sends, when the
// agent is replying, when the reply lands. A typing indicator is shown while
// the agent is expected to answer, and links in every new message are made
// clickable.
//
// Inferred events are emitted to sinks (stdout, webhook, callback). The
// Watcher also serves page status and resets over HTTP and MCP.
package chatwatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-rod/rod"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/browser"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/config"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/observer"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/sink"
	"github.com/hazyhaar/widgetwatch/idgen"
)

// ErrPageNotFound is returned for an unknown page ID.
var ErrPageNotFound = errors.New("chatwatch: page not found")

// PageStatus is the point-in-time state of one observed page.
type PageStatus = observer.Status

// page is one observed tab.
type page struct {
	cfg      config.PageConfig
	tab      *browser.Tab
	obs      *observer.Observer
	registry bool // added by the page registry, removed when it disappears
}

// Watcher is the top-level orchestrator. It manages the browser, the
// per-page observers and the sinks. Create one per chatwatch instance.
type Watcher struct {
	cfg    *config.Config
	mgr    *browser.Manager
	sinkR  *sink.Router
	pages  map[string]*page // keyed by page ID
	mu     sync.Mutex
	logger *slog.Logger

	// open navigates a tab and starts its observer. It runs without mu held.
	open func(ctx context.Context, pc config.PageConfig) (*browser.Tab, *observer.Observer, error)
}

// New creates a Watcher from configuration.
func New(cfg *config.Config, logger *slog.Logger, sinks ...sink.Sink) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Stealth:          browser.ParseStealth(cfg.Browser.Stealth, browser.LevelHeadless),
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		Logger:           logger,
	})

	w := &Watcher{
		cfg:    cfg,
		mgr:    mgr,
		sinkR:  sink.NewRouter(logger, sinks...),
		pages:  make(map[string]*page),
		logger: logger,
	}
	w.open = w.openPage
	return w
}

// Start launches the browser and begins observing all configured pages.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("chatwatch: start browser: %w", err)
	}

	w.mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: w.stopObservers,
		AfterRecycle:  func(*rod.Browser) { w.reopenPages(ctx) },
	})

	for _, pc := range w.cfg.Pages {
		if err := w.ObservePage(ctx, pc); err != nil {
			w.logger.Error("chatwatch: failed to observe page", "url", pc.URL, "error", err)
		}
	}
	return nil
}

// ObservePage opens a tab on the page and starts watching its widget. An
// empty ID gets a generated one. Observing an ID twice is a no-op.
func (w *Watcher) ObservePage(ctx context.Context, pc config.PageConfig) error {
	return w.observe(ctx, pc, false)
}

// observe reserves the ID, opens the page without holding mu, then
// publishes the tab. A page stopped while it was opening is released.
func (w *Watcher) observe(ctx context.Context, pc config.PageConfig, registry bool) error {
	if pc.ID == "" {
		pc.ID = idgen.PageID()
	}

	w.mu.Lock()
	if _, ok := w.pages[pc.ID]; ok {
		w.mu.Unlock()
		return nil
	}
	p := &page{cfg: pc, registry: registry}
	w.pages[pc.ID] = p
	w.mu.Unlock()

	tab, obs, err := w.open(ctx, pc)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		if w.pages[pc.ID] == p {
			delete(w.pages, pc.ID)
		}
		return err
	}
	if w.pages[pc.ID] != p {
		w.release(pc.ID, tab, obs)
		return nil
	}
	p.tab, p.obs = tab, obs
	return nil
}

func (w *Watcher) openPage(ctx context.Context, pc config.PageConfig) (*browser.Tab, *observer.Observer, error) {
	level := browser.ParseStealth(pc.Stealth, browser.ParseStealth(w.cfg.Browser.Stealth, browser.LevelHeadless))
	tab, err := browser.OpenTab(ctx, w.mgr, pc.URL, pc.ID, level)
	if err != nil {
		return nil, nil, fmt.Errorf("chatwatch: open tab: %w", err)
	}

	obs := observer.New(observer.Config{
		Tab:    tab,
		Sink:   w.sinkR,
		Widget: w.cfg.Widget,
		Logger: w.logger.With("page", pc.ID),
	})
	obs.SetContext(ctx)

	if err := obs.Start(); err != nil {
		tab.Close()
		return nil, nil, fmt.Errorf("chatwatch: start observer: %w", err)
	}

	w.logger.Info("chatwatch: observing page", "url", pc.URL, "id", pc.ID, "stealth", level.String())
	return tab, obs, nil
}

// StopPage stops watching a page and closes its tab.
func (w *Watcher) StopPage(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pages[id]
	if !ok {
		return ErrPageNotFound
	}
	w.closeLocked(p)
	delete(w.pages, id)
	return nil
}

func (w *Watcher) closeLocked(p *page) {
	w.release(p.cfg.ID, p.tab, p.obs)
	p.obs, p.tab = nil, nil
}

func (w *Watcher) release(id string, tab *browser.Tab, obs *observer.Observer) {
	if obs != nil {
		obs.Stop()
	}
	if tab != nil {
		if err := tab.Close(); err != nil {
			w.logger.Debug("chatwatch: close tab", "id", id, "error", err)
		}
	}
}

// SyncPages reconciles registry pages with the given set: new pages are
// opened, registry pages no longer listed are closed. Pages from the
// config file are never touched.
//
// Tabs are opened without holding the page lock, so status and reset calls
// for other pages are served while a registry page is still navigating.
func (w *Watcher) SyncPages(ctx context.Context, pages []config.PageConfig) {
	want := make(map[string]bool, len(pages))
	for _, pc := range pages {
		want[pc.ID] = true
	}

	w.mu.Lock()
	for id, p := range w.pages {
		if p.registry && !want[id] {
			w.closeLocked(p)
			delete(w.pages, id)
			w.logger.Info("chatwatch: registry page removed", "id", id)
		}
	}
	w.mu.Unlock()

	for _, pc := range pages {
		if err := w.observe(ctx, pc, true); err != nil {
			w.logger.Error("chatwatch: failed to observe registry page", "id", pc.ID, "url", pc.URL, "error", err)
		}
	}
}

// WatchRegistry observes the pages listed in the chat_pages table and
// follows changes until ctx is cancelled.
func (w *Watcher) WatchRegistry(ctx context.Context, db *sql.DB) {
	config.PollPages(ctx, db, w.cfg.Registry.PollInterval, w.logger, func(pages []config.PageConfig) {
		w.SyncPages(ctx, pages)
	})
}

// Pages returns the status of every observed page, ordered by ID.
func (w *Watcher) Pages(ctx context.Context) ([]PageStatus, error) {
	w.mu.Lock()
	obs := make([]*observer.Observer, 0, len(w.pages))
	for _, p := range w.pages {
		if p.obs != nil {
			obs = append(obs, p.obs)
		}
	}
	w.mu.Unlock()

	out := make([]PageStatus, 0, len(obs))
	for _, o := range obs {
		st, err := o.Status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageID < out[j].PageID })
	return out, nil
}

// PageStatus returns the status of one page.
func (w *Watcher) PageStatus(ctx context.Context, id string) (PageStatus, error) {
	o, err := w.observer(id)
	if err != nil {
		return PageStatus{}, err
	}
	return o.Status(ctx)
}

// ResetPage forces the page back to idle and removes the typing
// indicator. It returns the status after the reset.
func (w *Watcher) ResetPage(ctx context.Context, id string) (PageStatus, error) {
	o, err := w.observer(id)
	if err != nil {
		return PageStatus{}, err
	}
	if _, err := o.Reset(ctx); err != nil {
		return PageStatus{}, err
	}
	return o.Status(ctx)
}

// ReservedID is the id of the typing indicator element, skipped by link
// augmentation.
func (w *Watcher) ReservedID() string { return w.cfg.Widget.IndicatorID }

func (w *Watcher) observer(id string) (*observer.Observer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pages[id]
	if !ok || p.obs == nil {
		return nil, ErrPageNotFound
	}
	return p.obs, nil
}

// Stop gracefully shuts down all observers, the sinks and the browser.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, p := range w.pages {
		w.closeLocked(p)
		w.logger.Info("chatwatch: stopped observer", "id", id)
	}
	w.pages = make(map[string]*page)

	if err := w.sinkR.Close(); err != nil {
		w.logger.Warn("chatwatch: close sinks", "error", err)
	}
	if err := w.mgr.Close(); err != nil {
		w.logger.Warn("chatwatch: close browser", "error", err)
	}
}

// stopObservers runs before a browser recycle: the tabs are about to die.
func (w *Watcher) stopObservers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.pages {
		if p.obs != nil {
			p.obs.Stop()
		}
		p.obs, p.tab = nil, nil
	}
}

func (w *Watcher) reopenPages(ctx context.Context) {
	w.mu.Lock()
	pages := make([]*page, 0, len(w.pages))
	for _, p := range w.pages {
		pages = append(pages, p)
	}
	w.mu.Unlock()

	for _, p := range pages {
		tab, obs, err := w.open(ctx, p.cfg)
		if err != nil {
			w.logger.Error("chatwatch: reopen page after recycle failed", "url", p.cfg.URL, "error", err)
			continue
		}
		w.mu.Lock()
		if w.pages[p.cfg.ID] == p && p.obs == nil {
			p.tab, p.obs = tab, obs
			tab, obs = nil, nil
		}
		w.mu.Unlock()
		w.release(p.cfg.ID, tab, obs)
	}
}
