package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// navigationTimeout bounds the initial page load.
const navigationTimeout = 30 * time.Second

// Tab wraps a Rod page hosting the chat widget.
type Tab struct {
	Page    *rod.Page
	PageURL string
	PageID  string
	Stealth StealthLevel
	router  *rod.HijackRouter
}

// OpenTab creates a stealth tab, applies resource blocking and navigates to
// the URL. A slow load is not an error: the widget is usually injected
// after the load event anyway.
func OpenTab(ctx context.Context, mgr *Manager, pageURL, pageID string, level StealthLevel) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	tab := &Tab{Page: page, PageURL: pageURL, PageID: pageID, Stealth: level}
	if len(mgr.cfg.ResourceBlocking) > 0 {
		tab.router = applyResourceBlocking(page, mgr.cfg.ResourceBlocking)
	}

	if err := (proto.PageEnable{}).Call(page); err != nil {
		mgr.cfg.Logger.Warn("browser: Page.enable failed", "error", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, navigationTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		tab.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return tab, nil
}

// Close stops request interception and closes the tab.
func (t *Tab) Close() error {
	if t.router != nil {
		t.router.Stop()
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
