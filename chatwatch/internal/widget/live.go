package widget

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
)

const hideLaunchersJS = `(sels, win) => {
	let n = 0;
	for (const sel of sels) {
		for (const el of document.querySelectorAll(sel)) {
			if (el.closest(win)) continue;
			el.style.setProperty('display', 'none', 'important');
			el.style.setProperty('visibility', 'hidden', 'important');
			el.style.setProperty('opacity', '0', 'important');
			el.style.setProperty('pointer-events', 'none', 'important');
			n++;
		}
	}
	return n;
}`

const openLauncherJS = `(sels, win) => {
	for (const sel of sels) {
		const el = document.querySelector(sel);
		if (el && !el.closest(win)) {
			el.click();
			return true;
		}
	}
	return false;
}`

const injectPhoneJS = `(id, headerSel, href, label, icon) => {
	if (document.getElementById(id)) return true;
	const header = document.querySelector(headerSel);
	if (!header) return false;
	const a = document.createElement('a');
	a.id = id;
	a.href = href;
	a.setAttribute('aria-label', label);
	a.innerHTML = icon;
	header.appendChild(a);
	return true;
}`

// Selectors the live page evaluates.
type Selectors struct {
	Window    string
	Header    string
	Launchers []string
}

// Phone describes the injected call button. IconSVG must already be
// sanitised.
type Phone struct {
	ID      string
	Href    string
	Label   string
	IconSVG string
}

// RodPage implements Page on a live Rod tab. StartWatch is delegated to the
// observer, which owns the change subscription.
type RodPage struct {
	Page      *rod.Page
	Selectors Selectors
	Phone     Phone
	Watch     func(ctx context.Context) (bool, error)
}

func (p *RodPage) HideLaunchers(ctx context.Context) error {
	_, err := p.Page.Context(ctx).Eval(hideLaunchersJS, p.Selectors.Launchers, p.Selectors.Window)
	if err != nil {
		return fmt.Errorf("widget: hide launchers: %w", err)
	}
	return nil
}

func (p *RodPage) OpenLauncher(ctx context.Context) (bool, error) {
	res, err := p.Page.Context(ctx).Eval(openLauncherJS, p.Selectors.Launchers, p.Selectors.Window)
	if err != nil {
		return false, fmt.Errorf("widget: open launcher: %w", err)
	}
	return res.Value.Bool(), nil
}

func (p *RodPage) InjectPhoneButton(ctx context.Context) (bool, error) {
	res, err := p.Page.Context(ctx).Eval(injectPhoneJS,
		p.Phone.ID, p.Selectors.Header, p.Phone.Href, p.Phone.Label, p.Phone.IconSVG)
	if err != nil {
		return false, fmt.Errorf("widget: inject phone button: %w", err)
	}
	return res.Value.Bool(), nil
}

func (p *RodPage) StartWatch(ctx context.Context) (bool, error) {
	if p.Watch == nil {
		return false, nil
	}
	return p.Watch(ctx)
}
