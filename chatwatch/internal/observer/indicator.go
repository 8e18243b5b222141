package observer

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
)

const showIndicatorJS = `(sel, id, markup) => {
	const c = document.querySelector(sel);
	if (!c) return false;
	let el = document.getElementById(id);
	if (!el) {
		el = document.createElement('div');
		el.id = id;
		el.setAttribute('aria-live', 'polite');
		el.innerHTML = markup;
	}
	c.appendChild(el);
	c.scrollTop = c.scrollHeight;
	return true;
}`

const hideIndicatorJS = `(id) => {
	const el = document.getElementById(id);
	if (el) el.remove();
}`

// liveIndicator renders the typing indicator as the last child of the
// messages container. Markup is sanitised by the config layer.
type liveIndicator struct {
	ctx       context.Context
	page      *rod.Page
	container string
	id        string
	markup    string
}

func (i *liveIndicator) Show() error {
	res, err := i.page.Context(i.ctx).Eval(showIndicatorJS, i.container, i.id, i.markup)
	if err != nil {
		return fmt.Errorf("observer: show indicator: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("observer: show indicator: messages container not found")
	}
	return nil
}

func (i *liveIndicator) Hide() error {
	if _, err := i.page.Context(i.ctx).Eval(hideIndicatorJS, i.id); err != nil {
		return fmt.Errorf("observer: hide indicator: %w", err)
	}
	return nil
}
