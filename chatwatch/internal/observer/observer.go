// Package observer watches one chat widget page. It injects a script that
// reports send intents and appended message nodes through a CDP binding,
// augments links in every new node, and drives the conversation inferrer
// from a single loop goroutine.
package observer

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/hazyhaar/widgetwatch/chatwatch/event"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/browser"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/config"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/infer"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/linkify"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/sink"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/widget"
	"github.com/hazyhaar/widgetwatch/idgen"
)

//go:embed chatwatch.js
var watchJS string

// Status is a point-in-time view of an observed page.
type Status struct {
	PageID        string `json:"page_id"`
	PageURL       string `json:"page_url"`
	Stage         string `json:"stage"`
	Watching      bool   `json:"watching"`
	Opened        bool   `json:"opened"`
	PhoneInjected bool   `json:"phone_injected"`
	Events        uint64 `json:"events"`
	Links         int    `json:"links"`
	LastEvent     int64  `json:"last_event,omitempty"` // epoch milliseconds
}

// Config for creating an Observer.
type Config struct {
	Tab    *browser.Tab
	Sink   sink.Sink
	Widget config.WidgetConfig
	Logger *slog.Logger
}

// surface is the page side of the observer. The live implementation talks
// to Chrome; tests use a fake.
type surface interface {
	infer.Indicator
	// subscribe starts delivering binding payloads and load events.
	subscribe(ctx context.Context, onSignal func(string), onLoad func()) error
	// bootstrap runs the widget poller for the current document.
	bootstrap(ctx context.Context, onWatch func()) widget.Result
	// augmentNode runs the link augmenter over a reported node.
	augmentNode(ctx context.Context, seq uint64) (int, error)
	// augmentExisting runs the link augmenter over messages already present.
	augmentExisting(ctx context.Context) (int, error)
}

// Observer owns the inference state of a single page.
type Observer struct {
	pageID  string
	pageURL string
	sink    sink.Sink
	logger  *slog.Logger
	surf    surface
	widget  config.WidgetConfig

	inf *infer.Inferrer

	rawCh    chan string
	loadCh   chan struct{}
	watchCh  chan struct{}
	bootCh   chan widget.Result
	statusCh chan chan Status
	resetCh  chan chan infer.Transition

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Loop-owned.
	seq        uint64
	links      int
	lastEvent  int64
	watching   bool
	boot       widget.Result
	bootCancel context.CancelFunc
}

// New creates an Observer for the given tab.
func New(cfg Config) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	o := newObserver(cfg.Tab.PageID, cfg.Tab.PageURL, cfg.Sink, cfg.Widget, cfg.Logger)
	o.surf = &livePage{tab: cfg.Tab, cfg: cfg.Widget, ctx: o.ctx, logger: cfg.Logger}
	o.inf = infer.New(infer.Config{
		Timeout:   cfg.Widget.SafetyTimeout,
		Indicator: o.surf,
		Logger:    cfg.Logger,
	})
	return o
}

func newObserver(pageID, pageURL string, s sink.Sink, w config.WidgetConfig, logger *slog.Logger) *Observer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Observer{
		pageID:   pageID,
		pageURL:  pageURL,
		sink:     s,
		logger:   logger,
		widget:   w,
		rawCh:    make(chan string, 256),
		loadCh:   make(chan struct{}, 1),
		watchCh:  make(chan struct{}, 1),
		bootCh:   make(chan widget.Result, 1),
		statusCh: make(chan chan Status),
		resetCh:  make(chan chan infer.Transition),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// SetContext allows the parent watcher to pass its context. Call before Start.
func (o *Observer) SetContext(ctx context.Context) {
	o.cancel()
	o.ctx, o.cancel = context.WithCancel(ctx)
	if lp, ok := o.surf.(*livePage); ok {
		lp.ctx = o.ctx
	}
}

// Start subscribes to the page, starts the loop and runs the first
// bootstrap.
func (o *Observer) Start() error {
	err := o.surf.subscribe(o.ctx,
		func(payload string) {
			select {
			case o.rawCh <- payload:
			case <-o.ctx.Done():
			}
		},
		func() {
			select {
			case o.loadCh <- struct{}{}:
			default:
			}
		})
	if err != nil {
		o.cancel()
		close(o.done)
		return fmt.Errorf("observer: subscribe: %w", err)
	}

	o.startBootstrap()
	go o.loop()
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (o *Observer) Stop() {
	o.cancel()
	<-o.done
}

// Status returns the current state of the page.
func (o *Observer) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	select {
	case o.statusCh <- reply:
	case <-o.done:
		return Status{}, fmt.Errorf("observer: stopped")
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	return <-reply, nil
}

// Reset forces the inferrer back to idle and removes the indicator.
func (o *Observer) Reset(ctx context.Context) (infer.Transition, error) {
	reply := make(chan infer.Transition, 1)
	select {
	case o.resetCh <- reply:
	case <-o.done:
		return infer.Transition{}, fmt.Errorf("observer: stopped")
	case <-ctx.Done():
		return infer.Transition{}, ctx.Err()
	}
	return <-reply, nil
}

// loop is the only goroutine that touches the inferrer.
func (o *Observer) loop() {
	defer close(o.done)
	defer func() {
		if o.bootCancel != nil {
			o.bootCancel()
		}
	}()

	for {
		select {
		case <-o.ctx.Done():
			return

		case payload := <-o.rawCh:
			o.handleSignal(payload)

		case <-o.inf.TimerC():
			tr := o.inf.Expire()
			if tr.Changed() {
				o.logger.Info("observer: safety timeout", "page", o.pageID, "from", tr.From.String())
				o.emit(event.KindTimeout, "", "", 0)
			}

		case <-o.watchCh:
			o.watching = true
			n, err := o.surf.augmentExisting(o.ctx)
			if err != nil {
				o.logger.Warn("observer: augment existing messages", "page", o.pageID, "error", err)
			}
			o.links += n
			o.logger.Info("observer: watch started", "page", o.pageID, "url", o.pageURL, "links", n)
			o.emit(event.KindWatchStarted, "", "", n)

		case res := <-o.bootCh:
			o.boot = res

		case <-o.loadCh:
			o.handleReload()

		case reply := <-o.statusCh:
			reply <- o.status()

		case reply := <-o.resetCh:
			tr := o.inf.Reset()
			o.emit(event.KindReset, "operator", "", 0)
			reply <- tr
		}
	}
}

func (o *Observer) handleSignal(payload string) {
	sig, err := parseSignal(payload)
	if err != nil {
		o.logger.Warn("observer: drop signal", "page", o.pageID, "error", err)
		return
	}

	switch sig.Op {
	case opSend:
		if sig.Empty && o.widget.RequireNonEmpty {
			o.logger.Debug("observer: empty send ignored", "page", o.pageID, "via", sig.Via)
			return
		}
		if tr := o.inf.OnSendTriggered(); tr.Changed() {
			o.emit(event.KindSendTriggered, sig.Via, "", 0)
		}

	case opAdded:
		for _, n := range sig.Nodes {
			o.handleNode(n)
		}
	}
}

// handleNode augments links first so the inferrer only ever observes
// finished nodes.
func (o *Observer) handleNode(n addedNode) {
	links, err := o.surf.augmentNode(o.ctx, n.Seq)
	if err != nil {
		o.logger.Debug("observer: augment node", "page", o.pageID, "seq", n.Seq, "error", err)
	}
	if links > 0 {
		o.links += links
		o.emit(event.KindLinksAugmented, "", "", links)
	}

	tr := o.inf.OnNodeAdded()
	switch tr.Cause {
	case infer.CauseEcho:
		o.emit(event.KindAgentReplying, "", event.Markdown(n.HTML), 0)
	case infer.CauseReply:
		o.emit(event.KindAgentReplied, "", event.Markdown(n.HTML), 0)
	}
}

// handleReload restarts everything bound to the previous document.
func (o *Observer) handleReload() {
	o.logger.Info("observer: page reloaded", "page", o.pageID)
	o.watching = false
	o.boot = widget.Result{}
	if tr := o.inf.Reset(); tr.Changed() {
		o.emit(event.KindReset, "reload", "", 0)
	}
	o.startBootstrap()
}

func (o *Observer) startBootstrap() {
	if o.bootCancel != nil {
		o.bootCancel()
	}
	ctx, cancel := context.WithCancel(o.ctx)
	o.bootCancel = cancel

	go func() {
		res := o.surf.bootstrap(ctx, func() {
			select {
			case o.watchCh <- struct{}{}:
			case <-ctx.Done():
			}
		})
		if ctx.Err() != nil {
			return
		}
		select {
		case o.bootCh <- res:
		case <-ctx.Done():
		}
	}()
}

func (o *Observer) emit(kind event.Kind, via, text string, links int) {
	o.seq++
	now := time.Now().UnixMilli()
	o.lastEvent = now
	ev := event.Event{
		ID:        idgen.New(),
		PageID:    o.pageID,
		PageURL:   o.pageURL,
		Seq:       o.seq,
		Kind:      kind,
		Stage:     o.inf.Stage().String(),
		Via:       via,
		Text:      text,
		Links:     links,
		Timestamp: now,
	}
	if o.sink == nil {
		return
	}
	if err := o.sink.Send(o.ctx, ev); err != nil {
		o.logger.Error("observer: send event failed", "page", o.pageID, "kind", string(kind), "error", err)
	}
}

func (o *Observer) status() Status {
	return Status{
		PageID:        o.pageID,
		PageURL:       o.pageURL,
		Stage:         o.inf.Stage().String(),
		Watching:      o.watching,
		Opened:        o.boot.Opened,
		PhoneInjected: o.boot.PhoneInjected,
		Events:        o.seq,
		Links:         o.links,
		LastEvent:     o.lastEvent,
	}
}

// livePage is the surface backed by a Rod tab.
type livePage struct {
	tab    *browser.Tab
	cfg    config.WidgetConfig
	ctx    context.Context
	logger *slog.Logger
}

func (p *livePage) indicator() *liveIndicator {
	return &liveIndicator{
		ctx:       p.ctx,
		page:      p.tab.Page,
		container: p.cfg.MessagesSelector,
		id:        p.cfg.IndicatorID,
		markup:    p.cfg.IndicatorMarkup,
	}
}

func (p *livePage) Show() error { return p.indicator().Show() }
func (p *livePage) Hide() error { return p.indicator().Hide() }

func (p *livePage) subscribe(ctx context.Context, onSignal func(string), onLoad func()) error {
	page := p.tab.Page
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		return fmt.Errorf("add binding: %w", err)
	}
	wait := page.Context(ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name == bindingName {
				onSignal(e.Payload)
			}
		},
		func(e *proto.PageLoadEventFired) {
			onLoad()
		},
	)
	go wait()
	return nil
}

func (p *livePage) bootstrap(ctx context.Context, onWatch func()) widget.Result {
	rp := &widget.RodPage{
		Page: p.tab.Page,
		Selectors: widget.Selectors{
			Window:    p.cfg.WindowSelector,
			Header:    p.cfg.HeaderSelector,
			Launchers: p.cfg.LauncherSelectors,
		},
		Phone: widget.Phone{
			ID:      p.cfg.Phone.ID,
			Href:    p.cfg.Phone.Href,
			Label:   p.cfg.Phone.Label,
			IconSVG: p.cfg.Phone.IconSVG,
		},
		Watch: p.install,
	}
	b := widget.New(rp, widget.Config{
		PollInterval: p.cfg.PollInterval,
		MaxPolls:     p.cfg.MaxPolls,
		HideInterval: p.cfg.HideInterval,
		Phone:        p.cfg.Phone.Enabled(),
		Logger:       p.logger,
	})
	return b.Run(ctx, onWatch)
}

// install injects the watch script. It reports false while the messages
// container does not exist yet.
func (p *livePage) install(ctx context.Context) (bool, error) {
	res, err := p.tab.Page.Context(ctx).Eval(watchJS, map[string]string{
		"messages": p.cfg.MessagesSelector,
		"window":   p.cfg.WindowSelector,
		"input":    p.cfg.InputSelector,
		"send":     p.cfg.SendSelector,
		"reserved": p.cfg.IndicatorID,
		"binding":  bindingName,
	})
	if err != nil {
		return false, fmt.Errorf("observer: inject watch script: %w", err)
	}
	return res.Value.Bool(), nil
}

func (p *livePage) augmentNode(ctx context.Context, seq uint64) (int, error) {
	sel := fmt.Sprintf(`[%s="%d"]`, seqAttr, seq)
	el, err := p.tab.Page.Context(ctx).Sleeper(rod.NotFoundSleeper).Element(sel)
	if err != nil {
		return 0, fmt.Errorf("observer: find node %d: %w", seq, err)
	}
	return p.augmentElement(ctx, el)
}

func (p *livePage) augmentExisting(ctx context.Context) (int, error) {
	container, err := p.tab.Page.Context(ctx).Sleeper(rod.NotFoundSleeper).Element(p.cfg.MessagesSelector)
	if err != nil {
		return 0, fmt.Errorf("observer: find messages container: %w", err)
	}
	if p.cfg.MessageSelector == "" {
		return p.augmentElement(ctx, container)
	}
	els, err := container.Elements(p.cfg.MessageSelector)
	if err != nil {
		return 0, fmt.Errorf("observer: list messages: %w", err)
	}
	total := 0
	var firstErr error
	for _, el := range els {
		n, err := p.augmentElement(ctx, el)
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}

func (p *livePage) augmentElement(ctx context.Context, el *rod.Element) (int, error) {
	tree, err := newLiveTree(ctx, p.tab.Page, el, p.cfg.IndicatorID)
	if err != nil {
		return 0, err
	}
	return linkify.Augment(tree)
}
