// Package infer derives conversation events from signals that carry no
// meaning on their own: "the user pressed send" and "an element was
// appended to the messages container".
//
// The heuristic is ordinal. The first addition after a send is the user's
// own echo, the second is the agent's reply. Any unrelated addition while an
// exchange is in flight shifts the count; the safety timer bounds how long
// the stage can stay wrong.
//
// An Inferrer is not safe for concurrent use. It is owned by a single loop
// which also selects on TimerC.
package infer

import (
	"log/slog"
	"time"
)

// DefaultTimeout is how long an exchange may stay in flight before the
// safety reset fires.
const DefaultTimeout = 20 * time.Second

// Indicator is the "agent is typing" affordance. Show and Hide must be
// idempotent: Hide on an absent indicator is a no-op, Show on a present one
// does not create a second.
type Indicator interface {
	Show() error
	Hide() error
}

// Config for creating an Inferrer.
type Config struct {
	// Timeout for the safety reset. Default: DefaultTimeout.
	Timeout   time.Duration
	Indicator Indicator
	Logger    *slog.Logger
}

// Inferrer is the three-stage state machine.
type Inferrer struct {
	stage     Stage
	timeout   time.Duration
	timer     *time.Timer
	timerC    <-chan time.Time
	indicator Indicator
	logger    *slog.Logger
}

// New creates an Inferrer in the Idle stage.
func New(cfg Config) *Inferrer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Indicator == nil {
		cfg.Indicator = nopIndicator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Inferrer{
		timeout:   cfg.Timeout,
		indicator: cfg.Indicator,
		logger:    cfg.Logger,
	}
}

// Stage returns the current stage.
func (i *Inferrer) Stage() Stage { return i.stage }

// TimerC returns the channel of the armed safety timer, or nil when no timer
// is pending. A nil channel never fires in a select, so the owning loop can
// select on it unconditionally and call Expire when it does fire.
func (i *Inferrer) TimerC() <-chan time.Time { return i.timerC }

// Armed reports whether a safety timer is pending.
func (i *Inferrer) Armed() bool { return i.timer != nil }

// OnSendTriggered records a send intent. Only Idle reacts: an exchange in
// flight is never pre-empted by a second rapid trigger. The indicator is not
// shown yet since nothing has landed in the tree.
func (i *Inferrer) OnSendTriggered() Transition {
	if i.stage != Idle {
		return Transition{From: i.stage, To: i.stage}
	}
	i.stage = AwaitingEcho
	i.arm()
	return Transition{From: Idle, To: AwaitingEcho, Cause: CauseSend}
}

// OnNodeAdded records one freshly appended, non-reserved element under the
// messages container. The node itself is not inspected.
func (i *Inferrer) OnNodeAdded() Transition {
	switch i.stage {
	case AwaitingEcho:
		i.stage = AwaitingReply
		if err := i.indicator.Show(); err != nil {
			i.logger.Warn("infer: show indicator failed", "error", err)
		}
		return Transition{From: AwaitingEcho, To: AwaitingReply, Cause: CauseEcho}
	case AwaitingReply:
		return i.reset(CauseReply)
	default:
		return Transition{From: i.stage, To: i.stage}
	}
}

// Reset returns to Idle from any stage: the timer is cancelled and the
// indicator removed.
func (i *Inferrer) Reset() Transition {
	return i.reset(CauseReset)
}

// Expire is called by the owner when TimerC fires. It forces the safety
// reset. A call with no armed timer is ignored.
func (i *Inferrer) Expire() Transition {
	if i.timer == nil {
		return Transition{From: i.stage, To: i.stage}
	}
	i.timer = nil
	i.timerC = nil
	i.logger.Debug("infer: safety timeout", "stage", i.stage, "timeout", i.timeout)
	return i.reset(CauseTimeout)
}

func (i *Inferrer) reset(cause Cause) Transition {
	from := i.stage
	i.cancel()
	if err := i.indicator.Hide(); err != nil {
		i.logger.Warn("infer: hide indicator failed", "error", err)
	}
	i.stage = Idle
	return Transition{From: from, To: Idle, Cause: cause}
}

func (i *Inferrer) arm() {
	i.cancel()
	i.timer = time.NewTimer(i.timeout)
	i.timerC = i.timer.C
}

// cancel stops and drops the pending timer. Safe to call repeatedly.
func (i *Inferrer) cancel() {
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
		i.timerC = nil
	}
}

type nopIndicator struct{}

func (nopIndicator) Show() error { return nil }
func (nopIndicator) Hide() error { return nil }
