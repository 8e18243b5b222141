package infer

// Stage is the inferred position in one send/reply exchange.
type Stage int

const (
	// Idle: no exchange in flight. Child-list additions are ignored.
	Idle Stage = iota
	// AwaitingEcho: a send was triggered, the outgoing bubble has not landed yet.
	AwaitingEcho
	// AwaitingReply: the echo landed, the indicator is visible.
	AwaitingReply
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingEcho:
		return "awaiting_echo"
	case AwaitingReply:
		return "awaiting_reply"
	default:
		return "unknown"
	}
}

// Cause names what drove a transition.
type Cause string

const (
	CauseSend    Cause = "send"    // Idle → AwaitingEcho
	CauseEcho    Cause = "echo"    // AwaitingEcho → AwaitingReply
	CauseReply   Cause = "reply"   // AwaitingReply → Idle
	CauseTimeout Cause = "timeout" // safety timer fired
	CauseReset   Cause = "reset"   // explicit reset (page reload, operator)
)

// Transition is the result of feeding one signal to the Inferrer.
// Cause is empty when the signal was ignored.
type Transition struct {
	From  Stage
	To    Stage
	Cause Cause
}

// Changed reports whether the stage moved.
func (t Transition) Changed() bool { return t.From != t.To }
