// Package event defines the conversation events emitted by chatwatch.
// These are the public contract: sinks and in-process consumers import this
// package to receive what the watcher inferred from a page.
package event

// Kind is the type of inferred event.
type Kind string

const (
	KindWatchStarted   Kind = "watch_started"   // messages container found, listeners installed
	KindSendTriggered  Kind = "send_triggered"  // user sent a message (idle → awaiting echo)
	KindAgentReplying  Kind = "agent_replying"  // echo landed, indicator shown
	KindAgentReplied   Kind = "agent_replied"   // reply landed, indicator removed
	KindTimeout        Kind = "timeout"         // safety reset fired
	KindReset          Kind = "reset"           // explicit reset (reload, operator)
	KindLinksAugmented Kind = "links_augmented" // links created in a message node
)

// Event is one inferred occurrence on one page.
type Event struct {
	ID        string `json:"id"` // UUIDv7
	PageID    string `json:"page_id"`
	PageURL   string `json:"page_url"`
	Seq       uint64 `json:"seq"` // monotonically increasing per page
	Kind      Kind   `json:"kind"`
	Stage     string `json:"stage"`         // stage after the event
	Via       string `json:"via,omitempty"` // key | click, for send_triggered
	Text      string `json:"text,omitempty"`
	Links     int    `json:"links,omitempty"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}
