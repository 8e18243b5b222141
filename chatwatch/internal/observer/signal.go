package observer

import (
	"encoding/json"
	"fmt"
)

// bindingName is the CDP binding the injected script reports through.
const bindingName = "__chatwatch_binding"

// seqAttr tags every reported element so Go can find it again.
const seqAttr = "data-chatwatch-seq"

type signalOp string

const (
	opSend  signalOp = "send"
	opAdded signalOp = "added"
)

// signal is one report from the injected script.
type signal struct {
	Op    signalOp    `json:"op"`
	Via   string      `json:"via,omitempty"`   // key | click
	Empty bool        `json:"empty,omitempty"` // input was blank when the send fired
	Nodes []addedNode `json:"nodes,omitempty"`
}

// addedNode is an element appended to the messages container, in document
// order within its batch.
type addedNode struct {
	Seq  uint64 `json:"seq"`
	HTML string `json:"html"`
}

func parseSignal(payload string) (signal, error) {
	var s signal
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return s, fmt.Errorf("observer: parse signal: %w", err)
	}
	switch s.Op {
	case opSend:
		if s.Via != "key" && s.Via != "click" {
			return s, fmt.Errorf("observer: send signal with via %q", s.Via)
		}
	case opAdded:
		if len(s.Nodes) == 0 {
			return s, fmt.Errorf("observer: empty added signal")
		}
	default:
		return s, fmt.Errorf("observer: unknown signal op %q", s.Op)
	}
	return s, nil
}
