package streaming

import (
	"errors"
	"io"
)

// Source is anything that yields a pull-based sequence of typed events; *Parser
// implements it, and tests substitute a fixed slice.
type Source interface {
	Next() (*Event, error)
}

// ToolCallRegistry records a pending client tool-use so a follow-up request
// carrying its tool_use_id can resume the parked session. Implemented by
// pkg/account's registry; declared here to avoid an import cycle.
type ToolCallRegistry interface {
	Register(toolUseID, sessionID, messageID string)
}

type interceptorState int

const (
	stateIdle interceptorState = iota
	stateClientToolUse
	stateServerWebSearch
	stateToolResult
)

// Interceptor wraps a Source and rewrites the event stream around client-side
// tool use: it forwards server-side activity (web search) unchanged, suppresses
// tool_result echo blocks, and on a client tool-use close synthesizes terminal
// message_delta/message_stop events and abandons the upstream.
type Interceptor struct {
	src       Source
	registry  ToolCallRegistry
	sessionID string

	// hasServerWebSearchTool reports whether the original request's tool list
	// requested web_search_v0 (or any web_search_-prefixed type), which is the
	// only case content_block_start{type:tool_use, name:"web_search"} means
	// server-side search rather than a client tool the caller must execute.
	hasServerWebSearchTool bool

	state      interceptorState
	blockIndex int
	toolUseID  string
	messageID  string
	queued     []*Event
	terminated bool
}

// NewInterceptor wraps src. hasServerWebSearchTool must reflect whether the
// originating request's (already-rewritten) tool list includes web_search_v0.
func NewInterceptor(src Source, registry ToolCallRegistry, sessionID string, hasServerWebSearchTool bool) *Interceptor {
	return &Interceptor{
		src:                    src,
		registry:               registry,
		sessionID:              sessionID,
		hasServerWebSearchTool: hasServerWebSearchTool,
	}
}

// Next returns the next outbound event, or io.EOF when the stream ends (either
// naturally or because a client tool-use closed and the upstream was abandoned).
func (ic *Interceptor) Next() (*Event, error) {
	for {
		if len(ic.queued) > 0 {
			ev := ic.queued[0]
			ic.queued = ic.queued[1:]
			return ev, nil
		}
		if ic.terminated {
			return nil, io.EOF
		}

		ev, err := ic.src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}

		out := ic.handle(ev)
		if len(out) > 0 {
			ic.queued = append(ic.queued, out...)
			continue
		}
	}
}

// handle applies one transition of the state machine, returning the events to
// forward for this input (possibly none, possibly more than one).
func (ic *Interceptor) handle(ev *Event) []*Event {
	if ev.Type == EventMessageStart {
		if id, ok := ev.MessageID(); ok {
			ic.messageID = id
		}
		return []*Event{ev}
	}

	switch ic.state {
	case stateIdle:
		if ev.Type == EventContentBlockStart {
			return ic.onContentBlockStart(ev)
		}
		return []*Event{ev}

	case stateToolResult:
		idx, _ := ev.Index()
		if ev.Type == EventContentBlockStop && idx == ic.blockIndex {
			ic.state = stateIdle
		}
		return nil

	case stateClientToolUse, stateServerWebSearch:
		idx, hasIdx := ev.Index()
		if ev.Type == EventContentBlockStop && hasIdx && idx == ic.blockIndex {
			return ic.onContentBlockStop(ev)
		}
		return []*Event{ev}
	}
	return []*Event{ev}
}

func (ic *Interceptor) onContentBlockStart(ev *Event) []*Event {
	cbType, _ := ev.ContentBlockType()
	idx, _ := ev.Index()
	ic.blockIndex = idx

	switch cbType {
	case "tool_result":
		ic.state = stateToolResult
		return nil
	case "tool_use":
		name, _ := ev.ContentBlockField("name")
		if name == "web_search" && ic.hasServerWebSearchTool {
			ic.state = stateServerWebSearch
			return []*Event{ev}
		}
		id, _ := ev.ContentBlockField("id")
		ic.state = stateClientToolUse
		ic.toolUseID = id
		return []*Event{ev}
	default:
		return []*Event{ev}
	}
}

func (ic *Interceptor) onContentBlockStop(ev *Event) []*Event {
	if ic.state == stateServerWebSearch {
		ic.state = stateIdle
		return []*Event{ev}
	}

	// stateClientToolUse
	ic.state = stateIdle
	if ic.registry != nil && ic.toolUseID != "" {
		ic.registry.Register(ic.toolUseID, ic.sessionID, ic.messageID)
	}
	ic.terminated = true
	return []*Event{ev, NewMessageDelta("tool_use"), NewMessageStop()}
}
