package streaming

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"
)

// sseMessage is one framed SSE record before JSON decoding.
type sseMessage struct {
	event string
	data  string
	has   bool
}

// Parser turns a byte-chunk reader into a pull-based sequence of typed streaming
// events. It is not safe for concurrent use; it has exactly one consumer, matching
// the upstream's non-reentrant stream.
type Parser struct {
	r           io.Reader
	log         *zap.Logger
	skipUnknown bool

	buf     bytes.Buffer
	pending []*Event
	chunk   []byte
	eof     bool
	flushed bool
}

// NewParser wraps r. When skipUnknown is true, events that do not match the
// modeled Anthropic union are dropped rather than surfaced as EventUnknown.
func NewParser(r io.Reader, skipUnknown bool, log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{r: r, log: log, skipUnknown: skipUnknown, chunk: make([]byte, 32*1024)}
}

// Next returns the next typed event, or io.EOF once the stream and its final
// flush are exhausted. A decode failure for one SSE message is logged and
// skipped; Next only returns an error when the underlying reader fails.
func (p *Parser) Next() (*Event, error) {
	for {
		if len(p.pending) > 0 {
			ev := p.pending[0]
			p.pending = p.pending[1:]
			return ev, nil
		}
		if p.eof {
			if !p.flushed {
				p.flushed = true
				p.flush()
				continue
			}
			return nil, io.EOF
		}
		if err := p.fill(); err != nil {
			if errors.Is(err, io.EOF) {
				p.eof = true
				continue
			}
			return nil, err
		}
	}
}

func (p *Parser) fill() error {
	n, err := p.r.Read(p.chunk)
	if n > 0 {
		normalized := bytes.ReplaceAll(p.chunk[:n], []byte("\r\n"), []byte("\n"))
		p.buf.Write(normalized)
		p.drain()
	}
	if err != nil {
		return err
	}
	return nil
}

// drain consumes complete "\n\n"-terminated messages from the buffer.
func (p *Parser) drain() {
	for {
		b := p.buf.Bytes()
		idx := bytes.Index(b, []byte("\n\n"))
		if idx < 0 {
			return
		}
		msgText := string(b[:idx])
		rest := make([]byte, len(b)-idx-2)
		copy(rest, b[idx+2:])
		p.buf.Reset()
		p.buf.Write(rest)

		if ev := p.handleMessage(msgText); ev != nil {
			p.pending = append(p.pending, ev)
		}
	}
}

func (p *Parser) flush() {
	if strings.TrimSpace(p.buf.String()) == "" {
		return
	}
	p.log.Warn("flushing incomplete SSE buffer", zap.Int("bytes", p.buf.Len()))
	p.buf.WriteString("\n\n")
	p.drain()
}

func (p *Parser) handleMessage(text string) *Event {
	msg := parseSSEMessage(text)
	if !msg.has {
		return nil
	}
	return p.createEvent(msg)
}

// parseSSEMessage frames a single SSE message body per field[:[ ]value] lines;
// recognized fields are "event" and "data", multiple data lines concatenate with "\n".
func parseSSEMessage(text string) sseMessage {
	var msg sseMessage
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		var field, value string
		if i := strings.Index(line, ":"); i < 0 {
			field = line
		} else {
			field = line[:i]
			value = line[i+1:]
			if strings.HasPrefix(value, " ") {
				value = value[1:]
			}
		}
		switch field {
		case "event":
			msg.event = value
		case "data":
			if !msg.has {
				msg.data = value
			} else {
				msg.data += "\n" + value
			}
			msg.has = true
		}
	}
	return msg
}

func (p *Parser) createEvent(msg sseMessage) *Event {
	var data map[string]any
	if err := json.Unmarshal([]byte(msg.data), &data); err != nil {
		p.log.Error("failed to parse SSE data as JSON", zap.Error(err), zap.String("data", truncate(msg.data, 200)))
		return nil
	}

	data = normalizePrivateEvent(data)
	if data == nil {
		return nil
	}

	typ, _ := data["type"].(string)
	et := eventTypeFromString(typ)
	if et == EventUnknown {
		if p.skipUnknown {
			p.log.Debug("skipping unknown streaming event", zap.String("event", msg.event))
			return nil
		}
		return &Event{Type: EventUnknown, Raw: data, UnknownType: typ}
	}
	return &Event{Type: et, Raw: data}
}

// normalizePrivateEvent rewrites Claude-web-private event shapes into their
// Anthropic-public equivalent. Must run before schema typing so that valid
// Anthropic clients never observe the private shape.
func normalizePrivateEvent(data map[string]any) map[string]any {
	if data["type"] != string(EventContentBlockDelta) {
		return data
	}
	delta, ok := data["delta"].(map[string]any)
	if !ok {
		return data
	}
	if delta["type"] != "citation_start_delta" {
		return data
	}

	citation := convertPrivateCitation(delta["citation"])
	if citation == nil {
		return nil
	}

	normalized := make(map[string]any, len(data))
	for k, v := range data {
		normalized[k] = v
	}
	normalized["delta"] = map[string]any{
		"type":     "citations_delta",
		"citation": citation,
	}
	return normalized
}

// convertPrivateCitation synthesizes a minimal web_search_result_location from the
// private citation_start_delta payload, which lacks Anthropic's full field set.
func convertPrivateCitation(raw any) map[string]any {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	url, ok := m["url"].(string)
	if !ok || url == "" {
		return nil
	}

	var title any
	if t, ok := m["title"].(string); ok {
		title = t
	}

	encryptedIndex := url
	if uuid, ok := m["uuid"].(string); ok && uuid != "" {
		encryptedIndex = uuid
	}

	citedText := ""
	if t, ok := title.(string); ok {
		citedText = t
	}

	return map[string]any{
		"type":            "web_search_result_location",
		"cited_text":      citedText,
		"encrypted_index": encryptedIndex,
		"title":           title,
		"url":             url,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
