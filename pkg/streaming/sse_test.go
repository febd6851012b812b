package streaming

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectAll(t *testing.T, p *Parser) []*Event {
	t.Helper()
	var out []*Event
	for {
		ev, err := p.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestParserBasicFraming(t *testing.T) {
	raw := "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"m1\"}}\n\n" +
		"event: ping\ndata: {\"type\":\"ping\"}\n\n"
	p := NewParser(strings.NewReader(raw), true, nil)
	events := collectAll(t, p)
	require.Len(t, events, 2)
	assert.Equal(t, EventMessageStart, events[0].Type)
	assert.Equal(t, EventPing, events[1].Type)
}

func TestParserMultilineDataConcatenates(t *testing.T) {
	raw := "data: {\"type\":\"content_block_delta\",\ndata: \"index\":0}\n\n"
	p := NewParser(strings.NewReader(raw), true, nil)
	events := collectAll(t, p)
	require.Len(t, events, 1)
	idx, ok := events[0].Index()
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestParserCRLFNormalized(t *testing.T) {
	raw := "event: ping\r\ndata: {\"type\":\"ping\"}\r\n\r\n"
	p := NewParser(strings.NewReader(raw), true, nil)
	events := collectAll(t, p)
	require.Len(t, events, 1)
	assert.Equal(t, EventPing, events[0].Type)
}

func TestParserChunkSplitMidWord(t *testing.T) {
	full := "event: ping\ndata: {\"type\":\"ping\"}\n\n"
	r1 := strings.NewReader(full[:10])
	r2 := strings.NewReader(full[10:])
	p := NewParser(io.MultiReader(r1, r2), true, nil)
	events := collectAll(t, p)
	require.Len(t, events, 1)
	assert.Equal(t, EventPing, events[0].Type)
}

func TestParserMalformedJSONDropped(t *testing.T) {
	raw := "data: {not json}\n\n" + "data: {\"type\":\"ping\"}\n\n"
	p := NewParser(strings.NewReader(raw), true, nil)
	events := collectAll(t, p)
	require.Len(t, events, 1)
	assert.Equal(t, EventPing, events[0].Type)
}

func TestParserUnknownEventSkippedWhenConfigured(t *testing.T) {
	raw := "data: {\"type\":\"some_future_event\"}\n\n"
	p := NewParser(strings.NewReader(raw), true, nil)
	events := collectAll(t, p)
	assert.Len(t, events, 0)
}

func TestParserUnknownEventFallbackWhenNotSkipped(t *testing.T) {
	raw := "data: {\"type\":\"some_future_event\"}\n\n"
	p := NewParser(strings.NewReader(raw), false, nil)
	events := collectAll(t, p)
	require.Len(t, events, 1)
	assert.Equal(t, EventUnknown, events[0].Type)
	assert.Equal(t, "some_future_event", events[0].UnknownType)
}

func TestParserFlushesIncompleteTrailingBuffer(t *testing.T) {
	raw := "data: {\"type\":\"ping\"}" // no trailing \n\n
	p := NewParser(strings.NewReader(raw), true, nil)
	events := collectAll(t, p)
	require.Len(t, events, 1)
	assert.Equal(t, EventPing, events[0].Type)
}

func TestCitationNormalization(t *testing.T) {
	raw := `data: {"type":"content_block_delta","index":0,"delta":{"type":"citation_start_delta","citation":{"url":"https://x","title":"X","uuid":"u1"}}}` + "\n\n"
	p := NewParser(strings.NewReader(raw), true, nil)
	events := collectAll(t, p)
	require.Len(t, events, 1)
	delta := events[0].Raw["delta"].(map[string]any)
	assert.Equal(t, "citations_delta", delta["type"])
	citation := delta["citation"].(map[string]any)
	assert.Equal(t, "web_search_result_location", citation["type"])
	assert.Equal(t, "u1", citation["encrypted_index"])
	assert.Equal(t, "X", citation["cited_text"])
}

func TestCitationMissingURLDropsEvent(t *testing.T) {
	raw := `data: {"type":"content_block_delta","index":0,"delta":{"type":"citation_start_delta","citation":{"title":"X"}}}` + "\n\n"
	p := NewParser(strings.NewReader(raw), true, nil)
	events := collectAll(t, p)
	assert.Len(t, events, 0)
}
