package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTextShortUnchanged(t *testing.T) {
	assert.Equal(t, []string{"hello"}, splitText("hello", 4000))
}

func TestSplitTextBreaksAtNewline(t *testing.T) {
	text := "line one\n" + stringsRepeat("a", 20)
	parts := splitText(text, 15)
	assert.True(t, len(parts) >= 2)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 15)
	}
}

func TestNoopNotifyDoesNothing(t *testing.T) {
	var n Noop
	assert.NotPanics(t, func() { n.Notify("hello") })
}

func TestNilTelegramNotifyIsSafe(t *testing.T) {
	var tg *Telegram
	assert.NotPanics(t, func() { tg.Notify("hello") })
}

func stringsRepeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
