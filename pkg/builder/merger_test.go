package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cwproxy/pkg/messages"
)

func TestPlainTextMergerFlattensRolesAndSystem(t *testing.T) {
	msgs := []messages.Message{
		{Role: "user", Content: []messages.Content{{Type: messages.ContentText, Text: "hi"}}},
		{Role: "assistant", Content: []messages.Content{{Type: messages.ContentText, Text: "hello"}}},
	}
	text, images, err := PlainTextMerger{}.Merge(msgs, "be nice")
	assert.NoError(t, err)
	assert.Nil(t, images)
	assert.Contains(t, text, "be nice")
	assert.Contains(t, text, "user: hi")
	assert.Contains(t, text, "assistant: hello")
}

func TestPlainTextMergerCollectsImages(t *testing.T) {
	msgs := []messages.Message{
		{Role: "user", Content: []messages.Content{
			{Type: messages.ContentText, Text: "look"},
			{Type: messages.ContentImage, Source: &messages.ImageSource{Type: "base64", MediaType: "image/png", Data: "AAA="}},
		}},
	}
	_, images, err := PlainTextMerger{}.Merge(msgs, "")
	assert.NoError(t, err)
	assert.Len(t, images, 1)
	assert.Equal(t, "image/png", images[0].MediaType)
}

func TestPlainTextMergerEmptyMessagesYieldsEmptyText(t *testing.T) {
	text, images, err := PlainTextMerger{}.Merge(nil, "")
	assert.NoError(t, err)
	assert.Empty(t, text)
	assert.Empty(t, images)
}
