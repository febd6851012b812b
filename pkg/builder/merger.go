package builder

import (
	"strings"

	"cwproxy/pkg/messages"
)

// PlainTextMerger is the default MessageMerger: a role-prefixed transcript
// flattener. The precise Claude.ai prompt-merge heuristics (markdown
// rendering, attachment placement) are an external collaborator; this is
// the minimal concrete implementation that satisfies the contract and lets
// the rest of the pipeline run end to end.
type PlainTextMerger struct{}

// Merge renders system + each message as "role: text" lines, separated by
// blank lines, and collects every image content block for upload.
func (PlainTextMerger) Merge(msgs []messages.Message, system string) (string, []messages.InlineImage, error) {
	var b strings.Builder
	var images []messages.InlineImage

	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}

	for _, m := range msgs {
		var text strings.Builder
		for _, c := range m.Content {
			switch c.Type {
			case messages.ContentText:
				if text.Len() > 0 {
					text.WriteString("\n")
				}
				text.WriteString(c.Text)
			case messages.ContentImage:
				if c.Source != nil {
					images = append(images, messages.InlineImage{
						MediaType: c.Source.MediaType,
						Data:      c.Source.Data,
					})
				}
			}
		}
		if text.Len() == 0 {
			continue
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(text.String())
		b.WriteString("\n\n")
	}

	return strings.TrimSpace(b.String()), images, nil
}
