// Package builder converts an Anthropic Messages API request into a
// Claude-web completion payload: it merges messages into a flat prompt,
// uploads inline images, rewrites the tool list, and drives the Session
// through conversation setup before sending.
package builder

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"cwproxy/pkg/cwerrors"
	"cwproxy/pkg/messages"
)

const webSearchToolPrefix = "web_search_"

// MessageMerger flattens a request's messages and system prompt into a single
// plain-text prompt, extracting inline images along the way. Its
// implementation (markdown rendering, role prefixing, etc.) is delegated
// outside this package; Builder only depends on the contract.
type MessageMerger interface {
	Merge(messages []messages.Message, system string) (mergedText string, images []messages.InlineImage, err error)
}

// SessionHandle is the narrow Session contract the builder drives.
type SessionHandle interface {
	UploadFile(ctx context.Context, data []byte, filename, contentType string) (string, error)
	EnsureConversationInitialized(ctx context.Context) error
	SetPaprikaMode(ctx context.Context, mode string) error
	SetWebSearch(ctx context.Context, enabled bool) error
	SendMessage(ctx context.Context, payload map[string]any) (io.ReadCloser, error)
}

// Config is the subset of recognized options the builder consults.
type Config struct {
	PadtxtLength int
	PadTokens    string
	CustomPrompt string
}

// Builder turns an inbound request into a Claude-web completion payload.
type Builder struct {
	merger MessageMerger
	cfg    Config
	log    *zap.Logger
}

// New returns a Builder using merger for message flattening.
func New(merger MessageMerger, cfg Config, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{merger: merger, cfg: cfg, log: log}
}

// Result is the outcome of Build: the opened upstream byte stream and whether
// the rewritten tool list activated web search, for the caller to thread into
// the Tool-Call Interceptor.
type Result struct {
	Stream                 io.ReadCloser
	HasServerWebSearchTool bool
}

// Build runs steps 1-9 of the request builder and sends the assembled payload.
func (b *Builder) Build(ctx context.Context, req *messages.Request, sess SessionHandle) (*Result, error) {
	if len(req.Messages) == 0 {
		return nil, cwerrors.New(cwerrors.KindNoValidMessages, "request has no messages")
	}

	mergedText, images, err := b.merger.Merge(req.Messages, req.System)
	if err != nil {
		return nil, cwerrors.Wrap(cwerrors.KindNoValidMessages, "message merge failed", err)
	}
	if mergedText == "" {
		return nil, cwerrors.New(cwerrors.KindNoValidMessages, "merged prompt is empty")
	}

	if b.cfg.PadtxtLength > 0 {
		pad, err := randomPad(b.cfg.PadtxtLength, padTokensOrDefault(b.cfg.PadTokens))
		if err != nil {
			return nil, err
		}
		mergedText = pad + mergedText
	}

	fileIDs := b.uploadImages(ctx, sess, images)

	if err := sess.EnsureConversationInitialized(ctx); err != nil {
		return nil, err
	}

	paprikaMode := ""
	if req.Thinking.Enabled() {
		paprikaMode = "extended"
	}
	if err := sess.SetPaprikaMode(ctx, paprikaMode); err != nil {
		return nil, err
	}

	hasWebSearch, rewrittenTools := rewriteWebSearchTools(req.Tools)
	if hasWebSearch {
		if err := sess.SetWebSearch(ctx, true); err != nil {
			return nil, err
		}
	}

	payload := map[string]any{
		"max_tokens_to_sample": req.MaxTokens,
		"attachments":          []map[string]string{{"type": "text", "text": mergedText}},
		"files":                fileIDs,
		"model":                req.Model,
		"rendering_mode":       "messages",
		"prompt":               b.cfg.CustomPrompt,
		"timezone":             "UTC",
		"tools":                rewrittenTools,
	}

	stream, err := sess.SendMessage(ctx, payload)
	if err != nil {
		return nil, err
	}

	return &Result{Stream: stream, HasServerWebSearchTool: hasWebSearch}, nil
}

// uploadImages uploads each inline image, logging and skipping any that fail;
// a per-image failure is not fatal to the request.
func (b *Builder) uploadImages(ctx context.Context, sess SessionHandle, images []messages.InlineImage) []string {
	var fileIDs []string
	for i, img := range images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			b.log.Error("failed to decode inline image", zap.Int("index", i), zap.Error(err))
			continue
		}
		filename := img.Filename
		if filename == "" {
			filename = "image_" + strconv.Itoa(i) + ".png"
		}
		fileID, err := sess.UploadFile(ctx, data, filename, img.MediaType)
		if err != nil {
			b.log.Error("failed to upload image", zap.Int("index", i), zap.Error(cwerrors.Wrap(cwerrors.KindUploadFailed, "upload failed", err)))
			continue
		}
		fileIDs = append(fileIDs, fileID)
	}
	return fileIDs
}

// rewriteWebSearchTools drops every tool whose type starts with
// "web_search_" and, if any were found, prepends a single Claude-web
// web_search_v0 tool (only web_search_v0 activates search in the web
// completion endpoint).
func rewriteWebSearchTools(tools []messages.Tool) (bool, []messages.Tool) {
	filtered := make([]messages.Tool, 0, len(tools))
	hasWebSearch := false
	for _, t := range tools {
		if strings.HasPrefix(t.Type, webSearchToolPrefix) {
			hasWebSearch = true
			continue
		}
		filtered = append(filtered, t)
	}
	if hasWebSearch {
		filtered = append([]messages.Tool{{Name: "web_search", Type: "web_search_v0"}}, filtered...)
	}
	return hasWebSearch, filtered
}

func padTokensOrDefault(tokens string) string {
	if tokens == "" {
		return "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	}
	return tokens
}

// randomPad samples n characters uniformly from tokens using a
// cryptographically secure source: predictable padding would defeat its
// purpose of masking prompt length from upstream heuristics.
func randomPad(n int, tokens string) (string, error) {
	if len(tokens) == 0 {
		return "", cwerrors.New(cwerrors.KindNoValidMessages, "pad_tokens must not be empty")
	}
	idx := make([]byte, n)
	if _, err := rand.Read(idx); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range idx {
		out[i] = tokens[int(b)%len(tokens)]
	}
	return string(out), nil
}
