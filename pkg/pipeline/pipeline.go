// Package pipeline orchestrates one inbound request across the account pool,
// request builder, session, SSE parser, and tool-call interceptor. It is the
// seam the (out-of-scope) outer HTTP server plugs into.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"cwproxy/pkg/account"
	"cwproxy/pkg/builder"
	"cwproxy/pkg/messages"
	"cwproxy/pkg/session"
	"cwproxy/pkg/streaming"
)

// SessionFactory creates the Session bound to an assigned account. It exists
// so Pipeline does not need to know the concrete WebClient implementation.
type SessionFactory func(sessionID string, acc *account.Account) *session.Session

// Pipeline wires the account pool, builder, and streaming stages together.
type Pipeline struct {
	pool        *account.Pool
	builder     *builder.Builder
	registry    *account.Registry
	sessions    *session.Manager
	newSession  SessionFactory
	skipUnknown bool
	log         *zap.Logger
}

// New constructs a Pipeline. skipUnknown controls the SSE parser's handling
// of events outside the modeled Anthropic union.
func New(pool *account.Pool, b *builder.Builder, registry *account.Registry, sessions *session.Manager, factory SessionFactory, skipUnknown bool, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		pool:        pool,
		builder:     b,
		registry:    registry,
		sessions:    sessions,
		newSession:  factory,
		skipUnknown: skipUnknown,
		log:         log,
	}
}

// Handle runs one request end to end and returns a pull-based source of
// typed, tool-call-rewritten streaming events for the outer encoder to consume.
func (p *Pipeline) Handle(ctx context.Context, sessionID string, req *messages.Request) (streaming.Source, error) {
	var isPro, isMax *bool

	acc, err := p.pool.GetAccountForSession(sessionID, isPro, isMax)
	if err != nil {
		return nil, err
	}

	sess, err := p.sessions.GetOrCreate(sessionID, func() (*session.Session, error) {
		return p.newSession(sessionID, acc), nil
	})
	if err != nil {
		return nil, err
	}

	result, err := p.builder.Build(ctx, req, sess)
	if err != nil {
		return nil, err
	}

	parser := streaming.NewParser(result.Stream, p.skipUnknown, p.log)
	interceptor := streaming.NewInterceptor(parser, p.registry, sessionID, result.HasServerWebSearchTool)
	return interceptor, nil
}
