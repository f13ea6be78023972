package relay

import (
	"context"
	"log/slog"

	"github.com/relaykit/gmail-relay/internal/logging"
)

// Provider is the remote send call, treated as opaque: it accepts the
// transport-encoded document and returns the provider-assigned ids.
type Provider interface {
	Send(ctx context.Context, raw string) (id, threadID string, err error)
}

// SessionSource yields a ready-to-use provider session with valid
// credentials.
type SessionSource interface {
	Session(ctx context.Context) (Provider, error)
}

// SessionFunc adapts a function to the SessionSource interface.
type SessionFunc func(ctx context.Context) (Provider, error)

// Session implements SessionSource.
func (f SessionFunc) Session(ctx context.Context) (Provider, error) {
	return f(ctx)
}

// Service is the send dispatcher: it normalizes the request, applies
// the sender policy, obtains a valid session, composes the wire
// document and invokes the provider. Steps are strictly sequential;
// any failure aborts before the provider call.
type Service struct {
	sender            Address
	allowFromOverride bool
	sessions          SessionSource
	logger            *slog.Logger
}

// NewService creates a dispatcher with the configured sender identity.
func NewService(sender Address, allowFromOverride bool, sessions SessionSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sender:            sender,
		allowFromOverride: allowFromOverride,
		sessions:          sessions,
		logger:            logger,
	}
}

// Send handles one normalized-and-dispatched request. The returned
// *Error carries the HTTP status the transport layer should answer
// with.
func (s *Service) Send(ctx context.Context, req *SendRequest) (*Result, *Error) {
	msg, verr := Normalize(req)
	if verr != nil {
		return nil, verr
	}

	// Sender override is configuration-gated; otherwise the request's
	// from/fromName fields are ignored.
	msg.From = s.sender
	if s.allowFromOverride && req.From != "" {
		msg.From = Address{Name: req.FromName, Email: req.From}
	}

	session, err := s.sessions.Session(ctx)
	if err != nil {
		return nil, CredentialError("No usable Google credentials on file. Visit /auth/start to authorize.", err)
	}

	doc, err := Compose(msg)
	if err != nil {
		return nil, CompositionError(err)
	}

	id, threadID, err := session.Send(ctx, EncodeRaw(doc))
	if err != nil {
		return nil, ProviderError(err)
	}

	s.logger.Info("email sent",
		logging.Operation("send"),
		logging.Status(logging.StatusSuccess),
		slog.String("id", id),
		slog.String("thread_id", threadID),
		slog.Int("recipients", len(msg.To)+len(msg.Cc)+len(msg.Bcc)),
		slog.Int("attachments", len(msg.Attachments)),
	)
	return &Result{ID: id, ThreadID: threadID}, nil
}
