package google

import (
	"context"
	"fmt"

	gmail "google.golang.org/api/gmail/v1"
)

// Session wraps an authorized Gmail service. It is constructed once by
// the Manager and reused for the process lifetime; the underlying
// OAuth transport renews access tokens transparently.
type Session struct {
	svc *gmail.Service
}

// Send submits a base64url-encoded RFC 5322 message under the fixed
// "me" user context and returns the provider-assigned message and
// thread ids.
func (s *Session) Send(ctx context.Context, raw string) (id, threadID string, err error) {
	sent, err := s.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("failed to send email: %w", err)
	}
	return sent.Id, sent.ThreadId, nil
}
