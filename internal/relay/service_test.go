package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	raw      string
	id       string
	threadID string
	err      error
}

func (f *fakeProvider) Send(_ context.Context, raw string) (string, string, error) {
	f.raw = raw
	if f.err != nil {
		return "", "", f.err
	}
	return f.id, f.threadID, nil
}

func fixedSession(p Provider, err error) SessionSource {
	return SessionFunc(func(context.Context) (Provider, error) {
		return p, err
	})
}

func TestServiceSend(t *testing.T) {
	provider := &fakeProvider{id: "msg-1", threadID: "thr-1"}
	svc := NewService(Address{Name: "Relay", Email: "relay@example.com"}, false, fixedSession(provider, nil), nil)

	res, rerr := svc.Send(context.Background(), &SendRequest{
		To:      StringList{"a@example.com"},
		Subject: "hi",
		Text:    "body",
	})

	require.Nil(t, rerr)
	assert.Equal(t, "msg-1", res.ID)
	assert.Equal(t, "thr-1", res.ThreadID)
	assert.NotEmpty(t, provider.raw)
}

func TestServiceSendValidationSkipsProvider(t *testing.T) {
	sessionCalls := 0
	svc := NewService(Address{Email: "relay@example.com"}, false,
		SessionFunc(func(context.Context) (Provider, error) {
			sessionCalls++
			return &fakeProvider{}, nil
		}), nil)

	_, rerr := svc.Send(context.Background(), &SendRequest{Subject: "hi", Text: "body"})

	require.NotNil(t, rerr)
	assert.Equal(t, 400, rerr.Status)
	assert.Equal(t, 0, sessionCalls)
}

func TestServiceSendNoCredentials(t *testing.T) {
	svc := NewService(Address{Email: "relay@example.com"}, false,
		fixedSession(nil, errors.New("no stored credentials")), nil)

	_, rerr := svc.Send(context.Background(), &SendRequest{
		To:      StringList{"a@example.com"},
		Subject: "hi",
		Text:    "body",
	})

	require.NotNil(t, rerr)
	assert.Equal(t, 500, rerr.Status)
	assert.Equal(t, "No usable Google credentials on file. Visit /auth/start to authorize.", rerr.Message)
}

func TestServiceSendProviderFailure(t *testing.T) {
	svc := NewService(Address{Email: "relay@example.com"}, false,
		fixedSession(&fakeProvider{err: errors.New("googleapi: Error 403: rate limit")}, nil), nil)

	_, rerr := svc.Send(context.Background(), &SendRequest{
		To:      StringList{"a@example.com"},
		Subject: "hi",
		Text:    "body",
	})

	require.NotNil(t, rerr)
	assert.Equal(t, 500, rerr.Status)
	assert.Equal(t, "googleapi: Error 403: rate limit", rerr.Message)
}

func TestServiceSenderOverride(t *testing.T) {
	tests := []struct {
		name          string
		allowOverride bool
		reqFrom       string
		wantFrom      string
	}{
		{name: "override disabled", allowOverride: false, reqFrom: "other@example.com", wantFrom: "relay@example.com"},
		{name: "override enabled", allowOverride: true, reqFrom: "other@example.com", wantFrom: "other@example.com"},
		{name: "override enabled but absent", allowOverride: true, reqFrom: "", wantFrom: "relay@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{id: "m", threadID: "t"}
			svc := NewService(Address{Email: "relay@example.com"}, tt.allowOverride, fixedSession(provider, nil), nil)

			_, rerr := svc.Send(context.Background(), &SendRequest{
				To:      StringList{"a@example.com"},
				Subject: "hi",
				Text:    "body",
				From:    tt.reqFrom,
			})
			require.Nil(t, rerr)

			doc, err := base64.RawURLEncoding.DecodeString(provider.raw)
			require.NoError(t, err)
			assert.Contains(t, string(doc), tt.wantFrom)
		})
	}
}
