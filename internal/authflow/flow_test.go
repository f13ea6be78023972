package authflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/gmail-relay/internal/config"
	"github.com/relaykit/gmail-relay/internal/credstore"
	"github.com/relaykit/gmail-relay/internal/google"
)

func TestPendingStoreSingleUse(t *testing.T) {
	store := NewPendingStore(10 * time.Minute)

	state, err := store.Create()
	require.NoError(t, err)
	require.NotEmpty(t, state)

	assert.True(t, store.Consume(state))
	assert.False(t, store.Consume(state), "second consume must fail")
}

func TestPendingStoreUnknownState(t *testing.T) {
	store := NewPendingStore(10 * time.Minute)
	assert.False(t, store.Consume("never-issued"))
}

func TestPendingStoreExpiry(t *testing.T) {
	store := NewPendingStore(10 * time.Minute)
	current := time.Now()
	store.now = func() time.Time { return current }

	state, err := store.Create()
	require.NoError(t, err)

	current = current.Add(11 * time.Minute)
	assert.False(t, store.Consume(state))
}

func TestPendingStoreSweepOnCreate(t *testing.T) {
	store := NewPendingStore(10 * time.Minute)
	current := time.Now()
	store.now = func() time.Time { return current }

	_, err := store.Create()
	require.NoError(t, err)
	_, err = store.Create()
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	current = current.Add(11 * time.Minute)
	_, err = store.Create()
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestPendingStoreStatesAreUnique(t *testing.T) {
	store := NewPendingStore(10 * time.Minute)

	a, err := store.Create()
	require.NoError(t, err)
	b, err := store.Create()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

type fakeExchanger struct {
	exchangeErr error
	gotCode     string
	calls       int
}

func (f *fakeExchanger) AuthCodeURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (f *fakeExchanger) Exchange(_ context.Context, code string) (*credstore.Record, error) {
	f.calls++
	f.gotCode = code
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &credstore.Record{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func newTestController(t *testing.T, auth *fakeExchanger, cfg config.Config) (*Controller, *PendingStore) {
	t.Helper()
	pending := NewPendingStore(10 * time.Minute)
	return NewController(auth, pending, cfg, nil), pending
}

func TestStartRedirectsToConsentURL(t *testing.T) {
	auth := &fakeExchanger{}
	ctrl, pending := newTestController(t, auth, config.Config{})

	rec := httptest.NewRecorder()
	ctrl.Start(rec, httptest.NewRequest(http.MethodGet, "/auth/start", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "https://accounts.google.com/o/oauth2/auth?state=")
	assert.Equal(t, 1, pending.Len())
}

func TestStartSharedSecret(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantCode int
	}{
		{name: "missing key", url: "/auth/start", wantCode: http.StatusUnauthorized},
		{name: "wrong key", url: "/auth/start?key=nope", wantCode: http.StatusUnauthorized},
		{name: "correct key", url: "/auth/start?key=s3cret", wantCode: http.StatusFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, _ := newTestController(t, &fakeExchanger{}, config.Config{AuthSecret: "s3cret"})

			rec := httptest.NewRecorder()
			ctrl.Start(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestCallbackSuccess(t *testing.T) {
	auth := &fakeExchanger{}
	ctrl, pending := newTestController(t, auth, config.Config{})

	state, err := pending.Create()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	ctrl.Callback(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=the-code&state="+state, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authorization complete. You can close this window.")
	assert.Equal(t, "the-code", auth.gotCode)
}

func TestCallbackSuccessRedirect(t *testing.T) {
	ctrl, pending := newTestController(t, &fakeExchanger{},
		config.Config{AuthSuccessRedirect: "https://app.example.com/done"})

	state, err := pending.Create()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	ctrl.Callback(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state="+state, nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.example.com/done", rec.Header().Get("Location"))
}

func TestCallbackProviderError(t *testing.T) {
	auth := &fakeExchanger{}
	ctrl, _ := newTestController(t, auth, config.Config{})

	rec := httptest.NewRecorder()
	ctrl.Callback(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authorization failed: access_denied")
	assert.Equal(t, 0, auth.calls)
}

func TestCallbackMissingParams(t *testing.T) {
	for _, url := range []string{
		"/auth/callback",
		"/auth/callback?code=c",
		"/auth/callback?state=s",
	} {
		ctrl, _ := newTestController(t, &fakeExchanger{}, config.Config{})

		rec := httptest.NewRecorder()
		ctrl.Callback(rec, httptest.NewRequest(http.MethodGet, url, nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Missing code or state parameter.")
	}
}

func TestCallbackUnknownState(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeExchanger{}, config.Config{})

	rec := httptest.NewRecorder()
	ctrl.Callback(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=forged", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid or expired state.")
}

func TestCallbackReplayFails(t *testing.T) {
	auth := &fakeExchanger{}
	ctrl, pending := newTestController(t, auth, config.Config{})

	state, err := pending.Create()
	require.NoError(t, err)
	url := "/auth/callback?code=c&state=" + state

	first := httptest.NewRecorder()
	ctrl.Callback(first, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, first.Code)

	replay := httptest.NewRecorder()
	ctrl.Callback(replay, httptest.NewRequest(http.MethodGet, url, nil))
	assert.Equal(t, http.StatusBadRequest, replay.Code)
	assert.Contains(t, replay.Body.String(), "Invalid or expired state.")
	assert.Equal(t, 1, auth.calls)
}

func TestCallbackNoRefreshToken(t *testing.T) {
	auth := &fakeExchanger{exchangeErr: google.ErrNoRefreshToken}
	ctrl, pending := newTestController(t, auth, config.Config{})

	state, err := pending.Create()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	ctrl.Callback(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state="+state, nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "revoke the app's access")
}

func TestCallbackExchangeFailure(t *testing.T) {
	auth := &fakeExchanger{exchangeErr: errors.New("oauth2: invalid_grant")}
	ctrl, pending := newTestController(t, auth, config.Config{})

	state, err := pending.Create()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	ctrl.Callback(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state="+state, nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "Authorization failed:"))
}

func TestCallbackFailureRedirect(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeExchanger{},
		config.Config{AuthFailureRedirect: "https://app.example.com/error"})

	rec := httptest.NewRecorder()
	ctrl.Callback(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=forged", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.example.com/error", rec.Header().Get("Location"))
}
