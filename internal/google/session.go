// Package google owns the OAuth2 client configuration, the
// authorization-code exchange and the process-lifetime Gmail session.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/relaykit/gmail-relay/internal/config"
	"github.com/relaykit/gmail-relay/internal/credstore"
	"github.com/relaykit/gmail-relay/internal/logging"
)

var (
	// ErrMissingCredential indicates no credential record has been
	// persisted yet; the operator has to run the authorization flow.
	ErrMissingCredential = errors.New("no stored Google credentials")

	// ErrMissingRefreshToken indicates a record exists but carries no
	// refresh token, so no silent renewal is possible.
	ErrMissingRefreshToken = errors.New("stored Google credentials have no refresh token")

	// ErrNoRefreshToken indicates a code exchange succeeded but the
	// merged credential record still lacks a refresh token. Google
	// omits refresh tokens on repeat consent unless access is revoked
	// first.
	ErrNoRefreshToken = errors.New("Google returned no refresh token; revoke the app's access at https://myaccount.google.com/permissions and authorize again")
)

// OAuthConfig returns the OAuth2 configuration for the Gmail send scope.
func OAuthConfig(cfg config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     oauthgoogle.Endpoint,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes:       []string{gmail.GmailSendScope},
	}
}

// Manager produces a ready-to-use, auto-refreshing Gmail session bound
// to the stored credential record, and reconciles provider-issued
// token updates back into the credential store.
type Manager struct {
	conf   *oauth2.Config
	store  *credstore.Store
	logger *slog.Logger

	// baseCtx outlives individual requests; the cached session's HTTP
	// client must not be bound to the first request's context.
	baseCtx context.Context

	mu      sync.Mutex
	session *Session
}

// NewManager creates a session manager. ctx should be the process
// lifetime context.
func NewManager(ctx context.Context, cfg config.Config, store *credstore.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		conf:    OAuthConfig(cfg),
		store:   store,
		logger:  logger,
		baseCtx: ctx,
	}
}

// AuthCodeURL builds the consent URL for the given state token,
// requesting offline access and forced re-consent so a refresh token
// is issued.
func (m *Manager) AuthCodeURL(state string) string {
	return m.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens, merges the issued
// material over any existing stored record (existing fields preserved,
// new fields overwrite) and persists the result. Fails with
// ErrNoRefreshToken when the merged record still lacks one.
func (m *Manager) Exchange(ctx context.Context, code string) (*credstore.Record, error) {
	tok, err := m.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}

	existing, err := m.store.Load()
	if err != nil && !errors.Is(err, credstore.ErrNotFound) {
		return nil, err
	}

	merged := existing.Merge(credstore.FromToken(tok))
	if merged.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	if err := m.store.Save(merged); err != nil {
		return nil, err
	}

	m.logger.Info("credentials saved",
		logging.Operation("exchange"),
		slog.String("access_token", logging.SanitizeToken(merged.AccessToken)),
		slog.String("refresh_token", logging.SanitizeToken(merged.RefreshToken)),
	)
	return merged, nil
}

// Session returns the cached session handle if one exists; otherwise
// it loads the credential record, validates a refresh token is
// present, constructs a session bound to that record and caches it for
// the remainder of the process lifetime. The underlying token source
// self-refreshes, so the cache needs no TTL or invalidation.
func (m *Manager) Session(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return m.session, nil
	}

	rec, err := m.store.Load()
	if errors.Is(err, credstore.ErrNotFound) {
		return nil, ErrMissingCredential
	}
	if err != nil {
		return nil, err
	}
	if rec.RefreshToken == "" {
		return nil, ErrMissingRefreshToken
	}

	tok := rec.Token()
	ts := &persistingSource{
		src:    oauth2.ReuseTokenSource(tok, m.conf.TokenSource(m.baseCtx, tok)),
		store:  m.store,
		logger: m.logger,
		last:   rec,
	}
	client := oauth2.NewClient(m.baseCtx, ts)

	svc, err := gmail.NewService(m.baseCtx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	m.session = &Session{svc: svc}
	m.logger.Info("Gmail session established", logging.Operation("session"))
	return m.session, nil
}

// persistingSource wraps a token source and, after every token fetch,
// compares the token against the last persisted record. A changed
// token is merged over the last known state (so an access-token-only
// refresh does not erase the stored refresh token) and written to the
// store. Save failures are logged and swallowed: an unsaved refresh is
// recoverable on next startup via re-authorization and must not abort
// the in-flight send that triggered it.
type persistingSource struct {
	src    oauth2.TokenSource
	store  *credstore.Store
	logger *slog.Logger

	mu   sync.Mutex
	last *credstore.Record
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	// Guard against spurious empty updates.
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return tok, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken == p.last.AccessToken &&
		(tok.RefreshToken == "" || tok.RefreshToken == p.last.RefreshToken) {
		return tok, nil
	}

	merged := p.last.Merge(credstore.FromToken(tok))
	if err := p.store.Save(merged); err != nil {
		p.logger.Warn("failed to persist refreshed credentials",
			logging.Operation("refresh"), logging.Err(err))
	} else {
		p.logger.Debug("persisted refreshed credentials",
			logging.Operation("refresh"),
			slog.String("access_token", logging.SanitizeToken(merged.AccessToken)),
		)
	}
	p.last = merged
	return tok, nil
}
