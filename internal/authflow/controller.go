package authflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/relaykit/gmail-relay/internal/config"
	"github.com/relaykit/gmail-relay/internal/credstore"
	"github.com/relaykit/gmail-relay/internal/google"
	"github.com/relaykit/gmail-relay/internal/logging"
)

// Exchanger is the session manager surface the flow needs: building
// the consent URL and trading a code for a persisted credential record.
type Exchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*credstore.Record, error)
}

// Controller drives one authorization attempt from consent redirect to
// token persistence.
type Controller struct {
	auth    Exchanger
	pending *PendingStore
	logger  *slog.Logger

	secret          string
	successRedirect string
	failureRedirect string
}

// NewController creates the flow controller.
func NewController(auth Exchanger, pending *PendingStore, cfg config.Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		auth:            auth,
		pending:         pending,
		logger:          logger,
		secret:          cfg.AuthSecret,
		successRedirect: cfg.AuthSuccessRedirect,
		failureRedirect: cfg.AuthFailureRedirect,
	}
}

// Start records a pending authorization state and redirects the caller
// to the provider consent URL. Optionally gated by a shared secret
// query parameter.
func (c *Controller) Start(w http.ResponseWriter, r *http.Request) {
	if c.secret != "" {
		key := r.URL.Query().Get("key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(c.secret)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	state, err := c.pending.Create()
	if err != nil {
		c.logger.Error("failed to start authorization", logging.Operation("auth_start"), logging.Err(err))
		http.Error(w, "Failed to start authorization.", http.StatusInternalServerError)
		return
	}

	c.logger.Info("authorization started", logging.Operation("auth_start"))
	http.Redirect(w, r, c.auth.AuthCodeURL(state), http.StatusFound)
}

// Callback consumes the state token, exchanges the code and persists
// the merged credential record. The state is deleted before any
// suspending work, so a replayed callback always fails.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		c.fail(w, r, http.StatusBadRequest, fmt.Sprintf("Authorization failed: %s", errParam))
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		c.fail(w, r, http.StatusBadRequest, "Missing code or state parameter.")
		return
	}

	if !c.pending.Consume(state) {
		c.fail(w, r, http.StatusBadRequest, "Invalid or expired state.")
		return
	}

	if _, err := c.auth.Exchange(r.Context(), code); err != nil {
		c.logger.Error("authorization failed", logging.Operation("auth_callback"), logging.Err(err))
		if errors.Is(err, google.ErrNoRefreshToken) {
			c.fail(w, r, http.StatusInternalServerError, err.Error())
			return
		}
		c.fail(w, r, http.StatusInternalServerError, fmt.Sprintf("Authorization failed: %v", err))
		return
	}

	c.logger.Info("authorization complete", logging.Operation("auth_callback"), logging.Status(logging.StatusSuccess))
	if c.successRedirect != "" {
		http.Redirect(w, r, c.successRedirect, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Authorization complete. You can close this window.")
}

func (c *Controller) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if c.failureRedirect != "" {
		http.Redirect(w, r, c.failureRedirect, http.StatusFound)
		return
	}
	http.Error(w, msg, status)
}
