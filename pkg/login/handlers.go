package login

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/samlbridge/pkg/httputil"
	"github.com/platinummonkey/samlbridge/pkg/identity"
	"github.com/platinummonkey/samlbridge/pkg/middleware"
	"github.com/platinummonkey/samlbridge/pkg/observability"
	"github.com/platinummonkey/samlbridge/pkg/replay"
	"github.com/platinummonkey/samlbridge/pkg/saml"
	"github.com/platinummonkey/samlbridge/pkg/token"
)

// AssertionValidator is the slice of the SAML validator the flow needs.
type AssertionValidator interface {
	BuildLoginRedirect(relayState string) (string, error)
	Validate(rawResponse string) (*saml.Result, error)
	Metadata() ([]byte, error)
}

// Config holds the flow-level settings
type Config struct {
	// AppRedirectURL is the base URL of the downstream application that
	// receives the minted token.
	AppRedirectURL string

	// CallbackPath is where the IdP posts SAML responses. Defaults to "/".
	CallbackPath string
}

// Handlers orchestrates the login flow: initiation redirects to the IdP,
// the callback validates the response, resolves the user, mints a token,
// and hands the browser back to the application.
type Handlers struct {
	validator AssertionValidator
	resolver  *identity.Resolver
	issuer    *token.Issuer
	replays   replay.Cache
	logger    *observability.Logger
	metrics   *observability.Metrics
	cfg       Config
}

// NewHandlers wires the flow together.
func NewHandlers(
	validator AssertionValidator,
	resolver *identity.Resolver,
	issuer *token.Issuer,
	replays replay.Cache,
	logger *observability.Logger,
	metrics *observability.Metrics,
	cfg Config,
) (*Handlers, error) {
	if cfg.AppRedirectURL == "" {
		return nil, fmt.Errorf("login: application redirect URL is required")
	}
	if _, err := url.Parse(cfg.AppRedirectURL); err != nil {
		return nil, fmt.Errorf("login: invalid application redirect URL: %w", err)
	}
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = "/"
	}

	return &Handlers{
		validator: validator,
		resolver:  resolver,
		issuer:    issuer,
		replays:   replays,
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg,
	}, nil
}

// RegisterRoutes mounts the flow on the router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/login/saml", h.InitiateLogin).Methods(http.MethodGet)
	router.HandleFunc("/metadata", h.Metadata).Methods(http.MethodGet)
	router.HandleFunc(h.cfg.CallbackPath, h.Callback).Methods(http.MethodPost)
	router.HandleFunc("/", h.Landing).Methods(http.MethodGet)
}

// InitiateLogin redirects the browser to the IdP with a fresh
// authentication request.
func (h *Handlers) InitiateLogin(w http.ResponseWriter, r *http.Request) {
	relayState := httputil.QueryString(r, "RelayState", "")

	redirect, err := h.validator.BuildLoginRedirect(relayState)
	if err != nil {
		h.logger.WithError(err).Error("Failed to build IdP redirect")
		h.metrics.LoginFailuresTotal.WithLabelValues("initiation").Inc()
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	h.metrics.LoginsInitiatedTotal.Inc()
	http.Redirect(w, r, redirect, http.StatusFound)
}

// Callback consumes the IdP's posted SAML response. Success redirects to
// the application's token-login endpoint with the minted token; every
// failure redirects to the landing page with no detail exposed.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rawResponse := httputil.FormString(r, "SAMLResponse")
	result, err := h.validator.Validate(rawResponse)
	if err != nil {
		h.failLogin(w, r, "validation", err)
		return
	}

	if !h.consumeAssertion(ctx, result.AssertionID) {
		h.metrics.ReplaysRejectedTotal.Inc()
		h.failLogin(w, r, "replay", fmt.Errorf("assertion %s already consumed", result.AssertionID))
		return
	}

	start := time.Now()
	user, err := h.resolver.Resolve(ctx, result.Profile)
	h.metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		h.failLogin(w, r, "resolution", err)
		return
	}

	signed, err := h.issuer.Issue(user)
	if err != nil {
		h.failLogin(w, r, "signing", err)
		return
	}

	h.metrics.TokensIssuedTotal.Inc()
	h.metrics.CallbacksTotal.WithLabelValues("success").Inc()
	h.requestLogger(ctx).WithFields(map[string]interface{}{
		"subject_id": user.SubjectID,
		"user_id":    user.ID,
	}).Info("Login completed")

	http.Redirect(w, r, h.tokenLoginURL(signed), http.StatusFound)
}

// requestLogger tags the flow logger with the request ID when one is set.
func (h *Handlers) requestLogger(ctx context.Context) *observability.Logger {
	if requestID := observability.GetRequestID(ctx); requestID != "" {
		return h.logger.WithField("request_id", requestID)
	}
	return h.logger
}

// consumeAssertion returns false when the assertion must be rejected as a
// replay. A replay cache backend failure also rejects; failing open would
// let a captured response be replayed exactly when the cache is down.
func (h *Handlers) consumeAssertion(ctx context.Context, assertionID string) bool {
	if assertionID == "" {
		return false
	}
	fresh, err := h.replays.Consume(ctx, assertionID)
	if err != nil {
		h.logger.WithError(err).Error("Replay cache unavailable")
		return false
	}
	return fresh
}

// failLogin logs the real cause server-side and sends the browser back to
// the landing page. The response carries no hint of what went wrong.
func (h *Handlers) failLogin(w http.ResponseWriter, r *http.Request, stage string, err error) {
	logger := h.requestLogger(r.Context()).WithField("stage", stage)

	var valErr *saml.ValidationError
	if errors.As(err, &valErr) {
		logger = logger.WithField("reason", string(valErr.Reason))
	}
	var resErr *identity.ResolutionError
	if errors.As(err, &resErr) && resErr.SubjectID != "" {
		logger = logger.WithField("subject_id", resErr.SubjectID)
	}

	logger.WithError(err).Warn("Login failed")
	h.metrics.LoginFailuresTotal.WithLabelValues(stage).Inc()
	h.metrics.CallbacksTotal.WithLabelValues("failure").Inc()

	http.Redirect(w, r, "/", http.StatusFound)
}

// tokenLoginURL joins the application base URL with the token hand-off
// endpoint. The token travels as a query parameter, matching what the
// application's token-login route expects.
func (h *Handlers) tokenLoginURL(signed string) string {
	base := strings.TrimRight(h.cfg.AppRedirectURL, "/")
	query := url.Values{"token": {signed}}
	return base + "/token-login?" + query.Encode()
}

// Landing serves a minimal page with the login entry point, for browsers
// that land on the bridge directly and for failed logins bounced back.
func (h *Handlers) Landing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, landingPage)
}

// Metadata serves the SP metadata document for IdP configuration.
func (h *Handlers) Metadata(w http.ResponseWriter, r *http.Request) {
	metadata, err := h.validator.Metadata()
	if err != nil {
		h.logger.WithError(err).Error("Failed to render SP metadata")
		httputil.WriteInternalError(w, fmt.Errorf("metadata unavailable"))
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write(metadata)
}

// UserInfo reports the claims of the presented bearer token. It must sit
// behind the auth middleware.
func (h *Handlers) UserInfo(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":    claims.UserID,
		"subject_id": claims.Subject,
		"issued_at":  claims.IssuedAt,
		"expires_at": claims.ExpiresAt,
	})
}

const landingPage = `<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
<p><a href="/login/saml">Continue with single sign-on</a></p>
</body>
</html>
`
