package login

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/samlbridge/pkg/identity"
	"github.com/platinummonkey/samlbridge/pkg/middleware"
	"github.com/platinummonkey/samlbridge/pkg/observability"
	"github.com/platinummonkey/samlbridge/pkg/replay"
	"github.com/platinummonkey/samlbridge/pkg/saml"
	"github.com/platinummonkey/samlbridge/pkg/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// stubValidator stands in for the SAML validator so callback semantics
// can be exercised without signed XML fixtures.
type stubValidator struct {
	redirect    string
	redirectErr error
	result      *saml.Result
	validateErr error
	metadata    []byte
	lastRelay   string
}

func (s *stubValidator) BuildLoginRedirect(relayState string) (string, error) {
	s.lastRelay = relayState
	return s.redirect, s.redirectErr
}

func (s *stubValidator) Validate(rawResponse string) (*saml.Result, error) {
	if s.validateErr != nil {
		return nil, s.validateErr
	}
	return s.result, nil
}

func (s *stubValidator) Metadata() ([]byte, error) {
	if s.metadata == nil {
		return nil, errors.New("no metadata")
	}
	return s.metadata, nil
}

func assertionResult(assertionID, subjectID string) *saml.Result {
	return &saml.Result{
		AssertionID: assertionID,
		Profile: &identity.Profile{
			SubjectID:  subjectID,
			Attributes: map[string][]string{"mail": {subjectID + "@example.com"}},
		},
	}
}

type testEnv struct {
	handlers *Handlers
	router   *mux.Router
	store    *identity.MemoryStore
	issuer   *token.Issuer
	metrics  *observability.Metrics
}

func newTestEnv(t *testing.T, validator AssertionValidator) *testEnv {
	t.Helper()

	store := identity.NewMemoryStore()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	resolver := identity.NewResolver(store, identity.WithProvisionHook(func(*identity.User) {
		metrics.UsersProvisionedTotal.Inc()
	}))

	issuer, err := token.NewIssuer(testSecret, "samlbridge")
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	handlers, err := NewHandlers(validator, resolver, issuer, replay.NewLRUCache(time.Minute), logger, metrics, Config{
		AppRedirectURL: "https://app.example.com",
	})
	require.NoError(t, err)

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	return &testEnv{
		handlers: handlers,
		router:   router,
		store:    store,
		issuer:   issuer,
		metrics:  metrics,
	}
}

func postCallback(t *testing.T, router *mux.Router, samlResponse string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"SAMLResponse": {samlResponse}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestNewHandlers_RequiresAppURL(t *testing.T) {
	env := newTestEnv(t, &stubValidator{})

	_, err := NewHandlers(&stubValidator{}, nil, env.issuer, nil, nil, nil, Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect URL is required")
}

func TestInitiateLogin(t *testing.T) {
	validator := &stubValidator{redirect: "https://idp.example.com/sso?SAMLRequest=abc"}
	env := newTestEnv(t, validator)

	req := httptest.NewRequest(http.MethodGet, "/login/saml?RelayState=return-here", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://idp.example.com/sso?SAMLRequest=abc", rec.Header().Get("Location"))
	assert.Equal(t, "return-here", validator.lastRelay)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.LoginsInitiatedTotal))
}

func TestInitiateLogin_RedirectFailure(t *testing.T) {
	validator := &stubValidator{redirectErr: errors.New("idp misconfigured")}
	env := newTestEnv(t, validator)

	req := httptest.NewRequest(http.MethodGet, "/login/saml", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestCallback_FirstLoginProvisionsAndRedirects(t *testing.T) {
	validator := &stubValidator{result: assertionResult("assertion-1", "user-42")}
	env := newTestEnv(t, validator)

	rec := postCallback(t, env.router, "encoded-response")

	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", location.Host)
	assert.Equal(t, "/token-login", location.Path)

	signed := location.Query().Get("token")
	require.NotEmpty(t, signed)

	claims, err := env.issuer.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, int64(1), claims.UserID)

	assert.Equal(t, 1, env.store.Count())
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.UsersProvisionedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.TokensIssuedTotal))
}

func TestCallback_RepeatLoginReusesUser(t *testing.T) {
	validator := &stubValidator{result: assertionResult("assertion-1", "user-42")}
	env := newTestEnv(t, validator)

	rec := postCallback(t, env.router, "encoded-response")
	require.Equal(t, http.StatusFound, rec.Code)

	validator.result = assertionResult("assertion-2", "user-42")
	rec = postCallback(t, env.router, "encoded-response")
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	claims, err := env.issuer.Verify(location.Query().Get("token"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, 1, env.store.Count())
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.UsersProvisionedTotal))
}

func TestCallback_InvalidResponseRedirectsHome(t *testing.T) {
	validator := &stubValidator{
		validateErr: &saml.ValidationError{Reason: saml.ReasonRejected, Err: errors.New("bad signature")},
	}
	env := newTestEnv(t, validator)

	rec := postCallback(t, env.router, "forged-response")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.NotContains(t, rec.Body.String(), "bad signature")
	assert.Equal(t, 0, env.store.Count())
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.LoginFailuresTotal.WithLabelValues("validation")))
}

func TestCallback_ReplayedAssertionRejected(t *testing.T) {
	validator := &stubValidator{result: assertionResult("assertion-1", "user-42")}
	env := newTestEnv(t, validator)

	rec := postCallback(t, env.router, "encoded-response")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "token=")

	rec = postCallback(t, env.router, "encoded-response")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ReplaysRejectedTotal))
	assert.Equal(t, 1, env.store.Count())
}

func TestCallback_MissingAssertionIDRejected(t *testing.T) {
	validator := &stubValidator{result: assertionResult("", "user-42")}
	env := newTestEnv(t, validator)

	rec := postCallback(t, env.router, "encoded-response")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, 0, env.store.Count())
}

func TestLanding(t *testing.T) {
	env := newTestEnv(t, &stubValidator{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/login/saml")
}

func TestMetadata(t *testing.T) {
	validator := &stubValidator{metadata: []byte(`<EntityDescriptor entityID="https://bridge.example.com"/>`)}
	env := newTestEnv(t, validator)

	req := httptest.NewRequest(http.MethodGet, "/metadata", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "EntityDescriptor")
}

func TestUserInfo(t *testing.T) {
	validator := &stubValidator{result: assertionResult("assertion-1", "user-42")}
	env := newTestEnv(t, validator)

	rec := postCallback(t, env.router, "encoded-response")
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	signed := location.Query().Get("token")
	require.NotEmpty(t, signed)

	authMW := middleware.NewAuthMiddleware(env.issuer)
	handler := authMW.Handler(http.HandlerFunc(env.handlers.UserInfo))

	req := httptest.NewRequest(http.MethodGet, "/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	userRec := httptest.NewRecorder()
	handler.ServeHTTP(userRec, req)

	assert.Equal(t, http.StatusOK, userRec.Code)
	assert.Contains(t, userRec.Body.String(), "user-42")

	req = httptest.NewRequest(http.MethodGet, "/userinfo", nil)
	userRec = httptest.NewRecorder()
	handler.ServeHTTP(userRec, req)
	assert.Equal(t, http.StatusUnauthorized, userRec.Code)
}
