package saml

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"encoding/xml"
	"fmt"
	"net/url"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/platinummonkey/samlbridge/pkg/identity"
)

// Config holds the trust configuration for a single identity provider.
type Config struct {
	// EntryPoint is the IdP's SSO endpoint that login redirects target.
	EntryPoint string

	// IdPIssuer is the issuer the IdP asserts in its responses.
	IdPIssuer string

	// EntityID identifies this service provider; it is used as both the
	// SP issuer on authentication requests and the expected audience on
	// inbound assertions.
	EntityID string

	// CallbackURL is the assertion consumer service URL the IdP posts
	// responses to.
	CallbackURL string

	// IdPCertificate is the PEM-encoded signing certificate (or chain)
	// the IdP's response signatures are verified against.
	IdPCertificate string

	// MetaAlias is an IdP-specific metadata alias passed through on the
	// login redirect unmodified.
	MetaAlias string

	// NameIDFormat optionally overrides the requested NameID format.
	NameIDFormat string
}

// Result is the outcome of a successful validation: the normalized profile
// plus the assertion identifier used for replay detection.
type Result struct {
	AssertionID string
	Profile     *identity.Profile
}

// Validator verifies IdP-signed SAML responses and extracts normalized
// identity profiles. It performs no I/O beyond parsing and never calls
// into resolution or token issuance.
type Validator struct {
	cfg Config
	sp  *saml2.SAMLServiceProvider
}

// NewValidator builds a validator from the IdP trust configuration.
func NewValidator(cfg Config) (*Validator, error) {
	if cfg.EntryPoint == "" {
		return nil, fmt.Errorf("saml: entry point is required")
	}
	if cfg.EntityID == "" {
		return nil, fmt.Errorf("saml: entity ID is required")
	}
	if cfg.IdPCertificate == "" {
		return nil, fmt.Errorf("saml: IdP certificate is required")
	}

	certStore, err := parseCertificates(cfg.IdPCertificate)
	if err != nil {
		return nil, err
	}

	idpIssuer := cfg.IdPIssuer
	if idpIssuer == "" {
		idpIssuer = cfg.EntryPoint
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      cfg.EntryPoint,
		IdentityProviderIssuer:      idpIssuer,
		ServiceProviderIssuer:       cfg.EntityID,
		AssertionConsumerServiceURL: cfg.CallbackURL,
		AudienceURI:                 cfg.EntityID,
		IDPCertificateStore:         certStore,
	}
	if cfg.NameIDFormat != "" {
		sp.NameIdFormat = cfg.NameIDFormat
	}

	return &Validator{cfg: cfg, sp: sp}, nil
}

// parseCertificates loads every certificate from a PEM bundle into a
// memory-backed trust store.
func parseCertificates(pemData string) (*dsig.MemoryX509CertificateStore, error) {
	store := &dsig.MemoryX509CertificateStore{}

	rest := []byte(pemData)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("saml: failed to parse IdP certificate: %w", err)
		}
		store.Roots = append(store.Roots, cert)
	}

	if len(store.Roots) == 0 {
		return nil, fmt.Errorf("saml: no certificates found in PEM data")
	}
	return store, nil
}

// BuildLoginRedirect returns the IdP-bound authentication request URL for
// a login initiation, carrying the relay state and the pass-through
// metadata alias parameters.
func (v *Validator) BuildLoginRedirect(relayState string) (string, error) {
	authURL, err := v.sp.BuildAuthURL(relayState)
	if err != nil {
		return "", fmt.Errorf("saml: failed to build auth request URL: %w", err)
	}

	if v.cfg.MetaAlias == "" {
		return authURL, nil
	}

	parsed, err := url.Parse(authURL)
	if err != nil {
		return "", fmt.Errorf("saml: failed to parse auth URL: %w", err)
	}
	query := parsed.Query()
	query.Set("metaAlias", v.cfg.MetaAlias)
	query.Set("spEntityID", v.cfg.EntityID)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// Validate verifies the base64-encoded SAML response from the callback form
// and extracts the asserted identity. Any verification failure rejects the
// whole response; an unverified profile is never returned.
func (v *Validator) Validate(rawResponse string) (*Result, error) {
	if rawResponse == "" {
		return nil, invalid(ReasonMalformed, fmt.Errorf("empty SAMLResponse"))
	}
	if _, err := base64.StdEncoding.DecodeString(rawResponse); err != nil {
		return nil, invalid(ReasonMalformed, fmt.Errorf("failed to decode SAMLResponse: %w", err))
	}

	info, err := v.sp.RetrieveAssertionInfo(rawResponse)
	if err != nil {
		return nil, invalid(ReasonRejected, err)
	}

	if info.WarningInfo != nil {
		if info.WarningInfo.InvalidTime {
			return nil, invalid(ReasonExpired, fmt.Errorf("assertion outside its validity window"))
		}
		if info.WarningInfo.NotInAudience {
			return nil, invalid(ReasonAudience, fmt.Errorf("assertion not addressed to %s", v.cfg.EntityID))
		}
	}

	if info.NameID == "" {
		return nil, invalid(ReasonMissingSubject, fmt.Errorf("assertion carries no NameID"))
	}

	profile := &identity.Profile{
		SubjectID:  info.NameID,
		Attributes: make(map[string][]string),
	}
	for _, attr := range info.Values {
		name := attr.Name
		if name == "" {
			name = attr.FriendlyName
		}
		for _, val := range attr.Values {
			profile.Attributes[name] = append(profile.Attributes[name], val.Value)
		}
	}

	assertionID := ""
	if len(info.Assertions) > 0 {
		assertionID = info.Assertions[0].ID
	}

	return &Result{AssertionID: assertionID, Profile: profile}, nil
}

// Metadata renders the service provider metadata document.
func (v *Validator) Metadata() ([]byte, error) {
	descriptor, err := v.sp.Metadata()
	if err != nil {
		return nil, fmt.Errorf("saml: failed to generate metadata: %w", err)
	}

	out, err := xml.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("saml: failed to marshal metadata: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
