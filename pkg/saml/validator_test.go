package saml

import (
	"encoding/base64"
	"encoding/pem"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Self-signed certificate used only to exercise trust-store parsing.
const testCertificate = `-----BEGIN CERTIFICATE-----
MIIDizCCAnOgAwIBAgIUSFZKuGtORn0Swgu5dIVJBF58qREwDQYJKoZIhvcNAQEL
BQAwVTELMAkGA1UEBhMCVVMxDTALBgNVBAgMBFRlc3QxDTALBgNVBAcMBFRlc3Qx
DTALBgNVBAoMBFRlc3QxGTAXBgNVBAMMEHRlc3QuZXhhbXBsZS5jb20wHhcNMjYw
MTI4MjIxNTA0WhcNMjcwMTI4MjIxNTA0WjBVMQswCQYDVQQGEwJVUzENMAsGA1UE
CAwEVGVzdDENMAsGA1UEBwwEVGVzdDENMAsGA1UECgwEVGVzdDEZMBcGA1UEAwwQ
dGVzdC5leGFtcGxlLmNvbTCCASIwDQYJKoZIhvcNAQEBBQADggEPADCCAQoCggEB
AKjnv/B2fPTslhsQHPFE/RF7ICfSq3BIVELtwfTe054cMtYpKsPGzNqFz8QJICd6
kxLnV8GQTYd3vrL0yHISEOz6Ay7vOGqe34WThS5jXjf3BhRChRoMXsgush7XkdzO
fnFzQ1dHxqxQjfJFg3hIDaAwQEGQPhuoA3YSEJG1ReeKdgGvXJJZ9Y2N//27Ayfz
K3GmuoucOpnD4Ec6hkAdbiWDHyyb3e+MF3OYaimCpRmVnYi9W2Qa/laiPFf1UuZy
ewdeChnOrLa7CiIq5Et4Q5twbohkMZL9fPr7uT/tivYjLgu6BBBh/4T/LbsWbNcF
JzAiXSljN+4FNFY4UjJOf0kCAwEAAaNTMFEwHQYDVR0OBBYEFDLaGgYYOUVWM0pM
SVORaP2OHeqTMB8GA1UdIwQYMBaAFDLaGgYYOUVWM0pMSVORaP2OHeqTMA8GA1Ud
EwEB/wQFMAMBAf8wDQYJKoZIhvcNAQELBQADggEBAEBkxZMiUIiZhEtpgAHSJRkh
WeItSXk3xN5Z1O14h+XiEQT9PGoq5uXHVe973kFij4d+O+MtqEiPzKBLg8nJnC2C
XxHRe1VCR+jyw/9MuCMC0BssR9IUHGGq29mpvm2+GYUSZzqDT0jL//z5pOMYHTKQ
5Kqo5s22TRrcuxc4EtjZZVO96SZXu7LlpOcuQ6B9j9LhX4snnIJO7QT2XpBL7BLR
3tHbxSZqROr3p80dzj8RptXCCz4Xq6ohgWSpVCL3zexKG3/BGgUY0Kqp1zrHNSZQ
PZhuWKT1ZonPT9jDjiiFGp5Be/xOxr6H8iHMlr+e8L4/jmgAsRkrly+De4x9xYc=
-----END CERTIFICATE-----`

func testConfig() Config {
	return Config{
		EntryPoint:     "https://idp.example.com/sso",
		IdPIssuer:      "https://idp.example.com",
		EntityID:       "https://bridge.example.com",
		CallbackURL:    "https://bridge.example.com/",
		IdPCertificate: testCertificate,
		MetaAlias:      "/realm/idp",
	}
}

func TestNewValidator(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{
			name:        "missing entry point",
			mutate:      func(c *Config) { c.EntryPoint = "" },
			expectError: "entry point is required",
		},
		{
			name:        "missing entity ID",
			mutate:      func(c *Config) { c.EntityID = "" },
			expectError: "entity ID is required",
		},
		{
			name:        "missing certificate",
			mutate:      func(c *Config) { c.IdPCertificate = "" },
			expectError: "IdP certificate is required",
		},
		{
			name:        "garbage certificate",
			mutate:      func(c *Config) { c.IdPCertificate = "not a pem block" },
			expectError: "no certificates found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewValidator(cfg)
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestBuildLoginRedirect(t *testing.T) {
	v, err := NewValidator(testConfig())
	require.NoError(t, err)

	redirect, err := v.BuildLoginRedirect("state-123")
	require.NoError(t, err)

	parsed, err := url.Parse(redirect)
	require.NoError(t, err)

	assert.Equal(t, "idp.example.com", parsed.Host)
	assert.Equal(t, "/sso", parsed.Path)
	assert.NotEmpty(t, parsed.Query().Get("SAMLRequest"))
	assert.Equal(t, "state-123", parsed.Query().Get("RelayState"))
	assert.Equal(t, "/realm/idp", parsed.Query().Get("metaAlias"))
	assert.Equal(t, "https://bridge.example.com", parsed.Query().Get("spEntityID"))
}

func TestBuildLoginRedirectWithoutMetaAlias(t *testing.T) {
	cfg := testConfig()
	cfg.MetaAlias = ""
	v, err := NewValidator(cfg)
	require.NoError(t, err)

	redirect, err := v.BuildLoginRedirect("")
	require.NoError(t, err)

	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Empty(t, parsed.Query().Get("metaAlias"))
}

func TestValidateRejectsBadInput(t *testing.T) {
	v, err := NewValidator(testConfig())
	require.NoError(t, err)

	unsignedResponse := base64.StdEncoding.EncodeToString([]byte(
		`<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"></samlp:Response>`))

	tests := []struct {
		name     string
		response string
		reason   Reason
	}{
		{name: "empty response", response: "", reason: ReasonMalformed},
		{name: "not base64", response: "%%%not-base64%%%", reason: ReasonMalformed},
		{
			name:     "base64 but not XML",
			response: base64.StdEncoding.EncodeToString([]byte("plain text")),
			reason:   ReasonRejected,
		},
		{name: "unsigned response", response: unsignedResponse, reason: ReasonRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.response)
			var valErr *ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, tt.reason, valErr.Reason)
		})
	}
}

// signedResponseFixture builds a complete IdP response signed with a
// throwaway key and returns the XML plus the signing certificate PEM.
func signedResponseFixture(t *testing.T) (string, string) {
	t.Helper()

	keyStore := dsig.RandomKeyStoreForTest()
	_, certDER, err := keyStore.GetKeyPair()
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	now := time.Now().UTC()
	doc := etree.NewDocument()

	resp := doc.CreateElement("samlp:Response")
	resp.CreateAttr("xmlns:samlp", "urn:oasis:names:tc:SAML:2.0:protocol")
	resp.CreateAttr("xmlns:saml", "urn:oasis:names:tc:SAML:2.0:assertion")
	resp.CreateAttr("ID", "_response-1")
	resp.CreateAttr("Version", "2.0")
	resp.CreateAttr("IssueInstant", now.Format(time.RFC3339))
	resp.CreateAttr("Destination", "https://bridge.example.com/")
	resp.CreateElement("saml:Issuer").SetText("https://idp.example.com")

	status := resp.CreateElement("samlp:Status")
	status.CreateElement("samlp:StatusCode").
		CreateAttr("Value", "urn:oasis:names:tc:SAML:2.0:status:Success")

	assertion := resp.CreateElement("saml:Assertion")
	assertion.CreateAttr("ID", "_assertion-1")
	assertion.CreateAttr("Version", "2.0")
	assertion.CreateAttr("IssueInstant", now.Format(time.RFC3339))
	assertion.CreateElement("saml:Issuer").SetText("https://idp.example.com")

	subject := assertion.CreateElement("saml:Subject")
	nameID := subject.CreateElement("saml:NameID")
	nameID.CreateAttr("Format", "urn:oasis:names:tc:SAML:2.0:nameid-format:persistent")
	nameID.SetText("user-42")
	confirmation := subject.CreateElement("saml:SubjectConfirmation")
	confirmation.CreateAttr("Method", "urn:oasis:names:tc:SAML:2.0:cm:bearer")
	confirmationData := confirmation.CreateElement("saml:SubjectConfirmationData")
	confirmationData.CreateAttr("Recipient", "https://bridge.example.com/")
	confirmationData.CreateAttr("NotOnOrAfter", now.Add(5*time.Minute).Format(time.RFC3339))

	conditions := assertion.CreateElement("saml:Conditions")
	conditions.CreateAttr("NotBefore", now.Add(-5*time.Minute).Format(time.RFC3339))
	conditions.CreateAttr("NotOnOrAfter", now.Add(5*time.Minute).Format(time.RFC3339))
	conditions.CreateElement("saml:AudienceRestriction").
		CreateElement("saml:Audience").SetText("https://bridge.example.com")

	attrStatement := assertion.CreateElement("saml:AttributeStatement")
	mail := attrStatement.CreateElement("saml:Attribute")
	mail.CreateAttr("Name", "mail")
	mail.CreateElement("saml:AttributeValue").SetText("user-42@example.com")
	display := attrStatement.CreateElement("saml:Attribute")
	display.CreateAttr("FriendlyName", "displayName")
	display.CreateElement("saml:AttributeValue").SetText("User FortyTwo")

	signCtx := dsig.NewDefaultSigningContext(keyStore)
	signed, err := signCtx.SignEnveloped(resp)
	require.NoError(t, err)

	signedDoc := etree.NewDocument()
	signedDoc.SetRoot(signed)
	xml, err := signedDoc.WriteToString()
	require.NoError(t, err)

	return xml, string(certPEM)
}

func TestValidateAcceptsSignedResponse(t *testing.T) {
	signedXML, certPEM := signedResponseFixture(t)

	cfg := testConfig()
	cfg.IdPCertificate = certPEM
	v, err := NewValidator(cfg)
	require.NoError(t, err)

	result, err := v.Validate(base64.StdEncoding.EncodeToString([]byte(signedXML)))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "_assertion-1", result.AssertionID)
	require.NotNil(t, result.Profile)
	assert.Equal(t, "user-42", result.Profile.SubjectID)
	assert.Equal(t, []string{"user-42@example.com"}, result.Profile.Attributes["mail"])
	// The second attribute carries only a FriendlyName.
	assert.Equal(t, []string{"User FortyTwo"}, result.Profile.Attributes["displayName"])
}

func TestValidateRejectsTamperedSignedResponse(t *testing.T) {
	signedXML, certPEM := signedResponseFixture(t)

	cfg := testConfig()
	cfg.IdPCertificate = certPEM
	v, err := NewValidator(cfg)
	require.NoError(t, err)

	// The whole response is signed, so rewriting the subject must break
	// the digest.
	tampered := strings.Replace(signedXML, ">user-42<", ">user-66<", 1)
	require.NotEqual(t, signedXML, tampered)

	result, err := v.Validate(base64.StdEncoding.EncodeToString([]byte(tampered)))
	require.Error(t, err)
	assert.Nil(t, result)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, ReasonRejected, valErr.Reason)
}

func TestValidateNeverReturnsProfileOnFailure(t *testing.T) {
	v, err := NewValidator(testConfig())
	require.NoError(t, err)

	tampered := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 256)))
	result, err := v.Validate(tampered)
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestMetadata(t *testing.T) {
	v, err := NewValidator(testConfig())
	require.NoError(t, err)

	metadata, err := v.Metadata()
	require.NoError(t, err)

	assert.Contains(t, string(metadata), "https://bridge.example.com")
	assert.Contains(t, string(metadata), "EntityDescriptor")
}
