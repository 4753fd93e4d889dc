package samlidp

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/beevik/etree"
	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
)

const (
	samlProtocolNS  = "urn:oasis:names:tc:SAML:2.0:protocol"
	samlAssertionNS = "urn:oasis:names:tc:SAML:2.0:assertion"

	statusSuccess      = "urn:oasis:names:tc:SAML:2.0:status:Success"
	nameIDUnspecified  = "urn:oasis:names:tc:SAML:1.1:nameid-format:unspecified"
	confirmationBearer = "urn:oasis:names:tc:SAML:2.0:cm:bearer"
	authnContextPwd    = "urn:oasis:names:tc:SAML:2.0:ac:classes:PasswordProtectedTransport"

	// Claim URIs asserted for the authenticated subject. The relying parties
	// this broker serves only consume identifier and display-name claims.
	claimNameIdentifier = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
	claimEmailAddress   = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"
	claimName           = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name"

	assertionValidity = 5 * time.Minute
)

// Subject identifies the authenticated user an assertion speaks for.
type Subject struct {
	ID          string
	DisplayName string
}

// IdentityProvider signs SAML responses with a fixed TLS keypair and issuer.
type IdentityProvider struct {
	issuer   string
	keyStore dsig.TLSCertKeyStore
	cert     *x509.Certificate
}

// New builds an IdentityProvider from PEM-encoded certificate and key
// material. The key must be RSA; that is what goxmldsig signs with.
func New(issuer string, certPEM, keyPEM []byte) (*IdentityProvider, error) {
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("samlidp: load keypair: %w", err)
	}

	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("samlidp: parse certificate: %w", err)
	}

	return &IdentityProvider{
		issuer:   issuer,
		keyStore: dsig.TLSCertKeyStore(pair),
		cert:     leaf,
	}, nil
}

// Issuer returns the configured IdP entity id.
func (idp *IdentityProvider) Issuer() string { return idp.issuer }

// BuildResponse produces a base64-encoded samlp:Response answering req,
// asserting subject's identity toward destination. The assertion carries an
// enveloped XML signature.
func (idp *IdentityProvider) BuildResponse(
	req *saml2.AuthNRequest,
	subject Subject,
	destination string,
) (string, error) {
	now := time.Now().UTC()
	notAfter := now.Add(assertionValidity)

	assertion := etree.NewElement("saml:Assertion")
	assertion.CreateAttr("xmlns:saml", samlAssertionNS)
	assertion.CreateAttr("ID", newID())
	assertion.CreateAttr("Version", "2.0")
	assertion.CreateAttr("IssueInstant", samlTime(now))

	assertion.CreateElement("saml:Issuer").SetText(idp.issuer)

	subj := assertion.CreateElement("saml:Subject")
	nameID := subj.CreateElement("saml:NameID")
	nameID.CreateAttr("Format", nameIDUnspecified)
	nameID.SetText(subject.ID)

	confirmation := subj.CreateElement("saml:SubjectConfirmation")
	confirmation.CreateAttr("Method", confirmationBearer)
	confirmationData := confirmation.CreateElement("saml:SubjectConfirmationData")
	confirmationData.CreateAttr("Recipient", destination)
	confirmationData.CreateAttr("NotOnOrAfter", samlTime(notAfter))
	if req.ID != "" {
		confirmationData.CreateAttr("InResponseTo", req.ID)
	}

	conditions := assertion.CreateElement("saml:Conditions")
	conditions.CreateAttr("NotBefore", samlTime(now))
	conditions.CreateAttr("NotOnOrAfter", samlTime(notAfter))
	audience := conditions.CreateElement("saml:AudienceRestriction").
		CreateElement("saml:Audience")
	if req.Issuer != "" {
		audience.SetText(req.Issuer)
	} else {
		audience.SetText(destination)
	}

	authnStatement := assertion.CreateElement("saml:AuthnStatement")
	authnStatement.CreateAttr("AuthnInstant", samlTime(now))
	authnStatement.CreateAttr("SessionIndex", newID())
	authnStatement.CreateElement("saml:AuthnContext").
		CreateElement("saml:AuthnContextClassRef").
		SetText(authnContextPwd)

	attributes := assertion.CreateElement("saml:AttributeStatement")
	addAttribute(attributes, claimNameIdentifier, subject.ID)
	addAttribute(attributes, claimEmailAddress, subject.DisplayName)
	addAttribute(attributes, claimName, subject.DisplayName)

	signingCtx := dsig.NewDefaultSigningContext(idp.keyStore)
	signedAssertion, err := signingCtx.SignEnveloped(assertion)
	if err != nil {
		return "", fmt.Errorf("samlidp: sign assertion: %w", err)
	}

	response := etree.NewElement("samlp:Response")
	response.CreateAttr("xmlns:samlp", samlProtocolNS)
	response.CreateAttr("xmlns:saml", samlAssertionNS)
	response.CreateAttr("ID", newID())
	response.CreateAttr("Version", "2.0")
	response.CreateAttr("IssueInstant", samlTime(now))
	response.CreateAttr("Destination", destination)
	if req.ID != "" {
		response.CreateAttr("InResponseTo", req.ID)
	}

	response.CreateElement("saml:Issuer").SetText(idp.issuer)
	response.CreateElement("samlp:Status").
		CreateElement("samlp:StatusCode").
		CreateAttr("Value", statusSuccess)
	response.AddChild(signedAssertion)

	doc := etree.NewDocument()
	doc.SetRoot(response)
	xmlOut, err := doc.WriteToBytes()
	if err != nil {
		return "", fmt.Errorf("samlidp: serialize response: %w", err)
	}

	return base64.StdEncoding.EncodeToString(xmlOut), nil
}

func addAttribute(statement *etree.Element, name, value string) {
	attr := statement.CreateElement("saml:Attribute")
	attr.CreateAttr("Name", name)
	attr.CreateElement("saml:AttributeValue").SetText(value)
}

func samlTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// newID returns a schema-valid xsd:ID (must not start with a digit).
func newID() string {
	b := make([]byte, 20)
	_, _ = rand.Read(b)
	return "_" + hex.EncodeToString(b)
}
