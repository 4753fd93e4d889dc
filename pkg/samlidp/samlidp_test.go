package samlidp_test

import (
	"bytes"
	"compress/flate"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/gatehouse-id/gatehouse/pkg/samlidp"
	saml2 "github.com/russellhaering/gosaml2"
	"github.com/stretchr/testify/require"
)

const authnRequestXML = `<samlp:AuthnRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"
	xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion"
	ID="_abc123" Version="2.0" IssueInstant="2026-08-28T10:00:00Z"
	AssertionConsumerServiceURL="https://sp.example.com/saml/acs">
	<saml:Issuer>https://sp.example.com</saml:Issuer>
</samlp:AuthnRequest>`

func TestParseAuthnRequest(t *testing.T) {
	t.Parallel()

	t.Run("post binding plain base64", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString([]byte(authnRequestXML))

		req, err := samlidp.ParseAuthnRequest(encoded)
		require.NoError(t, err)
		require.Equal(t, "_abc123", req.ID)
		require.Equal(t, "https://sp.example.com/saml/acs", req.AssertionConsumerServiceURL)
	})

	t.Run("redirect binding deflated", func(t *testing.T) {
		var buf bytes.Buffer
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		_, err = fw.Write([]byte(authnRequestXML))
		require.NoError(t, err)
		require.NoError(t, fw.Close())

		req, err := samlidp.ParseAuthnRequest(base64.StdEncoding.EncodeToString(buf.Bytes()))
		require.NoError(t, err)
		require.Equal(t, "_abc123", req.ID)
	})

	t.Run("empty request", func(t *testing.T) {
		_, err := samlidp.ParseAuthnRequest("")
		require.ErrorIs(t, err, samlidp.ErrEmptyRequest)
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := samlidp.ParseAuthnRequest("!!! not base64 !!!")
		require.Error(t, err)
	})

	t.Run("base64 garbage", func(t *testing.T) {
		_, err := samlidp.ParseAuthnRequest(base64.StdEncoding.EncodeToString([]byte("not xml at all")))
		require.Error(t, err)
	})
}

func TestRequestDestination(t *testing.T) {
	t.Parallel()

	t.Run("prefers assertion consumer service URL", func(t *testing.T) {
		dest, err := samlidp.RequestDestination(&saml2.AuthNRequest{
			AssertionConsumerServiceURL: "https://sp.example.com/acs",
			Destination:                 "https://idp.example.com/sso",
		})
		require.NoError(t, err)
		require.Equal(t, "https://sp.example.com/acs", dest)
	})

	t.Run("falls back to destination attribute", func(t *testing.T) {
		dest, err := samlidp.RequestDestination(&saml2.AuthNRequest{
			Destination: "https://idp.example.com/sso",
		})
		require.NoError(t, err)
		require.Equal(t, "https://idp.example.com/sso", dest)
	})

	t.Run("missing both", func(t *testing.T) {
		_, err := samlidp.RequestDestination(&saml2.AuthNRequest{})
		require.ErrorIs(t, err, samlidp.ErrNoDestination)
	})
}

func TestBuildResponse(t *testing.T) {
	t.Parallel()

	idp := testIdentityProvider(t)

	req := &saml2.AuthNRequest{
		ID:                          "_req-1",
		Issuer:                      "https://sp.example.com",
		AssertionConsumerServiceURL: "https://sp.example.com/acs",
	}

	encoded, err := idp.BuildResponse(req, samlidp.Subject{
		ID:          "42",
		DisplayName: "user@example.com",
	}, "https://sp.example.com/acs")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(raw))

	root := doc.Root()
	require.Equal(t, "Response", root.Tag)
	require.Equal(t, "_req-1", root.SelectAttrValue("InResponseTo", ""))
	require.Equal(t, "https://sp.example.com/acs", root.SelectAttrValue("Destination", ""))

	nameID := doc.FindElement("//NameID")
	require.NotNil(t, nameID)
	require.Equal(t, "42", nameID.Text())

	require.NotNil(t, doc.FindElement("//SignatureValue"), "assertion must carry an enveloped signature")

	email := doc.FindElement("//Attribute[@Name='http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress']/AttributeValue")
	require.NotNil(t, email)
	require.Equal(t, "user@example.com", email.Text())
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	idp := testIdentityProvider(t)

	out, err := idp.Metadata("https://login.example.com/v1/sso/saml")
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(out))

	require.Equal(t, "https://login.example.com", doc.Root().SelectAttrValue("entityID", ""))
	require.NotNil(t, doc.FindElement("//X509Certificate"))

	sso := doc.FindElement("//SingleSignOnService")
	require.NotNil(t, sso)
	require.Equal(t, "https://login.example.com/v1/sso/saml", sso.SelectAttrValue("Location", ""))
}

func testIdentityProvider(t *testing.T) *samlidp.IdentityProvider {
	t.Helper()

	certPEM, keyPEM := selfSignedKeypair(t)
	idp, err := samlidp.New("https://login.example.com", certPEM, keyPEM)
	require.NoError(t, err)
	return idp
}

func selfSignedKeypair(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "login.example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM
}
