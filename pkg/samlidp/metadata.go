package samlidp

import (
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"
)

const (
	samlMetadataNS = "urn:oasis:names:tc:SAML:2.0:metadata"
	xmldsigNS      = "http://www.w3.org/2000/09/xmldsig#"

	bindingRedirect = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"
	bindingPOST     = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
)

// Metadata renders the IdP EntityDescriptor document: entity id, signing
// certificate, and the single-sign-on endpoint relying parties should send
// authentication requests to.
func (idp *IdentityProvider) Metadata(ssoURL string) (string, error) {
	descriptor := etree.NewElement("md:EntityDescriptor")
	descriptor.CreateAttr("xmlns:md", samlMetadataNS)
	descriptor.CreateAttr("entityID", idp.issuer)

	idpDescriptor := descriptor.CreateElement("md:IDPSSODescriptor")
	idpDescriptor.CreateAttr("protocolSupportEnumeration", samlProtocolNS)
	idpDescriptor.CreateAttr("WantAuthnRequestsSigned", "false")

	keyDescriptor := idpDescriptor.CreateElement("md:KeyDescriptor")
	keyDescriptor.CreateAttr("use", "signing")
	keyInfo := keyDescriptor.CreateElement("ds:KeyInfo")
	keyInfo.CreateAttr("xmlns:ds", xmldsigNS)
	keyInfo.CreateElement("ds:X509Data").
		CreateElement("ds:X509Certificate").
		SetText(base64.StdEncoding.EncodeToString(idp.cert.Raw))

	idpDescriptor.CreateElement("md:NameIDFormat").SetText(nameIDUnspecified)

	for _, binding := range []string{bindingRedirect, bindingPOST} {
		sso := idpDescriptor.CreateElement("md:SingleSignOnService")
		sso.CreateAttr("Binding", binding)
		sso.CreateAttr("Location", ssoURL)
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.SetRoot(descriptor)

	out, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("samlidp: serialize metadata: %w", err)
	}
	return out, nil
}
