// Package samlidp implements the identity-provider half of a SAML 2.0
// exchange: decoding relying-party authentication requests, producing signed
// authentication responses, and describing the IdP in metadata form.
package samlidp

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	saml2 "github.com/russellhaering/gosaml2"
)

// maxDecodedRequestSize caps inflated request size to keep a hostile
// SAMLRequest from ballooning memory.
const maxDecodedRequestSize = 1 << 20

var (
	ErrEmptyRequest  = errors.New("samlidp: empty SAMLRequest")
	ErrNoDestination = errors.New("samlidp: authn request carries no destination")
)

// ParseAuthnRequest decodes a SAMLRequest parameter into its XML form.
// Both bindings are accepted: redirect (base64 over DEFLATE) and POST
// (plain base64).
func ParseAuthnRequest(encoded string) (*saml2.AuthNRequest, error) {
	if encoded == "" {
		return nil, ErrEmptyRequest
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("samlidp: decode SAMLRequest: %w", err)
	}

	if !looksLikeXML(raw) {
		inflated, err := io.ReadAll(io.LimitReader(
			flate.NewReader(bytes.NewReader(raw)),
			maxDecodedRequestSize,
		))
		if err != nil {
			return nil, fmt.Errorf("samlidp: inflate SAMLRequest: %w", err)
		}
		raw = inflated
	}

	var req saml2.AuthNRequest
	if err := xml.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("samlidp: unmarshal authn request: %w", err)
	}

	return &req, nil
}

// RequestDestination resolves where the response for a request must be
// delivered: the AssertionConsumerServiceURL when present, otherwise the
// Destination attribute.
func RequestDestination(req *saml2.AuthNRequest) (string, error) {
	if req.AssertionConsumerServiceURL != "" {
		return req.AssertionConsumerServiceURL, nil
	}
	if req.Destination != "" {
		return req.Destination, nil
	}
	return "", ErrNoDestination
}

func looksLikeXML(raw []byte) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n\xef\xbb\xbf")
	return len(trimmed) > 0 && trimmed[0] == '<'
}
