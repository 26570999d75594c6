// Package vless builds vless connection links for provisioned entitlements.
// Link construction is pure: no I/O, and byte-identical output for identical
// inputs, so issued credentials are reproducible.
package vless

import (
	"net"
	"net/url"
	"strconv"

	"github.com/open-rails/vpnkit/entitlements"
)

// Scheme is the URI scheme understood by client applications.
const Scheme = "vless"

// fixedQuery is the protocol parameter set agreed with the endpoint
// implementation. It must stay stable: clients compare links verbatim.
const fixedQuery = "encryption=none&security=tls&type=tcp"

// DefaultBrand is the display fallback when an endpoint carries no brand.
const DefaultBrand = "vpn"

// Link renders the connection URI for a statId bound to an endpoint:
//
//	vless://<statId>@<address>:<port>?encryption=none&security=tls&type=tcp#<label>
//
// The label is percent-encoded in the fragment; it may contain arbitrary
// package and brand text.
func Link(statID, address string, port int, label string) (string, error) {
	if address == "" || port <= 0 {
		return "", entitlements.ErrInvalidEndpoint
	}
	u := url.URL{
		Scheme:   Scheme,
		User:     url.User(statID),
		Host:     net.JoinHostPort(address, strconv.Itoa(port)),
		RawQuery: fixedQuery,
		Fragment: label,
	}
	return u.String(), nil
}

// Label combines a package display name with the endpoint brand, falling back
// to DefaultBrand for unbranded endpoints.
func Label(name, brand string) string {
	if brand == "" {
		brand = DefaultBrand
	}
	return name + " | " + brand
}

// Issue is the convenience form used by the access layer: it labels and links
// an entitlement against its bound endpoint in one step.
func Issue(e *entitlements.Entitlement, ep *entitlements.Endpoint) (string, error) {
	return Link(e.StatID, ep.Address, ep.Port, Label(e.Name, ep.Brand))
}
