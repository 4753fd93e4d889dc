package domain

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// Flow types a page exchange can complete with.
const (
	FlowTypeJWT  = "jwt"
	FlowTypeSAML = "saml"
)

var ErrPageUnknown = errors.New("domain: unknown page id")

// Page is the registered configuration of a relying party that delegates
// login to this broker. Loaded once at startup and read-only afterwards.
type Page struct {
	ID                 int64  `yaml:"id"`
	Name               string `yaml:"name"`
	Branding           string `yaml:"branding"`
	Secret             string `yaml:"secret"` // shared JWT signing secret
	Redirect           string `yaml:"redirect"`
	SignedRequestsOnly bool   `yaml:"signed_requests_only"`
}

// RedirectHost returns the hostname of the page's redirect URL, used to
// correlate inbound SAML requests.
func (p Page) RedirectHost() string {
	u, err := url.Parse(p.Redirect)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// PageRegistry is the read-only set of configured relying parties.
type PageRegistry struct {
	pages map[int64]Page
	order []int64 // ascending page id, for deterministic iteration
}

// NewPageRegistry validates and indexes the configured pages. Page ids must
// be positive and unique, and every page needs a name, secret, and redirect.
func NewPageRegistry(pages []Page) (*PageRegistry, error) {
	reg := &PageRegistry{pages: make(map[int64]Page, len(pages))}

	for _, p := range pages {
		if p.ID <= 0 {
			return nil, fmt.Errorf("domain: page %q: id must be a positive integer", p.Name)
		}
		if _, dup := reg.pages[p.ID]; dup {
			return nil, fmt.Errorf("domain: duplicate page id %d", p.ID)
		}
		if p.Name == "" || p.Secret == "" || p.Redirect == "" {
			return nil, fmt.Errorf("domain: page %d: name, secret and redirect are required", p.ID)
		}
		if _, err := url.Parse(p.Redirect); err != nil {
			return nil, fmt.Errorf("domain: page %d: invalid redirect url: %w", p.ID, err)
		}
		reg.pages[p.ID] = p
		reg.order = append(reg.order, p.ID)
	}

	sort.Slice(reg.order, func(i, j int) bool { return reg.order[i] < reg.order[j] })
	return reg, nil
}

// Get returns the page config for an id.
func (r *PageRegistry) Get(id int64) (Page, error) {
	p, ok := r.pages[id]
	if !ok {
		return Page{}, ErrPageUnknown
	}
	return p, nil
}

// MatchRedirectHost returns the first page (in ascending id order) whose
// redirect hostname equals host. Two pages sharing a hostname cannot be
// told apart in a standard SAML request; first match wins.
func (r *PageRegistry) MatchRedirectHost(host string) (Page, bool) {
	for _, id := range r.order {
		if p := r.pages[id]; p.RedirectHost() == host {
			return p, true
		}
	}
	return Page{}, false
}

// Len returns the number of configured pages.
func (r *PageRegistry) Len() int { return len(r.pages) }
