package server

import (
	"net/url"

	"github.com/ferrolog/oauth-server/storage"
)

// validateRedirectURI cross-checks a supplied redirect URI against the
// client's registered one and returns the URI to use.
//
// An omitted URI falls back to the registered one. A supplied URI that
// differs is accepted only when its hostname matches the registered URI's
// hostname; path and query may differ. Hostname-only matching is weaker than
// full-URI equality and is a known relaxation carried over from the
// registration model, covered explicitly by tests.
func validateRedirectURI(client *storage.Client, supplied string) (string, *Error) {
	if supplied == "" {
		return client.RedirectURI, nil
	}
	if supplied == client.RedirectURI {
		return supplied, nil
	}

	suppliedURL, err := url.Parse(supplied)
	if err != nil {
		return "", invalidRequest("Redirect URI is not valid")
	}
	registeredURL, err := url.Parse(client.RedirectURI)
	if err != nil {
		return "", invalidRequest("Registered redirect URI is not valid")
	}
	if suppliedURL.Hostname() == "" || suppliedURL.Hostname() != registeredURL.Hostname() {
		return "", invalidRequest("Redirect URI hostname doesn't match")
	}
	return supplied, nil
}

// makeRedirectURL appends query parameters to a redirect target, preserving
// any parameters already present. Pairs with an empty value are skipped, so
// an absent state never appears in the result.
func makeRedirectURL(base string, pairs ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		// Callers only pass validated URIs; fall back to the raw base.
		return base
	}

	q := u.Query()
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			q.Set(pairs[i], pairs[i+1])
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
