// Package oauthserver provides the HTTP layer of the authorization server:
// the authorization endpoint (consent flow) and the token endpoint, as thin
// adapters over the protocol engine in the server package.
//
// The handler does not do authentication itself. A SessionReader supplies
// the current user; requests without one are redirected to the configured
// login URL with a next parameter pointing back at the authorization request.
package oauthserver
