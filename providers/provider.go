// Package providers defines the interface that OAuth providers implement for
// the connect flow, and the failure classification shared by all of them.
package providers

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

// Failure classification. Each sentinel maps to a distinct user-facing error
// tag so the UI can render a specific message instead of a generic failure.
var (
	// ErrTokenExchange indicates the code-for-token exchange failed: a
	// non-success HTTP response, a response body carrying an explicit error
	// field (providers may return HTTP 200 with an error payload), or a body
	// missing the access token.
	ErrTokenExchange = errors.New("providers: token exchange failed")

	// ErrIdentityLookup indicates the provider's identity endpoint rejected
	// the freshly issued access token or returned a malformed response.
	ErrIdentityLookup = errors.New("providers: identity lookup failed")

	// ErrRevocation indicates the provider-side revocation call failed.
	// Callers treat revocation as best-effort and absorb this error.
	ErrRevocation = errors.New("providers: token revocation failed")
)

// Identity is the provider-reported identity of the connecting account.
type Identity struct {
	// ID is the provider's numeric account identifier.
	ID int64

	// Login is the provider-reported handle (GitHub "login").
	Login string
}

// Provider abstracts the external HTTP exchanges of the connect flow.
type Provider interface {
	// Name returns the provider tag stored with connections (e.g. "github").
	Name() string

	// AuthorizationURL builds the provider authorize redirect for the given
	// anti-forgery state. Pure construction, no I/O.
	AuthorizationURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens.
	// Failures wrap ErrTokenExchange.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchIdentity looks up the identity behind an access token.
	// Failures wrap ErrIdentityLookup.
	FetchIdentity(ctx context.Context, accessToken string) (*Identity, error)

	// RevokeGrant revokes the access token at the provider.
	// Failures wrap ErrRevocation.
	RevokeGrant(ctx context.Context, accessToken string) error
}

// TokenScope extracts the provider-reported scope string from a token
// response. GitHub returns the granted scopes as an extra "scope" field.
func TokenScope(token *oauth2.Token) string {
	if token == nil {
		return ""
	}
	scope, _ := token.Extra("scope").(string)
	return scope
}
