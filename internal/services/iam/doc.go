// Package iam resolves request credentials into a Principal and decides whether
// that Principal holds the privilege level an operation requires.
//
// Three strategies establish identity: a local handle/password pair, a bearer
// token issued by this service, or an access token from the configured external
// identity provider. Every strategy runs through Dispatcher.Authenticate and
// yields either a Principal or an *AuthFailure.
package iam
