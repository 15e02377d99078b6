// Package session implements the identity and session subsystem: simple
// CRUD over generation sessions plus the identity stub.
//
// There is no real authentication. Every caller resolves to the default
// identity; a parseable bearer token only relabels the caller using its
// unverified subject claim. Nothing here grants or denies access.
package session
