// Package api hosts the HTTP handlers that front the marketplace REST API.
//
// The handlers assembled by Handler coordinate request validation and
// response shaping while delegating checkout, settlement, and persistence to
// the market and store dependencies injected at construction time. The
// package does not reach for globals or singletons and expects callers to
// supply fully configured dependencies.
//
// Handler implementations assume upstream middleware from internal/server has
// already enforced rate limiting, request identification, and logging
// concerns. New routes should preserve that contract by leaning on the
// middleware guarantees established in the server stack.
package api
