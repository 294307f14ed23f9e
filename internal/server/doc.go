// Package server hosts the marketplace REST API from a single HTTP server.
//
// The server builds a consistent middleware chain of request identification,
// logging, and rate limiting so handlers all share common protections and
// instrumentation, and keeps every route behind one multiplexer.
package server
