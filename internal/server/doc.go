// Package server hosts the ReelCast API behind a single HTTP server.
//
// The server builds a consistent middleware chain of request ids, logging,
// CORS, security headers, rate limiting, auth, and metrics so handlers all
// share common protections and instrumentation.
package server
