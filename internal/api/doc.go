// Package api implements the HTTP REST API and WebSocket endpoint for FOTA Core.
//
// This package provides:
//   - device listing, lookup and registration
//   - the FOTA trigger that hands a request to the command dispatcher
//   - firmware upload and catalog endpoints, and static serving of artifacts
//   - a WebSocket endpoint relaying registry events to dashboards
//   - operator token issuance and actor identity middleware
//   - an audit log of registrations, triggers, uploads and logins
//
// # Actor identity
//
// When a JWT secret is configured every protected route requires a bearer
// token and the token subject is the acting owner. Without a secret the
// X-Actor header is trusted, falling back to "local".
//
// # Graceful Degradation
//
// The server runs without a broker connection: reads and observers work,
// only the trigger endpoint reports 502.
package api
