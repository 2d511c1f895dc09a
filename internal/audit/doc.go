// Package audit records operator activity in the audit_logs table.
//
// Every state-changing API call (device registration, update triggers,
// firmware uploads, token issuance) appends one Entry naming the actor.
// Entries are never updated or deleted.
package audit
