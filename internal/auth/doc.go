// Package auth issues and verifies operator access tokens.
//
// Operators are configured with an Argon2id password hash. Authenticate
// checks a name and password and returns a signed HS256 JWT whose subject
// is the operator name; the HTTP API uses that subject as the acting
// owner when registering devices and uploading firmware.
package auth
