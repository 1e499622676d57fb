// Package auth is the homedash identity provider.
//
// Accounts are keyed by email and carry one of four roles (viewer, user,
// admin, owner). The package provides:
//   - Argon2id password hashing (OWASP recommendation)
//   - HS256 access tokens whose "sid" claim names the session
//   - Refresh-token rotation with reuse detection: presenting a rotated
//     token ends the whole session
//   - Session-end notifications for every connected client (Service
//     implements session.Provider)
//
// Failed sign-ins never reveal whether the email exists.
package auth
