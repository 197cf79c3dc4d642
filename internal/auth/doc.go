// Package auth provides the credential and session lifecycle core for taskvault.
//
// It implements a two-role model (user → admin) with:
//   - Argon2id password hashing (PHC string format)
//   - Short-lived JWT access tokens carrying an identity snapshot
//   - Longer-lived JWT refresh tokens validated against a server-side
//     allow-list, rotated on every use
//   - Soft-deleted accounts that can never authenticate again
//
// Allow-list membership, not signature validity, is the authority on whether
// a refresh token is still alive: a rotated-away token keeps passing
// signature checks but is permanently dead.
package auth
