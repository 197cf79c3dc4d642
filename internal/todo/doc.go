// Package todo manages per-user task records.
//
// All reads exclude soft-deleted rows and are scoped to an owner, so a
// missing, deleted, or foreign todo is indistinguishable to the caller.
// Deleting a user cascades here through CascadeSoftDeleteByOwner, which
// runs inside the account deletion transaction.
package todo
