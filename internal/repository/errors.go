// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// auth service and handlers to distinguish between failure scenarios
// without inspecting SQL errors directly.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.  The auth service
// collapses it into a generic credential failure so callers cannot probe
// which accounts exist.
var ErrNotFound = errors.New("not found")

// ErrTokenRevoked is returned when a conditional update on a refresh token
// record affects zero rows: the record was already revoked or replaced.
// Handlers translate it into a 401.
var ErrTokenRevoked = errors.New("refresh token revoked")

// ErrResetTokenInvalid is returned when a password reset token is unknown,
// expired, or already consumed.  A second redemption of the same token
// always lands here.
var ErrResetTokenInvalid = errors.New("invalid or expired reset token")

// ErrSubdomainTaken is returned when a business registration collides with
// an existing subdomain or schema name.
var ErrSubdomainTaken = errors.New("subdomain already taken")

// ErrEmailExists is returned when a principal insert collides on email.
var ErrEmailExists = errors.New("email already exists")
