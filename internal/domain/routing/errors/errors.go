package errors

import (
	pkgerrors "github.com/yourusername/telegram-feed-router/router-service/pkg/errors"
)

// CodeDestinationDeleted is recorded on a feed whose destination channel is
// structurally gone; the feed is deactivated alongside it.
const CodeDestinationDeleted = "ERR_DESTINATION_DELETED"

var (
	// ErrNotAuthenticated is returned when an owner has no usable session.
	// This is an expected steady state for logged-out users, not a fault.
	ErrNotAuthenticated = pkgerrors.NewUnauthorizedError("owner is not authenticated")

	// ErrSessionRevoked is returned when an owner's stored session is invalid
	ErrSessionRevoked = pkgerrors.NewUnauthorizedError("stored session has been revoked")

	// ErrPeerNotFound is returned when a destination cannot be resolved
	ErrPeerNotFound = pkgerrors.NewNotFoundError("peer could not be resolved")

	// ErrDestinationForbidden is returned when the destination refuses writes
	ErrDestinationForbidden = pkgerrors.NewPermissionError("destination channel forbids writing")

	// ErrFeedNotFound is returned when a feed is not found
	ErrFeedNotFound = pkgerrors.NewNotFoundError("feed not found")

	// ErrDatabaseOperation is returned when a database operation fails
	ErrDatabaseOperation = pkgerrors.NewDatabaseError("database operation failed")
)
