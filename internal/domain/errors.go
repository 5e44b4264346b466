// Package domain defines the raid history model and the contracts shared by
// the synchronization pipeline.
package domain

import "errors"

var (
	// ErrUserNotFound is returned when no sync state exists for a username.
	ErrUserNotFound = errors.New("user sync state not found")
	// ErrNotAuthorized is returned when a user has not granted authorization.
	ErrNotAuthorized = errors.New("user has not granted authorization")
	// ErrUpstreamUnavailable marks failures talking to Bungie.net.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrConflict is returned when a save lost an optimistic version race.
	ErrConflict = errors.New("user sync state was modified concurrently")
	// ErrInvalidRequest marks input validation failures.
	ErrInvalidRequest = errors.New("invalid request")
)
