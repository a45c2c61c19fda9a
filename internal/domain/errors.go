package domain

import "errors"

var (
	// ErrEmptyBody rejects whitespace-only outgoing messages before they
	// reach the transport.
	ErrEmptyBody = errors.New("message body is empty")

	// ErrDuplicateLocalID indicates a broken id generator contract. It is a
	// programming error, not a recoverable condition.
	ErrDuplicateLocalID = errors.New("duplicate local id")

	// ErrUnknownLocalID is returned by retry/dismiss for ids no longer in
	// the buffer.
	ErrUnknownLocalID = errors.New("unknown local id")

	// ErrNoActiveSession is returned when an operation needs a selected
	// session and none is.
	ErrNoActiveSession = errors.New("no active session")
)
