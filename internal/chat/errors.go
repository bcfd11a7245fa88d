package chat

import "errors"

var (
	// ErrUnknownConnection is returned for events whose sender or recipient
	// is not in the registry. Disconnect paths treat it as a no-op.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrDuplicateConnection is returned when a connection id registers twice.
	ErrDuplicateConnection = errors.New("connection already registered")
	// ErrUnknownRoom is returned when writing to a room that was never ensured.
	// Reads of unknown rooms return empty results instead.
	ErrUnknownRoom = errors.New("unknown room")
	// ErrDeliveryUnavailable reports targets that were not live. It is never
	// surfaced to the sender.
	ErrDeliveryUnavailable = errors.New("delivery target unavailable")
)
