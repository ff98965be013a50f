package hub

import "errors"

var (
	// ErrAuthentication means the identity token was missing or invalid
	ErrAuthentication = errors.New("authentication failed")
	// ErrAuthorization means the user is not an active member of the team
	ErrAuthorization = errors.New("not authorized for team")
	// ErrInvalidRequest means the connect parameters could not be parsed
	ErrInvalidRequest = errors.New("invalid connect request")
	// ErrMalformedMessage means an inbound frame could not be decoded
	ErrMalformedMessage = errors.New("malformed message")
	// ErrSendBufferFull means a recipient's outbound queue had no room
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrConnectionClosed means the connection is no longer open
	ErrConnectionClosed = errors.New("connection closed")
	// ErrIllegalTransition means a lifecycle state change was not allowed
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrAlreadyRegistered means a connection id is already in the registry
	ErrAlreadyRegistered = errors.New("connection already registered")
)
