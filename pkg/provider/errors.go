package provider

import "errors"

var (
	ErrNotInitialized      = errors.New("provider is not initialized")
	ErrHandshakeInProgress = errors.New("handshake already in progress")
	ErrNoPendingHandshake  = errors.New("no pending handshake")
	ErrKeyMismatch         = errors.New("callback public key does not match the pending session key")
	ErrInvalidCallback     = errors.New("invalid provider callback")
)
