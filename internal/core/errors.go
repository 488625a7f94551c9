package core

import "errors"

var (
	// ErrDuplicateID reports a second Register for an already registered
	// connection id. The protocol should make this impossible; the
	// registry guards it anyway.
	ErrDuplicateID = errors.New("connection id already registered")
	// ErrNicknameTaken reports a nickname already held by a live connection.
	ErrNicknameTaken = errors.New("nickname already in use")
	// ErrNotRegistered reports an operation on an unknown connection id.
	ErrNotRegistered = errors.New("connection not registered")
	// ErrEmptyChannel reports a join with an empty channel name.
	ErrEmptyChannel = errors.New("channel name is empty")
)
