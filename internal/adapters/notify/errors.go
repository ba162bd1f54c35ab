package notify

import "errors"

// Sentinel kinds for notification errors.
var (
	// ErrMessageGone reports that the chat message or thread no longer exists.
	// Callers treat it as a successful deletion.
	ErrMessageGone = errors.New("message already gone")
	ErrEncode      = errors.New("encode notification")
	ErrPublish     = errors.New("publish notification")
)
