package delivery

import "errors"

var (
	// ErrEmptyEnvelope is returned when a route request has no body or
	// conversation.
	ErrEmptyEnvelope = errors.New("delivery: empty envelope")

	// ErrNoRecipients is returned when the recipient set (minus the sender)
	// is empty.
	ErrNoRecipients = errors.New("delivery: no recipients")
)
