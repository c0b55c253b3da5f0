package port

import (
	"time"

	"xcenter2mqtt/internal/core/domain"
)

// CommandGate validates a write command against an attribute's safety rule.
// A nil return accepts the command and arms the rate limiter for the key;
// otherwise the returned error is the rejection reason.
type CommandGate interface {
	Validate(attr domain.AttributeDefinition, value domain.Value, now time.Time) error
}
