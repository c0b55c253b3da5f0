package domain

import (
	"fmt"
	"time"
)

// WriteCommand is a parsed MQTT write command routed to the command duty.
type WriteCommand struct {
	// Key of the target attribute.
	Key string
	// Payload as received on the wire, still unparsed.
	Payload    string
	ReceivedAt time.Time
}

func (c WriteCommand) String() string {
	return fmt.Sprintf("WriteCommand(%s=%s)", c.Key, c.Payload)
}
