package domain

import "time"

// Events published on the actor system event stream. The MQTT gateway maps
// them onto topics; producers never talk to the broker directly.

type AttributeUpdateEvent struct {
	Key   string
	Value Value
}

type AvailabilityUpdateEvent struct {
	Online bool
}

// CommandErrorEvent reports a rejected or failed write command. Rejected
// commands never reached the bus; failed ones did and could not complete.
type CommandErrorEvent struct {
	Key    string
	Reason string
	// Value is the parsed command value (float64, bool or enum label), or
	// the raw payload string when parsing itself failed.
	Value     any
	Rejected  bool
	Timestamp time.Time
}
