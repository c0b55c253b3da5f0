package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"xcenter2mqtt/pkg/xcenter_modbus"
)

// Home Assistant components an attribute can map to.
const (
	COMPONENT_SENSOR        = "sensor"
	COMPONENT_BINARY_SENSOR = "binary_sensor"
	COMPONENT_NUMBER        = "number"
	COMPONENT_SELECT        = "select"
	COMPONENT_BUTTON        = "button"
)

const (
	MQTT_PAYLOAD_ON  = "on"
	MQTT_PAYLOAD_OFF = "off"
)

type ValueKind int

const (
	ValueNumber ValueKind = iota
	ValueBool
	ValueEnum
)

// Value is a typed attribute value. Exactly one of the payload fields is
// meaningful, selected by Kind.
type Value struct {
	Kind   ValueKind
	Number float64
	Bool   bool
	Label  string
}

// Native returns the value as its plain Go type, for structured payloads
// where numbers and booleans must not degrade to strings.
func (v Value) Native() any {
	switch v.Kind {
	case ValueNumber:
		return v.Number
	case ValueBool:
		return v.Bool
	default:
		return v.Label
	}
}

func NumberValue(v float64) Value {
	return Value{Kind: ValueNumber, Number: v}
}

func BoolValue(v bool) Value {
	return Value{Kind: ValueBool, Bool: v}
}

func EnumValue(label string) Value {
	return Value{Kind: ValueEnum, Label: label}
}

// Payload renders the value as an MQTT state payload.
func (v Value) Payload(decimals uint) string {
	switch v.Kind {
	case ValueBool:
		if v.Bool {
			return MQTT_PAYLOAD_ON
		}
		return MQTT_PAYLOAD_OFF
	case ValueEnum:
		return v.Label
	default:
		return strconv.FormatFloat(v.Number, 'f', int(decimals), 64)
	}
}

type SafetyRuleKind int

const (
	// RuleBlocked rejects every write.
	RuleBlocked SafetyRuleKind = iota
	// RuleRange accepts numeric values within [Min, Max].
	RuleRange
	// RuleEnumeration accepts only the listed labels.
	RuleEnumeration
)

// SafetyRule gates writes to a single attribute. MinWriteInterval is
// enforced per attribute key on top of the kind-specific check.
type SafetyRule struct {
	Kind             SafetyRuleKind
	Min              float64
	Max              float64
	Allowed          []string
	MinWriteInterval time.Duration
}

// AttributeDefinition describes one device parameter: how to read and write
// it on the bus and how to present it over MQTT.
type AttributeDefinition struct {
	// Key is the unique snake_case identifier of the attribute.
	Key  string
	Name string
	Type ValueKind
	// Decimals used when rendering numeric payloads.
	Decimals uint
	// ReadRegister is nil for write-only attributes.
	ReadRegister *xcenter_modbus.Register
	// WriteRegister is nil for read-only attributes.
	WriteRegister *xcenter_modbus.Register
	// TopicSuffix is appended to the device topic prefix, e.g.
	// "sensors/outdoor_temp".
	TopicSuffix string
	// Component is the Home Assistant component used for discovery.
	Component string
	// EnumLabels maps raw register values to labels for enum attributes.
	EnumLabels map[uint16]string
	// Metadata is passed through to the discovery payload as-is
	// (unit_of_measurement, device_class, icon, min/max/step, options...).
	Metadata map[string]any
	// Safety is required for every writable attribute.
	Safety *SafetyRule
}

func (a AttributeDefinition) Readable() bool {
	return a.ReadRegister != nil
}

func (a AttributeDefinition) Writable() bool {
	return a.WriteRegister != nil
}

// Commandable reports whether the attribute accepts MQTT commands.
func (a AttributeDefinition) Commandable() bool {
	return a.Writable() && (a.Safety == nil || a.Safety.Kind != RuleBlocked)
}

// LabelFor maps a raw register value to its enum label.
func (a AttributeDefinition) LabelFor(raw uint16) string {
	if label, ok := a.EnumLabels[raw]; ok {
		return label
	}
	return fmt.Sprintf("unknown(%d)", raw)
}

// RawFor maps an enum label back to its raw register value.
func (a AttributeDefinition) RawFor(label string) (uint16, bool) {
	for raw, l := range a.EnumLabels {
		if l == label {
			return raw, true
		}
	}
	return 0, false
}

// ParsePayload parses an MQTT command payload into a typed value following
// the attribute's declared type.
func (a AttributeDefinition) ParsePayload(payload string) (Value, error) {
	payload = strings.TrimSpace(payload)
	switch a.Type {
	case ValueBool:
		switch strings.ToLower(payload) {
		case "on", "1", "true":
			return BoolValue(true), nil
		case "off", "0", "false":
			return BoolValue(false), nil
		}
		return Value{}, fmt.Errorf("malformed payload %q: expected on/off", payload)
	case ValueEnum:
		for _, label := range a.EnumLabels {
			if label == payload {
				return EnumValue(payload), nil
			}
		}
		return Value{}, fmt.Errorf("malformed payload %q: not a known option", payload)
	default:
		v, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return Value{}, fmt.Errorf("malformed payload %q: expected a number", payload)
		}
		return NumberValue(v), nil
	}
}

// FormatNumber renders a number with the attribute's decimals, e.g. for
// error messages.
func (a AttributeDefinition) FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', int(a.Decimals), 64)
}
