package mqtt

import (
	"encoding/json"
	"fmt"

	"xcenter2mqtt/internal/core/domain"
)

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	SerialNumber string   `json:"serial_number,omitempty"`
}

func HADiscoveryTopic(prefix string, attr domain.AttributeDefinition, deviceId string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", prefix, attr.Component, deviceId, attr.Key)
}

// AttributeToHADiscoveryMessage renders the retained discovery payload for
// one attribute. The attribute's metadata bag is merged in untouched, and
// marshaling a map keeps keys sorted, so identical inputs yield identical
// bytes and republishing is a no-op for the broker.
func AttributeToHADiscoveryMessage(client *MQTTClient, device domain.Device, attr domain.AttributeDefinition) ([]byte, error) {
	payload := map[string]any{
		"platform":           "mqtt",
		"name":               attr.Name,
		"unique_id":          fmt.Sprintf("%s_%s", client.DeviceId(), attr.Key),
		"availability_topic": client.AvailabilityTopic(),
		"device":             haDevice(device),
	}
	if attr.Readable() {
		payload["state_topic"] = client.StateTopic(attr.TopicSuffix)
	}
	if attr.Commandable() {
		payload["command_topic"] = client.CommandTopic(attr.TopicSuffix)
		// commands are confirmed by read-back, never assumed
		if attr.Readable() {
			payload["optimistic"] = false
		}
	}
	if attr.Component == domain.COMPONENT_BINARY_SENSOR {
		payload["payload_on"] = MQTT_PAYLOAD_ON
		payload["payload_off"] = MQTT_PAYLOAD_OFF
	}
	for k, v := range attr.Metadata {
		payload[k] = v
	}
	return json.Marshal(payload)
}

func haDevice(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		SerialNumber: d.Serial,
	}
}

// CommandErrorPayload is the JSON body published on the command error topic.
// The value fields hold the parsed command value, so numbers and booleans
// serialize as JSON numbers and booleans rather than strings; omitempty only
// drops the field that was never set (nil interface), never an empty payload.
type CommandErrorPayload struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	// RejectedValue is set when validation refused the command.
	RejectedValue any `json:"rejected_value,omitempty"`
	// CommandValue is set when the device write or read-back failed.
	CommandValue any `json:"command_value,omitempty"`
}
