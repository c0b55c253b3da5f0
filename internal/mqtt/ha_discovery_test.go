package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"xcenter2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDiscoveryFixture(t *testing.T) (*MQTTClient, domain.Device, *domain.AttributeRegistry) {
	t.Helper()
	client := &MQTTClient{deviceId: "heatpump_basement"}
	client.cfg.BaseTopic = "xcenter"
	device := domain.Device{
		Id:           "heatpump_basement",
		Name:         "Heat pump",
		Manufacturer: "Kermi",
		Model:        "x-center pro",
		Version:      "2.14",
		Serial:       "XC1234567890",
	}
	registry, err := domain.NewAttributeRegistry(domain.XCenterAttributes(time.Minute))
	require.NoError(t, err)
	return client, device, registry
}

func TestDiscoveryPayloadForWritableNumber(t *testing.T) {
	client, device, registry := testDiscoveryFixture(t)
	attr, _ := registry.ByKey("dhw_setpoint")

	raw, err := AttributeToHADiscoveryMessage(client, device, attr)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))

	assert.Equal(t, "xcenter/heatpump_basement/controls/dhw_setpoint", payload["state_topic"])
	assert.Equal(t, "xcenter/heatpump_basement/controls/dhw_setpoint/set", payload["command_topic"])
	assert.Equal(t, "xcenter/heatpump_basement/availability", payload["availability_topic"])
	assert.Equal(t, "heatpump_basement_dhw_setpoint", payload["unique_id"])
	assert.Equal(t, false, payload["optimistic"])
	assert.Equal(t, 40.0, payload["min"])
	assert.Equal(t, 60.0, payload["max"])

	dev, ok := payload["device"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"heatpump_basement"}, dev["identifiers"])
}

func TestDiscoveryPayloadReadOnlyHasNoCommandTopic(t *testing.T) {
	client, device, registry := testDiscoveryFixture(t)

	for _, key := range []string{"outdoor_temp", "heat_pump_status", "factory_heating_curve"} {
		attr, _ := registry.ByKey(key)
		raw, err := AttributeToHADiscoveryMessage(client, device, attr)
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(raw, &payload))
		assert.NotContains(t, payload, "command_topic", key)
	}
}

func TestDiscoveryPayloadIsIdempotent(t *testing.T) {
	client, device, registry := testDiscoveryFixture(t)

	for _, attr := range registry.All() {
		first, err := AttributeToHADiscoveryMessage(client, device, attr)
		require.NoError(t, err)
		second, err := AttributeToHADiscoveryMessage(client, device, attr)
		require.NoError(t, err)
		assert.Equal(t, first, second, attr.Key)
	}
}

func TestDiscoveryDeviceBlockIsShared(t *testing.T) {
	client, device, registry := testDiscoveryFixture(t)

	var blocks []string
	for _, attr := range registry.All() {
		raw, err := AttributeToHADiscoveryMessage(client, device, attr)
		require.NoError(t, err)
		var payload map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw, &payload))
		blocks = append(blocks, string(payload["device"]))
	}
	for _, block := range blocks {
		assert.Equal(t, blocks[0], block)
	}
}

func TestCommandErrorPayloadKeepsValueTypes(t *testing.T) {
	raw, err := json.Marshal(CommandErrorPayload{
		Error:         "value 70.0 outside safe range [40.0, 60.0]",
		Timestamp:     "2026-08-25T10:30:00Z",
		RejectedValue: 70.0,
	})
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, 70.0, payload["rejected_value"], "number, not a quoted string")
	assert.NotContains(t, payload, "command_value", "unset field is dropped")

	// an empty rejected payload still shows up in the error body
	raw, err = json.Marshal(CommandErrorPayload{
		Error:         "empty payload",
		Timestamp:     "2026-08-25T10:30:00Z",
		RejectedValue: "",
	})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Contains(t, payload, "rejected_value")
}

func TestDiscoveryTopic(t *testing.T) {
	_, _, registry := testDiscoveryFixture(t)
	attr, _ := registry.ByKey("dhw_setpoint")

	assert.Equal(t, "homeassistant/number/heatpump_basement/dhw_setpoint/config",
		HADiscoveryTopic("homeassistant", attr, "heatpump_basement"))
}
