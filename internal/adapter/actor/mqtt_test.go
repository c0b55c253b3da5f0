package actor

import (
	"encoding/json"
	"testing"
	"time"

	"xcenter2mqtt/internal/core/domain"
	"xcenter2mqtt/internal/util"
	"xcenter2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnTestMQTTActor(t *testing.T) (*actor.ActorSystem, *actor.PID, *TestMQTTActor) {
	t.Helper()
	cfg := util.LoadTestConfig()
	registry := testRegistry(t)
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)

	testActor := NewTestMQTTActor(&cfg, cfg.BridgeConfig.DeviceId, registry, logger)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return testActor }))
	time.Sleep(200 * time.Millisecond)
	return as, pid, testActor
}

func TestMQTTActorPublishesAttributeUpdates(t *testing.T) {

	assert := assert.New(t)

	as, pid, capture := spawnTestMQTTActor(t)
	defer as.Shutdown()

	as.EventStream.Publish(domain.AttributeUpdateEvent{Key: "outdoor_temp", Value: domain.NumberValue(7.53)})
	as.EventStream.Publish(domain.AttributeUpdateEvent{Key: "heat_pump_status", Value: domain.EnumValue("dhw")})
	as.EventStream.Publish(domain.AttributeUpdateEvent{Key: "global_alarm", Value: domain.BoolValue(true)})
	time.Sleep(300 * time.Millisecond)

	msgs := capture.CapturedOnTopic("xcenter/test_heatpump/sensors/outdoor_temp")
	require.Len(t, msgs, 1)
	assert.Equal("7.5", msgs[0].Payload, "number rendered with catalog decimals")
	assert.False(msgs[0].Retain, "state is not retained")

	msgs = capture.CapturedOnTopic("xcenter/test_heatpump/sensors/heat_pump_status")
	require.Len(t, msgs, 1)
	assert.Equal("dhw", msgs[0].Payload)

	msgs = capture.CapturedOnTopic("xcenter/test_heatpump/sensors/global_alarm")
	require.Len(t, msgs, 1)
	assert.Equal("on", msgs[0].Payload)

	as.Root.Stop(pid)
}

func TestMQTTActorPublishesAvailabilityRetained(t *testing.T) {

	assert := assert.New(t)

	as, pid, capture := spawnTestMQTTActor(t)
	defer as.Shutdown()

	as.EventStream.Publish(domain.AvailabilityUpdateEvent{Online: true})
	as.EventStream.Publish(domain.AvailabilityUpdateEvent{Online: false})
	time.Sleep(300 * time.Millisecond)

	msgs := capture.CapturedOnTopic("xcenter/test_heatpump/availability")
	require.Len(t, msgs, 2)
	assert.Equal("online", msgs[0].Payload)
	assert.Equal("offline", msgs[1].Payload)
	assert.True(msgs[0].Retain, "availability is retained")
	assert.True(msgs[1].Retain, "availability is retained")

	as.Root.Stop(pid)
}

func TestMQTTActorPublishesCommandErrors(t *testing.T) {

	assert := assert.New(t)

	as, pid, capture := spawnTestMQTTActor(t)
	defer as.Shutdown()

	ts := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	as.EventStream.Publish(domain.CommandErrorEvent{
		Key:       "dhw_setpoint",
		Reason:    "value 70.0 outside safe range [40.0, 60.0]",
		Value:     70.0,
		Rejected:  true,
		Timestamp: ts,
	})
	time.Sleep(300 * time.Millisecond)

	msgs := capture.CapturedOnTopic("xcenter/test_heatpump/controls/dhw_setpoint/set/error")
	require.Len(t, msgs, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Payload), &payload))
	assert.Contains(payload["error"], "outside safe range [40.0, 60.0]")
	assert.Equal(70.0, payload["rejected_value"], "rejected value stays a JSON number")
	assert.Equal("2026-08-25T10:30:00Z", payload["timestamp"])
	assert.NotContains(payload, "command_value")

	as.Root.Stop(pid)
}

func TestMQTTActorPublishesDiscovery(t *testing.T) {

	assert := assert.New(t)

	as, pid, capture := spawnTestMQTTActor(t)
	defer as.Shutdown()

	registry := testRegistry(t)
	device := domain.Device{Id: "test_heatpump", Name: "Heat pump", Manufacturer: "Kermi"}
	result, err := as.Root.RequestFuture(pid, domain.PublishDiscoveryRequest{
		Device:     device,
		Attributes: registry.All(),
	}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.False(result.(domain.PublishDiscoveryResponse).HasResponseError())

	msgs := capture.CapturedOnTopic("homeassistant/number/test_heatpump/dhw_setpoint/config")
	require.Len(t, msgs, 1)
	assert.True(msgs[0].Retain, "discovery is retained")

	assert.Len(capture.Captured(), len(registry.All()))

	as.Root.Stop(pid)
}
