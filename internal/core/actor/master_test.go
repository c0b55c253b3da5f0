package actor

import (
	"encoding/json"
	"testing"
	"time"

	adactor "xcenter2mqtt/internal/adapter/actor"
	"xcenter2mqtt/internal/core/domain"
	"xcenter2mqtt/internal/core/service"
	"xcenter2mqtt/internal/mqtt"
	"xcenter2mqtt/internal/util"
	"xcenter2mqtt/internal/util/actorutil"
	"xcenter2mqtt/pkg/xcenter_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type bridgeFixture struct {
	as      *actor.ActorSystem
	master  *actor.PID
	client  *xcenter_modbus.TestHeatPumpModbusClient
	capture *adactor.TestMQTTActor
}

func startBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	registry, err := domain.NewAttributeRegistry(domain.XCenterAttributes(time.Duration(cfg.SafetyConfig.CommandMinIntervalSeconds) * time.Second))
	require.NoError(t, err)

	seed := map[string]float64{
		"outdoor_temp":           7.5,
		"supply_temp":            35.2,
		"return_temp":            30.1,
		"power_thermal":          5.6,
		"power_electrical":       1.4,
		"cop_total":              4.0,
		"heat_pump_status":       1,
		"global_alarm":           0,
		"compressor_hours":       1234,
		"dhw_temp":               47.9,
		"dhw_setpoint":           48.0,
		"heating_temp":           28.4,
		"heating_setpoint":       30.0,
		"heating_circuit_status": 1,
		"season_mode":            0,
		"energy_mode":            2,
		"outdoor_temp_avg":       8.2,
		"factory_heating_curve":  1.2,
	}
	values := map[xcenter_modbus.Register]float64{}
	for _, attr := range registry.AllReadable() {
		v, ok := seed[attr.Key]
		require.True(t, ok, "no seed value for %s", attr.Key)
		values[*attr.ReadRegister] = v
	}
	client := xcenter_modbus.CreateTestHeatPumpModbusClient(values)
	capture := adactor.NewTestMQTTActor(&cfg, cfg.BridgeConfig.DeviceId, registry, logger)

	as := actorutil.NewActorSystemWithZapLogger(logger)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, cfg.BridgeConfig.DeviceId, registry,
			service.NewSafetyValidator(logger),
			func() actor.Actor {
				return adactor.NewDeviceActor(client, registry,
					util.NewBackoff(time.Duration(cfg.ReconnectConfig.DeviceSeedDelayMillis)*time.Millisecond,
						time.Duration(cfg.ReconnectConfig.DeviceMaxDelayMillis)*time.Millisecond), logger)
			},
			func() actor.Actor {
				return capture
			}, logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)

	return &bridgeFixture{as: as, master: pid, client: client, capture: capture}
}

func (f *bridgeFixture) stop(t *testing.T) {
	t.Helper()
	f.as.Root.Stop(f.master)
	f.as.Shutdown()
}

func (f *bridgeFixture) sendCommand(suffix, payload string) {
	f.as.Root.Send(f.master, adactor.ParsedCommand{
		Command: &mqtt.ParsedMQTTCommand{TopicSuffix: suffix, Payload: payload},
	})
}

func TestBridgeHealthAndDiscovery(t *testing.T) {

	assert := assert.New(t)

	f := startBridgeFixture(t)
	defer f.stop(t)

	time.Sleep(2 * time.Second)

	res, err := f.as.Root.RequestFuture(f.master, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	assert.True(healthResp.Healthy, "healthy is true")

	// discovery configs for the whole catalog, retained
	configs := f.capture.CapturedOnTopic("homeassistant/number/test_heatpump/dhw_setpoint/config")
	require.NotEmpty(t, configs)
	assert.True(configs[0].Retain)

	// poll cycles put state on the wire
	states := f.capture.CapturedOnTopic("xcenter/test_heatpump/sensors/outdoor_temp")
	require.NotEmpty(t, states)
	assert.Equal("7.5", states[0].Payload)
}

func TestBridgeAcceptedCommandIsWrittenAndConfirmed(t *testing.T) {

	assert := assert.New(t)

	f := startBridgeFixture(t)
	defer f.stop(t)

	// wait for the first poll cycle so the device is known online
	time.Sleep(1 * time.Second)

	f.sendCommand("controls/dhw_setpoint", "50.0")
	time.Sleep(1 * time.Second)

	writes := f.client.Writes()
	require.Len(t, writes, 1, "one register write")
	assert.InDelta(50.0, writes[0].Value, 0.001)

	// read-back confirmation on the state topic
	states := f.capture.CapturedOnTopic("xcenter/test_heatpump/controls/dhw_setpoint")
	require.NotEmpty(t, states)
	var payloads []string
	for _, m := range states {
		payloads = append(payloads, m.Payload)
	}
	assert.Contains(payloads, "50.0")

	// no command error
	assert.Empty(f.capture.CapturedOnTopic("xcenter/test_heatpump/controls/dhw_setpoint/set/error"))
}

func TestBridgeUnsafeCommandIsRejected(t *testing.T) {

	assert := assert.New(t)

	f := startBridgeFixture(t)
	defer f.stop(t)

	time.Sleep(1 * time.Second)

	f.sendCommand("controls/dhw_setpoint", "70.0")
	time.Sleep(1 * time.Second)

	assert.Empty(f.client.Writes(), "no register write reaches the device")

	errs := f.capture.CapturedOnTopic("xcenter/test_heatpump/controls/dhw_setpoint/set/error")
	require.Len(t, errs, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(errs[0].Payload), &payload))
	assert.Contains(payload["error"], "outside safe range [40.0, 60.0]")
	assert.Equal(70.0, payload["rejected_value"], "rejected value stays a JSON number")
	assert.NotEmpty(payload["timestamp"])
}

func TestBridgeAvailabilityTransitions(t *testing.T) {

	assert := assert.New(t)

	f := startBridgeFixture(t)
	defer f.stop(t)

	availability := func() []string {
		var payloads []string
		for _, m := range f.capture.CapturedOnTopic("xcenter/test_heatpump/availability") {
			payloads = append(payloads, m.Payload)
		}
		return payloads
	}

	time.Sleep(1 * time.Second)
	initial := availability()
	require.NotEmpty(t, initial)
	assert.Equal("online", initial[len(initial)-1])
	n := len(initial)

	// sustained device failure publishes exactly one offline
	f.client.SetFail(true)
	time.Sleep(1500 * time.Millisecond)
	afterFail := availability()
	assert.Equal([]string{"offline"}, afterFail[n:], "single offline transition")

	// recovery publishes exactly one online
	f.client.SetFail(false)
	time.Sleep(1500 * time.Millisecond)
	afterRecover := availability()
	assert.Equal([]string{"offline", "online"}, afterRecover[n:], "single online transition")
}

func TestBridgeRateLimitsRepeatedCommands(t *testing.T) {

	assert := assert.New(t)

	f := startBridgeFixture(t)
	defer f.stop(t)

	time.Sleep(1 * time.Second)

	f.sendCommand("controls/dhw_setpoint", "50.0")
	time.Sleep(1 * time.Second)
	f.sendCommand("controls/dhw_setpoint", "52.0")
	time.Sleep(1 * time.Second)

	writes := f.client.Writes()
	require.Len(t, writes, 1, "second write rate limited")
	assert.InDelta(50.0, writes[0].Value, 0.001)

	errs := f.capture.CapturedOnTopic("xcenter/test_heatpump/controls/dhw_setpoint/set/error")
	require.Len(t, errs, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(errs[0].Payload), &payload))
	assert.Contains(payload["error"], "rate limited")
	assert.Equal(52.0, payload["rejected_value"], "rejected value stays a JSON number")
}
