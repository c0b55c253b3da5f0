package actor

import (
	"testing"
	"time"

	"xcenter2mqtt/internal/core/domain"
	"xcenter2mqtt/internal/util"
	"xcenter2mqtt/internal/util/actorutil"
	"xcenter2mqtt/pkg/xcenter_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry(t *testing.T) *domain.AttributeRegistry {
	t.Helper()
	registry, err := domain.NewAttributeRegistry(domain.XCenterAttributes(time.Minute))
	require.NoError(t, err)
	return registry
}

// seededTestClient returns a scripted device with a plausible value for
// every readable catalog attribute.
func seededTestClient(t *testing.T, registry *domain.AttributeRegistry) *xcenter_modbus.TestHeatPumpModbusClient {
	t.Helper()
	seed := map[string]float64{
		"outdoor_temp":           7.5,
		"supply_temp":            35.2,
		"return_temp":            30.1,
		"power_thermal":          5.6,
		"power_electrical":       1.4,
		"cop_total":              4.0,
		"heat_pump_status":       1, // heating
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
	return xcenter_modbus.CreateTestHeatPumpModbusClient(values)
}

func spawnDeviceActor(t *testing.T, client xcenter_modbus.HeatPumpModbusClient,
	registry *domain.AttributeRegistry) (*actor.ActorSystem, *actor.PID) {
	t.Helper()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewDeviceActor(client, registry, util.NewBackoff(50*time.Millisecond, 200*time.Millisecond), logger)
	})
	pid := as.Root.Spawn(props)
	return as, pid
}

func TestDeviceActorReadAll(t *testing.T) {

	assert := assert.New(t)

	registry := testRegistry(t)
	client := seededTestClient(t, registry)
	as, pid := spawnDeviceActor(t, client, registry)
	defer as.Shutdown()
	context := as.Root

	time.Sleep(500 * time.Millisecond)

	result, err := context.RequestFuture(pid, domain.ReadAllAttributesRequest{}, 15*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.ReadAllAttributesResponse)

	assert.Empty(resp.Failed, "no failed reads")
	assert.Len(resp.Values, len(registry.AllReadable()))
	assert.InDelta(48.0, resp.Values["dhw_setpoint"].Number, 0.001, "dhw setpoint")
	assert.Equal("heating", resp.Values["heat_pump_status"].Label, "status enum label")
	assert.False(resp.Values["global_alarm"].Bool, "alarm off")

	context.Stop(pid)
}

func TestDeviceActorWriteAndReadBack(t *testing.T) {

	assert := assert.New(t)

	registry := testRegistry(t)
	client := seededTestClient(t, registry)
	as, pid := spawnDeviceActor(t, client, registry)
	defer as.Shutdown()
	context := as.Root

	time.Sleep(500 * time.Millisecond)

	result, err := context.RequestFuture(pid, domain.WriteAttributeRequest{
		Key:   "dhw_setpoint",
		Value: domain.NumberValue(50.0),
	}, 15*time.Second).Result()
	require.NoError(t, err)
	assert.False(result.(domain.WriteAttributeResponse).HasResponseError())

	result, err = context.RequestFuture(pid, domain.ReadAttributeRequest{Key: "dhw_setpoint"}, 15*time.Second).Result()
	require.NoError(t, err)
	readBack := result.(domain.ReadAttributeResponse)
	assert.False(readBack.HasResponseError())
	assert.InDelta(50.0, readBack.Value.Number, 0.001, "read-back value")

	writes := client.Writes()
	require.Len(t, writes, 1)
	assert.InDelta(50.0, writes[0].Value, 0.001)

	context.Stop(pid)
}

func TestDeviceActorEnumWrite(t *testing.T) {

	registry := testRegistry(t)
	client := seededTestClient(t, registry)
	as, pid := spawnDeviceActor(t, client, registry)
	defer as.Shutdown()
	context := as.Root

	time.Sleep(500 * time.Millisecond)

	_, err := context.RequestFuture(pid, domain.WriteAttributeRequest{
		Key:   "season_mode",
		Value: domain.EnumValue("heat"),
	}, 15*time.Second).Result()
	require.NoError(t, err)

	writes := client.Writes()
	require.Len(t, writes, 1)
	// "heat" maps to raw register value 1
	assert.InDelta(t, 1, writes[0].Value, 0.001)

	context.Stop(pid)
}

func TestDeviceActorFailsFastWhileDisconnected(t *testing.T) {

	assert := assert.New(t)

	registry := testRegistry(t)
	client := seededTestClient(t, registry)
	client.SetFail(true)
	as, pid := spawnDeviceActor(t, client, registry)
	defer as.Shutdown()
	context := as.Root

	time.Sleep(300 * time.Millisecond)

	result, err := context.RequestFuture(pid, domain.ReadAllAttributesRequest{}, 15*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.ReadAllAttributesResponse)
	assert.Empty(resp.Values, "nothing readable while disconnected")
	assert.Len(resp.Failed, len(registry.AllReadable()))

	result, err = context.RequestFuture(pid, domain.WriteAttributeRequest{
		Key:   "dhw_setpoint",
		Value: domain.NumberValue(50.0),
	}, 15*time.Second).Result()
	require.NoError(t, err)
	assert.True(result.(domain.WriteAttributeResponse).HasResponseError(), "write fails while disconnected")

	context.Stop(pid)
}

func TestDeviceActorReconnects(t *testing.T) {

	assert := assert.New(t)

	registry := testRegistry(t)
	client := seededTestClient(t, registry)
	client.SetFail(true)
	as, pid := spawnDeviceActor(t, client, registry)
	defer as.Shutdown()
	context := as.Root

	time.Sleep(300 * time.Millisecond)
	client.SetFail(false)
	// backoff caps at 200ms in tests, a second is plenty
	time.Sleep(1 * time.Second)

	result, err := context.RequestFuture(pid, domain.ReadAllAttributesRequest{}, 15*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.ReadAllAttributesResponse)
	assert.Empty(resp.Failed, "reads succeed after reconnect")
	assert.NotEmpty(resp.Values)

	result, err = context.RequestFuture(pid, domain.GetDeviceInfoRequest{}, 15*time.Second).Result()
	require.NoError(t, err)
	info := result.(domain.GetDeviceInfoResponse)
	require.False(t, info.HasResponseError())
	assert.Equal("Kermi", info.Info.Manufacturer)
	assert.Equal("XC1234567890", info.Info.Serial)

	context.Stop(pid)
}
