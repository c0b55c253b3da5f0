package xcenter_modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRawToScaledInt16(t *testing.T) {
	reg := Register{Unit: UnitHeatPump, Addr: 100, Kind: KindInt16, Scale: 0.1}

	assert.InDelta(t, 21.5, rawToScaled(reg, 215), 0.001)

	// negative temperatures come back as two's complement
	neg := int16(-73)
	assert.InDelta(t, -7.3, rawToScaled(reg, uint32(uint16(neg))), 0.001)
}

func TestRawToScaledUint32(t *testing.T) {
	reg := Register{Unit: UnitHeatPump, Addr: 150, Kind: KindUint32, Scale: 1}

	assert.InDelta(t, 70000, rawToScaled(reg, 70000), 0.001)
}

func TestScaledToRawRoundTrip(t *testing.T) {
	reg := Register{Unit: UnitStorageDHW, Addr: 212, Kind: KindInt16, Scale: 0.1}

	raw, err := scaledToRaw(reg, 50.0)
	assert.NoError(t, err)
	assert.Equal(t, uint16(500), raw)
	assert.InDelta(t, 50.0, rawToScaled(reg, uint32(raw)), 0.001)
}

func TestScaledToRawBounds(t *testing.T) {
	reg := Register{Unit: UnitHeatPump, Addr: 100, Kind: KindUint16, Scale: 0.1}

	_, err := scaledToRaw(reg, -1)
	assert.Error(t, err)

	_, err = scaledToRaw(Register{Kind: KindUint32}, 1)
	assert.Error(t, err)
}

func TestTestClientRecordsWrites(t *testing.T) {
	reg := Register{Unit: UnitStorageDHW, Addr: 212, Kind: KindInt16, Scale: 0.1}
	client := CreateTestHeatPumpModbusClient(map[Register]float64{reg: 48.0})

	v, err := client.ReadValue(reg)
	assert.NoError(t, err)
	assert.InDelta(t, 48.0, v, 0.001)

	assert.NoError(t, client.WriteValue(reg, 50.0))
	v, err = client.ReadValue(reg)
	assert.NoError(t, err)
	assert.InDelta(t, 50.0, v, 0.001)
	assert.Len(t, client.Writes(), 1)

	client.SetFail(true)
	_, err = client.ReadValue(reg)
	assert.ErrorIs(t, err, ErrTestUnavailable)
}
