package xcenter_modbus

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/simonvetter/modbus"
)

type ModbusClient struct {
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func (c ModbusClient) readString(unit uint8, address uint16, size uint16) (string, error) {
	if err := c.client.SetUnitId(unit); err != nil {
		return "", err
	}
	defer RecordTimer("ReadRawBytes", c.instrument)()
	bytes, err := c.client.ReadRawBytes(address, size, modbus.HOLDING_REGISTER)
	if err != nil {
		return "", err
	}
	f := slices.Index(bytes, 0x00)
	if f >= 0 {
		return string(bytes[:f]), nil
	}
	return string(bytes), nil
}

func (c ModbusClient) readRegister(unit uint8, addr uint16) (uint16, error) {
	if err := c.client.SetUnitId(unit); err != nil {
		return 0, err
	}
	defer RecordTimer("ReadRegister", c.instrument)()
	return c.client.ReadRegister(addr, modbus.HOLDING_REGISTER)
}

func (c ModbusClient) readUint32(unit uint8, addr uint16) (uint32, error) {
	if err := c.client.SetUnitId(unit); err != nil {
		return 0, err
	}
	defer RecordTimer("ReadUint32", c.instrument)()
	return c.client.ReadUint32(addr, modbus.HOLDING_REGISTER)
}

func (c ModbusClient) writeRegister(unit uint8, addr uint16, value uint16) error {
	if err := c.client.SetUnitId(unit); err != nil {
		return err
	}
	defer RecordTimer("WriteRegister", c.instrument)()
	return c.client.WriteRegister(addr, value)
}

// rawToScaled converts a raw register reading to engineering units.
func rawToScaled(reg Register, raw uint32) float64 {
	var v float64
	switch reg.Kind {
	case KindInt16:
		v = float64(int16(uint16(raw)))
	case KindUint16:
		v = float64(uint16(raw))
	default:
		v = float64(raw)
	}
	if reg.Scale != 0 {
		v *= reg.Scale
	}
	return v
}

// scaledToRaw converts an engineering-unit value back to the 16 bit raw
// register representation, rounding to the nearest step.
func scaledToRaw(reg Register, value float64) (uint16, error) {
	if reg.Kind == KindUint32 {
		return 0, fmt.Errorf("xcenter: register %d:%d is not writable (32 bit)", reg.Unit, reg.Addr)
	}
	raw := value
	if reg.Scale != 0 {
		raw = value / reg.Scale
	}
	raw = math.Round(raw)
	switch reg.Kind {
	case KindInt16:
		if raw < math.MinInt16 || raw > math.MaxInt16 {
			return 0, fmt.Errorf("xcenter: value %f out of int16 register range", value)
		}
		return uint16(int16(raw)), nil
	default:
		if raw < 0 || raw > math.MaxUint16 {
			return 0, fmt.Errorf("xcenter: value %f out of uint16 register range", value)
		}
		return uint16(raw), nil
	}
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}
