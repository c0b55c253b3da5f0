package xcenter_modbus

import (
	"errors"
	"sync"
)

var ErrTestUnavailable = errors.New("xcenter: test device unavailable")

// TestHeatPumpModbusClient is a scripted in-memory device for tests. Values
// are keyed by register; writes are recorded and become readable. All methods
// are safe for concurrent use.
type TestHeatPumpModbusClient struct {
	mu     sync.Mutex
	values map[Register]float64
	writes []RecordedWrite
	fail   bool
}

type RecordedWrite struct {
	Register Register
	Value    float64
}

func CreateTestHeatPumpModbusClient(values map[Register]float64) *TestHeatPumpModbusClient {
	vs := make(map[Register]float64, len(values))
	for k, v := range values {
		vs[k] = v
	}
	return &TestHeatPumpModbusClient{values: vs}
}

// SetFail makes every subsequent operation fail, simulating a lost
// connection, until called again with false.
func (c *TestHeatPumpModbusClient) SetFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

func (c *TestHeatPumpModbusClient) SetValue(reg Register, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[reg] = value
}

func (c *TestHeatPumpModbusClient) Writes() []RecordedWrite {
	c.mu.Lock()
	defer c.mu.Unlock()
	ws := make([]RecordedWrite, len(c.writes))
	copy(ws, c.writes)
	return ws
}

func (c *TestHeatPumpModbusClient) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return ErrTestUnavailable
	}
	return nil
}

func (c *TestHeatPumpModbusClient) Close() error {
	return nil
}

func (c *TestHeatPumpModbusClient) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return ErrTestUnavailable
	}
	return nil
}

func (c *TestHeatPumpModbusClient) GetInfo() (*DeviceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, ErrTestUnavailable
	}
	return &DeviceInfo{
		Manufacturer: manufacturer,
		Model:        "x-center pro",
		Version:      "2.14",
		Serial:       "XC1234567890",
	}, nil
}

func (c *TestHeatPumpModbusClient) ReadValue(reg Register) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return 0, ErrTestUnavailable
	}
	v, ok := c.values[reg]
	if !ok {
		return 0, errors.New("xcenter: illegal data address")
	}
	return v, nil
}

func (c *TestHeatPumpModbusClient) WriteValue(reg Register, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return ErrTestUnavailable
	}
	c.writes = append(c.writes, RecordedWrite{Register: reg, Value: value})
	c.values[reg] = value
	return nil
}

// ensure interface compliance
var _ HeatPumpModbusClient = (*TestHeatPumpModbusClient)(nil)
