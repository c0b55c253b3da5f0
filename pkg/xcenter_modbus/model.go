package xcenter_modbus

// Modbus unit ids of the X-Center subsystems.
const (
	UnitHeatPump       uint8 = 40
	UnitHeatingCircuit uint8 = 50
	UnitStorageDHW     uint8 = 51
)

type RegisterKind int

const (
	KindInt16 RegisterKind = iota
	KindUint16
	KindUint32
)

// Register addresses a single value on the bus. Scale converts the raw
// register value to engineering units (raw * Scale).
type Register struct {
	Unit  uint8
	Addr  uint16
	Kind  RegisterKind
	Scale float64
}

type DeviceInfo struct {
	Manufacturer string
	Model        string
	Version      string
	Serial       string
}

// HeatPumpModbusClient is the bus-facing port of the bridge. Implementations
// are not safe for concurrent use; callers must serialize access.
type HeatPumpModbusClient interface {
	// Open connects to the device. Must be called before any read or write.
	Open() error
	Close() error
	// Validate checks the connected device looks like an X-Center controller.
	Validate() error
	GetInfo() (*DeviceInfo, error)
	// ReadValue returns the register value scaled to engineering units.
	ReadValue(reg Register) (float64, error)
	// WriteValue converts value back to the raw register representation and
	// writes it. Only 16 bit registers are writable.
	WriteValue(reg Register, value float64) error
}
