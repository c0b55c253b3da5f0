package domain

import (
	"time"

	"xcenter2mqtt/pkg/xcenter_modbus"
)

// DHW setpoint safe operating range in °C. Values outside this window can
// enable legionella risk (low) or scald/overpressure (high).
const (
	DHWSetpointMin = 40.0
	DHWSetpointMax = 60.0
)

const BlockedReason = "parameter not user-modifiable"

func reg(unit uint8, addr uint16, kind xcenter_modbus.RegisterKind, scale float64) *xcenter_modbus.Register {
	return &xcenter_modbus.Register{Unit: unit, Addr: addr, Kind: kind, Scale: scale}
}

var heatPumpStatusLabels = map[uint16]string{
	0: "standby",
	1: "heating",
	2: "dhw",
	3: "cooling",
	4: "defrost",
	5: "fault",
}

var circuitStatusLabels = map[uint16]string{
	0: "idle",
	1: "heating",
	2: "cooling",
}

var seasonModeLabels = map[uint16]string{
	0: "auto",
	1: "heat",
	2: "cool",
	3: "off",
}

var energyModeLabels = map[uint16]string{
	0: "away",
	1: "eco",
	2: "comfort",
	3: "boost",
}

// XCenterAttributes is the attribute catalog of an X-Center controller.
// minWriteInterval applies to every writable attribute.
func XCenterAttributes(minWriteInterval time.Duration) []AttributeDefinition {
	const (
		hp  = xcenter_modbus.UnitHeatPump
		hc  = xcenter_modbus.UnitHeatingCircuit
		dhw = xcenter_modbus.UnitStorageDHW
	)
	return []AttributeDefinition{
		{
			Key: "outdoor_temp", Name: "Outdoor temperature",
			Type: ValueNumber, Decimals: 1,
			ReadRegister: reg(hp, 100, xcenter_modbus.KindInt16, 0.1),
			TopicSuffix:  "sensors/outdoor_temp",
			Component:    COMPONENT_SENSOR,
			Metadata: map[string]any{
				"unit_of_measurement": "°C",
				"device_class":        "temperature",
				"state_class":         "measurement",
			},
		},
		{
			Key: "supply_temp", Name: "Supply temperature",
			Type: ValueNumber, Decimals: 1,
			ReadRegister: reg(hp, 102, xcenter_modbus.KindInt16, 0.1),
			TopicSuffix:  "sensors/supply_temp",
			Component:    COMPONENT_SENSOR,
			Metadata: map[string]any{
				"unit_of_measurement": "°C",
				"device_class":        "temperature",
				"state_class":         "measurement",
			},
		},
		{
			Key: "return_temp", Name: "Return temperature",
			Type: ValueNumber, Decimals: 1,
			ReadRegister: reg(hp, 104, xcenter_modbus.KindInt16, 0.1),
			TopicSuffix:  "sensors/return_temp",
			Component:    COMPONENT_SENSOR,
			Metadata: map[string]any{
				"unit_of_measurement": "°C",
				"device_class":        "temperature",
				"state_class":         "measurement",
			},
		},
		{
			Key: "power_thermal", Name: "Thermal power",
			Type: ValueNumber, Decimals: 1,
			ReadRegister: reg(hp, 120, xcenter_modbus.KindUint16, 0.1),
			TopicSuffix:  "sensors/power_thermal",
			Component:    COMPONENT_SENSOR,
			Metadata: map[string]any{
				"unit_of_measurement": "kW",
				"device_class":        "power",
				"state_class":         "measurement",
			},
		},
		{
			Key: "power_electrical", Name: "Electrical power",
			Type: ValueNumber, Decimals: 1,
			ReadRegister: reg(hp, 122, xcenter_modbus.KindUint16, 0.1),
			TopicSuffix:  "sensors/power_electrical",
			Component:    COMPONENT_SENSOR,
			Metadata: map[string]any{
				"unit_of_measurement": "kW",
				"device_class":        "power",
				"state_class":         "measurement",
			},
		},
		{
			Key: "cop_total", Name: "Coefficient of performance",
			Type: ValueNumber, Decimals: 2,
			ReadRegister: reg(hp, 130, xcenter_modbus.KindUint16, 0.01),
			TopicSuffix:  "sensors/cop_total",
			Component:    COMPONENT_SENSOR,
			Metadata: map[string]any{
				"state_class": "measurement",
				"icon":        "mdi:heat-pump",
			},
		},
		{
			Key: "heat_pump_status", Name: "Heat pump status",
			Type:         ValueEnum,
			ReadRegister: reg(hp, 140, xcenter_modbus.KindUint16, 0),
			TopicSuffix:  "sensors/heat_pump_status",
			Component:    COMPONENT_SENSOR,
			EnumLabels:   heatPumpStatusLabels,
			Metadata: map[string]any{
				"icon": "mdi:state-machine",
			},
		},
		{
			Key: "global_alarm", Name: "Global alarm",
			Type:         ValueBool,
			ReadRegister: reg(hp, 142, xcenter_modbus.KindUint16, 0),
			TopicSuffix:  "sensors/global_alarm",
			Component:    COMPONENT_BINARY_SENSOR,
			Metadata: map[string]any{
				"device_class": "problem",
			},
		},
		{
			Key: "compressor_hours", Name: "Compressor operating hours",
			Type: ValueNumber, Decimals: 0,
			ReadRegister: reg(hp, 150, xcenter_modbus.KindUint32, 1),
			TopicSuffix:  "sensors/compressor_hours",
			Component:    COMPONENT_SENSOR,
			Metadata: map[string]any{
				"unit_of_measurement": "h",
				"state_class":         "total_increasing",
				"entity_category":     "diagnostic",
				"icon":                "mdi:counter",
			},
		},
		{
			Key: "dhw_temp", Name: "Hot water temperature",
			Type: ValueNumber, Decimals: 1,
			ReadRegister: reg(dhw, 210, xcenter_modbus.KindInt16, 0.1),
			TopicSuffix:  "sensors/dhw_temp",
			Component:    COMPONENT_SENSOR,
			Metadata: map[string]any{
				"unit_of_measurement": "°C",
				"device_class":        "temperature",
				"state_class":         "measurement",
			},
		},
		{
			Key: "dhw_setpoint", Name: "Hot water setpoint",
			Type: ValueNumber, Decimals: 1,
			ReadRegister:  reg(dhw, 212, xcenter_modbus.KindInt16, 0.1),
			WriteRegister: reg(dhw, 212, xcenter_modbus.KindInt16, 0.1),
			TopicSuffix:   "controls/dhw_setpoint",
			Component:     COMPONENT_NUMBER,
			Metadata: map[string]any{
				"unit_of_measurement": "°C",
				"device_class":        "temperature",
				"min":                 DHWSetpointMin,
				"max":                 DHWSetpointMax,
				"step":                0.5,
				"mode":                "box",
			},
			Safety: &SafetyRule{
				Kind: RuleRange, Min: DHWSetpointMin, Max: DHWSetpointMax,
				MinWriteInterval: minWriteInterval,
			},
		},
		{
			Key: "dhw_single_charge", Name: "Hot water single charge",
			Type:          ValueBool,
			WriteRegister: reg(dhw, 214, xcenter_modbus.KindUint16, 0),
			TopicSuffix:   "controls/dhw_single_charge",
			Component:     COMPONENT_BUTTON,
			Metadata: map[string]any{
				"payload_press": MQTT_PAYLOAD_ON,
				"icon":          "mdi:water-boiler",
			},
			Safety: &SafetyRule{
				Kind: RuleEnumeration, Allowed: []string{MQTT_PAYLOAD_ON},
				MinWriteInterval: minWriteInterval,
			},
		},
		{
			Key: "heating_temp", Name: "Heating circuit temperature",
			Type: ValueNumber, Decimals: 1,
			ReadRegister: reg(hc, 310, xcenter_modbus.KindInt16, 0.1),
			TopicSuffix:  "sensors/heating_temp",
			Component:    COMPONENT_SENSOR,
			Metadata: map[string]any{
				"unit_of_measurement": "°C",
				"device_class":        "temperature",
				"state_class":         "measurement",
			},
		},
		{
			Key: "heating_setpoint", Name: "Heating circuit setpoint",
			Type: ValueNumber, Decimals: 1,
			ReadRegister: reg(hc, 312, xcenter_modbus.KindInt16, 0.1),
			TopicSuffix:  "sensors/heating_setpoint",
			Component:    COMPONENT_SENSOR,
			Metadata: map[string]any{
				"unit_of_measurement": "°C",
				"device_class":        "temperature",
				"state_class":         "measurement",
			},
		},
		{
			Key: "heating_circuit_status", Name: "Heating circuit status",
			Type:         ValueEnum,
			ReadRegister: reg(hc, 314, xcenter_modbus.KindUint16, 0),
			TopicSuffix:  "sensors/heating_circuit_status",
			Component:    COMPONENT_SENSOR,
			EnumLabels:   circuitStatusLabels,
			Metadata: map[string]any{
				"icon": "mdi:radiator",
			},
		},
		{
			Key: "season_mode", Name: "Season mode",
			Type:          ValueEnum,
			ReadRegister:  reg(hc, 320, xcenter_modbus.KindUint16, 0),
			WriteRegister: reg(hc, 320, xcenter_modbus.KindUint16, 0),
			TopicSuffix:   "controls/season_mode",
			Component:     COMPONENT_SELECT,
			EnumLabels:    seasonModeLabels,
			Metadata: map[string]any{
				"options": []string{"auto", "heat", "cool", "off"},
				"icon":    "mdi:sun-snowflake-variant",
			},
			Safety: &SafetyRule{
				Kind: RuleEnumeration, Allowed: []string{"auto", "heat", "cool", "off"},
				MinWriteInterval: minWriteInterval,
			},
		},
		{
			Key: "energy_mode", Name: "Energy mode",
			Type:          ValueEnum,
			ReadRegister:  reg(hc, 322, xcenter_modbus.KindUint16, 0),
			WriteRegister: reg(hc, 322, xcenter_modbus.KindUint16, 0),
			TopicSuffix:   "controls/energy_mode",
			Component:     COMPONENT_SELECT,
			EnumLabels:    energyModeLabels,
			Metadata: map[string]any{
				"options": []string{"away", "eco", "comfort", "boost"},
				"icon":    "mdi:leaf",
			},
			Safety: &SafetyRule{
				Kind: RuleEnumeration, Allowed: []string{"away", "eco", "comfort", "boost"},
				MinWriteInterval: minWriteInterval,
			},
		},
		{
			Key: "outdoor_temp_avg", Name: "Outdoor temperature 24h average",
			Type: ValueNumber, Decimals: 1,
			ReadRegister: reg(hc, 324, xcenter_modbus.KindInt16, 0.1),
			TopicSuffix:  "sensors/outdoor_temp_avg",
			Component:    COMPONENT_SENSOR,
			Metadata: map[string]any{
				"unit_of_measurement": "°C",
				"device_class":        "temperature",
				"state_class":         "measurement",
			},
		},
		{
			// factory parameter: exposed read-only, writes always rejected
			Key: "factory_heating_curve", Name: "Heating curve slope",
			Type: ValueNumber, Decimals: 2,
			ReadRegister:  reg(hc, 330, xcenter_modbus.KindUint16, 0.01),
			WriteRegister: reg(hc, 330, xcenter_modbus.KindUint16, 0.01),
			TopicSuffix:   "sensors/factory_heating_curve",
			Component:     COMPONENT_SENSOR,
			Metadata: map[string]any{
				"entity_category": "diagnostic",
				"icon":            "mdi:chart-bell-curve",
			},
			Safety: &SafetyRule{
				Kind:             RuleBlocked,
				MinWriteInterval: minWriteInterval,
			},
		},
	}
}
