package util

import (
	"xcenter2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		DeviceModbusTcp: config.DeviceModbusTCPConfig{
			Host:          "-.-.-.-",
			Port:          502,
			TimeoutMillis: 1000,
		},
		MQTT: config.MQTTConfig{
			Host:              "localhost",
			Port:              1883,
			BaseTopic:         "xcenter",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
		},
		BridgeConfig: config.BridgeConfig{
			DeviceId:                "test_heatpump",
			PollIntervalMillis:      200,
			PollRetryIntervalMillis: 100,
		},
		SafetyConfig: config.SafetyConfig{
			CommandMinIntervalSeconds: 60,
		},
		ReconnectConfig: config.ReconnectConfig{
			DeviceSeedDelayMillis: 50,
			DeviceMaxDelayMillis:  200,
			MQTTSeedDelayMillis:   50,
			MQTTMaxDelayMillis:    200,
		},
		Port: 8080,
	}
}
