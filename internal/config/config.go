package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel        zapcore.Level
	DeviceModbusTcp DeviceModbusTCPConfig `mapstructure:"device_modbus_tcp"`
	MQTT            MQTTConfig            `mapstructure:"mqtt"`

	BridgeConfig    BridgeConfig    `mapstructure:"bridge"`
	SafetyConfig    SafetyConfig    `mapstructure:"safety"`
	ReconnectConfig ReconnectConfig `mapstructure:"reconnect"`
	Port            uint            `mapstructure:"port"`
	HttpLog         bool            `mapstructure:"http_log"`
}

type DeviceModbusTCPConfig struct {
	Host          string
	Port          uint
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type BridgeConfig struct {
	// DeviceId overrides the MQTT device identifier. When empty, it is
	// derived from the Modbus host.
	DeviceId                string `mapstructure:"device_id"`
	PollIntervalMillis      uint32 `mapstructure:"poll_interval_millis"`
	PollRetryIntervalMillis uint32 `mapstructure:"poll_retry_interval_millis"`
}

type SafetyConfig struct {
	// CommandMinIntervalSeconds is the minimum interval between accepted
	// writes to the same parameter.
	CommandMinIntervalSeconds uint32 `mapstructure:"command_min_interval_seconds"`
}

type ReconnectConfig struct {
	DeviceSeedDelayMillis uint32 `mapstructure:"device_seed_delay_millis"`
	DeviceMaxDelayMillis  uint32 `mapstructure:"device_max_delay_millis"`
	MQTTSeedDelayMillis   uint32 `mapstructure:"mqtt_seed_delay_millis"`
	MQTTMaxDelayMillis    uint32 `mapstructure:"mqtt_max_delay_millis"`
}

type MQTTConfig struct {
	Host                      string
	Port                      int
	Username                  string
	Password                  string
	BaseTopic                 string `mapstructure:"base_topic"`
	HADiscoveryEnable         bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic          string `mapstructure:"ha_discovery_topic"`
	HADiscoveryRefreshMinutes uint32 `mapstructure:"ha_discovery_refresh_minutes"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// DeriveDeviceId returns the configured device id or, when unset, an id
// derived from the Modbus host. The result is safe to embed in MQTT topics.
func DeriveDeviceId(cfg *Config) string {
	id := cfg.BridgeConfig.DeviceId
	if id == "" {
		id = cfg.DeviceModbusTcp.Host
	}
	id = strings.ToLower(id)
	return regexp.MustCompile("[^a-z0-9_]").ReplaceAllString(id, "_")
}
