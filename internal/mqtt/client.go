package mqtt

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"xcenter2mqtt/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = "on"
	MQTT_PAYLOAD_OFF     = "off"
)

func OptsFromConfig(cfg *config.Config, deviceId string) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("xcenter2mqtt_%d", rand.Intn(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	// reconnection is handled by the gateway actor, not by paho
	opts.SetAutoReconnect(false)
	// broker marks the device offline if the bridge dies
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = availabilityTopic(cfg.MQTT.BaseTopic, deviceId)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, deviceId string, opts *mqtt.ClientOptions,
	onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client:        mqtt.NewClient(opts),
		cfg:           cfg.MQTT,
		deviceId:      deviceId,
		commandRegexp: commandExtractor(cfg.MQTT.BaseTopic, deviceId),
	}
}

type MQTTClient struct {
	client        mqtt.Client
	cfg           config.MQTTConfig
	deviceId      string
	commandRegexp *regexp.Regexp
}

// ParsedMQTTCommand is a raw inbound command: the matched attribute topic
// suffix and the unparsed payload.
type ParsedMQTTCommand struct {
	TopicSuffix string
	Payload     string
}

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *MQTTClient) DeviceId() string {
	return c.deviceId
}

// AvailabilityTopic carries "online"/"offline", retained. Also the LWT.
func (c *MQTTClient) AvailabilityTopic() string {
	return availabilityTopic(c.baseTopic(), c.deviceId)
}

func (c *MQTTClient) StateTopic(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseTopic(), c.deviceId, suffix)
}

func (c *MQTTClient) CommandTopic(suffix string) string {
	return c.StateTopic(suffix) + "/set"
}

func (c *MQTTClient) CommandErrorTopic(suffix string) string {
	return c.CommandTopic(suffix) + "/error"
}

// ParseMQTTCommand extracts the attribute topic suffix from an inbound
// message. Messages that are not commands for this device return an error
// and should be ignored silently.
func (c *MQTTClient) ParseMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	matches := c.commandRegexp.FindAllStringSubmatch(msg.Topic(), 1)
	if len(matches) == 0 || len(matches[0]) != 2 {
		return nil, errors.New("not a command topic")
	}
	return &ParsedMQTTCommand{
		TopicSuffix: matches[0][1],
		Payload:     string(msg.Payload()),
	}, nil
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) SubscribeToCommandTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(c.deviceTopicFilter(), 1, handler, continuation, timeout)
}

func (c *MQTTClient) Unsubscribe(topic string, continuation func(error), timeout time.Duration) {
	token := c.client.Unsubscribe(topic)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT unsubscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func (c *MQTTClient) deviceTopicFilter() string {
	return fmt.Sprintf("%s/%s/#", c.baseTopic(), c.deviceId)
}

func commandExtractor(baseTopic, deviceId string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/%s/([a-z0-9_/]+)/set$", regexp.QuoteMeta(baseTopic), regexp.QuoteMeta(deviceId)))
}

func availabilityTopic(baseTopic, deviceId string) string {
	return fmt.Sprintf("%s/%s/availability", baseTopic, deviceId)
}
