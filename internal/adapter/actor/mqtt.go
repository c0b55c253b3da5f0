package actor

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"xcenter2mqtt/internal/config"
	"xcenter2mqtt/internal/core/domain"
	"xcenter2mqtt/internal/mqtt"
	"xcenter2mqtt/internal/util"
	"xcenter2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTActor owns the broker connection. It maps attribute, availability and
// command-error events from the event stream onto the wire, and feeds parsed
// inbound commands to its parent. A lost connection starts a jittered
// backoff reconnect loop; state events arriving while offline are dropped
// (the poll duty re-announces after reconnect).
type MQTTActor struct {
	config   *config.Config
	deviceId string
	registry *domain.AttributeRegistry
	backoff  *util.Backoff

	behavior  actor.Behavior
	stash     *actorutil.Stash
	scheduler *scheduler.TimerScheduler
	esSub     *eventstream.Subscription
	client    *mqtt.MQTTClient
	logger    *zap.Logger

	everConnected bool
}

type MQTTConnected struct{}

type MQTTSubscribed struct{}

type MQTTConnectionLost struct {
	Error error
}

type mqttConnectAttempt struct{}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, deviceId string, registry *domain.AttributeRegistry,
	backoff *util.Backoff, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:   config,
		deviceId: deviceId,
		registry: registry,
		backoff:  backoff,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.ConnectingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) ConnectingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@connecting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.subscribeEventStream(ctx)

		state.client = mqtt.CreateMQTTClient(state.config, state.deviceId,
			mqtt.OptsFromConfig(state.config, state.deviceId),
			func(_ pahomqtt.Client) {
			}, func(_ pahomqtt.Client, err error) {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			})
		ctx.Send(ctx.Self(), mqttConnectAttempt{})

	case mqttConnectAttempt:
		state.logger.Debug("mqtt@connecting: attempt", zap.Uint("attempt", state.backoff.Attempt()))
		state.client.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@connecting connected")
		// subscribe to the device command topics
		state.client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m)
			if err == nil && cmd != nil {
				ctx.Send(ctx.Self(), ParsedCommand{Command: cmd})
			}
		}, func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTSubscribed{})
			}
		}, 1*time.Second)

	case MQTTSubscribed:
		state.logger.Info("mqtt@connecting: connected and subscribed")
		state.backoff.Reset()
		if state.everConnected {
			// retained state may be stale after an outage
			ctx.Send(ctx.Parent(), domain.BusConnectionRestored{})
		}
		state.everConnected = true
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)

	case MQTTConnectionLost:
		delay := state.backoff.Next()
		state.logger.Warn("mqtt@connecting: connect failed, retrying",
			zap.Error(msg.Error), zap.Duration("retry_in", delay))
		state.scheduler.RequestOnce(delay, ctx.Self(), mqttConnectAttempt{})

	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: false,
			State:   "connecting",
		})

	case domain.AttributeUpdateEvent, domain.AvailabilityUpdateEvent, domain.CommandErrorEvent:
		// broker is down, nothing to do; availability is re-announced later
		state.logger.Debug("mqtt@connecting: drop event", zap.String("type", fmt.Sprintf("%T", msg)))

	case *actor.Stopping:
		state.unsubscribeEventStream(ctx)
	case *actor.Restarting:
		state.unsubscribeEventStream(ctx)
		state.stop()

	default:
		state.logger.Debug("mqtt@connecting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.unsubscribeEventStream(ctx)
		state.stop()
	case *actor.Stopping:
		state.unsubscribeEventStream(ctx)
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "connected",
		})
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.Any("message", msg))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.AttributeUpdateEvent, domain.AvailabilityUpdateEvent, domain.CommandErrorEvent:
		state.publishEvent(ctx, msg)
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishDiscovery")
		err := state.publishHomeAssistantDiscovery(ctx, msg.Device, msg.Attributes)
		if err != nil {
			state.logger.Error("mqtt@default PublishDiscovery error", zap.Error(err))
		}
		if replyTo := actorutil.ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			})
		}
	case MQTTConnectionLost:
		delay := state.backoff.Next()
		state.logger.Warn("mqtt@default connection lost, reconnecting",
			zap.Error(msg.Error), zap.Duration("retry_in", delay))
		state.behavior.Become(state.ConnectingReceive)
		state.scheduler.RequestOnce(delay, ctx.Self(), mqttConnectAttempt{})
	default:
		state.logger.Debug("mqtt@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// event2MQTTMessage maps an event stream event to topic and payload.
func (state *MQTTActor) event2MQTTMessage(event any) *rawMessage {
	switch msg := event.(type) {
	case domain.AttributeUpdateEvent:
		attr, ok := state.registry.ByKey(msg.Key)
		if !ok {
			return nil
		}
		return &rawMessage{
			topic:   state.client.StateTopic(attr.TopicSuffix),
			message: msg.Value.Payload(attr.Decimals),
		}
	case domain.AvailabilityUpdateEvent:
		payload := mqtt.MQTT_PAYLOAD_OFFLINE
		if msg.Online {
			payload = mqtt.MQTT_PAYLOAD_ONLINE
		}
		return &rawMessage{
			topic:   state.client.AvailabilityTopic(),
			message: payload,
			retain:  true,
		}
	case domain.CommandErrorEvent:
		attr, ok := state.registry.ByKey(msg.Key)
		if !ok {
			return nil
		}
		body := mqtt.CommandErrorPayload{
			Error:     msg.Reason,
			Timestamp: msg.Timestamp.Format(time.RFC3339),
		}
		if msg.Rejected {
			body.RejectedValue = msg.Value
		} else {
			body.CommandValue = msg.Value
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return nil
		}
		return &rawMessage{
			topic:   state.client.CommandErrorTopic(attr.TopicSuffix),
			message: string(payload),
		}
	default:
		return nil
	}
}

func (state *MQTTActor) publishEvent(ctx actor.Context, event any) {
	msg := state.event2MQTTMessage(event)
	if msg != nil {
		state.logger.Sugar().Debugf("mqtt@publish: %s => %s", msg.topic, msg.message)
		state.client.Publish(msg.topic, msg.message, 1, msg.retain, func(err error) {
			ctx.Send(ctx.Self(), publishResult{Error: err})
		}, 5*time.Second)
		state.behavior.BecomeStacked(state.PublishResultReceive)
	}
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		ctx.Send(ctx.Self(), publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.PublishResultReceive)
}

func (state *MQTTActor) PublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: msg.Error,
				},
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) publishHomeAssistantDiscovery(ctx actor.Context, device domain.Device,
	attributes []domain.AttributeDefinition) error {
	for i := range attributes {
		payload, err := mqtt.AttributeToHADiscoveryMessage(state.client, device, attributes[i])
		if err != nil {
			return err
		}
		topic := mqtt.HADiscoveryTopic(state.config.MQTT.HADiscoveryTopic, attributes[i], state.deviceId)
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	return nil
}

func (state *MQTTActor) subscribeEventStream(ctx actor.Context) {
	system := ctx.ActorSystem()
	self := ctx.Self()
	state.esSub = system.EventStream.Subscribe(func(evt interface{}) {
		switch evt.(type) {
		case domain.AttributeUpdateEvent, domain.AvailabilityUpdateEvent, domain.CommandErrorEvent:
			system.Root.Send(self, evt)
		}
	})
}

func (state *MQTTActor) unsubscribeEventStream(ctx actor.Context) {
	if state.esSub != nil {
		ctx.ActorSystem().EventStream.Unsubscribe(state.esSub)
		state.esSub = nil
	}
}

// stop publishes a retained offline marker before disconnecting, so a clean
// shutdown looks the same on the wire as the LWT firing.
func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.client == nil {
		return
	}
	state.client.Publish(state.client.AvailabilityTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
	state.client.Disconnect(500 * time.Millisecond)
}

// TestMQTTActor captures everything the bridge would put on the wire,
// without a broker. Parsed commands can be injected by sending ParsedCommand
// messages to it.
type TestMQTTActor struct {
	config   *config.Config
	deviceId string
	registry *domain.AttributeRegistry
	logger   *zap.Logger

	inner  MQTTActor
	esSub  *eventstream.Subscription
	mu     sync.Mutex
	record []CapturedMessage
}

type CapturedMessage struct {
	Topic   string
	Payload string
	Retain  bool
}

func NewTestMQTTActor(config *config.Config, deviceId string, registry *domain.AttributeRegistry, logger *zap.Logger) *TestMQTTActor {
	act := &TestMQTTActor{
		config:   config,
		deviceId: deviceId,
		registry: registry,
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.inner = MQTTActor{
		config:   config,
		deviceId: deviceId,
		registry: registry,
		client:   mqtt.CreateMQTTClient(config, deviceId, mqtt.OptsFromConfig(config, deviceId), nil, nil),
	}
	return act
}

// Captured returns a copy of everything published so far.
func (state *TestMQTTActor) Captured() []CapturedMessage {
	state.mu.Lock()
	defer state.mu.Unlock()
	msgs := make([]CapturedMessage, len(state.record))
	copy(msgs, state.record)
	return msgs
}

func (state *TestMQTTActor) CapturedOnTopic(topic string) []CapturedMessage {
	var msgs []CapturedMessage
	for _, m := range state.Captured() {
		if m.Topic == topic {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

func (state *TestMQTTActor) capture(m CapturedMessage) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.record = append(state.record, m)
}

func (state *TestMQTTActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		system := ctx.ActorSystem()
		self := ctx.Self()
		state.esSub = system.EventStream.Subscribe(func(evt interface{}) {
			switch evt.(type) {
			case domain.AttributeUpdateEvent, domain.AvailabilityUpdateEvent, domain.CommandErrorEvent:
				system.Root.Send(self, evt)
			}
		})
	case *actor.Stopping:
		if state.esSub != nil {
			ctx.ActorSystem().EventStream.Unsubscribe(state.esSub)
			state.esSub = nil
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "connected",
		})
	case ParsedCommand:
		ctx.Send(ctx.Parent(), msg)
	case domain.AttributeUpdateEvent, domain.AvailabilityUpdateEvent, domain.CommandErrorEvent:
		if raw := state.inner.event2MQTTMessage(msg); raw != nil {
			state.capture(CapturedMessage{Topic: raw.topic, Payload: raw.message, Retain: raw.retain})
		}
	case domain.PublishMessageRequest:
		state.capture(CapturedMessage{Topic: msg.Topic, Payload: msg.Payload, Retain: msg.Retain})
		if msg.ReplyToRef != nil || ctx.Sender() != nil {
			ctx.Send(actorutil.ForRequest(msg).ReplyTo(ctx), domain.PublishMessageResponse{})
		}
	case domain.PublishDiscoveryRequest:
		for i := range msg.Attributes {
			payload, err := mqtt.AttributeToHADiscoveryMessage(state.inner.client, msg.Device, msg.Attributes[i])
			if err != nil {
				continue
			}
			topic := mqtt.HADiscoveryTopic(state.config.MQTT.HADiscoveryTopic, msg.Attributes[i], state.deviceId)
			state.capture(CapturedMessage{Topic: topic, Payload: string(payload), Retain: true})
		}
		if replyTo := actorutil.ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.PublishDiscoveryResponse{})
		}
	}
}
