package actor

import (
	"fmt"
	"time"

	"xcenter2mqtt/internal/config"
	"xcenter2mqtt/internal/core/domain"
	. "xcenter2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	HADISCOVERY_ACTOR_ID = "hadiscovery"

	discoverySettleDelay = 500 * time.Millisecond
	discoveryRetryDelay  = 10 * time.Second
)

// HADiscoveryActor publishes the retained Home Assistant discovery configs,
// one per catalog attribute. It waits until both gateways report healthy,
// reads the controller identity off the device and hands the full set to the
// MQTT gateway. The config payloads are deterministic, so answering a later
// RefreshDiscovery request is just publishing the same bytes again.
type HADiscoveryActor struct {
	config      *config.Config
	deviceId    string
	registry    *domain.AttributeRegistry
	deviceActor *actor.PID
	mqttActor   *actor.PID

	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler
	logger    *zap.Logger

	deviceActorHealthy bool
	mqttActorHealthy   bool
	healthyRecv        int
	device             domain.Device
}

type startDiscovery struct{}

func NewHADiscoveryActor(config *config.Config, deviceId string, registry *domain.AttributeRegistry,
	deviceActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		deviceId:    deviceId,
		registry:    registry,
		deviceActor: deviceActor,
		mqttActor:   mqttActor,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		// let the gateways finish their first connection attempt
		state.scheduler.RequestOnce(discoverySettleDelay, ctx.Self(), startDiscovery{})
	case startDiscovery:
		// check both gateways are up before asking for identity
		state.healthyRecv = 0
		state.deviceActorHealthy = false
		state.mqttActorHealthy = false
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.deviceActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_DEVICE,
				Healthy: false,
			}
		})
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_DEVICE:
				state.deviceActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {
			if state.deviceActorHealthy && state.mqttActorHealthy {
				PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.deviceActor, domain.GetDeviceInfoRequest{}, 2*time.Second), func(err error) any {
					return domain.GetDeviceInfoResponse{
						ActorResponseMixIn: domain.ActorResponseMixIn{
							ResponseError: err,
						},
					}
				})
				state.behavior.Become(state.WaitingInfoReceive)
			} else {
				state.retryLater(ctx, "gateways not ready yet")
			}
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDeviceInfoResponse:
		if msg.HasResponseError() {
			state.retryLater(ctx, fmt.Sprintf("device info unavailable: %v", msg.GetResponseError()))
			return
		}
		state.logger.Debug("hadiscovery@info: GetDeviceInfoResponse", zap.Any("response", msg))

		state.device = domain.Device{
			Id:           state.deviceId,
			Name:         fmt.Sprintf("%s %s", msg.Info.Manufacturer, msg.Info.Model),
			Version:      msg.Info.Version,
			Model:        msg.Info.Model,
			Manufacturer: msg.Info.Manufacturer,
			Serial:       msg.Info.Serial,
		}
		state.publishDiscovery(ctx)
		state.behavior.Become(state.DoneReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("hadiscovery@info: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) DoneReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.RefreshDiscovery:
		// retained configs may be gone after a broker wipe, publish the
		// same bytes again
		state.logger.Info("hadiscovery@done refresh")
		state.publishDiscovery(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   "published",
		})
	default:
		state.logger.Debug("hadiscovery@done: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) publishDiscovery(ctx actor.Context) {
	state.logger.Info("hadiscovery publish", zap.Int("attributes", len(state.registry.All())))
	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
		Device:     state.device,
		Attributes: state.registry.All(),
	})
}

func (state *HADiscoveryActor) retryLater(ctx actor.Context, reason string) {
	state.logger.Info("hadiscovery retry scheduled", zap.String("reason", reason),
		zap.Duration("delay", discoveryRetryDelay))
	state.scheduler.RequestOnce(discoveryRetryDelay, ctx.Self(), startDiscovery{})
	state.behavior.Become(state.StartingReceive)
}
