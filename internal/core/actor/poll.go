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

// PollActor drives the read side of the bridge. Each cycle asks the device
// gateway for every readable attribute, publishes the results as attribute
// update events and derives device availability from the outcome: a cycle
// with at least one successful read means online, a cycle where every read
// failed means offline. Availability is only published on transitions (and
// on explicit re-announce requests), so the retained availability topic is
// written exactly once per state change.
type PollActor struct {
	config      *config.Config
	registry    *domain.AttributeRegistry
	deviceActor *actor.PID

	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler
	logger    *zap.Logger

	online   bool
	everDone bool
	cycleSeq uint64
}

type pollTick struct{}

func NewPollActor(config *config.Config, registry *domain.AttributeRegistry, deviceActor *actor.PID, logger *zap.Logger) *PollActor {
	act := &PollActor{
		config:      config,
		registry:    registry,
		deviceActor: deviceActor,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_POLL, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *PollActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PollActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("poll@default started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		ctx.Send(ctx.Self(), pollTick{})
	case pollTick:
		state.logger.Debug("poll@default tick", zap.Uint64("cycle", state.cycleSeq))
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.deviceActor, domain.ReadAllAttributesRequest{}, state.cycleTimeout()), func(err error) any {
			return domain.ReadAllAttributesResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}
		})
		state.behavior.BecomeStacked(state.WaitingCycleReceive)
	case domain.ReannounceAvailability:
		// retained availability may be stale after a broker outage
		if state.everDone {
			state.logger.Info("poll@default re-announce availability", zap.Bool("online", state.online))
			ctx.ActorSystem().EventStream.Publish(domain.AvailabilityUpdateEvent{Online: state.online})
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POLL,
			Healthy: true,
			State:   state.healthState(),
		})
	case *actor.Restarting:
	default:
		state.logger.Debug("poll@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PollActor) WaitingCycleReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ReadAllAttributesResponse:
		state.handleCycleResult(ctx, msg)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POLL,
			Healthy: true,
			State:   state.healthState(),
		})
	default:
		state.logger.Debug("poll@cycle stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollActor) handleCycleResult(ctx actor.Context, msg domain.ReadAllAttributesResponse) {
	eventStream := ctx.ActorSystem().EventStream

	if msg.HasResponseError() {
		state.logger.Warn("poll@cycle failed", zap.Error(msg.GetResponseError()))
	}
	for key, reason := range msg.Failed {
		state.logger.Debug("poll@cycle attribute read failed", zap.String("key", key), zap.String("reason", reason))
	}

	// publish in catalog order to keep the wire deterministic
	for _, attr := range state.registry.AllReadable() {
		if value, ok := msg.Values[attr.Key]; ok {
			eventStream.Publish(domain.AttributeUpdateEvent{Key: attr.Key, Value: value})
		}
	}

	online := len(msg.Values) > 0
	if !state.everDone || online != state.online {
		state.logger.Info("poll@cycle availability transition", zap.Bool("online", online))
		eventStream.Publish(domain.AvailabilityUpdateEvent{Online: online})
	}
	state.online = online
	state.everDone = true
	state.cycleSeq++

	// a dead device cycle is retried on the short interval
	next := time.Duration(state.config.BridgeConfig.PollIntervalMillis) * time.Millisecond
	if !online {
		next = time.Duration(state.config.BridgeConfig.PollRetryIntervalMillis) * time.Millisecond
	}
	state.scheduler.RequestOnce(next, ctx.Self(), pollTick{})
}

// cycleTimeout bounds the full-poll request. The gateway reads registers
// sequentially, so the bound scales with the catalog size.
func (state *PollActor) cycleTimeout() time.Duration {
	return time.Duration(len(state.registry.AllReadable())+2) * 2 * time.Second
}

func (state *PollActor) healthState() string {
	if !state.everDone {
		return "starting"
	}
	if state.online {
		return "online"
	}
	return "offline"
}
