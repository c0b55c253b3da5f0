package actor

import (
	"fmt"
	"math"
	"time"

	"xcenter2mqtt/internal/config"
	"xcenter2mqtt/internal/core/domain"
	"xcenter2mqtt/internal/core/port"
	. "xcenter2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const commandWriteTimeout = 5 * time.Second

// CommandActor executes inbound write commands one at a time: parse the
// payload, run it through the safety gate, write the register and confirm by
// reading the value back. Commands arriving while one is in flight are
// stashed, so writes to the device never interleave. Every rejection and
// every failed execution ends up as a command error event; accepted commands
// end with the read-back value published as regular state.
type CommandActor struct {
	config      *config.Config
	registry    *domain.AttributeRegistry
	gate        port.CommandGate
	deviceActor *actor.PID
	pollActor   *actor.PID

	behavior actor.Behavior
	stash    *Stash
	esSub    *eventstream.Subscription
	logger   *zap.Logger

	online  bool
	pending pendingCommand
}

type pendingCommand struct {
	attr  domain.AttributeDefinition
	value domain.Value
}

func NewCommandActor(config *config.Config, registry *domain.AttributeRegistry, gate port.CommandGate,
	deviceActor *actor.PID, pollActor *actor.PID, logger *zap.Logger) *CommandActor {
	act := &CommandActor{
		config:      config,
		registry:    registry,
		gate:        gate,
		deviceActor: deviceActor,
		pollActor:   pollActor,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_COMMAND, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *CommandActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *CommandActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("command@default started")
		state.subscribeEventStream(ctx)
		// the availability transition event may predate the subscription
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.pollActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{Id: domain.ACTOR_ID_POLL, Healthy: false}
		})
	case domain.ActorHealthResponse:
		if msg.Id == domain.ACTOR_ID_POLL && msg.State == "online" {
			state.online = true
		}
	case *actor.Stopping:
		state.unsubscribeEventStream(ctx)
	case *actor.Restarting:
		state.unsubscribeEventStream(ctx)
	case domain.AvailabilityUpdateEvent:
		state.online = msg.Online
	case domain.WriteCommand:
		state.logger.Info("command@default received", zap.String("command", msg.String()))
		state.handleCommand(ctx, msg)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_COMMAND,
			Healthy: true,
			State:   "idle",
		})
	default:
		state.logger.Debug("command@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *CommandActor) handleCommand(ctx actor.Context, cmd domain.WriteCommand) {
	attr, ok := state.registry.ByKey(cmd.Key)
	if !ok {
		state.logger.Warn("command@default unknown attribute", zap.String("key", cmd.Key))
		return
	}

	value, err := attr.ParsePayload(cmd.Payload)
	if err != nil {
		state.reject(ctx, attr, cmd.Payload, err.Error())
		return
	}

	// checked before the gate so an offline device does not arm the
	// per-attribute rate limiter
	if !state.online {
		state.fail(ctx, attr, value.Native(), "device unavailable, command not attempted")
		return
	}

	if err := state.gate.Validate(attr, value, time.Now()); err != nil {
		state.reject(ctx, attr, value.Native(), err.Error())
		return
	}

	state.pending = pendingCommand{attr: attr, value: value}
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.deviceActor, domain.WriteAttributeRequest{
		Key:   attr.Key,
		Value: value,
	}, commandWriteTimeout), func(err error) any {
		return domain.WriteAttributeResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		}
	})
	state.behavior.BecomeStacked(state.WaitingWriteReceive)
}

func (state *CommandActor) WaitingWriteReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.WriteAttributeResponse:
		if msg.HasResponseError() {
			state.fail(ctx, state.pending.attr, state.pending.value.Native(),
				fmt.Sprintf("write failed: %v", msg.GetResponseError()))
			state.done(ctx)
			return
		}
		if !state.pending.attr.Readable() {
			// write-only attribute, nothing to confirm
			state.logger.Info("command@write done", zap.String("key", state.pending.attr.Key))
			state.done(ctx)
			return
		}
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.deviceActor, domain.ReadAttributeRequest{
			Key: state.pending.attr.Key,
		}, commandWriteTimeout), func(err error) any {
			return domain.ReadAttributeResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}
		})
		state.behavior.UnbecomeStacked()
		state.behavior.BecomeStacked(state.WaitingReadBackReceive)
	default:
		state.logger.Debug("command@write stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *CommandActor) WaitingReadBackReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ReadAttributeResponse:
		if msg.HasResponseError() {
			state.fail(ctx, state.pending.attr, state.pending.value.Native(),
				fmt.Sprintf("write succeeded but read-back failed: %v", msg.GetResponseError()))
			state.done(ctx)
			return
		}
		if !valuesMatch(state.pending.value, msg.Value) {
			state.logger.Warn("command@readback value differs from command",
				zap.String("key", state.pending.attr.Key),
				zap.String("written", state.pending.value.Payload(state.pending.attr.Decimals)),
				zap.String("read", msg.Value.Payload(state.pending.attr.Decimals)))
		}
		state.logger.Info("command@readback confirmed",
			zap.String("key", state.pending.attr.Key),
			zap.String("value", msg.Value.Payload(state.pending.attr.Decimals)))
		ctx.ActorSystem().EventStream.Publish(domain.AttributeUpdateEvent{
			Key:   state.pending.attr.Key,
			Value: msg.Value,
		})
		state.done(ctx)
	default:
		state.logger.Debug("command@readback stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *CommandActor) done(ctx actor.Context) {
	state.pending = pendingCommand{}
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

// reject reports a command refused by parsing or the safety gate.
func (state *CommandActor) reject(ctx actor.Context, attr domain.AttributeDefinition, value any, reason string) {
	state.logger.Warn("command rejected",
		zap.String("key", attr.Key), zap.Any("value", value), zap.String("reason", reason))
	ctx.ActorSystem().EventStream.Publish(domain.CommandErrorEvent{
		Key:       attr.Key,
		Reason:    reason,
		Value:     value,
		Rejected:  true,
		Timestamp: time.Now(),
	})
}

// fail reports a command that was accepted but could not be executed.
func (state *CommandActor) fail(ctx actor.Context, attr domain.AttributeDefinition, value any, reason string) {
	state.logger.Error("command failed",
		zap.String("key", attr.Key), zap.Any("value", value), zap.String("reason", reason))
	ctx.ActorSystem().EventStream.Publish(domain.CommandErrorEvent{
		Key:       attr.Key,
		Reason:    reason,
		Value:     value,
		Rejected:  false,
		Timestamp: time.Now(),
	})
}

func valuesMatch(a, b domain.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case domain.ValueNumber:
		return math.Abs(a.Number-b.Number) < 1e-6
	case domain.ValueBool:
		return a.Bool == b.Bool
	default:
		return a.Label == b.Label
	}
}

func (state *CommandActor) subscribeEventStream(ctx actor.Context) {
	system := ctx.ActorSystem()
	self := ctx.Self()
	state.esSub = system.EventStream.Subscribe(func(evt interface{}) {
		switch evt.(type) {
		case domain.AvailabilityUpdateEvent:
			system.Root.Send(self, evt)
		}
	})
}

func (state *CommandActor) unsubscribeEventStream(ctx actor.Context) {
	if state.esSub != nil {
		ctx.ActorSystem().EventStream.Unsubscribe(state.esSub)
		state.esSub = nil
	}
}
