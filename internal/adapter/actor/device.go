package actor

import (
	"fmt"
	"time"

	"xcenter2mqtt/internal/core/domain"
	"xcenter2mqtt/internal/util"
	"xcenter2mqtt/internal/util/actorutil"
	"xcenter2mqtt/pkg/xcenter_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	DEVICE_ACTOR_ID = domain.ACTOR_ID_DEVICE

	deviceOpTimeout = 2 * time.Second
)

// DeviceActor owns the Modbus connection. The attribute catalog is resolved
// into bound read/write closures once at startup, so serving a request never
// goes through string dispatch. Connection loss never crashes the actor: it
// recycles the client and retries with jittered exponential backoff, while
// requests arriving in the meantime fail fast.
type DeviceActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	client    xcenter_modbus.HeatPumpModbusClient
	registry  *domain.AttributeRegistry
	backoff   *util.Backoff
	scheduler *scheduler.TimerScheduler
	logger    *zap.Logger

	resolved  map[string]resolvedAttribute
	readOrder []string
	connected bool
}

// resolvedAttribute binds an attribute definition to the driver. read is nil
// for write-only attributes, write for read-only ones.
type resolvedAttribute struct {
	def   domain.AttributeDefinition
	read  func() (domain.Value, error)
	write func(domain.Value) error
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
	// recycle asks for the connection to be reopened after replying.
	recycle bool
}

type connectAttempt struct{}

type connectResult struct {
	err error
}

func NewDeviceActor(client xcenter_modbus.HeatPumpModbusClient, registry *domain.AttributeRegistry,
	backoff *util.Backoff, logger *zap.Logger) *DeviceActor {
	act := &DeviceActor{
		client:   client,
		registry: registry,
		backoff:  backoff,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(DEVICE_ACTOR_ID, logger),
	}
	act.behavior.Become(act.ConnectingReceive)
	return act
}

func (state *DeviceActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *DeviceActor) ConnectingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("device@connecting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.resolveAttributes()
		ctx.Send(ctx.Self(), connectAttempt{})
	case connectAttempt:
		state.logger.Debug("device@connecting: attempt", zap.Uint("attempt", state.backoff.Attempt()))
		actorutil.NewBackgroundTask(ctx, func() (*connectResult, error) {
			err := state.client.Open()
			if err == nil {
				if verr := state.client.Validate(); verr != nil {
					_ = state.client.Close()
					err = verr
				}
			}
			return &connectResult{err: err}, nil
		}).Recover(func(err error) connectResult {
			return connectResult{err: err}
		}).WithTimeout(deviceOpTimeout + time.Second).PipeTo(ctx.Self())
	case connectResult:
		if msg.err != nil {
			delay := state.backoff.Next()
			state.logger.Warn("device@connecting: connect failed, retrying",
				zap.Error(msg.err), zap.Duration("retry_in", delay))
			state.scheduler.RequestOnce(delay, ctx.Self(), connectAttempt{})
			return
		}
		state.logger.Info("device@connecting: connected")
		state.backoff.Reset()
		state.connected = true
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      DEVICE_ACTOR_ID,
			Healthy: false,
			State:   "connecting",
		})
	case domain.ReadAllAttributesRequest:
		// a disconnected device is a total-failure poll cycle, not an error
		ctx.Respond(state.allFailedResponse("device disconnected"))
	case domain.ReadAttributeRequest:
		ctx.Respond(domain.ReadAttributeResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: fmt.Errorf("device disconnected")},
			Key:                msg.Key,
		})
	case domain.WriteAttributeRequest:
		ctx.Respond(domain.WriteAttributeResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: fmt.Errorf("device disconnected")},
		})
	case domain.GetDeviceInfoRequest:
		ctx.Respond(domain.GetDeviceInfoResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: fmt.Errorf("device disconnected")},
		})
	case *actor.Stopping:
		state.logger.Debug("device@connecting stopping")
	default:
		state.logger.Debug("device@connecting: ignore", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *DeviceActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("device@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      DEVICE_ACTOR_ID,
			Healthy: true,
			State:   "connected",
		})
	case domain.GetDeviceInfoRequest:
		state.logger.Debug("device@default: GetDeviceInfoRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getDeviceInfo),
			mapTaskResult[domain.GetDeviceInfoResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetDeviceInfoResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				},
				replyTo: sender,
			}
		}).WithTimeout(deviceOpTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.ReadAllAttributesRequest:
		state.logger.Debug("device@default: ReadAllAttributesRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.NewBackgroundTask(ctx, state.readAll).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: state.allFailedResponse(err.Error()),
				replyTo: sender,
				recycle: true,
			}
		}).WithTimeout(state.pollTimeout()).OnSuccess(func(r backgroundTaskResult) {
			r.replyTo = sender
			ctx.Send(ctx.Self(), r)
		}).Run()
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.ReadAttributeRequest:
		state.logger.Debug("device@default: ReadAttributeRequest", zap.String("attribute", msg.Key))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		key := msg.Key
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.ReadAttributeResponse, error) {
			return state.readOne(key)
		}), mapTaskResult[domain.ReadAttributeResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ReadAttributeResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
					Key:                key,
				},
				replyTo: sender,
			}
		}).WithTimeout(deviceOpTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.WriteAttributeRequest:
		state.logger.Debug("device@default: WriteAttributeRequest", zap.String("attribute", msg.Key))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		key, value := msg.Key, msg.Value
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.WriteAttributeResponse, error) {
			return state.writeOne(key, value)
		}), mapTaskResult[domain.WriteAttributeResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.WriteAttributeResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				},
				replyTo: sender,
			}
		}).WithTimeout(deviceOpTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.logger.Debug("device@default stopping")
		_ = state.client.Close()
	default:
		state.logger.Debug("device@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *DeviceActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("device@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		if msg.recycle {
			state.recycleConnection(ctx)
			return
		}
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		_ = state.client.Close()
	default:
		state.logger.Debug("device@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// recycleConnection closes the client and restarts the connect loop. Stashed
// requests are replayed into the connecting state, where they fail fast.
func (state *DeviceActor) recycleConnection(ctx actor.Context) {
	state.logger.Warn("device: connection looks dead, reconnecting")
	_ = state.client.Close()
	state.connected = false
	state.behavior.Become(state.ConnectingReceive)
	ctx.Send(ctx.Self(), connectAttempt{})
	state.stash.UnstashAll(ctx)
}

func (state *DeviceActor) resolveAttributes() {
	state.resolved = make(map[string]resolvedAttribute)
	state.readOrder = nil
	for _, def := range state.registry.All() {
		ra := resolvedAttribute{def: def}
		if def.Readable() {
			def := def
			reg := *def.ReadRegister
			ra.read = func() (domain.Value, error) {
				raw, err := state.client.ReadValue(reg)
				if err != nil {
					return domain.Value{}, err
				}
				return valueFromRaw(def, raw), nil
			}
			state.readOrder = append(state.readOrder, def.Key)
		}
		if def.Writable() {
			def := def
			reg := *def.WriteRegister
			ra.write = func(v domain.Value) error {
				raw, err := valueToRaw(def, v)
				if err != nil {
					return err
				}
				return state.client.WriteValue(reg, raw)
			}
		}
		state.resolved[def.Key] = ra
	}
}

func (state *DeviceActor) getDeviceInfo() (*domain.GetDeviceInfoResponse, error) {
	info, err := state.client.GetInfo()
	if err != nil {
		return nil, err
	}
	return &domain.GetDeviceInfoResponse{Info: info}, nil
}

// readAll polls every readable attribute. Individual failures go into the
// Failed map; only a fully failed cycle asks for a reconnect.
func (state *DeviceActor) readAll() (*backgroundTaskResult, error) {
	values := make(map[string]domain.Value)
	failed := make(map[string]string)
	for _, key := range state.readOrder {
		ra := state.resolved[key]
		v, err := ra.read()
		if err != nil {
			failed[key] = err.Error()
			continue
		}
		values[key] = v
	}
	allFailed := len(values) == 0 && len(failed) > 0
	return &backgroundTaskResult{
		message: domain.ReadAllAttributesResponse{
			Values: values,
			Failed: failed,
		},
		recycle: allFailed,
	}, nil
}

func (state *DeviceActor) readOne(key string) (*domain.ReadAttributeResponse, error) {
	ra, ok := state.resolved[key]
	if !ok || ra.read == nil {
		return nil, fmt.Errorf("attribute %q is not readable", key)
	}
	v, err := ra.read()
	if err != nil {
		return nil, err
	}
	return &domain.ReadAttributeResponse{Key: key, Value: v}, nil
}

func (state *DeviceActor) writeOne(key string, value domain.Value) (*domain.WriteAttributeResponse, error) {
	ra, ok := state.resolved[key]
	if !ok || ra.write == nil {
		return nil, fmt.Errorf("attribute %q is not writable", key)
	}
	if err := ra.write(value); err != nil {
		return nil, err
	}
	return &domain.WriteAttributeResponse{}, nil
}

func (state *DeviceActor) allFailedResponse(reason string) domain.ReadAllAttributesResponse {
	failed := make(map[string]string)
	for _, key := range state.readOrder {
		failed[key] = reason
	}
	return domain.ReadAllAttributesResponse{
		Values: map[string]domain.Value{},
		Failed: failed,
	}
}

func (state *DeviceActor) pollTimeout() time.Duration {
	return time.Duration(len(state.readOrder)+1) * deviceOpTimeout
}

func valueFromRaw(def domain.AttributeDefinition, raw float64) domain.Value {
	switch def.Type {
	case domain.ValueBool:
		return domain.BoolValue(raw != 0)
	case domain.ValueEnum:
		return domain.EnumValue(def.LabelFor(uint16(raw)))
	default:
		return domain.NumberValue(raw)
	}
}

func valueToRaw(def domain.AttributeDefinition, v domain.Value) (float64, error) {
	switch def.Type {
	case domain.ValueBool:
		if v.Bool {
			return 1, nil
		}
		return 0, nil
	case domain.ValueEnum:
		raw, ok := def.RawFor(v.Label)
		if !ok {
			return 0, fmt.Errorf("unknown option %q for attribute %q", v.Label, def.Key)
		}
		return float64(raw), nil
	default:
		return v.Number, nil
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
