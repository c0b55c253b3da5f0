package domain

import (
	"github.com/asynkron/protoactor-go/actor"

	"xcenter2mqtt/pkg/xcenter_modbus"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_DEVICE       = "device"
	ACTOR_ID_POLL         = "poll"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_COMMAND      = "command"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type ActorRef actor.PID

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

// Device gateway protocol

type GetDeviceInfoRequest struct {
	ActorRequestMixIn
}

type GetDeviceInfoResponse struct {
	ActorResponseMixIn
	Info *xcenter_modbus.DeviceInfo
}

// ReadAllAttributesRequest asks the device gateway for a full poll of every
// readable attribute.
type ReadAllAttributesRequest struct {
	ActorRequestMixIn
}

type ReadAllAttributesResponse struct {
	ActorResponseMixIn
	// Values holds the successfully read attributes by key.
	Values map[string]Value
	// Failed holds the per-attribute failure reasons for the rest.
	Failed map[string]string
}

type ReadAttributeRequest struct {
	ActorRequestMixIn
	Key string
}

type ReadAttributeResponse struct {
	ActorResponseMixIn
	Key   string
	Value Value
}

type WriteAttributeRequest struct {
	ActorRequestMixIn
	Key   string
	Value Value
}

type WriteAttributeResponse struct {
	ActorResponseMixIn
}

// MQTT gateway protocol

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Device     Device
	Attributes []AttributeDefinition
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// Coordination

// BusConnectionRestored is sent by the MQTT gateway to its parent after a
// successful reconnect, so retained state can be re-announced.
type BusConnectionRestored struct{}

// ReannounceAvailability asks the poll duty to publish the current
// availability value even without a transition.
type ReannounceAvailability struct{}

// RefreshDiscovery asks for the discovery configs to be published again.
type RefreshDiscovery struct{}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
