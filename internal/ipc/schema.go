// Package ipc implements the Message Schema and IPC Endpoint: a
// tagged-union request/response/notification protocol carried over
// length-prefixed JSON frames over a local socket, built on
// net/encoding-binary/encoding-json rather than a REST or RPC
// framework, since the daemon owns this transport directly.
package ipc

import (
	"encoding/json"
	"time"
)

// MessageType is the envelope discriminator. Unknown types decode fine
// but dispatch to an Error response.
type MessageType string

const (
	TypeGetStatus          MessageType = "getStatus"
	TypeGetSensors         MessageType = "getSensors"
	TypeGetFans            MessageType = "getFans"
	TypeGetConfig          MessageType = "getConfig"
	TypeSetConfig          MessageType = "setConfig"
	TypeSetFanSpeed        MessageType = "setFanSpeed"
	TypeSetProfile         MessageType = "setProfile"
	TypeSubscribeSensors   MessageType = "subscribeSensors"
	TypeUnsubscribeSensors MessageType = "unsubscribeSensors"

	TypeStatus      MessageType = "status"
	TypeSensors     MessageType = "sensors"
	TypeFans        MessageType = "fans"
	TypeConfig      MessageType = "config"
	TypeAck         MessageType = "ack"
	TypeError       MessageType = "error"
	TypeSensorUpdate MessageType = "sensorUpdate"
)

// Envelope is the wire shape of every frame: a type discriminator, a
// client-generated request id, and a timestamp. The receiver decodes
// Payload into the Go type that matches Type.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Id        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// GetStatusRequest carries no fields.
type GetStatusRequest struct{}

// StatusResponse answers GetStatus.
type StatusResponse struct {
	Running             bool     `json:"running"`
	Version             string   `json:"version"`
	UptimeSeconds        float64  `json:"uptimeSeconds"`
	Emergency           bool     `json:"emergency"`
	EmergencyReason     string   `json:"emergencyReason,omitempty"`
	ActiveProfileId     string   `json:"activeProfileId"`
	ActiveProfileName   string   `json:"activeProfileName"`
	Warnings            []string `json:"warnings,omitempty"`
	ConnectedClientCount int     `json:"connectedClientCount"`
}

// GetSensorsRequest carries no fields.
type GetSensorsRequest struct{}

// GetFansRequest carries no fields.
type GetFansRequest struct{}

// GetConfigRequest carries no fields.
type GetConfigRequest struct{}

// SetConfigRequest carries a loosely-typed configuration fragment,
// decoded server-side with mapstructure the same way the Configuration
// Store decodes any externally supplied document.
type SetConfigRequest struct {
	Config map[string]interface{} `json:"config"`
}

// SetFanSpeedRequest requests a manual duty write.
type SetFanSpeedRequest struct {
	FanKey  string  `json:"fanKey"`
	Percent float64 `json:"percent"`
}

// SetProfileRequest switches the active profile.
type SetProfileRequest struct {
	ProfileId string `json:"profileId"`
}

// SubscribeSensorsRequest flips a connection's subscribed flag on.
// IntervalMs is accepted but not used; the server broadcasts at its own
// tick rate whatever interval is requested.
type SubscribeSensorsRequest struct {
	IntervalMs int `json:"intervalMs"`
}

// UnsubscribeSensorsRequest carries no fields.
type UnsubscribeSensorsRequest struct{}

// Ack is the generic success/failure response for mutating requests.
// OriginalRequestId correlates it back to the request that produced
// it, per the envelope convention used for Ack and Error.
type Ack struct {
	Ok                bool   `json:"ok"`
	Message           string `json:"message,omitempty"`
	OriginalRequestId string `json:"originalRequestId"`
}

// ErrorPayload is the envelope payload for a Type == TypeError frame.
type ErrorPayload struct {
	Message           string `json:"message"`
	OriginalRequestId string `json:"originalRequestId"`
}

// SensorUpdate is the unsolicited push delivered to every subscribed
// connection each tick. It bears a fresh request id, not correlated to
// any prior request.
type SensorUpdate struct {
	Sensors   []SensorSnapshot `json:"sensors"`
	Fans      []FanSnapshot    `json:"fans"`
	Emergency bool             `json:"emergency"`
}

// SensorSnapshot and FanSnapshot are the wire projections of
// model.SensorReading/model.FanDevice — kept as separate types (rather
// than reusing the model package directly on the wire) so the JSON
// schema can evolve independently of the internal representation.
type SensorSnapshot struct {
	Key          string  `json:"key"`
	DisplayName  string  `json:"displayName"`
	HardwareName string  `json:"hardwareName"`
	HardwareKind string  `json:"hardwareKind"`
	Kind         string  `json:"kind"`
	Value        float64 `json:"value"`
	Unit         string  `json:"unit"`
	IsStale      bool    `json:"isStale"`
}

type FanSnapshot struct {
	Key          string   `json:"key"`
	DisplayName  string   `json:"displayName"`
	HardwareName string   `json:"hardwareName"`
	Capability   string   `json:"capability"`
	Rpm          int      `json:"rpm"`
	DutyPercent  *float64 `json:"dutyPercent,omitempty"`
}
