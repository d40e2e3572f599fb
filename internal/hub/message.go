package hub

import (
	"encoding/json"
	"time"
)

// SteeringMessage is the state broadcast to subscribers once per control loop iteration.
// It is a value type; copies are independent.
type SteeringMessage struct {
	RotationAngle float64 `json:"rotation_angle"`
	FistClosed    bool    `json:"fist_closed"`
	Timestamp     int64   `json:"timestamp"` // unix milliseconds
}

// NewSteeringMessage creates a message stamped with at.
func NewSteeringMessage(angle float64, fistClosed bool, at time.Time) *SteeringMessage {
	return &SteeringMessage{
		RotationAngle: angle,
		FistClosed:    fistClosed,
		Timestamp:     at.UnixMilli(),
	}
}

// Encode returns the wire form of m: one flat JSON object.
func (m SteeringMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}
