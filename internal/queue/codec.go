package queue

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/sweeney/hvac-monitor/internal/logic"
)

// ErrMalformedReading marks a payload that can never be processed.
var ErrMalformedReading = errors.New("malformed reading")

// ReadingMessage is the wire format of a sensor reading.
// Pointer fields distinguish a missing field from a zero value.
type ReadingMessage struct {
	SensorID    *string  `json:"sensor_id" validate:"required,min=1"`
	Temperature *float64 `json:"temperature" validate:"required"`
	Timestamp   *int64   `json:"timestamp" validate:"required"`
	Status      string   `json:"status,omitempty"`
}

var validate = validator.New()

// DecodeReading parses and validates a reading payload. Every failure wraps
// ErrMalformedReading.
func DecodeReading(payload []byte) (logic.Reading, error) {
	var msg ReadingMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return logic.Reading{}, fmt.Errorf("%w: %v", ErrMalformedReading, err)
	}
	if err := validate.Struct(msg); err != nil {
		return logic.Reading{}, fmt.Errorf("%w: %v", ErrMalformedReading, err)
	}
	return logic.Reading{
		SensorID:    *msg.SensorID,
		Temperature: *msg.Temperature,
		Timestamp:   *msg.Timestamp,
	}, nil
}

// EncodeReading serializes a reading with the given status tag.
func EncodeReading(r logic.Reading, status string) ([]byte, error) {
	return json.Marshal(ReadingMessage{
		SensorID:    &r.SensorID,
		Temperature: &r.Temperature,
		Timestamp:   &r.Timestamp,
		Status:      status,
	})
}
