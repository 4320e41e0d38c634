package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned for frames that are not a valid event envelope or
// whose payload does not fit the tagged type.
var ErrMalformed = errors.New("malformed frame")

// envelope is the wire shape of every inbound frame.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode turns one text frame into an Event. Frames without a payload use the
// envelope itself as payload. Unknown tags decode to Ignored.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	payload := bytes.TrimSpace(env.Payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		payload = frame
	}

	switch Kind(env.Type) {
	case KindStatus:
		return decodePayload[Status](env.Type, payload)
	case KindRecordFound:
		return decodePayload[RecordFound](env.Type, payload)
	case KindRecordsFound:
		return decodePayload[RecordsFound](env.Type, payload)
	case KindLog:
		return decodePayload[LogMessage](env.Type, payload)
	case KindSearchAttempt:
		return decodePayload[SearchAttempt](env.Type, payload)
	case KindProgress:
		return decodePayload[ProgressUpdate](env.Type, payload)
	case KindJobStarted:
		return decodePayload[JobStarted](env.Type, payload)
	case KindJobCompleted:
		return decodePayload[JobCompleted](env.Type, payload)
	case KindJobFailed:
		return decodePayload[JobFailed](env.Type, payload)
	case KindUnitStarted:
		return decodePayload[UnitStarted](env.Type, payload)
	case KindUnitsDiscovered:
		return decodePayload[UnitsDiscovered](env.Type, payload)
	default:
		return Ignored{Tag: env.Type}, nil
	}
}

// decodePayload unmarshals payload into the concrete event type T.
func decodePayload[T Event](tag string, payload []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, tag, err)
	}
	return ev, nil
}
