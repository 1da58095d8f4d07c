package rosbridge

import (
	"encoding/json"
	"strings"
)

// Op names used by this client.
const (
	OpCallService     = "call_service"
	OpServiceResponse = "service_response"
	OpSubscribe       = "subscribe"
	OpUnsubscribe     = "unsubscribe"
	OpPublish         = "publish"
	OpStatus          = "status"
)

// Frame is one rosbridge operation. Only the fields relevant to Op are set.
type Frame struct {
	Op      string          `json:"op"`
	ID      string          `json:"id,omitempty"`
	Service string          `json:"service,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Values  json.RawMessage `json:"values,omitempty"`
	Result  *bool           `json:"result,omitempty"`

	Topic        string `json:"topic,omitempty"`
	Type         string `json:"type,omitempty"`
	QueueLength  int    `json:"queue_length,omitempty"`
	ThrottleRate int    `json:"throttle_rate,omitempty"`

	// Msg is the message object of a publish frame and the text of a
	// status frame.
	Msg   json.RawMessage `json:"msg,omitempty"`
	Level string          `json:"level,omitempty"`
}

// Succeeded reports the result flag of a service response. Bridges that
// omit the flag are treated as successful.
func (f Frame) Succeeded() bool {
	return f.Result == nil || *f.Result
}

// Text returns raw as a string when it holds a JSON string, otherwise the
// raw JSON itself.
func Text(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// Decode unmarshals a raw message into a T.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
