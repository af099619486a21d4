package mqtt

// MqttNodePayload represents the JSON payload for node commands on the
// register topic. Event is one of register, remove, move, activate or
// deactivate.
type MqttNodePayload struct {
	NodeID      string  `json:"node_id"`
	Event       string  `json:"event"`
	StatusTopic string  `json:"status_topic,omitempty"` // optional ack destination
	X           float64 `json:"x,omitempty"`
	Y           float64 `json:"y,omitempty"`
	Z           float64 `json:"z,omitempty"`
	Broadcaster string  `json:"broadcaster,omitempty"` // base id; registers a broadcaster
	Repeater    *bool   `json:"repeater,omitempty"`
}

// MqttStatus is published to a command's status topic once it is handled.
type MqttStatus struct {
	NodeID string `json:"node_id"`
	Event  string `json:"event"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}
