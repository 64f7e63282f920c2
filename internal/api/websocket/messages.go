package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeAttributeChange MessageType = "attribute_change"
	MessageTypeSystemStatus    MessageType = "system_status"

	// Client handshake and subscription messages
	MessageTypeAuth        MessageType = "auth"
	MessageTypeAuthSuccess MessageType = "auth_success"
	MessageTypeAuthFailed  MessageType = "auth_failed"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeSubscribed  MessageType = "subscribed"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Device    string      `json:"device,omitempty"`
	Data      interface{} `json:"data"`
}

// AttributeChangeData carries one changed attribute reading.
type AttributeChangeData struct {
	Attribute string      `json:"attribute"`
	Value     interface{} `json:"value"`
	SimTime   float64     `json:"sim_time"`
	Quality   string      `json:"quality"`
}

// ClientMessage is what clients send: an auth handshake or a subscription.
type ClientMessage struct {
	Type    MessageType `json:"type"`
	Token   string      `json:"token,omitempty"`
	Devices []string    `json:"devices,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewAttributeChangeMessage(device, attribute string, value interface{}, simTime float64, quality string) Message {
	msg := NewMessage(MessageTypeAttributeChange, AttributeChangeData{
		Attribute: attribute,
		Value:     value,
		SimTime:   simTime,
		Quality:   quality,
	})
	msg.Device = device
	return msg
}
