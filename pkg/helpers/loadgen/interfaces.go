package loadgen

import "context"

// Message is one publish.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Client is a per-device broker connection.
type Client interface {
	// Connect registers will as the last-will message and calls onConnect
	// after every successful (re)connection.
	Connect(ctx context.Context, will Message, onConnect func()) error
	Disconnect()
	Publish(ctx context.Context, msg Message) error
}

// ClientFactory creates the connection a device publishes through.
type ClientFactory func(device *Device) Client
