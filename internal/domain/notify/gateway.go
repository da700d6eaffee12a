package notify

import (
	"context"
	"fmt"
)

// Channel identifies an outbound delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// ParseChannel validates a raw channel name against the closed set.
func ParseChannel(raw string) (Channel, error) {
	switch Channel(raw) {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return Channel(raw), nil
	default:
		return "", fmt.Errorf("unknown notification channel: %q", raw)
	}
}

// Message is the subject/body pair delivered over a channel. Channels
// without a subject line (sms, whatsapp) ignore the subject.
type Message struct {
	Subject string
	Body    string
}

// Gateway defines an interface for delivering a message to a single
// recipient over a named channel. Implementations must bound each send
// with a timeout; a hung provider call surfaces as a delivery error.
type Gateway interface {
	Send(ctx context.Context, channel Channel, recipient string, msg Message) error
}
