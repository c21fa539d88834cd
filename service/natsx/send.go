package natsx

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// MsgPublisher is the publishing half of a connection.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

func newMsg(subject string, data []byte, hdr map[string]string) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Add(k, v)
	}
	return msg
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// PublishMsg lets the client serve as a MsgPublisher.
func (c *NatsxClient) PublishMsg(m *nats.Msg) error {
	if err := c.nc.PublishMsg(m); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// Publish sends one core message.
func (c *NatsxClient) Publish(subject string, data []byte, hdr map[string]string) error {
	return c.PublishMsg(newMsg(subject, data, hdr))
}
