package natsx

import (
	"context"
	"strings"

	"github.com/nats-io/nats.go"
)

// NatsxMessage is one received message, detached from the nats buffer.
type NatsxMessage struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// Key identifies the message for de-duplication: the publisher's message id
// header, or subject plus body when the publisher set none.
func (m NatsxMessage) Key() string {
	if id := msgIDFromHeader(m.Header); id != "" {
		return id
	}
	return m.Subject + "|" + strings.TrimSpace(string(m.Data))
}

// NatsxHandler 业务处理函数
type NatsxHandler func(ctx context.Context, msg NatsxMessage) error

// NatsxMiddleware 中间件（幂等等）
type NatsxMiddleware func(NatsxHandler) NatsxHandler

// NatsxChain applies mws so the first one runs outermost.
func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Subscribe registers h on subject, wrapped by mws. Subscriptions are
// drained by Close.
func (c *NatsxClient) Subscribe(subject string, h NatsxHandler, mws ...NatsxMiddleware) error {
	cb := Callback(NatsxChain(h, mws...))
	sub, err := c.nc.Subscribe(subject, cb)
	if err != nil {
		return err
	}
	_ = sub.SetPendingLimits(65536, 64*1024*1024)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

// Callback adapts a handler to a nats message callback.
func Callback(h NatsxHandler) nats.MsgHandler {
	return func(m *nats.Msg) {
		_ = h(context.Background(), NatsxMessage{
			Subject: m.Subject,
			Data:    append([]byte(nil), m.Data...),
			Header:  headerToMap(m.Header),
		})
	}
}
