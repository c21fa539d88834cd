package natsx

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsxSyncPublisher 同步发布器（带重试）
type NatsxSyncPublisher struct {
	P       MsgPublisher
	Retries int
	Backoff time.Duration
}

func (sp *NatsxSyncPublisher) Publish(ctx context.Context, msg *nats.Msg) error {
	var err error
	for i := 0; i <= sp.Retries; i++ {
		if err = sp.P.PublishMsg(msg); err == nil {
			return nil
		}
		if i == sp.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sp.Backoff):
		}
	}
	return err
}
