package natsx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PPClient/module/chat/model"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePub struct {
	mu   sync.Mutex
	fail int
	msgs []*nats.Msg
}

func (p *fakePub) PublishMsg(m *nats.Msg) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail > 0 {
		p.fail--
		return errors.New("nats: connection closed")
	}
	p.msgs = append(p.msgs, m)
	return nil
}

func TestNotifierPublishesAndDecodes(t *testing.T) {
	pub := &fakePub{fail: 1}
	n := NewNotifier(pub, "ppclient.notify", zaptest.NewLogger(t))
	n.pub.Backoff = time.Millisecond

	note := model.Notification{ChatID: 3, ChatName: "ops", MessageID: 11, SenderID: 20, Preview: "deploy done",
		At: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	require.NoError(t, n.Notify(context.Background(), note))

	require.Len(t, pub.msgs, 1)
	m := pub.msgs[0]
	assert.Equal(t, "ppclient.notify.new_message", m.Subject)
	assert.Equal(t, "3-11", m.Header.Get(HeaderMsgID))

	got, err := DecodeNotification(NatsxMessage{Subject: m.Subject, Data: m.Data, Header: headerToMap(m.Header)})
	require.NoError(t, err)
	assert.Equal(t, note.Preview, got.Preview)
	assert.True(t, note.At.Equal(got.At))
}

func TestNotifierGivesUp(t *testing.T) {
	pub := &fakePub{fail: 10}
	n := NewNotifier(pub, "s", zaptest.NewLogger(t))
	n.pub.Backoff = time.Millisecond
	assert.Error(t, n.Notify(context.Background(), model.Notification{ChatID: 1, MessageID: 1}))
	assert.Equal(t, 7, pub.fail)
}

func TestSyncPublisherStopsOnCancel(t *testing.T) {
	sp := &NatsxSyncPublisher{P: &fakePub{fail: 10}, Retries: 5, Backoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sp.Publish(ctx, nats.NewMsg("x")), context.Canceled)
}

func TestIdemMiddlewareDropsRedelivery(t *testing.T) {
	store := NewMemIdem(time.Minute)
	defer store.Close()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	var got []string
	h := NatsxChain(func(_ context.Context, m NatsxMessage) error {
		got = append(got, string(m.Data))
		return nil
	}, NatsxIdemMiddleware(store, time.Minute))

	ctx := context.Background()
	_ = h(ctx, NatsxMessage{Subject: "s", Data: []byte("a"), Header: map[string]string{HeaderMsgID: "3-11"}})
	_ = h(ctx, NatsxMessage{Subject: "s", Data: []byte("a again"), Header: map[string]string{HeaderMsgID: "3-11"}})
	_ = h(ctx, NatsxMessage{Subject: "s", Data: []byte("b")})
	_ = h(ctx, NatsxMessage{Subject: "s", Data: []byte("b")})

	now = now.Add(2 * time.Minute)
	_ = h(ctx, NatsxMessage{Subject: "s", Data: []byte("a later"), Header: map[string]string{HeaderMsgID: "3-11"}})

	assert.Equal(t, []string{"a", "b", "a later"}, got)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) NatsxMiddleware {
		return func(next NatsxHandler) NatsxHandler {
			return func(ctx context.Context, m NatsxMessage) error {
				order = append(order, name)
				return next(ctx, m)
			}
		}
	}
	h := NatsxChain(func(context.Context, NatsxMessage) error { order = append(order, "h"); return nil }, mw("a"), mw("b"))
	require.NoError(t, h(context.Background(), NatsxMessage{}))
	assert.Equal(t, []string{"a", "b", "h"}, order)
}

func TestCallbackCopiesMessage(t *testing.T) {
	var got NatsxMessage
	cb := Callback(func(_ context.Context, m NatsxMessage) error { got = m; return nil })
	src := newMsg("s", []byte("xy"), map[string]string{"K": "v"})
	cb(src)
	src.Data[0] = 'z'
	assert.Equal(t, "xy", string(got.Data))
	assert.Equal(t, "v", got.Header["K"])
}

func TestNewClientNeedsServers(t *testing.T) {
	_, err := NewNatsxClient(NatsxConfig{})
	assert.Error(t, err)
}

func TestMessageKey(t *testing.T) {
	assert.Equal(t, "3-11", NatsxMessage{Subject: "s", Header: map[string]string{"nats-msg-id": "3-11"}}.Key())
	assert.Equal(t, "s|body", NatsxMessage{Subject: "s", Data: []byte(" body\n")}.Key())
}
