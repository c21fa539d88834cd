package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PPClient/module/chat/cache"
	"PPClient/module/chat/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeAPI struct {
	mu       sync.Mutex
	calls    map[string]int
	failMsgs bool
}

func (a *fakeAPI) hit(k string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calls == nil {
		a.calls = map[string]int{}
	}
	a.calls[k]++
}

func (a *fakeAPI) count(k string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[k]
}

func (a *fakeAPI) Chats(context.Context) ([]model.ChatSummary, error) {
	a.hit("chats")
	return []model.ChatSummary{{ID: 3, Name: "ops", IsGroup: true}}, nil
}

func (a *fakeAPI) Messages(_ context.Context, chatID int64) ([]model.Message, error) {
	a.hit("messages")
	a.mu.Lock()
	fail := a.failMsgs
	a.mu.Unlock()
	if fail {
		return nil, errors.New("503")
	}
	return []model.Message{{ID: 1, ChatID: chatID, Content: "a"}, {ID: 2, ChatID: chatID, Content: "b"}}, nil
}

func (a *fakeAPI) User(_ context.Context, userID int64) (model.User, error) {
	a.hit("user")
	return model.User{ID: userID, DisplayName: "u"}, nil
}

func TestRefreshCoalescesChatKeys(t *testing.T) {
	store := cache.NewMemory()
	api := &fakeAPI{}
	f := NewRefetcher(store, api, zaptest.NewLogger(t))

	store.Invalidate(cache.ChatList, cache.Chat(3), cache.Chat(4), cache.Messages(3), cache.User(20))
	failed, err := f.Refresh(context.Background(), store.TakeInvalidations())
	require.NoError(t, err)
	assert.Empty(t, failed)

	assert.Equal(t, 1, api.count("chats"))
	assert.Equal(t, 1, api.count("messages"))
	assert.Equal(t, 1, api.count("user"))
	assert.Len(t, store.Messages(3), 2)
	assert.False(t, store.IsStale(cache.ChatList))
	assert.False(t, store.IsStale(cache.Messages(3)))
	_, ok := store.User(20)
	assert.True(t, ok)
}

func TestRefreshReportsFailures(t *testing.T) {
	store := cache.NewMemory()
	api := &fakeAPI{failMsgs: true}
	f := NewRefetcher(store, api, zaptest.NewLogger(t))

	store.Invalidate(cache.Messages(3), cache.User(1))
	failed, err := f.Refresh(context.Background(), store.TakeInvalidations())
	assert.Error(t, err)
	assert.Equal(t, []cache.Key{cache.Messages(3)}, failed)
	assert.True(t, store.IsStale(cache.Messages(3)))
	assert.False(t, store.IsStale(cache.User(1)))
}

func TestRunRetriesUntilSuccess(t *testing.T) {
	store := cache.NewMemory()
	api := &fakeAPI{failMsgs: true}
	f := NewRefetcher(store, api, zaptest.NewLogger(t))
	f.retry = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	store.Invalidate(cache.Messages(3))
	require.Eventually(t, func() bool { return api.count("messages") >= 2 }, 2*time.Second, 5*time.Millisecond)
	api.mu.Lock()
	api.failMsgs = false
	api.mu.Unlock()
	require.Eventually(t, func() bool { return len(store.Messages(3)) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, store.IsStale(cache.Messages(3)))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
