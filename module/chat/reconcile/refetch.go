package reconcile

import (
	"context"
	"time"

	"PPClient/logger"
	"PPClient/module/chat/cache"
	"PPClient/module/chat/model"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Fetcher is the request/response side of the server (the CRUD API).
type Fetcher interface {
	Chats(ctx context.Context) ([]model.ChatSummary, error)
	Messages(ctx context.Context, chatID int64) ([]model.Message, error)
	User(ctx context.Context, userID int64) (model.User, error)
}

// Refetcher drains cache invalidations and hydrates the cache from the API.
type Refetcher struct {
	store cache.Store
	api   Fetcher
	log   *zap.Logger
	retry time.Duration
}

func NewRefetcher(store cache.Store, api Fetcher, log *zap.Logger) *Refetcher {
	return &Refetcher{
		store: store,
		api:   api,
		log:   logger.OrNamed(log, "refetch"),
		retry: 3 * time.Second,
	}
}

// Run blocks until ctx is done. Failed keys are re-queued after a delay.
func (f *Refetcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.store.Invalidated():
		}
		keys := f.store.TakeInvalidations()
		if len(keys) == 0 {
			continue
		}
		failed, err := f.Refresh(ctx, keys)
		if len(failed) == 0 {
			continue
		}
		f.log.Warn("refetch failed, will retry", zap.Int("keys", len(failed)), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.retry):
			f.store.Invalidate(failed...)
		}
	}
}

// Refresh fetches keys once. Chat entries are served by the chat list, so
// any number of chat keys costs a single list request.
func (f *Refetcher) Refresh(ctx context.Context, keys []cache.Key) (failed []cache.Key, err error) {
	var listKeys []cache.Key
	for _, k := range keys {
		switch k.Kind {
		case cache.KindChats, cache.KindChat:
			listKeys = append(listKeys, k)
		case cache.KindMessages:
			msgs, e := f.api.Messages(ctx, k.ID)
			if e != nil {
				failed, err = append(failed, k), errors.WithMessagef(e, "fetch %s", k)
				continue
			}
			f.store.HydrateMessages(k.ID, msgs)
		case cache.KindUser:
			u, e := f.api.User(ctx, k.ID)
			if e != nil {
				failed, err = append(failed, k), errors.WithMessagef(e, "fetch %s", k)
				continue
			}
			f.store.HydrateUser(u)
		default:
			f.log.Warn("unknown cache key", zap.Stringer("key", k))
		}
	}
	if len(listKeys) > 0 {
		chats, e := f.api.Chats(ctx)
		if e != nil {
			failed, err = append(failed, listKeys...), errors.WithMessage(e, "fetch chats")
		} else {
			f.store.HydrateChats(chats)
		}
	}
	if len(failed) == 0 {
		f.log.Debug("refetched", zap.Int("keys", len(keys)))
	}
	return failed, err
}
