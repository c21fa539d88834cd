package reconcile

import (
	"context"

	"PPClient/logger"
	"PPClient/module/chat/model"

	"go.uber.org/zap"
)

// Notifier receives messages that arrive in chats the user is not viewing.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

type NotifierFunc func(ctx context.Context, n model.Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n model.Notification) error { return f(ctx, n) }

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Log *zap.Logger
}

func (l LogNotifier) Notify(_ context.Context, n model.Notification) error {
	logger.OrNamed(l.Log, "notify").Info("new message",
		zap.Int64("chatId", n.ChatID),
		zap.String("chat", n.ChatName),
		zap.Int64("senderId", n.SenderID),
		zap.String("preview", n.Preview))
	return nil
}

// MultiNotifier fans out to every notifier; the first error is returned
// after all have run.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n model.Notification) error {
	var first error
	for _, x := range m {
		if x == nil {
			continue
		}
		if err := x.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
