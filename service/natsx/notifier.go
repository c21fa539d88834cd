package natsx

import (
	"context"
	"strconv"
	"time"

	"PPClient/logger"
	"PPClient/module/chat/model"
	"PPClient/tools/errs"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	HeaderMsgID = "Nats-Msg-Id"

	KindNewMessage = "new_message"
)

// Notifier publishes chat notifications as JSON to "<subject>.<kind>".
type Notifier struct {
	pub     *NatsxSyncPublisher
	subject string
	log     *zap.Logger
}

func NewNotifier(p MsgPublisher, subject string, log *zap.Logger) *Notifier {
	return &Notifier{
		pub:     &NatsxSyncPublisher{P: p, Retries: 2, Backoff: 200 * time.Millisecond},
		subject: subject,
		log:     logger.OrNamed(log, "natsx"),
	}
}

func (n *Notifier) Subject(kind string) string { return n.subject + "." + kind }

func (n *Notifier) Notify(ctx context.Context, note model.Notification) error {
	data, err := json.Marshal(note)
	if err != nil {
		return errs.WrapMsg(err, "encode notification")
	}
	id := strconv.FormatInt(note.ChatID, 10) + "-" + strconv.FormatInt(note.MessageID, 10)
	msg := newMsg(n.Subject(KindNewMessage), data, map[string]string{HeaderMsgID: id})
	if err := n.pub.Publish(ctx, msg); err != nil {
		return errs.WrapMsg(err, "publish notification", "subject", msg.Subject, "id", id)
	}
	n.log.Debug("notification published", zap.String("subject", msg.Subject), zap.String("id", id))
	return nil
}

// DecodeNotification parses a message produced by Notifier.
func DecodeNotification(msg NatsxMessage) (model.Notification, error) {
	var note model.Notification
	if err := json.Unmarshal(msg.Data, &note); err != nil {
		return note, errs.WrapMsg(err, "decode notification", "subject", msg.Subject)
	}
	return note, nil
}
