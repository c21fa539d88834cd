package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"PPClient/logger"
	"PPClient/module/chat/cache"
	"PPClient/module/chat/model"
	"PPClient/service/chat"
	"PPClient/tools/clock"
	"PPClient/tools/safe"

	"go.uber.org/zap"
)

const (
	defaultNotifyBuffer = 64
	previewRunes        = 80
	notifyTimeout       = 5 * time.Second
)

type Options struct {
	SelfID       int64
	TypingTTL    time.Duration
	Clock        clock.Clock
	Notifier     Notifier
	NotifyBuffer int
	Logger       *zap.Logger
}

// Reconciler applies real-time events to the cache. It is the only writer
// on the real-time path; every handler is idempotent.
type Reconciler struct {
	store  cache.Store
	typing *TypingSet
	clk    clock.Clock
	log    *zap.Logger

	self   atomic.Int64
	active atomic.Int64

	notifier Notifier
	notes    chan model.Notification
	done     chan struct{}

	mu     sync.Mutex
	unsubs []func()
	closed bool
}

func New(store cache.Store, opts Options) *Reconciler {
	safe.MustNotNil(store, "store")
	if opts.NotifyBuffer <= 0 {
		opts.NotifyBuffer = defaultNotifyBuffer
	}
	r := &Reconciler{
		store:    store,
		clk:      clock.Or(opts.Clock),
		log:      logger.OrNamed(opts.Logger, "reconcile"),
		notifier: opts.Notifier,
		done:     make(chan struct{}),
	}
	r.typing = NewTypingSet(opts.TypingTTL, r.clk)
	r.self.Store(opts.SelfID)
	if r.notifier == nil {
		r.notifier = LogNotifier{Log: r.log}
	}
	r.notes = make(chan model.Notification, opts.NotifyBuffer)
	safe.SafeGo("reconcile-notify", r.notifyLoop)
	return r
}

func (r *Reconciler) Typing() *TypingSet { return r.typing }

func (r *Reconciler) SetSelf(userID int64) { r.self.Store(userID) }

// SetActiveChat selects the chat whose messages are appended live. 0 clears.
func (r *Reconciler) SetActiveChat(chatID int64) {
	if r.active.Swap(chatID) == chatID {
		return
	}
	r.log.Debug("active chat", zap.Int64("chatId", chatID))
	if chatID != 0 && r.store.IsStale(cache.Messages(chatID)) {
		// re-queue so the newly opened chat is fetched first
		r.store.Invalidate(cache.Messages(chatID))
	}
}

func (r *Reconciler) ActiveChat() int64 { return r.active.Load() }

// Attach subscribes to every frame of d. Detach undoes it.
func (r *Reconciler) Attach(d *chat.Dispatcher) {
	unsub := d.SubscribeAll(func(f chat.Frame) { r.Apply(f.Event) })
	r.mu.Lock()
	r.unsubs = append(r.unsubs, unsub)
	r.mu.Unlock()
}

func (r *Reconciler) Detach() {
	r.mu.Lock()
	unsubs := r.unsubs
	r.unsubs = nil
	r.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// Resync marks everything that may have been missed while offline as stale.
func (r *Reconciler) Resync() {
	keys := []cache.Key{cache.ChatList}
	if id := r.ActiveChat(); id != 0 {
		keys = append(keys, cache.Messages(id))
	}
	r.typing.Clear()
	r.store.Invalidate(keys...)
}

// Apply reconciles one event.
func (r *Reconciler) Apply(ev chat.Event) {
	switch e := ev.(type) {
	case chat.NewMessage:
		r.newMessage(e.Message)
	case chat.MessageEdited:
		r.messageEdited(e)
	case chat.MessageDeleted:
		r.messageDeleted(e)
	case chat.ReactionUpdate:
		r.store.UpdateMessage(e.ChatID, e.MessageID, func(m *model.Message) {
			m.Reactions = model.CloneReactions(e.Reactions)
		})
	case chat.TypingIndicator:
		if e.UserID == r.self.Load() || e.ChatID == 0 {
			return
		}
		r.typing.Add(e.ChatID, e.UserID)
	case chat.ProfileUpdate:
		r.userChanged(e.UserID)
	case chat.UserStatusChanged:
		r.userChanged(e.UserID)
	case chat.GroupInvitation:
		r.store.Invalidate(cache.ChatList)
	case chat.NewChat:
		r.store.Invalidate(cache.ChatList)
	case chat.UserJoinedGroup:
		r.store.Invalidate(cache.ChatList, cache.Chat(e.ChatID))
	case chat.UserLeftGroup:
		r.store.Invalidate(cache.ChatList, cache.Chat(e.ChatID))
	case chat.AuthenticateAck, chat.HeartbeatAck:
	case chat.Unknown:
		r.log.Debug("ignoring unknown event", zap.String("type", e.Type))
	default:
		r.log.Warn("unhandled event", zap.String("type", ev.EventType()))
	}
}

func (r *Reconciler) newMessage(m model.Message) {
	if m.ID == 0 || m.ChatID == 0 {
		r.log.Warn("new_message without identity", zap.Int64("id", m.ID), zap.Int64("chatId", m.ChatID))
		return
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.clk.Now()
	}
	if r.store.HasMessage(m.ChatID, m.ID) {
		return
	}
	r.typing.Remove(m.ChatID, m.SenderID)
	self := r.self.Load()

	if m.ChatID == r.ActiveChat() {
		if !r.store.AppendMessage(m) {
			return
		}
		r.store.PatchSummary(m.ChatID, func(c *model.ChatSummary) {
			if c.LastMessageID() < m.ID {
				c.LastMessage = m.Preview()
				c.UpdatedAt = m.CreatedAt
			}
		})
		return
	}

	var (
		patched bool
		name    string
	)
	known := r.store.PatchSummary(m.ChatID, func(c *model.ChatSummary) {
		if c.LastMessageID() >= m.ID {
			return
		}
		c.LastMessage = m.Preview()
		c.UpdatedAt = m.CreatedAt
		if m.SenderID != self {
			c.UnreadCount++
		}
		patched, name = true, c.Name
	})
	if !known {
		// a chat we have never listed
		r.store.Invalidate(cache.ChatList, cache.Messages(m.ChatID))
	} else if !patched {
		return
	} else {
		r.store.Invalidate(cache.Messages(m.ChatID))
	}
	if m.SenderID == self {
		return
	}
	r.enqueueNote(model.Notification{
		ChatID:    m.ChatID,
		ChatName:  name,
		MessageID: m.ID,
		SenderID:  m.SenderID,
		Preview:   preview(m),
		At:        m.CreatedAt,
	})
}

func (r *Reconciler) messageEdited(e chat.MessageEdited) {
	at := e.EditedAt
	if at.IsZero() {
		at = r.clk.Now()
	}
	deleted := false
	r.store.UpdateMessage(e.ChatID, e.ID, func(m *model.Message) {
		if m.IsDeleted {
			deleted = true
			return
		}
		m.Content = e.Content
		if e.MediaURL != "" {
			m.MediaURL = e.MediaURL
		}
		m.EditedAt = at
	})
	if deleted {
		return
	}
	r.store.PatchSummary(e.ChatID, func(c *model.ChatSummary) {
		if c.LastMessage == nil || c.LastMessage.ID != e.ID || c.LastMessage.IsDeleted {
			return
		}
		c.LastMessage.Content = e.Content
		if e.MediaURL != "" {
			c.LastMessage.HasMedia = true
		}
	})
}

func (r *Reconciler) messageDeleted(e chat.MessageDeleted) {
	r.store.UpdateMessage(e.ChatID, e.ID, func(m *model.Message) {
		m.IsDeleted = true
		m.Content = ""
		m.MediaURL = ""
	})
	r.store.PatchSummary(e.ChatID, func(c *model.ChatSummary) {
		if c.LastMessage == nil || c.LastMessage.ID != e.ID {
			return
		}
		c.LastMessage.IsDeleted = true
		c.LastMessage.Content = ""
		c.LastMessage.HasMedia = false
	})
}

func (r *Reconciler) userChanged(userID int64) {
	keys := []cache.Key{cache.ChatList, cache.User(userID)}
	if id := r.ActiveChat(); id != 0 {
		if c, ok := r.store.Summary(id); ok && c.Counterpart != nil && c.Counterpart.ID == userID {
			keys = append(keys, cache.Chat(id))
		}
	}
	r.store.Invalidate(keys...)
}

func (r *Reconciler) enqueueNote(n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.notes <- n:
	default:
		r.log.Warn("notification dropped, queue full", zap.Int64("chatId", n.ChatID), zap.Int64("messageId", n.MessageID))
	}
}

func (r *Reconciler) notifyLoop() {
	defer close(r.done)
	for n := range r.notes {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		err := safe.Call(func() {
			if err := r.notifier.Notify(ctx, n); err != nil {
				r.log.Warn("notify failed", zap.Int64("chatId", n.ChatID), zap.Error(err))
			}
		})
		cancel()
		if err != nil {
			r.log.Error("notifier panic", zap.Error(err))
		}
	}
}

// Close detaches, stops typing timers and drains pending notifications.
func (r *Reconciler) Close() {
	r.Detach()
	r.typing.Clear()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.notes)
	r.mu.Unlock()
	<-r.done
}

func preview(m model.Message) string {
	s := m.Content
	if s == "" && m.MediaURL != "" {
		return "[media]"
	}
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	rs := []rune(s)
	return string(rs[:previewRunes]) + "…"
}
