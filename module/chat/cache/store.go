package cache

import (
	"strconv"

	"PPClient/module/chat/model"
)

// Kind names a class of cached view state.
type Kind uint8

const (
	KindChats    Kind = iota + 1 // the chat list as a whole
	KindMessages                 // one chat's message list
	KindUser                     // one user projection
	KindChat                     // one chat summary (group entry or direct chat counterpart)
)

func (k Kind) String() string {
	switch k {
	case KindChats:
		return "chats"
	case KindMessages:
		return "messages"
	case KindUser:
		return "user"
	case KindChat:
		return "chat"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Key identifies a stale-able entry. ID is zero for KindChats.
type Key struct {
	Kind Kind
	ID   int64
}

func (k Key) String() string {
	if k.Kind == KindChats {
		return k.Kind.String()
	}
	return k.Kind.String() + ":" + strconv.FormatInt(k.ID, 10)
}

var ChatList = Key{Kind: KindChats}

func Messages(chatID int64) Key { return Key{Kind: KindMessages, ID: chatID} }
func User(userID int64) Key     { return Key{Kind: KindUser, ID: userID} }
func Chat(chatID int64) Key     { return Key{Kind: KindChat, ID: chatID} }

// Store is the view-state cache written by the reconciler and the refetcher.
// Readers get copies; nothing returned aliases internal state.
type Store interface {
	HasMessage(chatID, msgID int64) bool
	// AppendMessage adds m to its chat; false when (ChatID, ID) is already present.
	AppendMessage(m model.Message) bool
	// UpdateMessage applies fn to a copy of the message and stores the result.
	// False when the message is not cached.
	UpdateMessage(chatID, msgID int64, fn func(*model.Message)) bool
	Messages(chatID int64) []model.Message

	// PatchSummary applies fn to a copy of the chat summary; false when the
	// chat is unknown.
	PatchSummary(chatID int64, fn func(*model.ChatSummary)) bool
	Summary(chatID int64) (model.ChatSummary, bool)
	Summaries() []model.ChatSummary
	User(userID int64) (model.User, bool)

	// Invalidate marks keys stale and queues them for refetch.
	Invalidate(keys ...Key)
	IsStale(k Key) bool
	// Invalidated signals (coalesced) that TakeInvalidations has work.
	Invalidated() <-chan struct{}
	// TakeInvalidations returns and clears the refetch queue. Keys stay stale
	// until hydrated.
	TakeInvalidations() []Key

	HydrateChats(chats []model.ChatSummary)
	HydrateMessages(chatID int64, msgs []model.Message)
	HydrateUser(u model.User)
}
