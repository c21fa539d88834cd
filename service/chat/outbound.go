package chat

import (
	"sync"
	"time"

	"PPClient/tools/ids"
)

// OutboundMessage is an application message handed to Manager.Send.
type OutboundMessage struct {
	Type       string
	Payload    any
	EnqueuedAt time.Time
	LocalID    int64 // locally generated id, used in logs and as client message id
}

// IsEphemeral reports whether losing a message of type t on disconnect is acceptable.
func IsEphemeral(t string) bool {
	switch t {
	case TypeHeartbeat, TypeTyping:
		return true
	}
	return false
}

func NewTyping(chatID int64) OutboundMessage {
	return OutboundMessage{Type: TypeTyping, Payload: TypingPayload{ChatID: chatID}, LocalID: ids.Generate()}
}

func NewReaction(messageID int64, reaction string) OutboundMessage {
	return OutboundMessage{
		Type:    TypeMessageReaction,
		Payload: ReactionPayload{MessageID: messageID, Reaction: reaction},
		LocalID: ids.Generate(),
	}
}

// NewChatMessage builds a send_message frame; its LocalID doubles as the
// client message id the server echoes back in new_message.
func NewChatMessage(chatID int64, content, mediaURL string, replyTo int64) OutboundMessage {
	id := ids.Generate()
	return OutboundMessage{
		Type: TypeSendMessage,
		Payload: SendMessagePayload{
			ChatID:      chatID,
			Content:     content,
			MediaURL:    mediaURL,
			ReplyToID:   replyTo,
			ClientMsgID: ids.FormatID(id),
		},
		LocalID: id,
	}
}

// OutboundQueue holds messages refused while not authenticated, in enqueue order.
type OutboundQueue struct {
	mu    sync.Mutex
	items []OutboundMessage
}

func NewOutboundQueue() *OutboundQueue {
	return &OutboundQueue{}
}

// Push appends msg. Ephemeral messages are refused.
func (q *OutboundQueue) Push(msg OutboundMessage) bool {
	if IsEphemeral(msg.Type) {
		return false
	}
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
	return true
}

// Drain removes and returns every queued message.
func (q *OutboundQueue) Drain() []OutboundMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the queued messages.
func (q *OutboundQueue) Snapshot() []OutboundMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]OutboundMessage(nil), q.items...)
}
