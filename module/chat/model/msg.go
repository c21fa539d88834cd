package model

import "time"

// Message is one chat message as held in the local cache.
// Identity is (ChatID, ID); ID is assigned by the server and grows per chat.
type Message struct {
	ID          int64              `json:"id"`                        // server message id
	ChatID      int64              `json:"chatId"`                    // owning chat
	SenderID    int64              `json:"senderId"`                  // author user id
	Content     string             `json:"content"`                   // text body (empty once deleted)
	MediaURL    string             `json:"mediaUrl,omitempty"`        // attachment url (empty once deleted)
	ReplyToID   int64              `json:"replyToId,omitempty"`       // message this one replies to
	ClientMsgID string             `json:"clientMessageId,omitempty"` // id chosen by the sending client
	CreatedAt   time.Time          `json:"createdAt"`
	EditedAt    time.Time          `json:"editedAt"`
	IsDeleted   bool               `json:"isDeleted"`
	Reactions   map[string][]int64 `json:"reactions,omitempty"` // reaction -> user ids, server authoritative
}

// Preview projects a message into a chat summary's last-message slot.
func (m Message) Preview() *MessagePreview {
	return &MessagePreview{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		HasMedia:  m.MediaURL != "",
		IsDeleted: m.IsDeleted,
		CreatedAt: m.CreatedAt,
	}
}

// Clone returns a copy that shares no maps or slices with m.
func (m Message) Clone() Message {
	out := m
	out.Reactions = CloneReactions(m.Reactions)
	return out
}

func CloneReactions(in map[string][]int64) map[string][]int64 {
	if in == nil {
		return nil
	}
	out := make(map[string][]int64, len(in))
	for k, v := range in {
		out[k] = append([]int64(nil), v...)
	}
	return out
}

type MessagePreview struct {
	ID        int64     `json:"id"`
	SenderID  int64     `json:"senderId"`
	Content   string    `json:"content"`
	HasMedia  bool      `json:"hasMedia"`
	IsDeleted bool      `json:"isDeleted"`
	CreatedAt time.Time `json:"createdAt"`
}
