package model

import "time"

// ChatSummary is one row of the chat list.
type ChatSummary struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`                  // group name or counterpart display name
	IsGroup     bool            `json:"isGroup"`               // false: direct chat
	AvatarURL   string          `json:"avatar,omitempty"`      //
	LastMessage *MessagePreview `json:"lastMessage,omitempty"` // last-message projection
	UnreadCount int             `json:"unreadCount"`           //
	Counterpart *User           `json:"counterpart,omitempty"` // direct chats only
	MemberCount int             `json:"memberCount,omitempty"` // group chats only
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (c ChatSummary) Clone() ChatSummary {
	out := c
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	if c.Counterpart != nil {
		cp := *c.Counterpart
		out.Counterpart = &cp
	}
	return out
}

// LastMessageID returns 0 when the chat has no last message yet.
func (c ChatSummary) LastMessageID() int64 {
	if c.LastMessage == nil {
		return 0
	}
	return c.LastMessage.ID
}
