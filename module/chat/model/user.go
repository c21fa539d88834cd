package model

import "time"

// User is the cached projection of another account.
type User struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"displayName"`
	Avatar      string    `json:"avatar,omitempty"`
	Online      bool      `json:"online"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Notification is raised for a message arriving in a chat that is not open.
type Notification struct {
	ChatID    int64     `json:"chatId"`
	ChatName  string    `json:"chatName,omitempty"`
	MessageID int64     `json:"messageId"`
	SenderID  int64     `json:"senderId"`
	Preview   string    `json:"preview"`
	At        time.Time `json:"at"`
}
