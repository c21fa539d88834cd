package chat

import (
	"time"

	"PPClient/module/chat/model"
	"PPClient/tools/decode"
	"PPClient/tools/errs"

	json "github.com/goccy/go-json"
)

// ===== frame types =====

// outbound
const (
	TypeAuthenticate    = "authenticate"
	TypeHeartbeat       = "heartbeat"
	TypeTyping          = "typing"
	TypeMessageReaction = "message_reaction"
	TypeSendMessage     = "send_message"
)

// inbound
const (
	TypeHeartbeatAck      = "heartbeat_ack"
	TypeAuthenticateAck   = "authenticate_ack"
	TypeNewMessage        = "new_message"
	TypeMessageEdited     = "message_edited"
	TypeMessageDeleted    = "message_deleted"
	TypeReactionUpdate    = "reaction_update"
	TypeTypingIndicator   = "typing_indicator"
	TypeProfileUpdate     = "profile_update"
	TypeUserStatusChanged = "user_status_changed"
	TypeGroupInvitation   = "group_invitation"
	TypeUserJoinedGroup   = "user_joined_group"
	TypeUserLeftGroup     = "user_left_group"
	TypeNewChat           = "new_chat"
)

// Frame is one decoded inbound text frame.
type Frame struct {
	Type    string         // wire type tag
	Event   Event          // decoded variant; Unknown for unrecognized tags
	Payload map[string]any // payload object as received
	Raw     []byte
}

// Event is the closed set of inbound variants.
type Event interface {
	EventType() string
}

type HeartbeatAck struct {
	Timestamp int64 `json:"timestamp"`
}

type AuthenticateAck struct {
	UserID   int64  `json:"userId"`
	ClientID string `json:"clientId"`
	Success  bool   `json:"success"`
}

type NewMessage struct {
	Message model.Message
}

type MessageEdited struct {
	ID       int64     `json:"id"`
	ChatID   int64     `json:"chatId"`
	Content  string    `json:"content"`
	MediaURL string    `json:"mediaUrl"`
	EditedAt time.Time `json:"editedAt"`
}

type MessageDeleted struct {
	ID     int64 `json:"id"`
	ChatID int64 `json:"chatId"`
}

type ReactionUpdate struct {
	MessageID int64              `json:"messageId"`
	ChatID    int64              `json:"chatId"`
	Reactions map[string][]int64 `json:"reactions"`
}

type TypingIndicator struct {
	ChatID int64 `json:"chatId"`
	UserID int64 `json:"userId"`
}

type ProfileUpdate struct {
	UserID      int64   `json:"userId"`
	Avatar      *string `json:"avatar"`
	DisplayName *string `json:"displayName"`
}

type UserStatusChanged struct {
	UserID   int64     `json:"userId"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

type GroupInvitation struct {
	Chat model.ChatSummary `json:"chat"`
}

type UserJoinedGroup struct {
	ChatID int64      `json:"chatId"`
	User   model.User `json:"user"`
}

type UserLeftGroup struct {
	ChatID      int64  `json:"chatId"`
	UserID      int64  `json:"userId"`
	DisplayName string `json:"displayName"`
}

type NewChat struct {
	Chat model.ChatSummary `json:"chat"`
}

// Unknown carries frames whose type tag this client does not know.
type Unknown struct {
	Type    string
	Payload map[string]any
}

func (HeartbeatAck) EventType() string      { return TypeHeartbeatAck }
func (AuthenticateAck) EventType() string   { return TypeAuthenticateAck }
func (NewMessage) EventType() string        { return TypeNewMessage }
func (MessageEdited) EventType() string     { return TypeMessageEdited }
func (MessageDeleted) EventType() string    { return TypeMessageDeleted }
func (ReactionUpdate) EventType() string    { return TypeReactionUpdate }
func (TypingIndicator) EventType() string   { return TypeTypingIndicator }
func (ProfileUpdate) EventType() string     { return TypeProfileUpdate }
func (UserStatusChanged) EventType() string { return TypeUserStatusChanged }
func (GroupInvitation) EventType() string   { return TypeGroupInvitation }
func (UserJoinedGroup) EventType() string   { return TypeUserJoinedGroup }
func (UserLeftGroup) EventType() string     { return TypeUserLeftGroup }
func (NewChat) EventType() string           { return TypeNewChat }
func (u Unknown) EventType() string         { return u.Type }

// ===== inbound decoding =====

// ParseFrame decodes one text frame. The payload may be nested under
// "payload" or sent as top-level fields next to "type".
func ParseFrame(raw []byte) (Frame, error) {
	m, err := decode.ObjectOf(raw)
	if err != nil {
		return Frame{}, errs.ErrMalformedFrame.WrapMsg(err.Error())
	}
	t, err := decode.ReadString(m, "type")
	if err != nil || t == "" {
		return Frame{}, errs.ErrMalformedFrame.WrapMsg("missing type")
	}

	payload, ok := m["payload"].(map[string]any)
	if !ok {
		if p, present := m["payload"]; present && p != nil {
			return Frame{}, errs.ErrMalformedFrame.WrapMsg("payload is not an object", "type", t)
		}
		payload = make(map[string]any, len(m))
		for k, v := range m {
			if k != "type" {
				payload[k] = v
			}
		}
	}

	ev, err := decodeEvent(t, payload)
	if err != nil {
		return Frame{}, errs.ErrMalformedFrame.WrapMsg(err.Error(), "type", t)
	}
	return Frame{Type: t, Event: ev, Payload: payload, Raw: raw}, nil
}

func decodeEvent(t string, p map[string]any) (Event, error) {
	switch t {
	case TypeHeartbeatAck:
		return decodeAs[HeartbeatAck](p)
	case TypeAuthenticateAck:
		return decodeAs[AuthenticateAck](p)
	case TypeNewMessage:
		body := p
		if inner, ok := p["message"].(map[string]any); ok {
			body = inner
		}
		msg, err := decode.DecodeMap[model.Message](body)
		if err != nil {
			return nil, err
		}
		return NewMessage{Message: *msg}, nil
	case TypeMessageEdited:
		return decodeAs[MessageEdited](p)
	case TypeMessageDeleted:
		return decodeAs[MessageDeleted](p)
	case TypeReactionUpdate:
		return decodeAs[ReactionUpdate](p)
	case TypeTypingIndicator:
		return decodeAs[TypingIndicator](p)
	case TypeProfileUpdate:
		return decodeAs[ProfileUpdate](p)
	case TypeUserStatusChanged:
		return decodeAs[UserStatusChanged](p)
	case TypeGroupInvitation:
		return decodeAs[GroupInvitation](p)
	case TypeUserJoinedGroup:
		return decodeAs[UserJoinedGroup](p)
	case TypeUserLeftGroup:
		return decodeAs[UserLeftGroup](p)
	case TypeNewChat:
		return decodeAs[NewChat](p)
	default:
		return Unknown{Type: t, Payload: p}, nil
	}
}

func decodeAs[T Event](p map[string]any) (Event, error) {
	v, err := decode.DecodeMap[T](p)
	if err != nil {
		return nil, err
	}
	return *v, nil
}

// ===== outbound payloads =====

type AuthenticatePayload struct {
	UserID    int64  `json:"userId"`
	ClientID  string `json:"clientId"`
	Timestamp int64  `json:"timestamp"`
}

type HeartbeatPayload struct {
	Timestamp int64  `json:"timestamp"`
	ClientID  string `json:"clientId"`
}

type TypingPayload struct {
	ChatID int64 `json:"chatId"`
}

type ReactionPayload struct {
	MessageID int64  `json:"messageId"`
	Reaction  string `json:"reaction"`
}

type SendMessagePayload struct {
	ChatID      int64  `json:"chatId"`
	Content     string `json:"content"`
	MediaURL    string `json:"mediaUrl,omitempty"`
	ReplyToID   int64  `json:"replyToId,omitempty"`
	ClientMsgID string `json:"clientMessageId"`
}

type outboundFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// EncodeOutbound renders msg as a {"type","payload"} text frame.
func EncodeOutbound(msg OutboundMessage) ([]byte, error) {
	if msg.Type == "" {
		return nil, errs.ErrArgs.WrapMsg("outbound message without type")
	}
	payload := msg.Payload
	if payload == nil {
		payload = struct{}{}
	}
	b, err := json.Marshal(outboundFrame{Type: msg.Type, Payload: payload})
	if err != nil {
		return nil, errs.WrapMsg(err, "encode outbound", "type", msg.Type)
	}
	return b, nil
}
