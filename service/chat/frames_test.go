package chat

import (
	"testing"
	"time"

	"PPClient/tools/errs"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFramePayloadShapes(t *testing.T) {
	nested := frameOf(t, `{"type":"new_message","payload":{"id":7,"chatId":3,"senderId":"11","content":"hi","createdAt":"2024-05-01T10:00:00.5Z"}}`)
	flat := frameOf(t, `{"type":"new_message","id":"7","chatId":3,"senderId":11,"content":"hi","createdAt":1714557600500}`)

	for _, f := range []Frame{nested, flat} {
		ev, ok := f.Event.(NewMessage)
		require.True(t, ok)
		assert.Equal(t, int64(7), ev.Message.ID)
		assert.Equal(t, int64(3), ev.Message.ChatID)
		assert.Equal(t, int64(11), ev.Message.SenderID)
		assert.Equal(t, "hi", ev.Message.Content)
		assert.True(t, ev.Message.CreatedAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 500_000_000, time.UTC)))
	}
	assert.Equal(t, "hi", flat.Payload["content"])
	assert.NotContains(t, flat.Payload, "type")
}

func TestParseFrameWrappedMessage(t *testing.T) {
	f := frameOf(t, `{"type":"new_message","payload":{"message":{"id":8,"chatId":1,"content":"x","reactions":{"👍":[1,2]}}}}`)
	ev := f.Event.(NewMessage)
	assert.Equal(t, int64(8), ev.Message.ID)
	assert.Equal(t, []int64{1, 2}, ev.Message.Reactions["👍"])
}

func TestParseFrameKeepsSnowflakeIDs(t *testing.T) {
	a := frameOf(t, `{"type":"new_message","payload":{"id":1234567890123456789,"chatId":1234567890123456001,"senderId":1234567890123456002,"content":"a"}}`)
	b := frameOf(t, `{"type":"new_message","payload":{"id":1234567890123456790,"chatId":1234567890123456001,"senderId":1234567890123456002,"content":"b"}}`)

	ma, mb := a.Event.(NewMessage).Message, b.Event.(NewMessage).Message
	assert.Equal(t, int64(1234567890123456789), ma.ID)
	assert.Equal(t, int64(1234567890123456790), mb.ID)
	assert.Equal(t, int64(1234567890123456001), ma.ChatID)
	assert.Equal(t, int64(1234567890123456002), ma.SenderID)

	r := frameOf(t, `{"type":"reaction_update","payload":{"messageId":1234567890123456789,"chatId":1,"reactions":{"ok":[1234567890123456003]}}}`)
	ru := r.Event.(ReactionUpdate)
	assert.Equal(t, int64(1234567890123456789), ru.MessageID)
	assert.Equal(t, []int64{1234567890123456003}, ru.Reactions["ok"])

	_, err := ParseFrame([]byte(`{"type":"typing_indicator","chatId":2,"userId":99999999999999999999}`))
	assert.True(t, errs.ErrMalformedFrame.Is(err))
}

func TestParseFrameVariants(t *testing.T) {
	cases := []struct {
		raw  string
		want Event
	}{
		{`{"type":"message_deleted","payload":{"id":4,"chatId":2}}`, MessageDeleted{ID: 4, ChatID: 2}},
		{`{"type":"typing_indicator","chatId":2,"userId":5}`, TypingIndicator{ChatID: 2, UserID: 5}},
		{`{"type":"user_left_group","payload":{"chatId":2,"displayName":"Ana"}}`, UserLeftGroup{ChatID: 2, DisplayName: "Ana"}},
		{`{"type":"heartbeat_ack"}`, HeartbeatAck{}},
		{`{"type":"mystery","payload":{"a":1}}`, Unknown{Type: "mystery", Payload: map[string]any{"a": json.Number("1")}}},
	}
	for _, c := range cases {
		f := frameOf(t, c.raw)
		assert.Equal(t, c.want, f.Event, c.raw)
		assert.Equal(t, c.want.EventType(), f.Type)
	}

	f := frameOf(t, `{"type":"profile_update","payload":{"userId":3,"displayName":"New"}}`)
	pu := f.Event.(ProfileUpdate)
	require.NotNil(t, pu.DisplayName)
	assert.Equal(t, "New", *pu.DisplayName)
	assert.Nil(t, pu.Avatar)

	f = frameOf(t, `{"type":"reaction_update","payload":{"messageId":7,"chatId":3,"reactions":{"❤️":["4"]}}}`)
	assert.Equal(t, map[string][]int64{"❤️": {4}}, f.Event.(ReactionUpdate).Reactions)
}

func TestParseFrameMalformed(t *testing.T) {
	for _, raw := range []string{
		``,
		`not json`,
		`[1,2]`,
		`{"payload":{}}`,
		`{"type":""}`,
		`{"type":7}`,
		`{"type":"new_message","payload":"oops"}`,
		`{"type":"new_message","payload":{"id":"seven"}}`,
	} {
		_, err := ParseFrame([]byte(raw))
		require.Error(t, err, raw)
		assert.True(t, errs.ErrMalformedFrame.Is(err), raw)
	}
}

func TestEncodeOutbound(t *testing.T) {
	b, err := EncodeOutbound(NewReaction(7, "👍"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message_reaction","payload":{"messageId":7,"reaction":"👍"}}`, string(b))

	b, err = EncodeOutbound(NewTyping(3))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"typing","payload":{"chatId":3}}`, string(b))

	b, err = EncodeOutbound(OutboundMessage{Type: "ping"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping","payload":{}}`, string(b))

	msg := NewChatMessage(3, "hello", "", 0)
	b, err = EncodeOutbound(msg)
	require.NoError(t, err)
	var f sentFrame
	require.NoError(t, json.Unmarshal(b, &f))
	assert.Equal(t, TypeSendMessage, f.Type)
	assert.NotEmpty(t, f.Payload["clientMessageId"])
	assert.NotContains(t, f.Payload, "mediaUrl")

	_, err = EncodeOutbound(OutboundMessage{})
	assert.Error(t, err)
}
