package cache

import (
	"testing"
	"time"

	"PPClient/module/chat/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func msg(chat, id int64, content string) model.Message {
	return model.Message{ID: id, ChatID: chat, SenderID: 9, Content: content, CreatedAt: t0.Add(time.Duration(id) * time.Second)}
}

func TestAppendIsIdempotent(t *testing.T) {
	s := NewMemory()
	assert.True(t, s.AppendMessage(msg(3, 7, "hi")))
	assert.False(t, s.AppendMessage(msg(3, 7, "hi again")))
	assert.True(t, s.AppendMessage(msg(4, 7, "other chat")))

	got := s.Messages(3)
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Content)
	assert.True(t, s.HasMessage(4, 7))
	assert.False(t, s.HasMessage(4, 8))
}

func TestReadsDoNotAlias(t *testing.T) {
	s := NewMemory()
	m := msg(1, 1, "x")
	m.Reactions = map[string][]int64{"👍": {1}}
	s.AppendMessage(m)
	m.Reactions["👍"][0] = 99

	got := s.Messages(1)
	got[0].Reactions["👍"] = append(got[0].Reactions["👍"], 5)
	assert.Equal(t, []int64{1}, s.Messages(1)[0].Reactions["👍"])
}

func TestUpdateMessageKeepsIdentity(t *testing.T) {
	s := NewMemory()
	s.AppendMessage(msg(1, 1, "a"))
	s.AppendMessage(msg(1, 2, "b"))

	ok := s.UpdateMessage(1, 1, func(m *model.Message) {
		m.Content = "edited"
		m.ID = 500
	})
	require.True(t, ok)
	got := s.Messages(1)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, "edited", got[0].Content)
	assert.Equal(t, "b", got[1].Content)
	assert.False(t, s.UpdateMessage(1, 3, func(*model.Message) {}))
	assert.False(t, s.UpdateMessage(2, 1, func(*model.Message) {}))
}

func TestSummaries(t *testing.T) {
	s := NewMemory()
	assert.False(t, s.PatchSummary(3, func(*model.ChatSummary) {}))

	s.HydrateChats([]model.ChatSummary{
		{ID: 3, Name: "ops", IsGroup: true},
		{ID: 1, Name: "ann", Counterpart: &model.User{ID: 20, DisplayName: "ann"}},
	})
	require.True(t, s.PatchSummary(3, func(c *model.ChatSummary) {
		c.UnreadCount++
		c.LastMessage = msg(3, 7, "hi").Preview()
	}))
	sum, ok := s.Summary(3)
	require.True(t, ok)
	assert.Equal(t, 1, sum.UnreadCount)
	assert.Equal(t, int64(7), sum.LastMessageID())

	list := s.Summaries()
	require.Len(t, list, 2)
	assert.Equal(t, int64(3), list[0].ID)
	assert.Equal(t, int64(1), list[1].ID)

	u, ok := s.User(20)
	require.True(t, ok)
	assert.Equal(t, "ann", u.DisplayName)

	s.HydrateUser(model.User{ID: 20, DisplayName: "Ann B", Online: true})
	sum, _ = s.Summary(1)
	assert.Equal(t, "Ann B", sum.Counterpart.DisplayName)
	assert.True(t, sum.Counterpart.Online)
}

func TestInvalidationsCoalesce(t *testing.T) {
	s := NewMemory()
	s.Invalidate(ChatList, Messages(3))
	s.Invalidate(ChatList, User(20))

	select {
	case <-s.Invalidated():
	default:
		t.Fatal("expected signal")
	}
	select {
	case <-s.Invalidated():
		t.Fatal("signal should coalesce")
	default:
	}

	assert.Equal(t, []Key{ChatList, Messages(3), User(20)}, s.TakeInvalidations())
	assert.Empty(t, s.TakeInvalidations())

	// stale until hydrated
	assert.True(t, s.IsStale(Messages(3)))
	s.HydrateMessages(3, nil)
	assert.False(t, s.IsStale(Messages(3)))
	assert.True(t, s.IsStale(ChatList))
	s.HydrateChats(nil)
	assert.False(t, s.IsStale(ChatList))

	s.Invalidate(ChatList)
	assert.Equal(t, []Key{ChatList}, s.TakeInvalidations())
}

func TestHydrateMessagesMerges(t *testing.T) {
	s := NewMemory()
	s.AppendMessage(msg(3, 7, "live"))
	s.AppendMessage(msg(3, 9, "newer"))

	edited := msg(3, 7, "server copy")
	s.HydrateMessages(3, []model.Message{msg(3, 8, "gap"), edited, msg(5, 1, "wrong chat")})

	got := s.Messages(3)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{7, 8, 9}, []int64{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "server copy", got[0].Content)
	assert.Nil(t, s.Messages(5))

	// index follows the re-sort
	require.True(t, s.UpdateMessage(3, 9, func(m *model.Message) { m.Content = "n2" }))
	assert.Equal(t, "n2", s.Messages(3)[2].Content)
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "chats", ChatList.String())
	assert.Equal(t, "messages:3", Messages(3).String())
	assert.Equal(t, "user:20", User(20).String())
	assert.Equal(t, "chat:4", Chat(4).String())
}
