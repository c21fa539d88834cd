package cache

import (
	"sort"
	"sync"

	"PPClient/module/chat/model"
)

type chatMessages struct {
	list  []model.Message
	index map[int64]int // message id -> position in list
}

func (c *chatMessages) add(m model.Message) {
	c.index[m.ID] = len(c.list)
	c.list = append(c.list, m)
}

func (c *chatMessages) reindex() {
	c.index = make(map[int64]int, len(c.list))
	for i, m := range c.list {
		c.index[m.ID] = i
	}
}

// Memory is the in-process Store.
type Memory struct {
	mu       sync.RWMutex
	messages map[int64]*chatMessages
	chats    map[int64]model.ChatSummary
	order    []int64 // chat ids in server order
	users    map[int64]model.User

	stale   map[Key]struct{}
	pending []Key
	queued  map[Key]struct{}
	signal  chan struct{}
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		messages: make(map[int64]*chatMessages),
		chats:    make(map[int64]model.ChatSummary),
		users:    make(map[int64]model.User),
		stale:    make(map[Key]struct{}),
		queued:   make(map[Key]struct{}),
		signal:   make(chan struct{}, 1),
	}
}

func (s *Memory) HasMessage(chatID, msgID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.messages[chatID]
	if !ok {
		return false
	}
	_, ok = c.index[msgID]
	return ok
}

func (s *Memory) AppendMessage(m model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.messages[m.ChatID]
	if !ok {
		c = &chatMessages{index: make(map[int64]int)}
		s.messages[m.ChatID] = c
	}
	if _, dup := c.index[m.ID]; dup {
		return false
	}
	c.add(m.Clone())
	return true
}

func (s *Memory) UpdateMessage(chatID, msgID int64, fn func(*model.Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.messages[chatID]
	if !ok {
		return false
	}
	i, ok := c.index[msgID]
	if !ok {
		return false
	}
	m := c.list[i].Clone()
	fn(&m)
	// identity is fixed
	m.ID, m.ChatID = msgID, chatID
	c.list[i] = m
	return true
}

func (s *Memory) Messages(chatID int64) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.messages[chatID]
	if !ok {
		return nil
	}
	out := make([]model.Message, len(c.list))
	for i, m := range c.list {
		out[i] = m.Clone()
	}
	return out
}

func (s *Memory) PatchSummary(chatID int64, fn func(*model.ChatSummary)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.chats[chatID]
	if !ok {
		return false
	}
	next := cur.Clone()
	fn(&next)
	next.ID = chatID
	s.chats[chatID] = next
	return true
}

func (s *Memory) Summary(chatID int64) (model.ChatSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[chatID]
	if !ok {
		return model.ChatSummary{}, false
	}
	return c.Clone(), true
}

func (s *Memory) Summaries() []model.ChatSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ChatSummary, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.chats[id].Clone())
	}
	return out
}

func (s *Memory) User(userID int64) (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	return u, ok
}

func (s *Memory) Invalidate(keys ...Key) {
	if len(keys) == 0 {
		return
	}
	s.mu.Lock()
	added := false
	for _, k := range keys {
		s.stale[k] = struct{}{}
		if _, ok := s.queued[k]; ok {
			continue
		}
		s.queued[k] = struct{}{}
		s.pending = append(s.pending, k)
		added = true
	}
	s.mu.Unlock()
	if added {
		select {
		case s.signal <- struct{}{}:
		default:
		}
	}
}

func (s *Memory) IsStale(k Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.stale[k]
	return ok
}

func (s *Memory) Invalidated() <-chan struct{} { return s.signal }

func (s *Memory) TakeInvalidations() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	s.queued = make(map[Key]struct{})
	return out
}

// HydrateChats replaces the chat list with a server snapshot.
func (s *Memory) HydrateChats(chats []model.ChatSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = make(map[int64]model.ChatSummary, len(chats))
	s.order = s.order[:0]
	for _, c := range chats {
		if _, dup := s.chats[c.ID]; !dup {
			s.order = append(s.order, c.ID)
		}
		s.chats[c.ID] = c.Clone()
		delete(s.stale, Chat(c.ID))
		if c.Counterpart != nil {
			s.users[c.Counterpart.ID] = *c.Counterpart
		}
	}
	delete(s.stale, ChatList)
}

// HydrateMessages merges a server page into the chat's messages. Server
// copies win for ids already cached; order is by CreatedAt, then ID.
func (s *Memory) HydrateMessages(chatID int64, msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.messages[chatID]
	if !ok {
		c = &chatMessages{index: make(map[int64]int)}
		s.messages[chatID] = c
	}
	for _, m := range msgs {
		if m.ChatID != chatID {
			continue
		}
		if i, ok := c.index[m.ID]; ok {
			c.list[i] = m.Clone()
			continue
		}
		c.add(m.Clone())
	}
	sort.SliceStable(c.list, func(i, j int) bool {
		a, b := c.list[i], c.list[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	c.reindex()
	delete(s.stale, Messages(chatID))
}

func (s *Memory) HydrateUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	for id, c := range s.chats {
		if c.Counterpart != nil && c.Counterpart.ID == u.ID {
			c = c.Clone()
			cp := u
			c.Counterpart = &cp
			s.chats[id] = c
		}
	}
	delete(s.stale, User(u.ID))
}
