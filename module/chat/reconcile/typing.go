package reconcile

import (
	"sort"
	"sync"
	"time"

	"PPClient/tools/clock"
	"PPClient/tools/safe"
)

type typingEntry struct {
	timer clock.Timer
	seq   uint64
}

// TypingSet tracks who is typing in each chat. Every entry expires after ttl
// unless refreshed by a newer indicator for the same user.
type TypingSet struct {
	mu       sync.Mutex
	ttl      time.Duration
	clk      clock.Clock
	seq      uint64
	chats    map[int64]map[int64]*typingEntry
	onChange func(chatID int64, users []int64)
}

func NewTypingSet(ttl time.Duration, clk clock.Clock) *TypingSet {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &TypingSet{
		ttl:   ttl,
		clk:   clock.Or(clk),
		chats: make(map[int64]map[int64]*typingEntry),
	}
}

// OnChange registers the single change callback, the hook a UI uses to
// render "is typing". It runs without the set's lock held.
func (s *TypingSet) OnChange(fn func(chatID int64, users []int64)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Add marks userID as typing in chatID and restarts its expiry.
func (s *TypingSet) Add(chatID, userID int64) {
	s.mu.Lock()
	users, ok := s.chats[chatID]
	if !ok {
		users = make(map[int64]*typingEntry)
		s.chats[chatID] = users
	}
	e, existed := users[userID]
	if existed {
		e.timer.Stop()
	} else {
		e = &typingEntry{}
		users[userID] = e
	}
	s.seq++
	seq := s.seq
	e.seq = seq
	e.timer = s.clk.AfterFunc(s.ttl, func() { s.expire(chatID, userID, seq) })
	fn, snap := s.notifyLocked(chatID, !existed)
	s.mu.Unlock()
	s.emit(fn, chatID, snap)
}

// Remove clears userID from chatID immediately.
func (s *TypingSet) Remove(chatID, userID int64) {
	s.mu.Lock()
	fn, snap := s.removeLocked(chatID, userID, 0)
	s.mu.Unlock()
	s.emit(fn, chatID, snap)
}

func (s *TypingSet) expire(chatID, userID int64, seq uint64) {
	s.mu.Lock()
	fn, snap := s.removeLocked(chatID, userID, seq)
	s.mu.Unlock()
	s.emit(fn, chatID, snap)
}

// removeLocked drops the entry; seq != 0 only removes the matching generation.
func (s *TypingSet) removeLocked(chatID, userID int64, seq uint64) (func(int64, []int64), []int64) {
	users, ok := s.chats[chatID]
	if !ok {
		return nil, nil
	}
	e, ok := users[userID]
	if !ok || (seq != 0 && e.seq != seq) {
		return nil, nil
	}
	e.timer.Stop()
	delete(users, userID)
	if len(users) == 0 {
		delete(s.chats, chatID)
	}
	return s.notifyLocked(chatID, true)
}

func (s *TypingSet) notifyLocked(chatID int64, changed bool) (func(int64, []int64), []int64) {
	if !changed || s.onChange == nil {
		return nil, nil
	}
	return s.onChange, s.usersLocked(chatID)
}

func (s *TypingSet) emit(fn func(int64, []int64), chatID int64, users []int64) {
	if fn == nil {
		return
	}
	_ = safe.Call(func() { fn(chatID, users) })
}

// Users returns the typing users of chatID in ascending id order.
func (s *TypingSet) Users(chatID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usersLocked(chatID)
}

func (s *TypingSet) usersLocked(chatID int64) []int64 {
	users := s.chats[chatID]
	out := make([]int64, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clear drops every indicator and stops all timers. Each chat that had
// typing users gets one change with an empty user list.
func (s *TypingSet) Clear() {
	s.mu.Lock()
	fn := s.onChange
	cleared := make([]int64, 0, len(s.chats))
	for chatID, users := range s.chats {
		for _, e := range users {
			e.timer.Stop()
		}
		cleared = append(cleared, chatID)
	}
	s.chats = make(map[int64]map[int64]*typingEntry)
	s.mu.Unlock()

	sort.Slice(cleared, func(i, j int) bool { return cleared[i] < cleared[j] })
	for _, chatID := range cleared {
		s.emit(fn, chatID, []int64{})
	}
}
