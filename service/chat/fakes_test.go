package chat

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"PPClient/tools/clock"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type readResult struct {
	mt   int
	data []byte
	err  error
}

type fakeSocket struct {
	in        chan readResult
	closedCh  chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	written    [][]byte
	failWrites bool
	budget     int // writes allowed before failing; <0 unlimited
	closeCode  int
	stalled    chan struct{}
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{in: make(chan readResult, 64), closedCh: make(chan struct{}), budget: -1}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case r := <-s.in:
		return r.mt, r.data, r.err
	case <-s.closedCh:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (s *fakeSocket) WriteText(data []byte) error {
	s.mu.Lock()
	if started := s.stalled; started != nil {
		s.stalled = nil
		s.mu.Unlock()
		close(started)
		<-s.closedCh
		return errors.New("use of closed connection")
	}
	defer s.mu.Unlock()
	if s.failWrites || s.budget == 0 {
		return errors.New("broken pipe")
	}
	if s.budget > 0 {
		s.budget--
	}
	s.written = append(s.written, append([]byte(nil), data...))
	return nil
}

func (s *fakeSocket) CloseWith(code int, _ string) error {
	s.mu.Lock()
	s.closeCode = code
	s.mu.Unlock()
	return s.Close()
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closedCh) })
	return nil
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closedCh:
		return true
	default:
		return false
	}
}

func (s *fakeSocket) allowWrites(n int) {
	s.mu.Lock()
	s.budget = n
	s.mu.Unlock()
}

// stallWrite makes the next write block until the socket is closed and then
// fail. The returned channel is closed once that write has started.
func (s *fakeSocket) stallWrite() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalled = make(chan struct{})
	return s.stalled
}

func (s *fakeSocket) setFailWrites(v bool) {
	s.mu.Lock()
	s.failWrites = v
	s.mu.Unlock()
}

// push delivers a text frame built from v.
func (s *fakeSocket) push(t *testing.T, v any) {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	s.in <- readResult{mt: websocket.TextMessage, data: b}
}

func (s *fakeSocket) pushRaw(data string) {
	s.in <- readResult{mt: websocket.TextMessage, data: []byte(data)}
}

// serverClose simulates the peer closing with code and reason.
func (s *fakeSocket) serverClose(code int, reason string) {
	s.in <- readResult{err: &websocket.CloseError{Code: code, Text: reason}}
}

type sentFrame struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func (s *fakeSocket) frames(t *testing.T) []sentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentFrame, 0, len(s.written))
	for _, b := range s.written {
		var f sentFrame
		require.NoError(t, json.Unmarshal(b, &f))
		out = append(out, f)
	}
	return out
}

func (s *fakeSocket) types(t *testing.T) []string {
	var out []string
	for _, f := range s.frames(t) {
		out = append(out, f.Type)
	}
	return out
}

type fakeDialer struct {
	mu      sync.Mutex
	fail    error
	headers []http.Header
	dialed  chan *fakeSocket
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeSocket, 32)}
}

func (d *fakeDialer) Dial(_ context.Context, _ string, header http.Header) (Socket, error) {
	d.mu.Lock()
	d.headers = append(d.headers, header)
	fail := d.fail
	d.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	s := newFakeSocket()
	d.dialed <- s
	return s, nil
}

func (d *fakeDialer) next(t *testing.T) *fakeSocket {
	t.Helper()
	select {
	case s := <-d.dialed:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no dial observed")
		return nil
	}
}

func (d *fakeDialer) none(t *testing.T) {
	t.Helper()
	select {
	case <-d.dialed:
		t.Fatal("unexpected dial")
	case <-time.After(50 * time.Millisecond):
	}
}

func testPolicy() Policy {
	return Policy{
		MinConnectInterval: 0,
		SettleDelay:        100 * time.Millisecond,
		HeartbeatInterval:  25 * time.Second,
		HeartbeatTimeout:   10 * time.Second,
		Backoff:            Backoff{Base: time.Second, Cap: 8 * time.Second},
		MaxAttempts:        5,
		SupersededCode:     4000,
		SupersededReason:   "superseded by newer connection",
	}
}

var testIdentity = Identity{ClientID: "2b1f5a52-8a55-4c0e-9d39-3a1f0f0d6a11", UserID: 42, Token: "tok"}

type harness struct {
	m      *Manager
	dialer *fakeDialer
	clk    *clock.Fake

	mu      sync.Mutex
	changes []StateChange
	notices []Notice
}

func newHarness(t *testing.T, p Policy) *harness {
	h := &harness{dialer: newFakeDialer(), clk: clock.NewFake(time.Unix(1_700_000_000, 0))}
	h.m = NewManager(ManagerConf{
		URL:    "ws://chat.test/ws",
		Policy: p,
		Dialer: h.dialer,
		Clock:  h.clk,
		Logger: zaptest.NewLogger(t),
	})
	h.m.OnStateChange(func(c StateChange) {
		h.mu.Lock()
		h.changes = append(h.changes, c)
		h.mu.Unlock()
	})
	h.m.OnNotice(func(n Notice) {
		h.mu.Lock()
		h.notices = append(h.notices, n)
		h.mu.Unlock()
	})
	t.Cleanup(h.m.Disconnect)
	return h
}

func (h *harness) waitState(t *testing.T, s ConnState) {
	t.Helper()
	require.Eventually(t, func() bool { return h.m.State() == s }, 2*time.Second, time.Millisecond, "state %s", s)
}

// open connects and waits for the socket to be up, not yet authenticated.
func (h *harness) open(t *testing.T) *fakeSocket {
	t.Helper()
	h.m.Connect(testIdentity)
	s := h.dialer.next(t)
	h.waitState(t, Connected)
	return s
}

// authed connects and completes the handshake.
func (h *harness) authed(t *testing.T) *fakeSocket {
	t.Helper()
	s := h.open(t)
	h.clk.Advance(h.m.policy.SettleDelay)
	require.Equal(t, Authenticated, h.m.State())
	return s
}

func (h *harness) stateChanges() []StateChange {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]StateChange(nil), h.changes...)
}

func (h *harness) noticeList() []Notice {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Notice(nil), h.notices...)
}

func (h *harness) ackPending() bool {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.m.hb.ack != nil
}
